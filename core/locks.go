package core

import "sync"

// =============================================================================
// USER LOCKS - Per-user serialization of ledger mutations
// =============================================================================

// UserLocks serializes mutations per user. Two concurrent check-ins for the
// same user must not both observe "no open record"; the ledger and the leave
// synchronizer share one UserLocks so their writes for a user never
// interleave. Different users proceed in parallel.
type UserLocks struct {
	mu    sync.Mutex
	locks map[UserID]*sync.Mutex
}

func NewUserLocks() *UserLocks {
	return &UserLocks{locks: make(map[UserID]*sync.Mutex)}
}

// Lock acquires the mutex for the given user and returns the unlock func.
//
//	defer locks.Lock(userID)()
func (ul *UserLocks) Lock(id UserID) func() {
	ul.mu.Lock()
	m, ok := ul.locks[id]
	if !ok {
		m = &sync.Mutex{}
		ul.locks[id] = m
	}
	ul.mu.Unlock()

	m.Lock()
	return m.Unlock
}
