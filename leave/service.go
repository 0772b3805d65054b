/*
Package leave owns the leave-request lifecycle and keeps the attendance
ledger synchronized with the set of approved requests.

LIFECYCLE:
  pending ──▶ approved | rejected
  Both terminal states are re-enterable: an admin may flip an approved
  request back to pending or rejected, and synchronization reacts
  correctly each time. Deletion is allowed from any state (by privileged
  actors) or from pending (by the owner).

SYNCHRONIZATION CONTRACT (on every status- or range-affecting update):
  1. Compute the final status.
  2. Unconditionally delete every attendance record tagged with this
     request's ID. This makes the step idempotent regardless of what the
     "before" picture looked like.
  3. If the final status is approved, write one record per date in the
     inclusive range, with source=vacation and the request back-reference.
     An existing record from any other source is overwritten: leave
     approval takes precedence over attendance for that date (last writer
     wins, not a conflict).
  4. Otherwise write nothing (step 2 already cleared stale entries).

  Delete-then-recreate instead of diffing: edits can change dates, type,
  and status at once; regenerating from scratch guarantees the ledger
  always equals the union of approved ranges. The whole sequence runs in
  one store transaction, and per-user locks keep it from interleaving with
  check-in/out writes.
*/
package leave

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sitewise/attendance-engine/core"
)

// Service orchestrates the request lifecycle against a transactional store.
type Service struct {
	store core.TxStore
	locks *core.UserLocks

	// Now is the clock for request/response timestamps. Overridable in
	// tests.
	Now func() time.Time
}

// NewService creates a leave Service. Share the UserLocks instance with the
// attendance ledger.
func NewService(store core.TxStore, locks *core.UserLocks) *Service {
	return &Service{store: store, locks: locks, Now: time.Now}
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submit files a new pending request. Day count: 0.5 for a half-day
// (which must span exactly one calendar day), otherwise the inclusive
// length of the range.
func (s *Service) Submit(ctx context.Context, userID core.UserID, typ core.LeaveType, start, end core.Day, reason string) (*core.LeaveRequest, error) {
	if !typ.Valid() {
		return nil, core.ErrInvalidLeaveType
	}
	if end.Before(start) {
		return nil, core.ErrInvalidDateRange
	}
	if typ == core.LeaveHalfDay && !start.Equal(end) {
		return nil, core.ErrInvalidDateRange
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, core.ErrUserNotFound
	}

	lr := core.LeaveRequest{
		ID:          core.RequestID(uuid.NewString()),
		UserID:      userID,
		Type:        typ,
		StartDate:   start,
		EndDate:     end,
		Days:        requestDays(typ, start, end),
		Status:      core.RequestPending,
		Reason:      reason,
		RequestedAt: s.Now(),
	}

	if err := s.store.InsertRequest(ctx, lr); err != nil {
		return nil, err
	}
	return &lr, nil
}

func requestDays(typ core.LeaveType, start, end core.Day) decimal.Decimal {
	if typ == core.LeaveHalfDay {
		return decimal.NewFromFloat(0.5)
	}
	return decimal.NewFromInt(int64(core.Period{Start: start, End: end}.Length()))
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Update carries the fields a transition may change. Nil fields are left
// untouched. Any call triggers synchronization, whether or not the status
// itself changed.
type Update struct {
	Status          *core.RequestStatus
	Type            *core.LeaveType
	StartDate       *core.Day
	EndDate         *core.Day
	Reason          *string
	RejectionReason *string
	ActorID         core.UserID
}

// Transition applies an update to a request and rewrites the affected
// ledger range. The delete+recreate sequence and the request update commit
// in a single transaction.
func (s *Service) Transition(ctx context.Context, id core.RequestID, upd Update) (*core.LeaveRequest, error) {
	lr, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if lr == nil {
		return nil, core.ErrRequestNotFound
	}

	if upd.Type != nil {
		if !upd.Type.Valid() {
			return nil, core.ErrInvalidLeaveType
		}
		lr.Type = *upd.Type
	}
	if upd.StartDate != nil {
		lr.StartDate = *upd.StartDate
	}
	if upd.EndDate != nil {
		lr.EndDate = *upd.EndDate
	}
	if lr.EndDate.Before(lr.StartDate) {
		return nil, core.ErrInvalidDateRange
	}
	if lr.Type == core.LeaveHalfDay && !lr.StartDate.Equal(lr.EndDate) {
		return nil, core.ErrInvalidDateRange
	}
	lr.Days = requestDays(lr.Type, lr.StartDate, lr.EndDate)

	if upd.Reason != nil {
		lr.Reason = *upd.Reason
	}
	if upd.RejectionReason != nil {
		lr.RejectionReason = *upd.RejectionReason
	}

	// Final status: the explicit new status, or the existing one when the
	// update only touched dates/type/reason.
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return nil, core.ErrInvalidStatus
		}
		if *upd.Status != lr.Status {
			now := s.Now()
			lr.RespondedAt = &now
			lr.RespondedBy = upd.ActorID
		}
		lr.Status = *upd.Status
	}

	defer s.locks.Lock(lr.UserID)()

	err = s.store.WithTx(ctx, func(tx core.Store) error {
		if err := tx.UpdateRequest(ctx, *lr); err != nil {
			return err
		}
		return s.synchronize(ctx, tx, lr)
	})
	if err != nil {
		return nil, err
	}
	return lr, nil
}

// synchronize rewrites the ledger entries derived from one request. Runs
// inside the caller's transaction.
func (s *Service) synchronize(ctx context.Context, tx core.Store, lr *core.LeaveRequest) error {
	if err := tx.DeleteAttendanceByRequest(ctx, lr.ID); err != nil {
		return err
	}
	if lr.Status != core.RequestApproved {
		return nil
	}

	now := s.Now()
	for _, day := range lr.Range().Days() {
		existing, err := tx.GetAttendanceByUserAndDate(ctx, lr.UserID, day)
		if err != nil {
			return err
		}

		rec := existing
		if rec == nil {
			rec = &core.AttendanceRecord{
				ID:        core.RecordID(uuid.NewString()),
				UserID:    lr.UserID,
				Date:      day,
				CreatedAt: now,
			}
		}
		// Leave approval overwrites whatever occupied the date.
		rec.CheckInAt = nil
		rec.CheckOutAt = nil
		rec.Type = lr.Type.AttendanceType()
		rec.Source = core.SourceVacation
		rec.LeaveRequestID = lr.ID
		rec.UpdatedAt = now

		if existing == nil {
			err = tx.InsertAttendance(ctx, *rec)
		} else {
			err = tx.UpdateAttendance(ctx, *rec)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// DELETION
// =============================================================================

// Delete removes a request and its derived ledger entries. Workers may
// delete only their own pending requests; site managers and HQ admins may
// delete any request in any state.
func (s *Service) Delete(ctx context.Context, id core.RequestID, actor *core.User) error {
	lr, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if lr == nil {
		return core.ErrRequestNotFound
	}

	if !actor.Role.Privileged() {
		if lr.UserID != actor.ID || lr.Status != core.RequestPending {
			return &core.ForbiddenTransitionError{
				ActorID:   actor.ID,
				RequestID: id,
				Status:    lr.Status,
			}
		}
	}

	defer s.locks.Lock(lr.UserID)()

	return s.store.WithTx(ctx, func(tx core.Store) error {
		if err := tx.DeleteAttendanceByRequest(ctx, id); err != nil {
			return err
		}
		return tx.DeleteRequest(ctx, id)
	})
}

// =============================================================================
// ENTITLEMENT READS
// =============================================================================

// Snapshot computes the user's entitlement as of a date, feeding the pure
// calculator with the approved and pending entitlement-consuming day
// counts inside the current accrual period.
func (s *Service) Snapshot(ctx context.Context, userID core.UserID, asOf core.Day) (*core.EntitlementSnapshot, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, core.ErrUserNotFound
	}

	// First pass fixes the accrual period; second pass folds in usage.
	base := Entitlement(user.HireDate, asOf, decimal.Zero, decimal.Zero)
	if user.HireDate == nil {
		snap := base
		return &snap, nil
	}

	requests, err := s.store.ListRequestsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	used, pending := decimal.Zero, decimal.Zero
	for _, lr := range requests {
		if !lr.Type.CountsAgainstEntitlement() {
			continue
		}
		// A request belongs to the period its start date falls in.
		if lr.StartDate.Before(base.PeriodStart) || !lr.StartDate.Before(base.PeriodEnd) {
			continue
		}
		switch lr.Status {
		case core.RequestApproved:
			used = used.Add(lr.Days)
		case core.RequestPending:
			pending = pending.Add(lr.Days)
		}
	}

	snap := Entitlement(user.HireDate, asOf, used, pending)
	return &snap, nil
}

// PendingRequests lists every pending request (for approval screens).
func (s *Service) PendingRequests(ctx context.Context) ([]core.LeaveRequest, error) {
	return s.store.ListRequestsByStatus(ctx, core.RequestPending)
}

// UserRequests lists a user's requests, oldest range first.
func (s *Service) UserRequests(ctx context.Context, userID core.UserID) ([]core.LeaveRequest, error) {
	return s.store.ListRequestsByUser(ctx, userID)
}
