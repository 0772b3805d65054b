/*
store.go - Persistence interface for the attendance engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:   Every row operation the reconciliation core consumes
  TxStore: Store plus WithTx for atomic multi-row writes

CONTRACTS:
  - Get* methods return (nil, nil) when the row is missing; services
    translate that into the typed not-found errors.
  - InsertAttendance returns ErrDuplicateRecord when a row already exists
    for (UserID, Date). The constraint lives in the schema, so two
    concurrent writers cannot both succeed.
  - DeleteAttendanceByUserAndDate returns ErrRecordNotFound when nothing
    was deleted.
  - DeleteUser cascades: the user's attendance rows and leave requests are
    removed in the same transaction.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite
  - store/postgres: production PostgreSQL (pgx)
  - core/store: in-memory for tests and dev

SEE ALSO:
  - ledger: check-in/check-out state machine on top of Store
  - leave: delete-then-recreate synchronization inside WithTx
*/
package core

import "context"

// Store enumerates every persistence operation the reconciliation core
// needs. It is deliberately flat: the ledger, leave, identity, and
// directory packages each use a slice of it.
type Store interface {
	// Users
	GetUser(ctx context.Context, id UserID) (*User, error)
	// FindUserByNameAndSite locates an active user at the given site with
	// the same name. When phone is non-empty it must match as well.
	FindUserByNameAndSite(ctx context.Context, name, phone string, siteID SiteID) (*User, error)
	SaveUser(ctx context.Context, u User) error
	// DeleteUser removes the user and cascades to their attendance rows
	// and leave requests.
	DeleteUser(ctx context.Context, id UserID) error
	ListUsers(ctx context.Context) ([]User, error)

	// Sites
	GetSite(ctx context.Context, id SiteID) (*Site, error)
	SaveSite(ctx context.Context, s Site) error

	// Attendance ledger
	GetAttendanceByUserAndDate(ctx context.Context, userID UserID, date Day) (*AttendanceRecord, error)
	// GetOpenAttendance returns the user's most recent record with a
	// check-in time and no checkout, or nil.
	GetOpenAttendance(ctx context.Context, userID UserID) (*AttendanceRecord, error)
	InsertAttendance(ctx context.Context, rec AttendanceRecord) error
	UpdateAttendance(ctx context.Context, rec AttendanceRecord) error
	DeleteAttendanceByUserAndDate(ctx context.Context, userID UserID, date Day) error
	// DeleteAttendanceByRequest removes every record derived from the
	// given leave request. Deleting zero rows is not an error.
	DeleteAttendanceByRequest(ctx context.Context, requestID RequestID) error
	ListAttendanceByUserRange(ctx context.Context, userID UserID, from, to Day) ([]AttendanceRecord, error)
	ListAttendanceBySiteAndDate(ctx context.Context, siteID SiteID, date Day) ([]AttendanceRecord, error)

	// Leave requests
	GetRequest(ctx context.Context, id RequestID) (*LeaveRequest, error)
	InsertRequest(ctx context.Context, lr LeaveRequest) error
	UpdateRequest(ctx context.Context, lr LeaveRequest) error
	DeleteRequest(ctx context.Context, id RequestID) error
	ListRequestsByUser(ctx context.Context, userID UserID) ([]LeaveRequest, error)
	ListRequestsByStatus(ctx context.Context, status RequestStatus) ([]LeaveRequest, error)

	// Audit reads
	// ListCompanyDrift returns users whose denormalized company disagrees
	// with their assigned active site's company. The core detects drift;
	// it does not self-heal (repair is an explicit admin action).
	ListCompanyDrift(ctx context.Context) ([]User, error)
}

// TxStore wraps Store with transaction support. Use it when a sequence of
// writes must be atomic (leave synchronization, cascading deletes, site
// reassignment).
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
