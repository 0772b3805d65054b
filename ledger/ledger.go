/*
Package ledger implements the attendance ledger state machine.

PURPOSE:
  The ledger is the source of truth for "did this user attend, and when"
  per calendar day, plus leave-type markers. It owns the check-in/check-out
  state machine and the one-record-per-(user, day) invariant.

STATE MACHINE (per user):
  no-record ──check-in──▶ in-only ──check-out──▶ completed
  A leave-marked state exists orthogonally for non-normal types (no times,
  just a type); those records are written by admins or by the leave
  synchronizer, never by a scan.

INVARIANTS:
  1. At most one AttendanceRecord per (UserID, Date) at any steady state.
  2. A check-in while an open record exists is a conflict, not a duplicate.
  3. An overnight checkout closes the open record on its check-in date;
     no second row is created for the following day.

CONCURRENCY:
  Mutations are serialized per user through a shared core.UserLocks, so two
  simultaneous scans cannot both observe "no open record". The store's
  unique constraint on (user_id, check_in_date) is the backstop.

SEE ALSO:
  - core/store.go: persistence operations the ledger drives
  - leave: writes vacation-sourced records through the same store
*/
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sitewise/attendance-engine/core"
)

// Ledger applies attendance transitions against a store.
type Ledger struct {
	store core.TxStore
	locks *core.UserLocks

	// Now is the clock used for check-in/check-out stamps. Overridable in
	// tests.
	Now func() time.Time
}

// New creates a Ledger. The UserLocks should be shared with the leave
// service so ledger writes and leave synchronization for a user never
// interleave.
func New(store core.TxStore, locks *core.UserLocks) *Ledger {
	return &Ledger{store: store, locks: locks, Now: time.Now}
}

// =============================================================================
// CHECK-IN / CHECK-OUT
// =============================================================================

// CheckIn records a QR check-in for the user on the given date.
//
// Rejections: an open record anywhere (AlreadyCheckedInError), a user with
// no site (ErrUnassignedSite), a date carrying a leave mark
// (ErrDayMarkedAsLeave).
//
// A completed record on the same date is reopened for a second stint. A
// leave-marked record blocks the scan whether it came from the leave
// synchronizer or from an admin: clearing it is the mark owner's job, not
// the scanner's.
func (l *Ledger) CheckIn(ctx context.Context, userID core.UserID, date core.Day) (*core.AttendanceRecord, error) {
	defer l.locks.Lock(userID)()

	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, core.ErrUserNotFound
	}
	if user.SiteID == nil {
		return nil, core.ErrUnassignedSite
	}

	open, err := l.store.GetOpenAttendance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, &core.AlreadyCheckedInError{
			UserID:   userID,
			OpenDate: open.Date,
			RecordID: open.ID,
		}
	}

	now := l.Now()
	rec := core.AttendanceRecord{
		ID:        core.RecordID(uuid.NewString()),
		UserID:    userID,
		Date:      date,
		CheckInAt: &now,
		Type:      core.AttendanceNormal,
		Source:    core.SourceQR,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = l.store.InsertAttendance(ctx, rec)
	if errors.Is(err, core.ErrDuplicateRecord) {
		return l.reopenExisting(ctx, userID, date, now)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// reopenExisting handles a check-in on a date that already has a record
// (e.g. checked out at midday, returning for a second stint). The existing
// row is reset to in-only; a leave-marked row is owned by its leave request
// or by the admin who set it, and blocks the scan instead.
func (l *Ledger) reopenExisting(ctx context.Context, userID core.UserID, date core.Day, now time.Time) (*core.AttendanceRecord, error) {
	existing, err := l.store.GetAttendanceByUserAndDate(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		// Row vanished between insert and read; surface the conflict.
		return nil, core.ErrDuplicateRecord
	}
	if existing.Type.IsLeave() {
		return nil, core.ErrDayMarkedAsLeave
	}

	existing.CheckInAt = &now
	existing.CheckOutAt = nil
	existing.Type = core.AttendanceNormal
	existing.Source = core.SourceQR
	existing.LeaveRequestID = ""
	existing.UpdatedAt = now

	if err := l.store.UpdateAttendance(ctx, *existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// CheckOut closes the user's open record. The record stays attributed to
// its check-in date even when the checkout lands past midnight.
func (l *Ledger) CheckOut(ctx context.Context, userID core.UserID) (*core.AttendanceRecord, error) {
	defer l.locks.Lock(userID)()

	open, err := l.store.GetOpenAttendance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if open == nil {
		return nil, core.ErrNoOpenCheckIn
	}

	now := l.Now()
	open.CheckOutAt = &now
	open.UpdatedAt = now

	if err := l.store.UpdateAttendance(ctx, *open); err != nil {
		return nil, err
	}
	return open, nil
}

// =============================================================================
// ADMIN WRITES
// =============================================================================

// AdminSet is the privileged direct write onto a (user, date) cell.
//
// For typ == AttendanceNormal the record gets check-in time "now" and no
// checkout; with markCheckout it instead gets a checkout time (creating an
// instant completed record when absent). For any leave type the record
// carries no times and source=manual, unless the existing record came from
// the synchronizer (source=vacation), in which case the source and request
// reference are left untouched: a leave-derived record must be re-derived
// from its request, not hand-edited into a manual one.
func (l *Ledger) AdminSet(ctx context.Context, userID core.UserID, date core.Day, typ core.AttendanceType, markCheckout bool) (*core.AttendanceRecord, error) {
	if !typ.Valid() {
		return nil, core.ErrInvalidAttendanceType
	}
	defer l.locks.Lock(userID)()

	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, core.ErrUserNotFound
	}

	existing, err := l.store.GetAttendanceByUserAndDate(ctx, userID, date)
	if err != nil {
		return nil, err
	}

	now := l.Now()
	rec := existing
	if rec == nil {
		rec = &core.AttendanceRecord{
			ID:        core.RecordID(uuid.NewString()),
			UserID:    userID,
			Date:      date,
			CreatedAt: now,
		}
	}
	rec.UpdatedAt = now
	rec.Type = typ

	if typ == core.AttendanceNormal {
		rec.Source = core.SourceManual
		rec.LeaveRequestID = ""
		if markCheckout {
			if rec.CheckInAt == nil {
				rec.CheckInAt = &now
			}
			rec.CheckOutAt = &now
		} else {
			rec.CheckInAt = &now
			rec.CheckOutAt = nil
		}
	} else {
		rec.CheckInAt = nil
		rec.CheckOutAt = nil
		if existing == nil || existing.Source != core.SourceVacation {
			rec.Source = core.SourceManual
			rec.LeaveRequestID = ""
		}
	}

	if existing == nil {
		err = l.store.InsertAttendance(ctx, *rec)
	} else {
		err = l.store.UpdateAttendance(ctx, *rec)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// AdminDelete removes the record for (user, date). Returns
// ErrRecordNotFound when no record exists.
func (l *Ledger) AdminDelete(ctx context.Context, userID core.UserID, date core.Day) error {
	defer l.locks.Lock(userID)()
	return l.store.DeleteAttendanceByUserAndDate(ctx, userID, date)
}

// =============================================================================
// READS
// =============================================================================

// Range returns the user's records in [from, to], ordered by date.
func (l *Ledger) Range(ctx context.Context, userID core.UserID, from, to core.Day) ([]core.AttendanceRecord, error) {
	if from.After(to) {
		return nil, core.ErrInvalidDateRange
	}
	return l.store.ListAttendanceByUserRange(ctx, userID, from, to)
}

// SiteDay returns every record at a site for one date (for admin listings).
func (l *Ledger) SiteDay(ctx context.Context, siteID core.SiteID, date core.Day) ([]core.AttendanceRecord, error) {
	return l.store.ListAttendanceBySiteAndDate(ctx, siteID, date)
}
