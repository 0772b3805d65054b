/*
errors.go - Centralized error types for the attendance engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. State-conflict errors - already checked in, no open check-in
  2. Not-found errors - user/site/record/request missing
  3. Validation errors - bad dates, unassigned site, bad leave type
  4. Authorization errors - forbidden transition

USAGE:
  Callers classify with errors.Is():

    if errors.Is(err, core.ErrAlreadyCheckedIn) {
        // reject the duplicate scan
    }

SEE ALSO:
  - ledger: returns the check-in/out conflicts
  - leave: returns request lifecycle errors
  - identity: returns the site mismatch error
*/
package core

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAlreadyCheckedIn is returned when a check-in arrives while an open
	// (in-only) record exists. This is the ledger's only defense against
	// duplicate QR scans.
	ErrAlreadyCheckedIn = errors.New("already checked in: must check out before checking in again")

	// ErrNoOpenCheckIn is returned when a check-out arrives with no open
	// record to close.
	ErrNoOpenCheckIn = errors.New("no open check-in to close")

	// ErrRecordNotFound is returned for admin edits/deletes on a date with
	// no attendance record.
	ErrRecordNotFound = errors.New("attendance record not found")

	// ErrDuplicateRecord is returned by stores when an insert would violate
	// the one-record-per-(user, date) constraint.
	ErrDuplicateRecord = errors.New("attendance record already exists for that date")

	// ErrDayMarkedAsLeave is returned when a check-in lands on a date
	// carrying a leave mark, whether synchronized from an approved request
	// or set by an admin. Those entries are owned by the request or the
	// admin, not by the scanner.
	ErrDayMarkedAsLeave = errors.New("date is marked as leave")

	// ErrUnassignedSite is returned when the acting user has no site.
	ErrUnassignedSite = errors.New("user has no assigned site")

	// ErrSiteMismatch is returned when a scan claims a site the user does
	// not belong to and no same-person alternate account exists there.
	ErrSiteMismatch = errors.New("qr code belongs to a different site")

	// ErrUserNotFound / ErrSiteNotFound / ErrRequestNotFound are the
	// not-found family. No mutation happens before they are raised.
	ErrUserNotFound    = errors.New("user not found")
	ErrSiteNotFound    = errors.New("site not found")
	ErrRequestNotFound = errors.New("leave request not found")

	// ErrInvalidDateRange is returned when a request's end date precedes
	// its start date, or a half-day request spans multiple days.
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrInvalidLeaveType is returned for unknown leave types ("normal" is
	// never a valid leave type).
	ErrInvalidLeaveType = errors.New("invalid leave type")

	// ErrInvalidAttendanceType is returned for unknown attendance types on
	// admin writes.
	ErrInvalidAttendanceType = errors.New("invalid attendance type")

	// ErrInvalidStatus is returned for unknown request statuses.
	ErrInvalidStatus = errors.New("invalid request status")

	// ErrForbidden is returned when a non-privileged actor attempts a
	// transition reserved for managers (e.g. deleting another worker's
	// request, or a non-pending request of their own).
	ErrForbidden = errors.New("forbidden")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AlreadyCheckedInError identifies the open record blocking a check-in.
type AlreadyCheckedInError struct {
	UserID   UserID
	OpenDate Day
	RecordID RecordID
}

func (e *AlreadyCheckedInError) Error() string {
	return fmt.Sprintf("already checked in since %s (record %s): must check out first",
		e.OpenDate, e.RecordID)
}

func (e *AlreadyCheckedInError) Unwrap() error { return ErrAlreadyCheckedIn }

// SiteMismatchError reports a scan against a site the user does not belong
// to, with no resolvable alternate account.
type SiteMismatchError struct {
	UserID        UserID
	UserSiteID    *SiteID
	ClaimedSiteID SiteID
}

func (e *SiteMismatchError) Error() string {
	return fmt.Sprintf("user %s is not assigned to site %s: this QR code belongs to a different site",
		e.UserID, e.ClaimedSiteID)
}

func (e *SiteMismatchError) Unwrap() error { return ErrSiteMismatch }

// ForbiddenTransitionError reports a lifecycle action the actor may not take.
type ForbiddenTransitionError struct {
	ActorID   UserID
	RequestID RequestID
	Status    RequestStatus
}

func (e *ForbiddenTransitionError) Error() string {
	return fmt.Sprintf("actor %s may not act on request %s in status %s",
		e.ActorID, e.RequestID, e.Status)
}

func (e *ForbiddenTransitionError) Unwrap() error { return ErrForbidden }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrSiteNotFound) ||
		errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrRecordNotFound)
}

// IsConflict reports whether the error is a state conflict (current state
// left unchanged).
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyCheckedIn) ||
		errors.Is(err, ErrNoOpenCheckIn) ||
		errors.Is(err, ErrDuplicateRecord) ||
		errors.Is(err, ErrDayMarkedAsLeave)
}

// IsClientError reports whether the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrInvalidLeaveType) ||
		errors.Is(err, ErrInvalidAttendanceType) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrUnassignedSite) ||
		errors.Is(err, ErrSiteMismatch)
}
