/*
Package core provides the shared domain model for the attendance engine.

PURPOSE:
  This package contains the types and persistence contracts shared by the
  attendance ledger, the leave lifecycle, the identity resolver, and the
  directory. It has no dependencies on any other package in this module.

KEY CONCEPTS IN THIS FILE (types.go):
  - User/Site: the directory entities attendance is keyed on
  - AttendanceRecord: one row per user per calendar day
  - LeaveRequest: a worker's application for time off
  - EntitlementSnapshot: a derived, never-persisted balance view

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for day counts (half-days exist)
  2. Type Safety: Strong typing for IDs prevents mixing user/site/request IDs
  3. Derivation: EntitlementSnapshot is recomputed on every read, never stored

SEE ALSO:
  - day.go: Day/Period calendar-day value types
  - errors.go: Sentinel and structured errors
  - store.go: Persistence interfaces
*/
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type SiteID string
type RecordID string
type RequestID string

// =============================================================================
// ROLES
// =============================================================================

type Role string

const (
	RoleHQAdmin     Role = "hq_admin"
	RoleSiteManager Role = "site_manager"
	RoleWorker      Role = "worker"
)

// Privileged reports whether the role may act on records it does not own.
func (r Role) Privileged() bool {
	return r == RoleHQAdmin || r == RoleSiteManager
}

// =============================================================================
// ATTENDANCE CLASSIFICATION
// =============================================================================

// AttendanceType classifies an attendance record. AttendanceNormal carries
// check-in/check-out times; every other type is a leave marker with no times.
type AttendanceType string

const (
	AttendanceNormal      AttendanceType = "normal"
	AttendanceAnnual      AttendanceType = "annual"
	AttendanceHalfDay     AttendanceType = "half_day"
	AttendanceSick        AttendanceType = "sick"
	AttendanceFamilyEvent AttendanceType = "family_event"
	AttendanceOther       AttendanceType = "other"
)

// IsLeave reports whether the type is a leave marker rather than worked time.
func (t AttendanceType) IsLeave() bool { return t != AttendanceNormal && t.Valid() }

func (t AttendanceType) Valid() bool {
	switch t {
	case AttendanceNormal, AttendanceAnnual, AttendanceHalfDay,
		AttendanceSick, AttendanceFamilyEvent, AttendanceOther:
		return true
	}
	return false
}

// Source records the provenance of an attendance record.
type Source string

const (
	SourceQR       Source = "qr"       // worker self check-in via QR scan
	SourceManual   Source = "manual"   // direct admin entry
	SourceVacation Source = "vacation" // derived from an approved leave request
)

// =============================================================================
// LEAVE CLASSIFICATION
// =============================================================================

// LeaveType is the vacation type on a leave request. The mapping onto
// AttendanceType is the identity; "normal" is not a valid leave type.
type LeaveType string

const (
	LeaveAnnual      LeaveType = "annual"
	LeaveHalfDay     LeaveType = "half_day"
	LeaveSick        LeaveType = "sick"
	LeaveFamilyEvent LeaveType = "family_event"
	LeaveOther       LeaveType = "other"
)

func (t LeaveType) Valid() bool {
	switch t {
	case LeaveAnnual, LeaveHalfDay, LeaveSick, LeaveFamilyEvent, LeaveOther:
		return true
	}
	return false
}

// AttendanceType returns the ledger type an approved request of this leave
// type produces.
func (t LeaveType) AttendanceType() AttendanceType { return AttendanceType(t) }

// CountsAgainstEntitlement reports whether approved days of this type consume
// the annual-leave balance. Sick and family-event leave are tracked in the
// ledger but do not draw down entitlement.
func (t LeaveType) CountsAgainstEntitlement() bool {
	return t == LeaveAnnual || t == LeaveHalfDay
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected:
		return true
	}
	return false
}

// =============================================================================
// DIRECTORY ENTITIES
// =============================================================================

// User is a directory identity. Company is denormalized from the assigned
// site: whenever SiteID points at an active site, Company must equal that
// site's Company. AssignSite in the directory package is the only write path
// that may change either side.
type User struct {
	ID        UserID
	Name      string
	Phone     string
	Role      Role
	SiteID    *SiteID
	Company   string
	HireDate  *Day
	Active    bool
	CreatedAt time.Time
}

// Site is a physical work site belonging to a corporate entity. Read-only
// from the reconciliation core's perspective.
type Site struct {
	ID        SiteID
	Name      string
	Company   string
	Active    bool
	CreatedAt time.Time
}

// =============================================================================
// ATTENDANCE RECORD - one row per (user, calendar day)
// =============================================================================

// AttendanceRecord is the ledger's unit. At most one record exists per
// (UserID, Date) at any steady state; the store enforces this with a unique
// constraint. An overnight shift's record stays anchored to the check-in
// date even when the checkout lands on the next calendar day.
type AttendanceRecord struct {
	ID             RecordID
	UserID         UserID
	Date           Day
	CheckInAt      *time.Time // nil for leave-only records
	CheckOutAt     *time.Time
	Type           AttendanceType
	Source         Source
	LeaveRequestID RequestID // back-reference, empty unless Source == SourceVacation
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Open reports whether the record is an in-only row awaiting checkout.
func (r *AttendanceRecord) Open() bool {
	return r.CheckInAt != nil && r.CheckOutAt == nil
}

// Completed reports whether both times are present.
func (r *AttendanceRecord) Completed() bool {
	return r.CheckInAt != nil && r.CheckOutAt != nil
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

// LeaveRequest is a worker's application for time off. Status is mutated
// only through the leave service's transition API, which keeps the
// attendance ledger synchronized with the set of approved requests.
type LeaveRequest struct {
	ID              RequestID
	UserID          UserID
	Type            LeaveType
	StartDate       Day
	EndDate         Day // inclusive
	Days            decimal.Decimal
	Status          RequestStatus
	Reason          string
	RejectionReason string
	RequestedAt     time.Time
	RespondedAt     *time.Time
	RespondedBy     UserID
}

// Range returns the inclusive date range the request covers.
func (lr *LeaveRequest) Range() Period {
	return Period{Start: lr.StartDate, End: lr.EndDate}
}

// =============================================================================
// ENTITLEMENT SNAPSHOT - derived, never persisted
// =============================================================================

// EntitlementSnapshot is a worker's annual-leave balance as of a date.
// It is recomputed on every read, which eliminates staleness by construction.
// PeriodEnd is exclusive: the accrual period is [PeriodStart, PeriodEnd).
type EntitlementSnapshot struct {
	TotalDays     decimal.Decimal
	UsedDays      decimal.Decimal
	RemainingDays decimal.Decimal // clamped at zero, never negative
	PendingDays   decimal.Decimal
	PeriodStart   Day
	PeriodEnd     Day
	YearsWorked   int
	MonthsWorked  int
	Description   string
}
