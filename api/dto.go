/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures of the API contract, decoupled from the domain model.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DATES:
  Calendar dates travel as "YYYY-MM-DD" strings, instants as RFC 3339.
  Fractional day counts (half days) travel as JSON numbers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/sitewise/attendance-engine/core"
)

// =============================================================================
// USERS AND SITES
// =============================================================================

// UserDTO represents a user in API responses.
type UserDTO struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Phone     string  `json:"phone,omitempty"`
	Role      string  `json:"role"`
	SiteID    *string `json:"site_id,omitempty"`
	Company   string  `json:"company,omitempty"`
	HireDate  *string `json:"hire_date,omitempty"`
	Active    bool    `json:"active"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// CreateUserRequest is the request to register a user.
type CreateUserRequest struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Phone    string  `json:"phone"`
	Role     string  `json:"role"`
	SiteID   *string `json:"site_id"`
	HireDate *string `json:"hire_date"`
}

// AssignSiteRequest moves a user to a site.
type AssignSiteRequest struct {
	SiteID string `json:"site_id"`
}

// SiteDTO represents a site in API responses.
type SiteDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Company   string `json:"company,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateSiteRequest is the request to register a site.
type CreateSiteRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Company string `json:"company"`
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// ScanRequest is the body of a QR check-in or check-out. SiteID is the
// site baked into the scanned code; Date defaults to today on check-in.
type ScanRequest struct {
	UserID string  `json:"user_id"`
	SiteID string  `json:"site_id"`
	Date   *string `json:"date,omitempty"`
}

// ScanResponse reports the effective account the scan was booked
// against. EffectiveUserID differs from the requested user when the
// resolver switched to a same-person account on the claimed site.
type ScanResponse struct {
	Record          AttendanceDTO `json:"record"`
	EffectiveUserID string        `json:"effective_user_id"`
	Switched        bool          `json:"switched"`
}

// AttendanceDTO represents one attendance record.
type AttendanceDTO struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	Date           string  `json:"date"`
	CheckInAt      *string `json:"check_in_at,omitempty"`
	CheckOutAt     *string `json:"check_out_at,omitempty"`
	Type           string  `json:"type"`
	Source         string  `json:"source"`
	LeaveRequestID string  `json:"leave_request_id,omitempty"`
}

// AdminSetRequest is an admin override of one attendance date.
type AdminSetRequest struct {
	Type         string `json:"type"`
	MarkCheckout bool   `json:"mark_checkout"`
}

// =============================================================================
// LEAVE
// =============================================================================

// SubmitLeaveRequest files a leave request.
type SubmitLeaveRequest struct {
	Type      string `json:"type"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason"`
}

// UpdateLeaveRequest carries a lifecycle transition or edit. Omitted
// fields are left unchanged.
type UpdateLeaveRequest struct {
	Status          *string `json:"status,omitempty"`
	Type            *string `json:"type,omitempty"`
	StartDate       *string `json:"start_date,omitempty"`
	EndDate         *string `json:"end_date,omitempty"`
	Reason          *string `json:"reason,omitempty"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
	ActorID         string  `json:"actor_id"`
}

// LeaveRequestDTO represents a leave request.
type LeaveRequestDTO struct {
	ID              string  `json:"id"`
	UserID          string  `json:"user_id"`
	Type            string  `json:"type"`
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
	Days            float64 `json:"days"`
	Status          string  `json:"status"`
	Reason          string  `json:"reason,omitempty"`
	RejectionReason string  `json:"rejection_reason,omitempty"`
	RequestedAt     string  `json:"requested_at"`
	RespondedAt     *string `json:"responded_at,omitempty"`
	RespondedBy     string  `json:"responded_by,omitempty"`
}

// EntitlementDTO is the annual-leave balance picture as of a date.
type EntitlementDTO struct {
	TotalDays     float64 `json:"total_days"`
	UsedDays      float64 `json:"used_days"`
	RemainingDays float64 `json:"remaining_days"`
	PendingDays   float64 `json:"pending_days"`
	PeriodStart   string  `json:"period_start,omitempty"`
	PeriodEnd     string  `json:"period_end,omitempty"`
	YearsWorked   int     `json:"years_worked"`
	MonthsWorked  int     `json:"months_worked"`
	Description   string  `json:"description"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toUserDTO(u *core.User) UserDTO {
	dto := UserDTO{
		ID:        string(u.ID),
		Name:      u.Name,
		Phone:     u.Phone,
		Role:      string(u.Role),
		Company:   u.Company,
		Active:    u.Active,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
	if u.SiteID != nil {
		s := string(*u.SiteID)
		dto.SiteID = &s
	}
	if u.HireDate != nil {
		s := u.HireDate.String()
		dto.HireDate = &s
	}
	return dto
}

func toSiteDTO(s *core.Site) SiteDTO {
	return SiteDTO{
		ID:        string(s.ID),
		Name:      s.Name,
		Company:   s.Company,
		Active:    s.Active,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
}

func toAttendanceDTO(rec *core.AttendanceRecord) AttendanceDTO {
	dto := AttendanceDTO{
		ID:             string(rec.ID),
		UserID:         string(rec.UserID),
		Date:           rec.Date.String(),
		Type:           string(rec.Type),
		Source:         string(rec.Source),
		LeaveRequestID: string(rec.LeaveRequestID),
	}
	if rec.CheckInAt != nil {
		s := rec.CheckInAt.UTC().Format(time.RFC3339)
		dto.CheckInAt = &s
	}
	if rec.CheckOutAt != nil {
		s := rec.CheckOutAt.UTC().Format(time.RFC3339)
		dto.CheckOutAt = &s
	}
	return dto
}

func toLeaveRequestDTO(lr *core.LeaveRequest) LeaveRequestDTO {
	dto := LeaveRequestDTO{
		ID:              string(lr.ID),
		UserID:          string(lr.UserID),
		Type:            string(lr.Type),
		StartDate:       lr.StartDate.String(),
		EndDate:         lr.EndDate.String(),
		Days:            lr.Days.InexactFloat64(),
		Status:          string(lr.Status),
		Reason:          lr.Reason,
		RejectionReason: lr.RejectionReason,
		RequestedAt:     lr.RequestedAt.Format(time.RFC3339),
		RespondedBy:     string(lr.RespondedBy),
	}
	if lr.RespondedAt != nil {
		s := lr.RespondedAt.UTC().Format(time.RFC3339)
		dto.RespondedAt = &s
	}
	return dto
}

func toEntitlementDTO(snap *core.EntitlementSnapshot) EntitlementDTO {
	dto := EntitlementDTO{
		TotalDays:     snap.TotalDays.InexactFloat64(),
		UsedDays:      snap.UsedDays.InexactFloat64(),
		RemainingDays: snap.RemainingDays.InexactFloat64(),
		PendingDays:   snap.PendingDays.InexactFloat64(),
		YearsWorked:   snap.YearsWorked,
		MonthsWorked:  snap.MonthsWorked,
		Description:   snap.Description,
	}
	if !snap.PeriodStart.IsZero() {
		dto.PeriodStart = snap.PeriodStart.String()
		dto.PeriodEnd = snap.PeriodEnd.String()
	}
	return dto
}
