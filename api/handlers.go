/*
handlers.go - HTTP API handlers for the attendance engine

PURPOSE:
  Exposes the ledger, leave lifecycle, identity resolution, and directory
  via REST. Handles HTTP request/response and JSON serialization, then
  delegates to the domain services.

ENDPOINTS:
  Attendance:
    POST   /api/attendance/check-in               QR check-in (resolves identity)
    POST   /api/attendance/check-out              QR check-out
    GET    /api/users/{id}/attendance?from=&to=   Per-user range
    GET    /api/sites/{id}/attendance?date=       Site roster for a day
    PUT    /api/admin/attendance/{userID}/{date}  Admin override
    DELETE /api/admin/attendance/{userID}/{date}  Admin removal

  Leave:
    POST   /api/users/{id}/leave-requests         Submit
    GET    /api/users/{id}/leave-requests         List own
    GET    /api/leave-requests/pending            Approval queue
    PATCH  /api/leave-requests/{id}               Transition / edit
    DELETE /api/leave-requests/{id}?actor_id=     Withdraw or remove
    GET    /api/users/{id}/entitlement?as_of=     Balance snapshot

  Directory:
    GET/POST /api/users, GET/DELETE /api/users/{id}
    POST     /api/users/{id}/site                 Reassignment
    POST     /api/sites, GET /api/sites/{id}
    GET      /api/admin/company-drift             Audit

ERROR HANDLING:
  Domain errors map to status codes via the core classifiers:
  - 400: validation errors (bad dates, bad types, site mismatch)
  - 403: forbidden lifecycle actions
  - 404: missing user/site/record/request
  - 409: state conflicts (double check-in, leave-marked day)
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sitewise/attendance-engine/core"
	"github.com/sitewise/attendance-engine/directory"
	"github.com/sitewise/attendance-engine/identity"
	"github.com/sitewise/attendance-engine/leave"
	"github.com/sitewise/attendance-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the domain services behind the HTTP surface.
type Handler struct {
	Directory *directory.Service
	Ledger    *ledger.Ledger
	Leave     *leave.Service
	Resolver  *identity.Resolver
}

// NewHandler wires a handler over one shared store.
func NewHandler(store core.TxStore) *Handler {
	locks := core.NewUserLocks()
	return &Handler{
		Directory: directory.NewService(store),
		Ledger:    ledger.New(store, locks),
		Leave:     leave.NewService(store, locks),
		Resolver:  identity.NewResolver(store),
	}
}

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

// CheckIn books a QR check-in against the effective account for the
// scanned site.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	eff, err := h.Resolver.Resolve(r.Context(), core.UserID(req.UserID), core.SiteID(req.SiteID))
	if err != nil {
		writeDomainError(w, "Failed to resolve identity", err)
		return
	}

	date := core.Today()
	if req.Date != nil {
		d, err := core.ParseDay(*req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
		date = d
	}

	rec, err := h.Ledger.CheckIn(r.Context(), eff.User.ID, date)
	if err != nil {
		writeDomainError(w, "Check-in failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, ScanResponse{
		Record:          toAttendanceDTO(rec),
		EffectiveUserID: string(eff.User.ID),
		Switched:        eff.Switched,
	})
}

// CheckOut closes the effective user's open record.
func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	eff, err := h.Resolver.Resolve(r.Context(), core.UserID(req.UserID), core.SiteID(req.SiteID))
	if err != nil {
		writeDomainError(w, "Failed to resolve identity", err)
		return
	}

	rec, err := h.Ledger.CheckOut(r.Context(), eff.User.ID)
	if err != nil {
		writeDomainError(w, "Check-out failed", err)
		return
	}

	writeJSON(w, http.StatusOK, ScanResponse{
		Record:          toAttendanceDTO(rec),
		EffectiveUserID: string(eff.User.ID),
		Switched:        eff.Switched,
	})
}

// UserAttendance returns one user's records in an inclusive date range.
func (h *Handler) UserAttendance(w http.ResponseWriter, r *http.Request) {
	userID := core.UserID(chi.URLParam(r, "id"))

	from, err := core.ParseDay(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	to, err := core.ParseDay(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}

	recs, err := h.Ledger.Range(r.Context(), userID, from, to)
	if err != nil {
		writeDomainError(w, "Failed to list attendance", err)
		return
	}

	dtos := make([]AttendanceDTO, len(recs))
	for i := range recs {
		dtos[i] = toAttendanceDTO(&recs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SiteAttendance returns every record on a site for one day.
func (h *Handler) SiteAttendance(w http.ResponseWriter, r *http.Request) {
	siteID := core.SiteID(chi.URLParam(r, "id"))

	date, err := core.ParseDay(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	recs, err := h.Ledger.SiteDay(r.Context(), siteID, date)
	if err != nil {
		writeDomainError(w, "Failed to list attendance", err)
		return
	}

	dtos := make([]AttendanceDTO, len(recs))
	for i := range recs {
		dtos[i] = toAttendanceDTO(&recs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AdminSetAttendance overwrites one attendance date.
func (h *Handler) AdminSetAttendance(w http.ResponseWriter, r *http.Request) {
	userID := core.UserID(chi.URLParam(r, "userID"))
	date, err := core.ParseDay(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	var req AdminSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.Ledger.AdminSet(r.Context(), userID, date,
		core.AttendanceType(req.Type), req.MarkCheckout)
	if err != nil {
		writeDomainError(w, "Failed to set attendance", err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceDTO(rec))
}

// AdminDeleteAttendance removes one attendance date.
func (h *Handler) AdminDeleteAttendance(w http.ResponseWriter, r *http.Request) {
	userID := core.UserID(chi.URLParam(r, "userID"))
	date, err := core.ParseDay(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	if err := h.Ledger.AdminDelete(r.Context(), userID, date); err != nil {
		writeDomainError(w, "Failed to delete attendance", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// SubmitLeave files a request for the path user.
func (h *Handler) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	userID := core.UserID(chi.URLParam(r, "id"))

	var req SubmitLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := core.ParseDay(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date", err)
		return
	}
	end, err := core.ParseDay(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end date", err)
		return
	}

	lr, err := h.Leave.Submit(r.Context(), userID, core.LeaveType(req.Type), start, end, req.Reason)
	if err != nil {
		writeDomainError(w, "Failed to submit leave request", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveRequestDTO(lr))
}

// ListUserLeave returns the path user's requests.
func (h *Handler) ListUserLeave(w http.ResponseWriter, r *http.Request) {
	userID := core.UserID(chi.URLParam(r, "id"))

	reqs, err := h.Leave.UserRequests(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "Failed to list leave requests", err)
		return
	}

	dtos := make([]LeaveRequestDTO, len(reqs))
	for i := range reqs {
		dtos[i] = toLeaveRequestDTO(&reqs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListPendingLeave returns the approval queue.
func (h *Handler) ListPendingLeave(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Leave.PendingRequests(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list pending requests", err)
		return
	}

	dtos := make([]LeaveRequestDTO, len(reqs))
	for i := range reqs {
		dtos[i] = toLeaveRequestDTO(&reqs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateLeave applies a lifecycle transition or edit and resynchronizes
// the ledger.
func (h *Handler) UpdateLeave(w http.ResponseWriter, r *http.Request) {
	id := core.RequestID(chi.URLParam(r, "id"))

	var req UpdateLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	upd := leave.Update{
		Reason:          req.Reason,
		RejectionReason: req.RejectionReason,
		ActorID:         core.UserID(req.ActorID),
	}
	if req.Status != nil {
		s := core.RequestStatus(*req.Status)
		upd.Status = &s
	}
	if req.Type != nil {
		t := core.LeaveType(*req.Type)
		upd.Type = &t
	}
	if req.StartDate != nil {
		d, err := core.ParseDay(*req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start date", err)
			return
		}
		upd.StartDate = &d
	}
	if req.EndDate != nil {
		d, err := core.ParseDay(*req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end date", err)
			return
		}
		upd.EndDate = &d
	}

	lr, err := h.Leave.Transition(r.Context(), id, upd)
	if err != nil {
		writeDomainError(w, "Failed to update leave request", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(lr))
}

// DeleteLeave removes a request on behalf of the actor in ?actor_id=.
func (h *Handler) DeleteLeave(w http.ResponseWriter, r *http.Request) {
	id := core.RequestID(chi.URLParam(r, "id"))
	actorID := core.UserID(r.URL.Query().Get("actor_id"))

	actor, err := h.Directory.GetUser(r.Context(), actorID)
	if err != nil {
		writeDomainError(w, "Unknown actor", err)
		return
	}

	if err := h.Leave.Delete(r.Context(), id, actor); err != nil {
		writeDomainError(w, "Failed to delete leave request", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Entitlement returns the annual-leave balance as of a date (today when
// ?as_of= is absent).
func (h *Handler) Entitlement(w http.ResponseWriter, r *http.Request) {
	userID := core.UserID(chi.URLParam(r, "id"))

	asOf := core.Today()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		d, err := core.ParseDay(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
			return
		}
		asOf = d
	}

	snap, err := h.Leave.Snapshot(r.Context(), userID, asOf)
	if err != nil {
		writeDomainError(w, "Failed to compute entitlement", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntitlementDTO(snap))
}

// =============================================================================
// DIRECTORY HANDLERS
// =============================================================================

// ListUsers returns all users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Directory.ListUsers(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i := range users {
		dtos[i] = toUserDTO(&users[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateUser registers a user.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	u := core.User{
		ID:    core.UserID(req.ID),
		Name:  req.Name,
		Phone: req.Phone,
		Role:  core.Role(req.Role),
	}
	if req.SiteID != nil {
		id := core.SiteID(*req.SiteID)
		u.SiteID = &id
	}
	if req.HireDate != nil {
		d, err := core.ParseDay(*req.HireDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid hire date", err)
			return
		}
		u.HireDate = &d
	}

	created, err := h.Directory.CreateUser(r.Context(), u)
	if err != nil {
		writeDomainError(w, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(created))
}

// GetUser returns one user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Directory.GetUser(r.Context(), core.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

// DeleteUser removes a user and their history.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.Directory.DeleteUser(r.Context(), core.UserID(chi.URLParam(r, "id"))); err != nil {
		writeDomainError(w, "Failed to delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignSite moves a user to a site.
func (h *Handler) AssignSite(w http.ResponseWriter, r *http.Request) {
	userID := core.UserID(chi.URLParam(r, "id"))

	var req AssignSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	u, err := h.Directory.AssignSite(r.Context(), userID, core.SiteID(req.SiteID))
	if err != nil {
		writeDomainError(w, "Failed to assign site", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

// CreateSite registers a site.
func (h *Handler) CreateSite(w http.ResponseWriter, r *http.Request) {
	var req CreateSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	site, err := h.Directory.CreateSite(r.Context(), core.Site{
		ID:      core.SiteID(req.ID),
		Name:    req.Name,
		Company: req.Company,
	})
	if err != nil {
		writeDomainError(w, "Failed to create site", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSiteDTO(site))
}

// GetSite returns one site.
func (h *Handler) GetSite(w http.ResponseWriter, r *http.Request) {
	site, err := h.Directory.GetSite(r.Context(), core.SiteID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get site", err)
		return
	}
	writeJSON(w, http.StatusOK, toSiteDTO(site))
}

// CompanyDrift lists users whose company diverged from their site's.
func (h *Handler) CompanyDrift(w http.ResponseWriter, r *http.Request) {
	users, err := h.Directory.CompanyDrift(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to audit company drift", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i := range users {
		dtos[i] = toUserDTO(&users[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case core.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case core.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, core.ErrForbidden):
		writeError(w, http.StatusForbidden, message, err)
	case core.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
