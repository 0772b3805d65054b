package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewise/attendance-engine/api"
	"github.com/sitewise/attendance-engine/store/sqlite"
)

// =============================================================================
// TEST HARNESS
// =============================================================================

type testAPI struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestAPI(t *testing.T) *testAPI {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(store)))
	t.Cleanup(srv.Close)
	return &testAPI{t: t, srv: srv}
}

// do issues a request and decodes the JSON response into out (when non-nil).
func (a *testAPI) do(method, path string, body any, out any) int {
	a.t.Helper()

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, a.srv.URL+path, reqBody)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	if out != nil {
		raw, err := io.ReadAll(resp.Body)
		require.NoError(a.t, err)
		require.NoError(a.t, json.Unmarshal(raw, out), "body: %s", raw)
	}
	return resp.StatusCode
}

func (a *testAPI) createSite(id, company string) {
	a.t.Helper()
	status := a.do("POST", "/api/sites", api.CreateSiteRequest{
		ID: id, Name: "Site " + id, Company: company,
	}, nil)
	require.Equal(a.t, http.StatusCreated, status)
}

func (a *testAPI) createUser(id, name, phone, role, siteID, hireDate string) {
	a.t.Helper()
	req := api.CreateUserRequest{ID: id, Name: name, Phone: phone, Role: role}
	if siteID != "" {
		req.SiteID = &siteID
	}
	if hireDate != "" {
		req.HireDate = &hireDate
	}
	status := a.do("POST", "/api/users", req, nil)
	require.Equal(a.t, http.StatusCreated, status)
}

func str(s string) *string { return &s }

// =============================================================================
// ATTENDANCE SCAN FLOW
// =============================================================================

func TestAPI_CheckInCheckOutFlow(t *testing.T) {
	a := newTestAPI(t)
	a.createSite("s1", "acme")
	a.createUser("u1", "Kim", "010", "worker", "s1", "")

	// WHEN: First scan of the day
	var scan api.ScanResponse
	status := a.do("POST", "/api/attendance/check-in", api.ScanRequest{
		UserID: "u1", SiteID: "s1", Date: str("2025-06-02"),
	}, &scan)

	// THEN: Open record booked against the same account
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "u1", scan.EffectiveUserID)
	assert.False(t, scan.Switched)
	assert.Equal(t, "2025-06-02", scan.Record.Date)
	assert.NotNil(t, scan.Record.CheckInAt)
	assert.Nil(t, scan.Record.CheckOutAt)

	// WHEN: Scanning again before checking out
	var errResp api.ErrorResponse
	status = a.do("POST", "/api/attendance/check-in", api.ScanRequest{
		UserID: "u1", SiteID: "s1", Date: str("2025-06-03"),
	}, &errResp)

	// THEN: 409 conflict
	assert.Equal(t, http.StatusConflict, status)
	assert.NotEmpty(t, errResp.Details)

	// WHEN: Checking out
	status = a.do("POST", "/api/attendance/check-out", api.ScanRequest{
		UserID: "u1", SiteID: "s1",
	}, &scan)

	// THEN: Record closes on its check-in date
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2025-06-02", scan.Record.Date)
	assert.NotNil(t, scan.Record.CheckOutAt)

	// AND: Another check-out has nothing to close
	status = a.do("POST", "/api/attendance/check-out", api.ScanRequest{
		UserID: "u1", SiteID: "s1",
	}, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestAPI_CheckIn_UnknownUser(t *testing.T) {
	a := newTestAPI(t)
	a.createSite("s1", "acme")

	status := a.do("POST", "/api/attendance/check-in", api.ScanRequest{
		UserID: "ghost", SiteID: "s1",
	}, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_CheckIn_SiteMismatch(t *testing.T) {
	a := newTestAPI(t)
	a.createSite("s1", "acme")
	a.createSite("s2", "beta")
	a.createUser("u1", "Kim", "010", "worker", "s1", "")

	status := a.do("POST", "/api/attendance/check-in", api.ScanRequest{
		UserID: "u1", SiteID: "s2",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_CheckIn_SwitchesToSamePersonAccount(t *testing.T) {
	// GIVEN: The same person registered on two sites under separate accounts
	a := newTestAPI(t)
	a.createSite("s1", "acme")
	a.createSite("s2", "beta")
	a.createUser("u1", "Kim", "010", "worker", "s1", "")
	a.createUser("u2", "Kim", "010", "worker", "s2", "")

	// WHEN: The s1 account scans an s2 QR code
	var scan api.ScanResponse
	status := a.do("POST", "/api/attendance/check-in", api.ScanRequest{
		UserID: "u1", SiteID: "s2", Date: str("2025-06-02"),
	}, &scan)

	// THEN: The scan books against the s2 account
	require.Equal(t, http.StatusCreated, status)
	assert.True(t, scan.Switched)
	assert.Equal(t, "u2", scan.EffectiveUserID)
	assert.Equal(t, "u2", scan.Record.UserID)
}

// =============================================================================
// LEAVE LIFECYCLE OVER HTTP
// =============================================================================

func TestAPI_LeaveLifecycle(t *testing.T) {
	a := newTestAPI(t)
	a.createSite("s1", "acme")
	a.createUser("u1", "Kim", "010", "worker", "s1", "2023-01-01")
	a.createUser("m1", "Manager", "011", "site_manager", "s1", "2020-01-01")

	// Submit
	var lr api.LeaveRequestDTO
	status := a.do("POST", "/api/users/u1/leave-requests", api.SubmitLeaveRequest{
		Type: "annual", StartDate: "2025-06-02", EndDate: "2025-06-03", Reason: "trip",
	}, &lr)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "pending", lr.Status)
	assert.Equal(t, 2.0, lr.Days)

	// Pending queue sees it
	var pending []api.LeaveRequestDTO
	status = a.do("GET", "/api/leave-requests/pending", nil, &pending)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, pending, 1)

	// Approve
	status = a.do("PATCH", "/api/leave-requests/"+lr.ID, api.UpdateLeaveRequest{
		Status: str("approved"), ActorID: "m1",
	}, &lr)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "approved", lr.Status)
	assert.Equal(t, "m1", lr.RespondedBy)
	require.NotNil(t, lr.RespondedAt)

	// Ledger now carries one vacation entry per day
	var recs []api.AttendanceDTO
	status = a.do("GET", "/api/users/u1/attendance?from=2025-06-01&to=2025-06-30", nil, &recs)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, "annual", rec.Type)
		assert.Equal(t, "vacation", rec.Source)
		assert.Equal(t, lr.ID, rec.LeaveRequestID)
		assert.Nil(t, rec.CheckInAt)
	}

	// A scan on a synchronized leave day is rejected
	status = a.do("POST", "/api/attendance/check-in", api.ScanRequest{
		UserID: "u1", SiteID: "s1", Date: str("2025-06-02"),
	}, nil)
	assert.Equal(t, http.StatusConflict, status)

	// The owner may not withdraw an approved request
	status = a.do("DELETE", "/api/leave-requests/"+lr.ID+"?actor_id=u1", nil, nil)
	assert.Equal(t, http.StatusForbidden, status)

	// A manager may remove it, which clears the derived entries
	status = a.do("DELETE", "/api/leave-requests/"+lr.ID+"?actor_id=m1", nil, nil)
	require.Equal(t, http.StatusNoContent, status)

	status = a.do("GET", "/api/users/u1/attendance?from=2025-06-01&to=2025-06-30", nil, &recs)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, recs)
}

func TestAPI_SubmitLeave_InvalidType(t *testing.T) {
	a := newTestAPI(t)
	a.createSite("s1", "acme")
	a.createUser("u1", "Kim", "010", "worker", "s1", "")

	status := a.do("POST", "/api/users/u1/leave-requests", api.SubmitLeaveRequest{
		Type: "sabbatical", StartDate: "2025-06-02", EndDate: "2025-06-02",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_Entitlement(t *testing.T) {
	a := newTestAPI(t)
	a.createSite("s1", "acme")
	a.createUser("u1", "Kim", "010", "worker", "s1", "2020-03-01")

	var snap api.EntitlementDTO
	status := a.do("GET", "/api/users/u1/entitlement?as_of=2025-06-01", nil, &snap)
	require.Equal(t, http.StatusOK, status)

	// 5 full years: 15 + 5/2
	assert.Equal(t, 17.0, snap.TotalDays)
	assert.Equal(t, 17.0, snap.RemainingDays)
	assert.Equal(t, 5, snap.YearsWorked)
	assert.Equal(t, "2025-03-01", snap.PeriodStart)
	assert.Equal(t, "2026-03-01", snap.PeriodEnd)
}

// =============================================================================
// ADMIN OVERRIDES
// =============================================================================

func TestAPI_AdminSetAndDeleteAttendance(t *testing.T) {
	a := newTestAPI(t)
	a.createSite("s1", "acme")
	a.createUser("u1", "Kim", "010", "worker", "s1", "")

	var rec api.AttendanceDTO
	status := a.do("PUT", "/api/admin/attendance/u1/2025-06-02", api.AdminSetRequest{
		Type: "sick",
	}, &rec)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "sick", rec.Type)
	assert.Equal(t, "manual", rec.Source)
	assert.Nil(t, rec.CheckInAt)

	status = a.do("DELETE", "/api/admin/attendance/u1/2025-06-02", nil, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status = a.do("DELETE", "/api/admin/attendance/u1/2025-06-02", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_AdminSet_InvalidType(t *testing.T) {
	a := newTestAPI(t)
	a.createSite("s1", "acme")
	a.createUser("u1", "Kim", "010", "worker", "s1", "")

	status := a.do("PUT", "/api/admin/attendance/u1/2025-06-02", api.AdminSetRequest{
		Type: "holiday",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

// =============================================================================
// DIRECTORY
// =============================================================================

func TestAPI_DirectoryFlow(t *testing.T) {
	a := newTestAPI(t)
	a.createSite("s1", "acme")
	a.createSite("s2", "beta")
	a.createUser("u1", "Kim", "010", "worker", "s1", "")

	// Company is denormalized from the site
	var u api.UserDTO
	status := a.do("GET", "/api/users/u1", nil, &u)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "acme", u.Company)

	// Reassignment refreshes it
	status = a.do("POST", "/api/users/u1/site", api.AssignSiteRequest{SiteID: "s2"}, &u)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "beta", u.Company)

	// Drift audit is clean after a proper reassignment
	var drift []api.UserDTO
	status = a.do("GET", "/api/admin/company-drift", nil, &drift)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, drift)

	// Removing the user removes them from listings
	status = a.do("DELETE", "/api/users/u1", nil, nil)
	require.Equal(t, http.StatusNoContent, status)

	status = a.do("GET", "/api/users/u1", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_CreateUser_UnknownSite(t *testing.T) {
	a := newTestAPI(t)

	siteID := "ghost"
	status := a.do("POST", "/api/users", api.CreateUserRequest{
		ID: "u1", Name: "Kim", Role: "worker", SiteID: &siteID,
	}, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_UserAttendance_RequiresRange(t *testing.T) {
	a := newTestAPI(t)

	status := a.do("GET", "/api/users/u1/attendance", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_Entitlement_BadAsOf(t *testing.T) {
	a := newTestAPI(t)
	a.createSite("s1", "acme")
	a.createUser("u1", "Kim", "010", "worker", "s1", "")

	status := a.do("GET", fmt.Sprintf("/api/users/%s/entitlement?as_of=junk", "u1"), nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}
