package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewise/attendance-engine/core"
	"github.com/sitewise/attendance-engine/leave"
	"github.com/sitewise/attendance-engine/ledger"
	"github.com/sitewise/attendance-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T) (*leave.Service, *ledger.Ledger, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	locks := core.NewUserLocks()
	return leave.NewService(store, locks), ledger.New(store, locks), store
}

func seedUser(t *testing.T, store *sqlite.Store, userID string, role core.Role, hire *core.Day) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.SaveSite(ctx, core.Site{
		ID: "s1", Name: "Main", Company: "acme", Active: true, CreatedAt: time.Now(),
	}))
	sid := core.SiteID("s1")
	require.NoError(t, store.SaveUser(ctx, core.User{
		ID: core.UserID(userID), Name: "User " + userID, Role: role,
		SiteID: &sid, Company: "acme", HireDate: hire,
		Active: true, CreatedAt: time.Now(),
	}))
}

func approve(t *testing.T, svc *leave.Service, id core.RequestID) *core.LeaveRequest {
	t.Helper()
	status := core.RequestApproved
	lr, err := svc.Transition(context.Background(), id, leave.Update{
		Status: &status, ActorID: "admin",
	})
	require.NoError(t, err)
	return lr
}

// =============================================================================
// SUBMISSION
// =============================================================================

func TestService_Submit_CountsInclusiveDays(t *testing.T) {
	// GIVEN: A worker
	// WHEN: They request annual leave June 2-4
	// THEN: A pending 3.0-day request exists and no ledger entry yet

	svc, _, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "w1", core.RoleWorker, nil)

	lr, err := svc.Submit(ctx, "w1", core.LeaveAnnual,
		core.NewDay(2025, time.June, 2), core.NewDay(2025, time.June, 4), "trip")
	require.NoError(t, err)

	assert.Equal(t, core.RequestPending, lr.Status)
	assert.True(t, lr.Days.Equal(decimal.NewFromInt(3)))

	rec, err := store.GetAttendanceByUserAndDate(ctx, "w1", core.NewDay(2025, time.June, 2))
	require.NoError(t, err)
	assert.Nil(t, rec, "no ledger entry before approval")
}

func TestService_Submit_HalfDay_SingleDayOnly(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "w1", core.RoleWorker, nil)

	d := core.NewDay(2025, time.June, 2)

	lr, err := svc.Submit(ctx, "w1", core.LeaveHalfDay, d, d, "")
	require.NoError(t, err)
	assert.True(t, lr.Days.Equal(decimal.NewFromFloat(0.5)))

	_, err = svc.Submit(ctx, "w1", core.LeaveHalfDay, d, d.AddDays(1), "")
	assert.ErrorIs(t, err, core.ErrInvalidDateRange)
}

func TestService_Submit_Validation(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "w1", core.RoleWorker, nil)

	d := core.NewDay(2025, time.June, 2)

	_, err := svc.Submit(ctx, "w1", "picnic", d, d, "")
	assert.ErrorIs(t, err, core.ErrInvalidLeaveType)

	_, err = svc.Submit(ctx, "w1", core.LeaveAnnual, d, d.AddDays(-1), "")
	assert.ErrorIs(t, err, core.ErrInvalidDateRange)

	_, err = svc.Submit(ctx, "ghost", core.LeaveAnnual, d, d, "")
	assert.ErrorIs(t, err, core.ErrUserNotFound)
}

// =============================================================================
// APPROVAL SYNCHRONIZATION
// =============================================================================

func TestService_Approve_WritesOneRecordPerDay(t *testing.T) {
	// GIVEN: A pending 3-day annual request
	// WHEN: It is approved
	// THEN: Each day carries a vacation-sourced record tagged with the request

	svc, _, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "w1", core.RoleWorker, nil)

	start, end := core.NewDay(2025, time.June, 2), core.NewDay(2025, time.June, 4)
	lr, err := svc.Submit(ctx, "w1", core.LeaveAnnual, start, end, "")
	require.NoError(t, err)

	approved := approve(t, svc, lr.ID)
	assert.Equal(t, core.RequestApproved, approved.Status)
	assert.NotNil(t, approved.RespondedAt)
	assert.Equal(t, core.UserID("admin"), approved.RespondedBy)

	for d := start; !d.After(end); d = d.AddDays(1) {
		rec, err := store.GetAttendanceByUserAndDate(ctx, "w1", d)
		require.NoError(t, err)
		require.NotNil(t, rec, "missing record on %s", d)
		assert.Equal(t, core.AttendanceAnnual, rec.Type)
		assert.Equal(t, core.SourceVacation, rec.Source)
		assert.Equal(t, lr.ID, rec.LeaveRequestID)
		assert.Nil(t, rec.CheckInAt)
	}
}

func TestService_Approve_OverwritesWorkedDay(t *testing.T) {
	// GIVEN: A completed worked day inside the requested range
	// WHEN: The request is approved
	// THEN: The worked record is overwritten by the leave mark (last writer wins)

	svc, lgr, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "w1", core.RoleWorker, nil)

	day := core.NewDay(2025, time.June, 3)
	_, err := lgr.AdminSet(ctx, "w1", day, core.AttendanceNormal, true)
	require.NoError(t, err)

	lr, err := svc.Submit(ctx, "w1", core.LeaveAnnual,
		core.NewDay(2025, time.June, 2), core.NewDay(2025, time.June, 4), "")
	require.NoError(t, err)
	approve(t, svc, lr.ID)

	rec, err := store.GetAttendanceByUserAndDate(ctx, "w1", day)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, core.SourceVacation, rec.Source)
	assert.Nil(t, rec.CheckInAt)
	assert.Nil(t, rec.CheckOutAt)
}

func TestService_EditApprovedRange_MovesLedgerEntries(t *testing.T) {
	// GIVEN: An approved June 2-4 request
	// WHEN: The range is edited to June 9-10
	// THEN: Old days are cleared and new days written in one step

	svc, _, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "w1", core.RoleWorker, nil)

	lr, err := svc.Submit(ctx, "w1", core.LeaveAnnual,
		core.NewDay(2025, time.June, 2), core.NewDay(2025, time.June, 4), "")
	require.NoError(t, err)
	approve(t, svc, lr.ID)

	newStart, newEnd := core.NewDay(2025, time.June, 9), core.NewDay(2025, time.June, 10)
	updated, err := svc.Transition(ctx, lr.ID, leave.Update{
		StartDate: &newStart, EndDate: &newEnd, ActorID: "admin",
	})
	require.NoError(t, err)
	assert.True(t, updated.Days.Equal(decimal.NewFromInt(2)))

	old, err := store.GetAttendanceByUserAndDate(ctx, "w1", core.NewDay(2025, time.June, 2))
	require.NoError(t, err)
	assert.Nil(t, old)

	moved, err := store.GetAttendanceByUserAndDate(ctx, "w1", newStart)
	require.NoError(t, err)
	require.NotNil(t, moved)
	assert.Equal(t, lr.ID, moved.LeaveRequestID)
}

func TestService_RevokeApproval_ClearsLedger(t *testing.T) {
	// GIVEN: An approved request with synchronized ledger entries
	// WHEN: It is flipped to rejected
	// THEN: All derived entries disappear

	svc, _, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "w1", core.RoleWorker, nil)

	start := core.NewDay(2025, time.June, 2)
	lr, err := svc.Submit(ctx, "w1", core.LeaveAnnual, start, start.AddDays(2), "")
	require.NoError(t, err)
	approve(t, svc, lr.ID)

	rejected := core.RequestRejected
	reason := "coverage shortfall"
	_, err = svc.Transition(ctx, lr.ID, leave.Update{
		Status: &rejected, RejectionReason: &reason, ActorID: "admin",
	})
	require.NoError(t, err)

	for d := start; !d.After(start.AddDays(2)); d = d.AddDays(1) {
		rec, err := store.GetAttendanceByUserAndDate(ctx, "w1", d)
		require.NoError(t, err)
		assert.Nil(t, rec, "entry on %s should be gone", d)
	}
}

func TestService_ReapplySameStatus_LeavesLedgerUnchanged(t *testing.T) {
	// GIVEN: An approved June 2-3 request with synchronized entries
	// WHEN: The same approval is applied again
	// THEN: The range carries exactly one vacation entry per day, no extras

	svc, _, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "w1", core.RoleWorker, nil)

	start, end := core.NewDay(2025, time.June, 2), core.NewDay(2025, time.June, 3)
	lr, err := svc.Submit(ctx, "w1", core.LeaveAnnual, start, end, "")
	require.NoError(t, err)
	approve(t, svc, lr.ID)
	again := approve(t, svc, lr.ID)
	assert.Equal(t, core.RequestApproved, again.Status)

	recs, err := store.ListAttendanceByUserRange(ctx, "w1", start.AddDays(-7), end.AddDays(7))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, core.AttendanceAnnual, rec.Type)
		assert.Equal(t, core.SourceVacation, rec.Source)
		assert.Equal(t, lr.ID, rec.LeaveRequestID)
	}

	// Re-rejecting an already-rejected request is equally inert
	rejected := core.RequestRejected
	_, err = svc.Transition(ctx, lr.ID, leave.Update{Status: &rejected, ActorID: "admin"})
	require.NoError(t, err)
	_, err = svc.Transition(ctx, lr.ID, leave.Update{Status: &rejected, ActorID: "admin"})
	require.NoError(t, err)

	recs, err = store.ListAttendanceByUserRange(ctx, "w1", start.AddDays(-7), end.AddDays(7))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestService_Reject_NeverTouchesLedger(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "w1", core.RoleWorker, nil)

	start := core.NewDay(2025, time.June, 2)
	lr, err := svc.Submit(ctx, "w1", core.LeaveAnnual, start, start, "")
	require.NoError(t, err)

	rejected := core.RequestRejected
	_, err = svc.Transition(ctx, lr.ID, leave.Update{Status: &rejected, ActorID: "admin"})
	require.NoError(t, err)

	rec, err := store.GetAttendanceByUserAndDate(ctx, "w1", start)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestService_Transition_UnknownRequest(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Transition(context.Background(), "missing", leave.Update{ActorID: "admin"})
	assert.ErrorIs(t, err, core.ErrRequestNotFound)
}

// =============================================================================
// DELETION
// =============================================================================

func TestService_Delete_OwnerPendingOnly(t *testing.T) {
	// GIVEN: A worker's approved request
	// WHEN: The worker tries to delete it
	// THEN: Forbidden; after an admin deletes it, the ledger is clean

	svc, _, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "w1", core.RoleWorker, nil)

	start := core.NewDay(2025, time.June, 2)
	lr, err := svc.Submit(ctx, "w1", core.LeaveAnnual, start, start, "")
	require.NoError(t, err)
	approve(t, svc, lr.ID)

	worker, err := store.GetUser(ctx, "w1")
	require.NoError(t, err)

	err = svc.Delete(ctx, lr.ID, worker)
	assert.ErrorIs(t, err, core.ErrForbidden)

	admin := &core.User{ID: "admin", Role: core.RoleHQAdmin}
	require.NoError(t, svc.Delete(ctx, lr.ID, admin))

	rec, err := store.GetAttendanceByUserAndDate(ctx, "w1", start)
	require.NoError(t, err)
	assert.Nil(t, rec)

	gone, err := store.GetRequest(ctx, lr.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestService_Delete_OwnerMayWithdrawPending(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "w1", core.RoleWorker, nil)

	lr, err := svc.Submit(ctx, "w1", core.LeaveAnnual,
		core.NewDay(2025, time.June, 2), core.NewDay(2025, time.June, 2), "")
	require.NoError(t, err)

	worker, err := store.GetUser(ctx, "w1")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, lr.ID, worker))
}

func TestService_Delete_OtherWorkersRequest_Forbidden(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "w1", core.RoleWorker, nil)

	lr, err := svc.Submit(ctx, "w1", core.LeaveAnnual,
		core.NewDay(2025, time.June, 2), core.NewDay(2025, time.June, 2), "")
	require.NoError(t, err)

	other := &core.User{ID: "w2", Role: core.RoleWorker}
	err = svc.Delete(ctx, lr.ID, other)
	assert.ErrorIs(t, err, core.ErrForbidden)
}

// =============================================================================
// ENTITLEMENT SNAPSHOT
// =============================================================================

func TestService_Snapshot_CountsApprovedAndPendingInPeriod(t *testing.T) {
	// GIVEN: Hired 2024-01-01; one approved 2-day annual request and one
	//        pending half-day inside the first accrual period, plus a sick
	//        request that never draws down entitlement
	// WHEN: Asking as of 2024-06-15
	// THEN: total 5, used 2, pending 0.5

	svc, _, store := newTestService(t)
	ctx := context.Background()
	hire := core.NewDay(2024, time.January, 1)
	seedUser(t, store, "w1", core.RoleWorker, &hire)

	lr, err := svc.Submit(ctx, "w1", core.LeaveAnnual,
		core.NewDay(2024, time.April, 1), core.NewDay(2024, time.April, 2), "")
	require.NoError(t, err)
	approve(t, svc, lr.ID)

	_, err = svc.Submit(ctx, "w1", core.LeaveHalfDay,
		core.NewDay(2024, time.May, 12), core.NewDay(2024, time.May, 12), "")
	require.NoError(t, err)

	sick, err := svc.Submit(ctx, "w1", core.LeaveSick,
		core.NewDay(2024, time.March, 3), core.NewDay(2024, time.March, 5), "")
	require.NoError(t, err)
	approve(t, svc, sick.ID)

	snap, err := svc.Snapshot(ctx, "w1", core.NewDay(2024, time.June, 15))
	require.NoError(t, err)

	assert.True(t, snap.TotalDays.Equal(decimal.NewFromInt(5)), "total %s", snap.TotalDays)
	assert.True(t, snap.UsedDays.Equal(decimal.NewFromInt(2)), "used %s", snap.UsedDays)
	assert.True(t, snap.PendingDays.Equal(decimal.NewFromFloat(0.5)), "pending %s", snap.PendingDays)
	assert.True(t, snap.RemainingDays.Equal(decimal.NewFromInt(3)))
}

func TestService_Snapshot_IgnoresRequestsOutsidePeriod(t *testing.T) {
	// GIVEN: An approved request starting before the current accrual period
	// THEN: It does not count against the period's entitlement

	svc, _, store := newTestService(t)
	ctx := context.Background()
	hire := core.NewDay(2020, time.January, 1)
	seedUser(t, store, "w1", core.RoleWorker, &hire)

	old, err := svc.Submit(ctx, "w1", core.LeaveAnnual,
		core.NewDay(2023, time.June, 1), core.NewDay(2023, time.June, 3), "")
	require.NoError(t, err)
	approve(t, svc, old.ID)

	snap, err := svc.Snapshot(ctx, "w1", core.NewDay(2024, time.June, 15))
	require.NoError(t, err)
	assert.True(t, snap.UsedDays.IsZero(), "used %s", snap.UsedDays)
}

func TestService_Snapshot_NoHireDate(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	seedUser(t, store, "w1", core.RoleWorker, nil)

	snap, err := svc.Snapshot(ctx, "w1", core.Today())
	require.NoError(t, err)
	assert.True(t, snap.TotalDays.IsZero())
	assert.NotEmpty(t, snap.Description)
}
