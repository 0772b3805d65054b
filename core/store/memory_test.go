package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewise/attendance-engine/core"
	"github.com/sitewise/attendance-engine/core/store"
)

func seedUser(t *testing.T, m *store.Memory, userID, siteID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, m.SaveSite(ctx, core.Site{
		ID: core.SiteID(siteID), Name: "Site", Company: "acme",
		Active: true, CreatedAt: time.Now(),
	}))
	sid := core.SiteID(siteID)
	require.NoError(t, m.SaveUser(ctx, core.User{
		ID: core.UserID(userID), Name: "Kim", Phone: "010", Role: core.RoleWorker,
		SiteID: &sid, Company: "acme", Active: true, CreatedAt: time.Now(),
	}))
}

func openRec(id, userID string, date core.Day) core.AttendanceRecord {
	now := time.Now().UTC()
	return core.AttendanceRecord{
		ID: core.RecordID(id), UserID: core.UserID(userID), Date: date,
		CheckInAt: &now, Type: core.AttendanceNormal, Source: core.SourceQR,
		CreatedAt: now, UpdatedAt: now,
	}
}

func TestMemory_DuplicateDay_Rejected(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	seedUser(t, m, "u1", "s1")

	day := core.NewDay(2025, time.June, 2)
	require.NoError(t, m.InsertAttendance(ctx, openRec("a1", "u1", day)))

	err := m.InsertAttendance(ctx, openRec("a2", "u1", day))
	assert.ErrorIs(t, err, core.ErrDuplicateRecord)
}

func TestMemory_GetOpenAttendance_PicksLatest(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	seedUser(t, m, "u1", "s1")

	early := openRec("a1", "u1", core.NewDay(2025, time.June, 1))
	in := time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC)
	early.CheckInAt = &in

	late := openRec("a2", "u1", core.NewDay(2025, time.June, 2))
	in2 := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)
	late.CheckInAt = &in2

	require.NoError(t, m.InsertAttendance(ctx, early))
	require.NoError(t, m.InsertAttendance(ctx, late))

	open, err := m.GetOpenAttendance(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, core.RecordID("a2"), open.ID)
}

func TestMemory_WithTx_RestoresSnapshotOnError(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	seedUser(t, m, "u1", "s1")

	day := core.NewDay(2025, time.June, 2)
	require.NoError(t, m.InsertAttendance(ctx, openRec("a1", "u1", day)))

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(tx core.Store) error {
		if err := tx.DeleteAttendanceByUserAndDate(ctx, "u1", day); err != nil {
			return err
		}
		if err := tx.InsertAttendance(ctx, openRec("a2", "u1", day.AddDays(1))); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// Original record is back, the new one never landed
	kept, err := m.GetAttendanceByUserAndDate(ctx, "u1", day)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, core.RecordID("a1"), kept.ID)

	gone, err := m.GetAttendanceByUserAndDate(ctx, "u1", day.AddDays(1))
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestMemory_FindUserByNameAndSite_TieBreaksOnLowestID(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	seedUser(t, m, "u2", "s1")

	sid := core.SiteID("s1")
	require.NoError(t, m.SaveUser(ctx, core.User{
		ID: "u1", Name: "Kim", Phone: "010", Role: core.RoleWorker,
		SiteID: &sid, Company: "acme", Active: true, CreatedAt: time.Now(),
	}))

	got, err := m.FindUserByNameAndSite(ctx, "KIM", "010", "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, core.UserID("u1"), got.ID)
}

func TestMemory_DeleteUser_Cascades(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	seedUser(t, m, "u1", "s1")

	require.NoError(t, m.InsertAttendance(ctx, openRec("a1", "u1", core.NewDay(2025, time.June, 2))))
	require.NoError(t, m.InsertRequest(ctx, core.LeaveRequest{
		ID: "r1", UserID: "u1", Type: core.LeaveAnnual,
		StartDate: core.NewDay(2025, time.July, 1), EndDate: core.NewDay(2025, time.July, 1),
		Status: core.RequestPending, RequestedAt: time.Now(),
	}))

	require.NoError(t, m.DeleteUser(ctx, "u1"))

	rec, err := m.GetAttendanceByUserAndDate(ctx, "u1", core.NewDay(2025, time.June, 2))
	require.NoError(t, err)
	assert.Nil(t, rec)

	lr, err := m.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, lr)
}
