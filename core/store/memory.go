// Package store provides an in-memory core.TxStore implementation
// (for testing/dev).
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sitewise/attendance-engine/core"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	users      map[core.UserID]core.User
	sites      map[core.SiteID]core.Site
	attendance map[core.RecordID]core.AttendanceRecord
	requests   map[core.RequestID]core.LeaveRequest
}

func NewMemory() *Memory {
	return &Memory{
		users:      make(map[core.UserID]core.User),
		sites:      make(map[core.SiteID]core.Site),
		attendance: make(map[core.RecordID]core.AttendanceRecord),
		requests:   make(map[core.RequestID]core.LeaveRequest),
	}
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) GetUser(_ context.Context, id core.UserID) (*core.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getUserLocked(id)
}

func (m *Memory) getUserLocked(id core.UserID) (*core.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Memory) FindUserByNameAndSite(_ context.Context, name, phone string, siteID core.SiteID) (*core.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findUserLocked(name, phone, siteID)
}

func (m *Memory) findUserLocked(name, phone string, siteID core.SiteID) (*core.User, error) {
	// Deterministic order for ties: lowest user ID wins.
	var ids []string
	for id := range m.users {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	for _, id := range ids {
		u := m.users[core.UserID(id)]
		if !u.Active || u.SiteID == nil || *u.SiteID != siteID {
			continue
		}
		if !strings.EqualFold(u.Name, name) {
			continue
		}
		if phone != "" && u.Phone != "" && u.Phone != phone {
			continue
		}
		match := u
		return &match, nil
	}
	return nil, nil
}

func (m *Memory) SaveUser(_ context.Context, u core.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUserLocked(u)
}

func (m *Memory) saveUserLocked(u core.User) error {
	m.users[u.ID] = u
	return nil
}

func (m *Memory) DeleteUser(_ context.Context, id core.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteUserLocked(id)
}

func (m *Memory) deleteUserLocked(id core.UserID) error {
	delete(m.users, id)
	for rid, rec := range m.attendance {
		if rec.UserID == id {
			delete(m.attendance, rid)
		}
	}
	for qid, lr := range m.requests {
		if lr.UserID == id {
			delete(m.requests, qid)
		}
	}
	return nil
}

func (m *Memory) ListUsers(_ context.Context) ([]core.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listUsersLocked()
}

func (m *Memory) listUsersLocked() ([]core.User, error) {
	users := make([]core.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

// =============================================================================
// SITES
// =============================================================================

func (m *Memory) GetSite(_ context.Context, id core.SiteID) (*core.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSiteLocked(id)
}

func (m *Memory) getSiteLocked(id core.SiteID) (*core.Site, error) {
	s, ok := m.sites[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) SaveSite(_ context.Context, s core.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sites[s.ID] = s
	return nil
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func (m *Memory) GetAttendanceByUserAndDate(_ context.Context, userID core.UserID, date core.Day) (*core.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAttendanceLocked(userID, date)
}

func (m *Memory) getAttendanceLocked(userID core.UserID, date core.Day) (*core.AttendanceRecord, error) {
	for _, rec := range m.attendance {
		if rec.UserID == userID && rec.Date.Equal(date) {
			match := rec
			return &match, nil
		}
	}
	return nil, nil
}

func (m *Memory) GetOpenAttendance(_ context.Context, userID core.UserID) (*core.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getOpenLocked(userID)
}

func (m *Memory) getOpenLocked(userID core.UserID) (*core.AttendanceRecord, error) {
	var open *core.AttendanceRecord
	for _, rec := range m.attendance {
		rec := rec
		if rec.UserID != userID || !rec.Open() {
			continue
		}
		if open == nil || rec.CheckInAt.After(*open.CheckInAt) {
			open = &rec
		}
	}
	return open, nil
}

func (m *Memory) InsertAttendance(_ context.Context, rec core.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertAttendanceLocked(rec)
}

func (m *Memory) insertAttendanceLocked(rec core.AttendanceRecord) error {
	existing, _ := m.getAttendanceLocked(rec.UserID, rec.Date)
	if existing != nil {
		return core.ErrDuplicateRecord
	}
	m.attendance[rec.ID] = rec
	return nil
}

func (m *Memory) UpdateAttendance(_ context.Context, rec core.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateAttendanceLocked(rec)
}

func (m *Memory) updateAttendanceLocked(rec core.AttendanceRecord) error {
	if _, ok := m.attendance[rec.ID]; !ok {
		return core.ErrRecordNotFound
	}
	m.attendance[rec.ID] = rec
	return nil
}

func (m *Memory) DeleteAttendanceByUserAndDate(_ context.Context, userID core.UserID, date core.Day) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteAttendanceLocked(userID, date)
}

func (m *Memory) deleteAttendanceLocked(userID core.UserID, date core.Day) error {
	for id, rec := range m.attendance {
		if rec.UserID == userID && rec.Date.Equal(date) {
			delete(m.attendance, id)
			return nil
		}
	}
	return core.ErrRecordNotFound
}

func (m *Memory) DeleteAttendanceByRequest(_ context.Context, requestID core.RequestID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteAttendanceByRequestLocked(requestID)
}

func (m *Memory) deleteAttendanceByRequestLocked(requestID core.RequestID) error {
	for id, rec := range m.attendance {
		if rec.LeaveRequestID == requestID {
			delete(m.attendance, id)
		}
	}
	return nil
}

func (m *Memory) ListAttendanceByUserRange(_ context.Context, userID core.UserID, from, to core.Day) ([]core.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAttendanceRangeLocked(userID, from, to)
}

func (m *Memory) listAttendanceRangeLocked(userID core.UserID, from, to core.Day) ([]core.AttendanceRecord, error) {
	var recs []core.AttendanceRecord
	for _, rec := range m.attendance {
		if rec.UserID == userID && rec.Date.AfterOrEqual(from) && rec.Date.BeforeOrEqual(to) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Date.Before(recs[j].Date) })
	return recs, nil
}

func (m *Memory) ListAttendanceBySiteAndDate(_ context.Context, siteID core.SiteID, date core.Day) ([]core.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAttendanceBySiteLocked(siteID, date)
}

func (m *Memory) listAttendanceBySiteLocked(siteID core.SiteID, date core.Day) ([]core.AttendanceRecord, error) {
	var recs []core.AttendanceRecord
	for _, rec := range m.attendance {
		if !rec.Date.Equal(date) {
			continue
		}
		u, ok := m.users[rec.UserID]
		if !ok || u.SiteID == nil || *u.SiteID != siteID {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].UserID < recs[j].UserID })
	return recs, nil
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

func (m *Memory) GetRequest(_ context.Context, id core.RequestID) (*core.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRequestLocked(id)
}

func (m *Memory) getRequestLocked(id core.RequestID) (*core.LeaveRequest, error) {
	lr, ok := m.requests[id]
	if !ok {
		return nil, nil
	}
	return &lr, nil
}

func (m *Memory) InsertRequest(_ context.Context, lr core.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[lr.ID] = lr
	return nil
}

func (m *Memory) UpdateRequest(_ context.Context, lr core.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateRequestLocked(lr)
}

func (m *Memory) updateRequestLocked(lr core.LeaveRequest) error {
	if _, ok := m.requests[lr.ID]; !ok {
		return core.ErrRequestNotFound
	}
	m.requests[lr.ID] = lr
	return nil
}

func (m *Memory) DeleteRequest(_ context.Context, id core.RequestID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requests, id)
	return nil
}

func (m *Memory) ListRequestsByUser(_ context.Context, userID core.UserID) ([]core.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRequestsByUserLocked(userID)
}

func (m *Memory) listRequestsByUserLocked(userID core.UserID) ([]core.LeaveRequest, error) {
	var out []core.LeaveRequest
	for _, lr := range m.requests {
		if lr.UserID == userID {
			out = append(out, lr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (m *Memory) ListRequestsByStatus(_ context.Context, status core.RequestStatus) ([]core.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRequestsByStatusLocked(status)
}

func (m *Memory) listRequestsByStatusLocked(status core.RequestStatus) ([]core.LeaveRequest, error) {
	var out []core.LeaveRequest
	for _, lr := range m.requests {
		if lr.Status == status {
			out = append(out, lr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

// =============================================================================
// AUDIT
// =============================================================================

func (m *Memory) ListCompanyDrift(_ context.Context) ([]core.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCompanyDriftLocked()
}

func (m *Memory) listCompanyDriftLocked() ([]core.User, error) {
	var drifted []core.User
	for _, u := range m.users {
		if u.SiteID == nil {
			continue
		}
		site, ok := m.sites[*u.SiteID]
		if !ok || !site.Active {
			continue
		}
		if u.Company != site.Company {
			drifted = append(drifted, u)
		}
	}
	sort.Slice(drifted, func(i, j int) bool { return drifted[i].ID < drifted[j].ID })
	return drifted, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn atomically. For the memory store, this is simulated
// with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(core.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	users      map[core.UserID]core.User
	sites      map[core.SiteID]core.Site
	attendance map[core.RecordID]core.AttendanceRecord
	requests   map[core.RequestID]core.LeaveRequest
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		users:      make(map[core.UserID]core.User, len(m.users)),
		sites:      make(map[core.SiteID]core.Site, len(m.sites)),
		attendance: make(map[core.RecordID]core.AttendanceRecord, len(m.attendance)),
		requests:   make(map[core.RequestID]core.LeaveRequest, len(m.requests)),
	}
	for k, v := range m.users {
		s.users[k] = v
	}
	for k, v := range m.sites {
		s.sites[k] = v
	}
	for k, v := range m.attendance {
		s.attendance[k] = v
	}
	for k, v := range m.requests {
		s.requests[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.users = s.users
	m.sites = s.sites
	m.attendance = s.attendance
	m.requests = s.requests
}

// txView routes Store calls to the parent's locked internals. The parent
// mutex is already held for the duration of WithTx.
type txView struct {
	parent *Memory
}

func (tv *txView) GetUser(_ context.Context, id core.UserID) (*core.User, error) {
	return tv.parent.getUserLocked(id)
}

func (tv *txView) FindUserByNameAndSite(_ context.Context, name, phone string, siteID core.SiteID) (*core.User, error) {
	return tv.parent.findUserLocked(name, phone, siteID)
}

func (tv *txView) SaveUser(_ context.Context, u core.User) error {
	return tv.parent.saveUserLocked(u)
}

func (tv *txView) DeleteUser(_ context.Context, id core.UserID) error {
	return tv.parent.deleteUserLocked(id)
}

func (tv *txView) ListUsers(_ context.Context) ([]core.User, error) {
	return tv.parent.listUsersLocked()
}

func (tv *txView) GetSite(_ context.Context, id core.SiteID) (*core.Site, error) {
	return tv.parent.getSiteLocked(id)
}

func (tv *txView) SaveSite(_ context.Context, s core.Site) error {
	tv.parent.sites[s.ID] = s
	return nil
}

func (tv *txView) GetAttendanceByUserAndDate(_ context.Context, userID core.UserID, date core.Day) (*core.AttendanceRecord, error) {
	return tv.parent.getAttendanceLocked(userID, date)
}

func (tv *txView) GetOpenAttendance(_ context.Context, userID core.UserID) (*core.AttendanceRecord, error) {
	return tv.parent.getOpenLocked(userID)
}

func (tv *txView) InsertAttendance(_ context.Context, rec core.AttendanceRecord) error {
	return tv.parent.insertAttendanceLocked(rec)
}

func (tv *txView) UpdateAttendance(_ context.Context, rec core.AttendanceRecord) error {
	return tv.parent.updateAttendanceLocked(rec)
}

func (tv *txView) DeleteAttendanceByUserAndDate(_ context.Context, userID core.UserID, date core.Day) error {
	return tv.parent.deleteAttendanceLocked(userID, date)
}

func (tv *txView) DeleteAttendanceByRequest(_ context.Context, requestID core.RequestID) error {
	return tv.parent.deleteAttendanceByRequestLocked(requestID)
}

func (tv *txView) ListAttendanceByUserRange(_ context.Context, userID core.UserID, from, to core.Day) ([]core.AttendanceRecord, error) {
	return tv.parent.listAttendanceRangeLocked(userID, from, to)
}

func (tv *txView) ListAttendanceBySiteAndDate(_ context.Context, siteID core.SiteID, date core.Day) ([]core.AttendanceRecord, error) {
	return tv.parent.listAttendanceBySiteLocked(siteID, date)
}

func (tv *txView) GetRequest(_ context.Context, id core.RequestID) (*core.LeaveRequest, error) {
	return tv.parent.getRequestLocked(id)
}

func (tv *txView) InsertRequest(_ context.Context, lr core.LeaveRequest) error {
	tv.parent.requests[lr.ID] = lr
	return nil
}

func (tv *txView) UpdateRequest(_ context.Context, lr core.LeaveRequest) error {
	return tv.parent.updateRequestLocked(lr)
}

func (tv *txView) DeleteRequest(_ context.Context, id core.RequestID) error {
	delete(tv.parent.requests, id)
	return nil
}

func (tv *txView) ListRequestsByUser(_ context.Context, userID core.UserID) ([]core.LeaveRequest, error) {
	return tv.parent.listRequestsByUserLocked(userID)
}

func (tv *txView) ListRequestsByStatus(_ context.Context, status core.RequestStatus) ([]core.LeaveRequest, error) {
	return tv.parent.listRequestsByStatusLocked(status)
}

func (tv *txView) ListCompanyDrift(_ context.Context) ([]core.User, error) {
	return tv.parent.listCompanyDriftLocked()
}
