/*
Package postgres provides a pgx-backed implementation of core.TxStore for
multi-instance deployments.

Schema lives in versioned golang-migrate files under migrations/ (applied
by cmd/migrate), unlike the SQLite backend which self-migrates on open.

Unique-constraint violations on attendance(user_id, check_in_date) are
translated to core.ErrDuplicateRecord via SQLSTATE 23505.
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sitewise/attendance-engine/core"
)

const uniqueViolationCode = "23505"

// Queryer is the query surface shared by *pgxpool.Pool and pgx.Tx.
type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Pool is the pgxpool surface the store needs. Satisfied by
// *pgxpool.Pool and by pgxmock's pool interface in tests.
type Pool interface {
	Queryer
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Store implements core.TxStore on PostgreSQL.
type Store struct {
	pool Pool
}

// New connects a pool and verifies connectivity.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewFromPool wraps an existing pool (used by tests with pgxmock).
func NewFromPool(pool Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// =============================================================================
// TRANSACTIONS (core.TxStore interface)
// =============================================================================

// WithTx runs fn against a transaction-bound view, committing only when
// fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(core.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&queries{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// queries implements core.Store over any Queryer (pool or open tx).
type queries struct {
	q Queryer
}

// Each Store method on *Store delegates to a pool-bound queries value.
func (s *Store) view() *queries { return &queries{q: s.pool} }

func (s *Store) GetUser(ctx context.Context, id core.UserID) (*core.User, error) {
	return s.view().GetUser(ctx, id)
}
func (s *Store) FindUserByNameAndSite(ctx context.Context, name, phone string, siteID core.SiteID) (*core.User, error) {
	return s.view().FindUserByNameAndSite(ctx, name, phone, siteID)
}
func (s *Store) SaveUser(ctx context.Context, u core.User) error {
	return s.view().SaveUser(ctx, u)
}
func (s *Store) DeleteUser(ctx context.Context, id core.UserID) error {
	return s.view().DeleteUser(ctx, id)
}
func (s *Store) ListUsers(ctx context.Context) ([]core.User, error) {
	return s.view().ListUsers(ctx)
}
func (s *Store) GetSite(ctx context.Context, id core.SiteID) (*core.Site, error) {
	return s.view().GetSite(ctx, id)
}
func (s *Store) SaveSite(ctx context.Context, site core.Site) error {
	return s.view().SaveSite(ctx, site)
}
func (s *Store) GetAttendanceByUserAndDate(ctx context.Context, userID core.UserID, date core.Day) (*core.AttendanceRecord, error) {
	return s.view().GetAttendanceByUserAndDate(ctx, userID, date)
}
func (s *Store) GetOpenAttendance(ctx context.Context, userID core.UserID) (*core.AttendanceRecord, error) {
	return s.view().GetOpenAttendance(ctx, userID)
}
func (s *Store) InsertAttendance(ctx context.Context, rec core.AttendanceRecord) error {
	return s.view().InsertAttendance(ctx, rec)
}
func (s *Store) UpdateAttendance(ctx context.Context, rec core.AttendanceRecord) error {
	return s.view().UpdateAttendance(ctx, rec)
}
func (s *Store) DeleteAttendanceByUserAndDate(ctx context.Context, userID core.UserID, date core.Day) error {
	return s.view().DeleteAttendanceByUserAndDate(ctx, userID, date)
}
func (s *Store) DeleteAttendanceByRequest(ctx context.Context, requestID core.RequestID) error {
	return s.view().DeleteAttendanceByRequest(ctx, requestID)
}
func (s *Store) ListAttendanceByUserRange(ctx context.Context, userID core.UserID, from, to core.Day) ([]core.AttendanceRecord, error) {
	return s.view().ListAttendanceByUserRange(ctx, userID, from, to)
}
func (s *Store) ListAttendanceBySiteAndDate(ctx context.Context, siteID core.SiteID, date core.Day) ([]core.AttendanceRecord, error) {
	return s.view().ListAttendanceBySiteAndDate(ctx, siteID, date)
}
func (s *Store) GetRequest(ctx context.Context, id core.RequestID) (*core.LeaveRequest, error) {
	return s.view().GetRequest(ctx, id)
}
func (s *Store) InsertRequest(ctx context.Context, lr core.LeaveRequest) error {
	return s.view().InsertRequest(ctx, lr)
}
func (s *Store) UpdateRequest(ctx context.Context, lr core.LeaveRequest) error {
	return s.view().UpdateRequest(ctx, lr)
}
func (s *Store) DeleteRequest(ctx context.Context, id core.RequestID) error {
	return s.view().DeleteRequest(ctx, id)
}
func (s *Store) ListRequestsByUser(ctx context.Context, userID core.UserID) ([]core.LeaveRequest, error) {
	return s.view().ListRequestsByUser(ctx, userID)
}
func (s *Store) ListRequestsByStatus(ctx context.Context, status core.RequestStatus) ([]core.LeaveRequest, error) {
	return s.view().ListRequestsByStatus(ctx, status)
}
func (s *Store) ListCompanyDrift(ctx context.Context) ([]core.User, error) {
	return s.view().ListCompanyDrift(ctx)
}

// =============================================================================
// USERS
// =============================================================================

const userColumns = `id, name, phone, role, site_id, company, hire_date, active, created_at`

func (v *queries) GetUser(ctx context.Context, id core.UserID) (*core.User, error) {
	row := v.q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (v *queries) FindUserByNameAndSite(ctx context.Context, name, phone string, siteID core.SiteID) (*core.User, error) {
	row := v.q.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE site_id = $1 AND active AND lower(name) = lower($2)
		  AND (phone = '' OR $3 = '' OR phone = $3)
		ORDER BY id ASC
		LIMIT 1`,
		siteID, name, phone)
	return scanUser(row)
}

func (v *queries) SaveUser(ctx context.Context, u core.User) error {
	var siteID *string
	if u.SiteID != nil {
		val := string(*u.SiteID)
		siteID = &val
	}
	var hireDate *string
	if u.HireDate != nil {
		val := u.HireDate.String()
		hireDate = &val
	}

	_, err := v.q.Exec(ctx, `
		INSERT INTO users (id, name, phone, role, site_id, company, hire_date, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			role = EXCLUDED.role,
			site_id = EXCLUDED.site_id,
			company = EXCLUDED.company,
			hire_date = EXCLUDED.hire_date,
			active = EXCLUDED.active`,
		u.ID, u.Name, u.Phone, u.Role, siteID, u.Company, hireDate,
		u.Active, u.CreatedAt.UTC())
	return err
}

func (v *queries) DeleteUser(ctx context.Context, id core.UserID) error {
	if _, err := v.q.Exec(ctx, `DELETE FROM attendance WHERE user_id = $1`, id); err != nil {
		return err
	}
	if _, err := v.q.Exec(ctx, `DELETE FROM leave_requests WHERE user_id = $1`, id); err != nil {
		return err
	}
	_, err := v.q.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

func (v *queries) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := v.q.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (v *queries) ListCompanyDrift(ctx context.Context) ([]core.User, error) {
	rows, err := v.q.Query(ctx, `
		SELECT u.id, u.name, u.phone, u.role, u.site_id, u.company, u.hire_date, u.active, u.created_at
		FROM users u
		JOIN sites s ON s.id = u.site_id
		WHERE u.active AND s.active AND u.company <> s.company
		ORDER BY u.name ASC, u.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func scanUser(row pgx.Row) (*core.User, error) {
	var (
		u         core.User
		role      string
		siteID    *string
		hireDate  *string
		createdAt time.Time
	)
	err := row.Scan(&u.ID, &u.Name, &u.Phone, &role, &siteID, &u.Company,
		&hireDate, &u.Active, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Role = core.Role(role)
	if siteID != nil {
		id := core.SiteID(*siteID)
		u.SiteID = &id
	}
	if hireDate != nil && *hireDate != "" {
		d, err := core.ParseDay(*hireDate)
		if err != nil {
			return nil, fmt.Errorf("bad hire_date for user %s: %w", u.ID, err)
		}
		u.HireDate = &d
	}
	u.CreatedAt = createdAt
	return &u, nil
}

func collectUsers(rows pgx.Rows) ([]core.User, error) {
	var users []core.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// =============================================================================
// SITES
// =============================================================================

func (v *queries) GetSite(ctx context.Context, id core.SiteID) (*core.Site, error) {
	var site core.Site
	err := v.q.QueryRow(ctx,
		`SELECT id, name, company, active, created_at FROM sites WHERE id = $1`, id,
	).Scan(&site.ID, &site.Name, &site.Company, &site.Active, &site.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &site, nil
}

func (v *queries) SaveSite(ctx context.Context, site core.Site) error {
	_, err := v.q.Exec(ctx, `
		INSERT INTO sites (id, name, company, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			company = EXCLUDED.company,
			active = EXCLUDED.active`,
		site.ID, site.Name, site.Company, site.Active, site.CreatedAt.UTC())
	return err
}

// =============================================================================
// ATTENDANCE
// =============================================================================

const attendanceColumns = `id, user_id, check_in_date, check_in_at, check_out_at, type, source, leave_request_id, created_at, updated_at`

func (v *queries) GetAttendanceByUserAndDate(ctx context.Context, userID core.UserID, date core.Day) (*core.AttendanceRecord, error) {
	row := v.q.QueryRow(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE user_id = $1 AND check_in_date = $2`,
		userID, date.String())
	return scanAttendance(row)
}

func (v *queries) GetOpenAttendance(ctx context.Context, userID core.UserID) (*core.AttendanceRecord, error) {
	row := v.q.QueryRow(ctx, `
		SELECT `+attendanceColumns+` FROM attendance
		WHERE user_id = $1 AND check_in_at IS NOT NULL AND check_out_at IS NULL
		ORDER BY check_in_at DESC
		LIMIT 1`,
		userID)
	return scanAttendance(row)
}

func (v *queries) InsertAttendance(ctx context.Context, rec core.AttendanceRecord) error {
	_, err := v.q.Exec(ctx, `
		INSERT INTO attendance (id, user_id, check_in_date, check_in_at, check_out_at,
			type, source, leave_request_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.UserID, rec.Date.String(),
		utcOrNil(rec.CheckInAt), utcOrNil(rec.CheckOutAt),
		rec.Type, rec.Source, strOrNil(string(rec.LeaveRequestID)),
		rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrDuplicateRecord
		}
		return fmt.Errorf("postgres: insert attendance: %w", err)
	}
	return nil
}

func (v *queries) UpdateAttendance(ctx context.Context, rec core.AttendanceRecord) error {
	tag, err := v.q.Exec(ctx, `
		UPDATE attendance
		SET check_in_date = $1, check_in_at = $2, check_out_at = $3,
		    type = $4, source = $5, leave_request_id = $6, updated_at = $7
		WHERE id = $8`,
		rec.Date.String(), utcOrNil(rec.CheckInAt), utcOrNil(rec.CheckOutAt),
		rec.Type, rec.Source, strOrNil(string(rec.LeaveRequestID)),
		rec.UpdatedAt.UTC(),
		rec.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrRecordNotFound
	}
	return nil
}

func (v *queries) DeleteAttendanceByUserAndDate(ctx context.Context, userID core.UserID, date core.Day) error {
	tag, err := v.q.Exec(ctx,
		`DELETE FROM attendance WHERE user_id = $1 AND check_in_date = $2`,
		userID, date.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrRecordNotFound
	}
	return nil
}

func (v *queries) DeleteAttendanceByRequest(ctx context.Context, requestID core.RequestID) error {
	_, err := v.q.Exec(ctx,
		`DELETE FROM attendance WHERE leave_request_id = $1`, requestID)
	return err
}

func (v *queries) ListAttendanceByUserRange(ctx context.Context, userID core.UserID, from, to core.Day) ([]core.AttendanceRecord, error) {
	rows, err := v.q.Query(ctx, `
		SELECT `+attendanceColumns+` FROM attendance
		WHERE user_id = $1 AND check_in_date >= $2 AND check_in_date <= $3
		ORDER BY check_in_date ASC`,
		userID, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttendance(rows)
}

func (v *queries) ListAttendanceBySiteAndDate(ctx context.Context, siteID core.SiteID, date core.Day) ([]core.AttendanceRecord, error) {
	rows, err := v.q.Query(ctx, `
		SELECT a.id, a.user_id, a.check_in_date, a.check_in_at, a.check_out_at,
		       a.type, a.source, a.leave_request_id, a.created_at, a.updated_at
		FROM attendance a
		JOIN users u ON u.id = a.user_id
		WHERE u.site_id = $1 AND a.check_in_date = $2
		ORDER BY a.user_id ASC`,
		siteID, date.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttendance(rows)
}

func scanAttendance(row pgx.Row) (*core.AttendanceRecord, error) {
	var (
		rec       core.AttendanceRecord
		date      string
		checkIn   *time.Time
		checkOut  *time.Time
		requestID *string
	)
	err := row.Scan(&rec.ID, &rec.UserID, &date, &checkIn, &checkOut,
		&rec.Type, &rec.Source, &requestID, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	d, err := core.ParseDay(date)
	if err != nil {
		return nil, fmt.Errorf("bad check_in_date on record %s: %w", rec.ID, err)
	}
	rec.Date = d
	rec.CheckInAt = checkIn
	rec.CheckOutAt = checkOut
	if requestID != nil {
		rec.LeaveRequestID = core.RequestID(*requestID)
	}
	return &rec, nil
}

func collectAttendance(rows pgx.Rows) ([]core.AttendanceRecord, error) {
	var recs []core.AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

const requestColumns = `id, user_id, type, start_date, end_date, days, status, reason, rejection_reason, requested_at, responded_at, responded_by`

func (v *queries) GetRequest(ctx context.Context, id core.RequestID) (*core.LeaveRequest, error) {
	row := v.q.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM leave_requests WHERE id = $1`, id)
	return scanRequest(row)
}

func (v *queries) InsertRequest(ctx context.Context, lr core.LeaveRequest) error {
	_, err := v.q.Exec(ctx, `
		INSERT INTO leave_requests (id, user_id, type, start_date, end_date, days,
			status, reason, rejection_reason, requested_at, responded_at, responded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		lr.ID, lr.UserID, lr.Type, lr.StartDate.String(), lr.EndDate.String(),
		lr.Days.String(), lr.Status, lr.Reason, lr.RejectionReason,
		lr.RequestedAt.UTC(), utcOrNil(lr.RespondedAt), lr.RespondedBy)
	return err
}

func (v *queries) UpdateRequest(ctx context.Context, lr core.LeaveRequest) error {
	tag, err := v.q.Exec(ctx, `
		UPDATE leave_requests
		SET type = $1, start_date = $2, end_date = $3, days = $4, status = $5,
		    reason = $6, rejection_reason = $7, responded_at = $8, responded_by = $9
		WHERE id = $10`,
		lr.Type, lr.StartDate.String(), lr.EndDate.String(), lr.Days.String(),
		lr.Status, lr.Reason, lr.RejectionReason,
		utcOrNil(lr.RespondedAt), lr.RespondedBy,
		lr.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrRequestNotFound
	}
	return nil
}

func (v *queries) DeleteRequest(ctx context.Context, id core.RequestID) error {
	_, err := v.q.Exec(ctx, `DELETE FROM leave_requests WHERE id = $1`, id)
	return err
}

func (v *queries) ListRequestsByUser(ctx context.Context, userID core.UserID) ([]core.LeaveRequest, error) {
	rows, err := v.q.Query(ctx, `
		SELECT `+requestColumns+` FROM leave_requests
		WHERE user_id = $1
		ORDER BY start_date ASC, id ASC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (v *queries) ListRequestsByStatus(ctx context.Context, status core.RequestStatus) ([]core.LeaveRequest, error) {
	rows, err := v.q.Query(ctx, `
		SELECT `+requestColumns+` FROM leave_requests
		WHERE status = $1
		ORDER BY requested_at ASC, id ASC`,
		status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func scanRequest(row pgx.Row) (*core.LeaveRequest, error) {
	var (
		lr         core.LeaveRequest
		start, end string
		days       string
	)
	err := row.Scan(&lr.ID, &lr.UserID, &lr.Type, &start, &end, &days,
		&lr.Status, &lr.Reason, &lr.RejectionReason,
		&lr.RequestedAt, &lr.RespondedAt, &lr.RespondedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lr.StartDate, err = core.ParseDay(start); err != nil {
		return nil, fmt.Errorf("bad start_date on request %s: %w", lr.ID, err)
	}
	if lr.EndDate, err = core.ParseDay(end); err != nil {
		return nil, fmt.Errorf("bad end_date on request %s: %w", lr.ID, err)
	}
	if lr.Days, err = decimal.NewFromString(days); err != nil {
		return nil, fmt.Errorf("bad days on request %s: %w", lr.ID, err)
	}
	return &lr, nil
}

func collectRequests(rows pgx.Rows) ([]core.LeaveRequest, error) {
	var reqs []core.LeaveRequest
	for rows.Next() {
		lr, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *lr)
	}
	return reqs, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func strOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func utcOrNil(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
