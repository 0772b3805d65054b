/*
Package sqlite provides a SQLite-backed implementation of core.TxStore.

PURPOSE:
  Single-file deployments and tests. The PostgreSQL backend (store/postgres)
  implements the same interface for multi-instance deployments.

KEY TABLES:
  users:          Workers, site managers, HQ admins
  sites:          Construction sites (QR codes carry the site ID)
  attendance:     One row per user per date; check-in/out times or a leave mark
  leave_requests: Request lifecycle records

INDEXES:
  - idx_attendance_unique_day: Enforces one record per (user_id, check_in_date).
    This is the storage-level backstop for the ledger's day invariant.
  - idx_attendance_open: Partial index over open (in-only) records, the
    check-out hot path.
  - idx_attendance_request: Leave synchronization deletes by request ID.

DATE/TIME STORAGE:
  Calendar dates as 'YYYY-MM-DD' TEXT, instants as RFC 3339 TEXT. All UTC.

WAL MODE:
  Opened with WAL so readers do not block the single writer.

MIGRATION:
  Schema is auto-migrated on New(). The PostgreSQL backend uses versioned
  golang-migrate files instead.

SEE ALSO:
  - core/store.go: Interface definitions
  - core/store/memory.go: In-memory implementation for tests
  - store/postgres: pgx implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/sitewise/attendance-engine/core"
)

// Store implements core.TxStore on SQLite.
type Store struct {
	db *sql.DB
}

// dbtx is the slice of database/sql shared by *sql.DB and *sql.Tx, so the
// same query helpers serve both paths.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens (or creates) a SQLite store at dbPath. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sites (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		company TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'worker',
		site_id TEXT REFERENCES sites(id),
		company TEXT NOT NULL DEFAULT '',
		hire_date TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_site ON users(site_id);
	CREATE INDEX IF NOT EXISTS idx_users_name ON users(name);

	CREATE TABLE IF NOT EXISTS attendance (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		check_in_date TEXT NOT NULL,
		check_in_at TEXT,
		check_out_at TEXT,
		type TEXT NOT NULL DEFAULT 'normal',
		source TEXT NOT NULL DEFAULT 'qr',
		leave_request_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Storage-level backstop: one attendance row per user per date
	CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_unique_day
		ON attendance(user_id, check_in_date);

	-- Check-out hot path: find the user's open record
	CREATE INDEX IF NOT EXISTS idx_attendance_open
		ON attendance(user_id)
		WHERE check_in_at IS NOT NULL AND check_out_at IS NULL;

	CREATE INDEX IF NOT EXISTS idx_attendance_request
		ON attendance(leave_request_id) WHERE leave_request_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_attendance_date
		ON attendance(check_in_date);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		days TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		reason TEXT NOT NULL DEFAULT '',
		rejection_reason TEXT NOT NULL DEFAULT '',
		requested_at TEXT NOT NULL,
		responded_at TEXT,
		responded_by TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_requests_user ON leave_requests(user_id);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON leave_requests(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// USERS
// =============================================================================

const userColumns = `id, name, phone, role, site_id, company, hire_date, active, created_at`

func (s *Store) GetUser(ctx context.Context, id core.UserID) (*core.User, error) {
	return getUser(ctx, s.db, id)
}

func getUser(ctx context.Context, db dbtx, id core.UserID) (*core.User, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (s *Store) FindUserByNameAndSite(ctx context.Context, name, phone string, siteID core.SiteID) (*core.User, error) {
	return findUserByNameAndSite(ctx, s.db, name, phone, siteID)
}

func findUserByNameAndSite(ctx context.Context, db dbtx, name, phone string, siteID core.SiteID) (*core.User, error) {
	// Phone matters only when both sides carry one.
	row := db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE site_id = ? AND active = TRUE AND name = ? COLLATE NOCASE
		  AND (phone = '' OR ? = '' OR phone = ?)
		ORDER BY id ASC
		LIMIT 1`,
		siteID, name, phone, phone)
	return scanUser(row)
}

func (s *Store) SaveUser(ctx context.Context, u core.User) error {
	return saveUser(ctx, s.db, u)
}

func saveUser(ctx context.Context, db dbtx, u core.User) error {
	var siteID *string
	if u.SiteID != nil {
		v := string(*u.SiteID)
		siteID = &v
	}
	var hireDate *string
	if u.HireDate != nil {
		v := u.HireDate.String()
		hireDate = &v
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, name, phone, role, site_id, company, hire_date, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			role = excluded.role,
			site_id = excluded.site_id,
			company = excluded.company,
			hire_date = excluded.hire_date,
			active = excluded.active`,
		u.ID, u.Name, u.Phone, u.Role, siteID, u.Company, hireDate,
		u.Active, u.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (s *Store) DeleteUser(ctx context.Context, id core.UserID) error {
	return deleteUser(ctx, s.db, id)
}

func deleteUser(ctx context.Context, db dbtx, id core.UserID) error {
	// Cascades by hand; SQLite FK cascades are off to keep parity with the
	// postgres backend's explicit deletes.
	if _, err := db.ExecContext(ctx, `DELETE FROM attendance WHERE user_id = ?`, id); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM leave_requests WHERE user_id = ?`, id); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]core.User, error) {
	return listUsers(ctx, s.db)
}

func listUsers(ctx context.Context, db dbtx) ([]core.User, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *Store) ListCompanyDrift(ctx context.Context) ([]core.User, error) {
	return listCompanyDrift(ctx, s.db)
}

func listCompanyDrift(ctx context.Context, db dbtx) ([]core.User, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT u.id, u.name, u.phone, u.role, u.site_id, u.company, u.hire_date, u.active, u.created_at
		FROM users u
		JOIN sites s ON s.id = u.site_id
		WHERE u.active = TRUE AND s.active = TRUE AND u.company <> s.company
		ORDER BY u.name ASC, u.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row *sql.Row) (*core.User, error) {
	u, err := scanUserFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func scanUserRow(rows *sql.Rows) (*core.User, error) {
	return scanUserFrom(rows)
}

func scanUserFrom(sc rowScanner) (*core.User, error) {
	var (
		u         core.User
		siteID    sql.NullString
		hireDate  sql.NullString
		createdAt string
	)
	if err := sc.Scan(&u.ID, &u.Name, &u.Phone, &u.Role, &siteID, &u.Company,
		&hireDate, &u.Active, &createdAt); err != nil {
		return nil, err
	}
	if siteID.Valid {
		id := core.SiteID(siteID.String)
		u.SiteID = &id
	}
	if hireDate.Valid && hireDate.String != "" {
		d, err := core.ParseDay(hireDate.String)
		if err != nil {
			return nil, fmt.Errorf("bad hire_date for user %s: %w", u.ID, err)
		}
		u.HireDate = &d
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

// =============================================================================
// SITES
// =============================================================================

func (s *Store) GetSite(ctx context.Context, id core.SiteID) (*core.Site, error) {
	return getSite(ctx, s.db, id)
}

func getSite(ctx context.Context, db dbtx, id core.SiteID) (*core.Site, error) {
	var (
		site      core.Site
		createdAt string
	)
	err := db.QueryRowContext(ctx,
		`SELECT id, name, company, active, created_at FROM sites WHERE id = ?`, id,
	).Scan(&site.ID, &site.Name, &site.Company, &site.Active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	site.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &site, nil
}

func (s *Store) SaveSite(ctx context.Context, site core.Site) error {
	return saveSite(ctx, s.db, site)
}

func saveSite(ctx context.Context, db dbtx, site core.Site) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sites (id, name, company, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			company = excluded.company,
			active = excluded.active`,
		site.ID, site.Name, site.Company, site.Active,
		site.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// =============================================================================
// ATTENDANCE
// =============================================================================

const attendanceColumns = `id, user_id, check_in_date, check_in_at, check_out_at, type, source, leave_request_id, created_at, updated_at`

func (s *Store) GetAttendanceByUserAndDate(ctx context.Context, userID core.UserID, date core.Day) (*core.AttendanceRecord, error) {
	return getAttendanceByUserAndDate(ctx, s.db, userID, date)
}

func getAttendanceByUserAndDate(ctx context.Context, db dbtx, userID core.UserID, date core.Day) (*core.AttendanceRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE user_id = ? AND check_in_date = ?`,
		userID, date.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return firstAttendance(rows)
}

func (s *Store) GetOpenAttendance(ctx context.Context, userID core.UserID) (*core.AttendanceRecord, error) {
	return getOpenAttendance(ctx, s.db, userID)
}

func getOpenAttendance(ctx context.Context, db dbtx, userID core.UserID) (*core.AttendanceRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+attendanceColumns+` FROM attendance
		WHERE user_id = ? AND check_in_at IS NOT NULL AND check_out_at IS NULL
		ORDER BY check_in_at DESC
		LIMIT 1`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return firstAttendance(rows)
}

func (s *Store) InsertAttendance(ctx context.Context, rec core.AttendanceRecord) error {
	return insertAttendance(ctx, s.db, rec)
}

func insertAttendance(ctx context.Context, db dbtx, rec core.AttendanceRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO attendance (id, user_id, check_in_date, check_in_at, check_out_at,
			type, source, leave_request_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Date.String(),
		nullTime(rec.CheckInAt), nullTime(rec.CheckOutAt),
		rec.Type, rec.Source, nullStr(string(rec.LeaveRequestID)),
		rec.CreatedAt.UTC().Format(time.RFC3339),
		rec.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return core.ErrDuplicateRecord
		}
		return fmt.Errorf("failed to insert attendance: %w", err)
	}
	return nil
}

func (s *Store) UpdateAttendance(ctx context.Context, rec core.AttendanceRecord) error {
	return updateAttendance(ctx, s.db, rec)
}

func updateAttendance(ctx context.Context, db dbtx, rec core.AttendanceRecord) error {
	res, err := db.ExecContext(ctx, `
		UPDATE attendance
		SET check_in_date = ?, check_in_at = ?, check_out_at = ?,
		    type = ?, source = ?, leave_request_id = ?, updated_at = ?
		WHERE id = ?`,
		rec.Date.String(), nullTime(rec.CheckInAt), nullTime(rec.CheckOutAt),
		rec.Type, rec.Source, nullStr(string(rec.LeaveRequestID)),
		rec.UpdatedAt.UTC().Format(time.RFC3339),
		rec.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrRecordNotFound
	}
	return nil
}

func (s *Store) DeleteAttendanceByUserAndDate(ctx context.Context, userID core.UserID, date core.Day) error {
	return deleteAttendanceByUserAndDate(ctx, s.db, userID, date)
}

func deleteAttendanceByUserAndDate(ctx context.Context, db dbtx, userID core.UserID, date core.Day) error {
	res, err := db.ExecContext(ctx,
		`DELETE FROM attendance WHERE user_id = ? AND check_in_date = ?`,
		userID, date.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrRecordNotFound
	}
	return nil
}

func (s *Store) DeleteAttendanceByRequest(ctx context.Context, requestID core.RequestID) error {
	return deleteAttendanceByRequest(ctx, s.db, requestID)
}

func deleteAttendanceByRequest(ctx context.Context, db dbtx, requestID core.RequestID) error {
	// Zero rows is fine: the request may never have been approved.
	_, err := db.ExecContext(ctx,
		`DELETE FROM attendance WHERE leave_request_id = ?`, requestID)
	return err
}

func (s *Store) ListAttendanceByUserRange(ctx context.Context, userID core.UserID, from, to core.Day) ([]core.AttendanceRecord, error) {
	return listAttendanceByUserRange(ctx, s.db, userID, from, to)
}

func listAttendanceByUserRange(ctx context.Context, db dbtx, userID core.UserID, from, to core.Day) ([]core.AttendanceRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+attendanceColumns+` FROM attendance
		WHERE user_id = ? AND check_in_date >= ? AND check_in_date <= ?
		ORDER BY check_in_date ASC`,
		userID, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttendance(rows)
}

func (s *Store) ListAttendanceBySiteAndDate(ctx context.Context, siteID core.SiteID, date core.Day) ([]core.AttendanceRecord, error) {
	return listAttendanceBySiteAndDate(ctx, s.db, siteID, date)
}

func listAttendanceBySiteAndDate(ctx context.Context, db dbtx, siteID core.SiteID, date core.Day) ([]core.AttendanceRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT a.id, a.user_id, a.check_in_date, a.check_in_at, a.check_out_at,
		       a.type, a.source, a.leave_request_id, a.created_at, a.updated_at
		FROM attendance a
		JOIN users u ON u.id = a.user_id
		WHERE u.site_id = ? AND a.check_in_date = ?
		ORDER BY a.user_id ASC`,
		siteID, date.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttendance(rows)
}

func firstAttendance(rows *sql.Rows) (*core.AttendanceRecord, error) {
	recs, err := collectAttendance(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

func collectAttendance(rows *sql.Rows) ([]core.AttendanceRecord, error) {
	var recs []core.AttendanceRecord
	for rows.Next() {
		var (
			rec       core.AttendanceRecord
			date      string
			checkIn   sql.NullString
			checkOut  sql.NullString
			requestID sql.NullString
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &date, &checkIn, &checkOut,
			&rec.Type, &rec.Source, &requestID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}

		d, err := core.ParseDay(date)
		if err != nil {
			return nil, fmt.Errorf("bad check_in_date on record %s: %w", rec.ID, err)
		}
		rec.Date = d
		rec.CheckInAt = parseNullTime(checkIn)
		rec.CheckOutAt = parseNullTime(checkOut)
		rec.LeaveRequestID = core.RequestID(requestID.String)
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

const requestColumns = `id, user_id, type, start_date, end_date, days, status, reason, rejection_reason, requested_at, responded_at, responded_by`

func (s *Store) GetRequest(ctx context.Context, id core.RequestID) (*core.LeaveRequest, error) {
	return getRequest(ctx, s.db, id)
}

func getRequest(ctx context.Context, db dbtx, id core.RequestID) (*core.LeaveRequest, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM leave_requests WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reqs, err := collectRequests(rows)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, nil
	}
	return &reqs[0], nil
}

func (s *Store) InsertRequest(ctx context.Context, lr core.LeaveRequest) error {
	return insertRequest(ctx, s.db, lr)
}

func insertRequest(ctx context.Context, db dbtx, lr core.LeaveRequest) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO leave_requests (id, user_id, type, start_date, end_date, days,
			status, reason, rejection_reason, requested_at, responded_at, responded_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lr.ID, lr.UserID, lr.Type, lr.StartDate.String(), lr.EndDate.String(),
		lr.Days.String(), lr.Status, lr.Reason, lr.RejectionReason,
		lr.RequestedAt.UTC().Format(time.RFC3339),
		nullTime(lr.RespondedAt), lr.RespondedBy)
	return err
}

func (s *Store) UpdateRequest(ctx context.Context, lr core.LeaveRequest) error {
	return updateRequest(ctx, s.db, lr)
}

func updateRequest(ctx context.Context, db dbtx, lr core.LeaveRequest) error {
	res, err := db.ExecContext(ctx, `
		UPDATE leave_requests
		SET type = ?, start_date = ?, end_date = ?, days = ?, status = ?,
		    reason = ?, rejection_reason = ?, responded_at = ?, responded_by = ?
		WHERE id = ?`,
		lr.Type, lr.StartDate.String(), lr.EndDate.String(), lr.Days.String(),
		lr.Status, lr.Reason, lr.RejectionReason,
		nullTime(lr.RespondedAt), lr.RespondedBy,
		lr.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrRequestNotFound
	}
	return nil
}

func (s *Store) DeleteRequest(ctx context.Context, id core.RequestID) error {
	return deleteRequest(ctx, s.db, id)
}

func deleteRequest(ctx context.Context, db dbtx, id core.RequestID) error {
	_, err := db.ExecContext(ctx, `DELETE FROM leave_requests WHERE id = ?`, id)
	return err
}

func (s *Store) ListRequestsByUser(ctx context.Context, userID core.UserID) ([]core.LeaveRequest, error) {
	return listRequestsByUser(ctx, s.db, userID)
}

func listRequestsByUser(ctx context.Context, db dbtx, userID core.UserID) ([]core.LeaveRequest, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM leave_requests
		WHERE user_id = ?
		ORDER BY start_date ASC, id ASC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (s *Store) ListRequestsByStatus(ctx context.Context, status core.RequestStatus) ([]core.LeaveRequest, error) {
	return listRequestsByStatus(ctx, s.db, status)
}

func listRequestsByStatus(ctx context.Context, db dbtx, status core.RequestStatus) ([]core.LeaveRequest, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM leave_requests
		WHERE status = ?
		ORDER BY requested_at ASC, id ASC`,
		status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func collectRequests(rows *sql.Rows) ([]core.LeaveRequest, error) {
	var reqs []core.LeaveRequest
	for rows.Next() {
		var (
			lr          core.LeaveRequest
			start, end  string
			days        string
			requestedAt string
			respondedAt sql.NullString
		)
		if err := rows.Scan(&lr.ID, &lr.UserID, &lr.Type, &start, &end, &days,
			&lr.Status, &lr.Reason, &lr.RejectionReason,
			&requestedAt, &respondedAt, &lr.RespondedBy); err != nil {
			return nil, fmt.Errorf("failed to scan leave request: %w", err)
		}

		var err error
		if lr.StartDate, err = core.ParseDay(start); err != nil {
			return nil, fmt.Errorf("bad start_date on request %s: %w", lr.ID, err)
		}
		if lr.EndDate, err = core.ParseDay(end); err != nil {
			return nil, fmt.Errorf("bad end_date on request %s: %w", lr.ID, err)
		}
		if lr.Days, err = decimal.NewFromString(days); err != nil {
			return nil, fmt.Errorf("bad days on request %s: %w", lr.ID, err)
		}
		lr.RequestedAt, _ = time.Parse(time.RFC3339, requestedAt)
		lr.RespondedAt = parseNullTime(respondedAt)

		reqs = append(reqs, lr)
	}
	return reqs, rows.Err()
}

// =============================================================================
// TRANSACTIONS (core.TxStore interface)
// =============================================================================

// WithTx runs fn against a transaction-bound view of the store, committing
// only when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(core.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetUser(ctx context.Context, id core.UserID) (*core.User, error) {
	return getUser(ctx, ts.tx, id)
}

func (ts *txStore) FindUserByNameAndSite(ctx context.Context, name, phone string, siteID core.SiteID) (*core.User, error) {
	return findUserByNameAndSite(ctx, ts.tx, name, phone, siteID)
}

func (ts *txStore) SaveUser(ctx context.Context, u core.User) error {
	return saveUser(ctx, ts.tx, u)
}

func (ts *txStore) DeleteUser(ctx context.Context, id core.UserID) error {
	return deleteUser(ctx, ts.tx, id)
}

func (ts *txStore) ListUsers(ctx context.Context) ([]core.User, error) {
	return listUsers(ctx, ts.tx)
}

func (ts *txStore) GetSite(ctx context.Context, id core.SiteID) (*core.Site, error) {
	return getSite(ctx, ts.tx, id)
}

func (ts *txStore) SaveSite(ctx context.Context, site core.Site) error {
	return saveSite(ctx, ts.tx, site)
}

func (ts *txStore) GetAttendanceByUserAndDate(ctx context.Context, userID core.UserID, date core.Day) (*core.AttendanceRecord, error) {
	return getAttendanceByUserAndDate(ctx, ts.tx, userID, date)
}

func (ts *txStore) GetOpenAttendance(ctx context.Context, userID core.UserID) (*core.AttendanceRecord, error) {
	return getOpenAttendance(ctx, ts.tx, userID)
}

func (ts *txStore) InsertAttendance(ctx context.Context, rec core.AttendanceRecord) error {
	return insertAttendance(ctx, ts.tx, rec)
}

func (ts *txStore) UpdateAttendance(ctx context.Context, rec core.AttendanceRecord) error {
	return updateAttendance(ctx, ts.tx, rec)
}

func (ts *txStore) DeleteAttendanceByUserAndDate(ctx context.Context, userID core.UserID, date core.Day) error {
	return deleteAttendanceByUserAndDate(ctx, ts.tx, userID, date)
}

func (ts *txStore) DeleteAttendanceByRequest(ctx context.Context, requestID core.RequestID) error {
	return deleteAttendanceByRequest(ctx, ts.tx, requestID)
}

func (ts *txStore) ListAttendanceByUserRange(ctx context.Context, userID core.UserID, from, to core.Day) ([]core.AttendanceRecord, error) {
	return listAttendanceByUserRange(ctx, ts.tx, userID, from, to)
}

func (ts *txStore) ListAttendanceBySiteAndDate(ctx context.Context, siteID core.SiteID, date core.Day) ([]core.AttendanceRecord, error) {
	return listAttendanceBySiteAndDate(ctx, ts.tx, siteID, date)
}

func (ts *txStore) GetRequest(ctx context.Context, id core.RequestID) (*core.LeaveRequest, error) {
	return getRequest(ctx, ts.tx, id)
}

func (ts *txStore) InsertRequest(ctx context.Context, lr core.LeaveRequest) error {
	return insertRequest(ctx, ts.tx, lr)
}

func (ts *txStore) UpdateRequest(ctx context.Context, lr core.LeaveRequest) error {
	return updateRequest(ctx, ts.tx, lr)
}

func (ts *txStore) DeleteRequest(ctx context.Context, id core.RequestID) error {
	return deleteRequest(ctx, ts.tx, id)
}

func (ts *txStore) ListRequestsByUser(ctx context.Context, userID core.UserID) ([]core.LeaveRequest, error) {
	return listRequestsByUser(ctx, ts.tx, userID)
}

func (ts *txStore) ListRequestsByStatus(ctx context.Context, status core.RequestStatus) ([]core.LeaveRequest, error) {
	return listRequestsByStatus(ctx, ts.tx, status)
}

func (ts *txStore) ListCompanyDrift(ctx context.Context) ([]core.User, error) {
	return listCompanyDrift(ctx, ts.tx)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
