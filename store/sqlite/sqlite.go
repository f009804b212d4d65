/*
Package sqlite provides the SQLite-backed implementation of the leave and
delegation persistence contracts.

PURPOSE:
  Production single-node persistence. The same patterns carry to
  PostgreSQL with minor dialect changes.

INTERFACES IMPLEMENTED:
  directory.UserDirectory    user lookups
  leave.LeaveTypeStore       leave type lookups
  leave.PolicyStore          active policy scope queries
  leave.LedgerStore          append-only balance journal
  leave.RequestStore         pending request queries
  delegation.DelegateStore   delegate CRUD and active-window queries

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE ever touches leave_ledger. Append reads the latest
  balance and inserts the new row inside one transaction, under the store
  mutex, which serializes appends per (user, leaveType).

ORDERING:
  Every table that needs creation order carries a monotonically
  increasing seq column (AUTOINCREMENT); wall-clock timestamps are kept
  for audit display, seq is authoritative for "latest".

WAL MODE:
  The database opens with WAL so balance reads never block on posting.

USAGE:
  st, err := sqlite.New("./data/leave.db")   // ":memory:" for tests
  defer st.Close()
  engine := leave.NewEngine(st, st, st, st, st, nil)
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/tablestack/leave-engine/delegation"
	"github.com/tablestack/leave-engine/directory"
	"github.com/tablestack/leave-engine/leave"
)

// Store implements every persistence contract over one SQLite handle.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database and bootstraps the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT NOT NULL,
		org_id TEXT NOT NULL,
		branch_id TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (org_id, id)
	);

	CREATE TABLE IF NOT EXISTS leave_types (
		id TEXT NOT NULL,
		org_id TEXT NOT NULL,
		name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (org_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_leave_types_org_active
		ON leave_types(org_id, is_active);

	CREATE TABLE IF NOT EXISTS leave_policies (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		branch_id TEXT,
		method TEXT NOT NULL,
		accrual_rate TEXT NOT NULL,
		max_balance_hours TEXT,
		rounding_precision INTEGER NOT NULL DEFAULT 2,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);
	CREATE INDEX IF NOT EXISTS idx_policies_scope
		ON leave_policies(org_id, leave_type_id, is_active);

	-- Append-only balance journal. seq is authoritative creation order;
	-- the latest row per (org, user, type) IS the current balance.
	CREATE TABLE IF NOT EXISTS leave_ledger (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		org_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		delta TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_key_seq
		ON leave_ledger(org_id, user_id, leave_type_id, seq DESC);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		total_hours TEXT NOT NULL,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_requests_pending
		ON leave_requests(org_id, user_id, leave_type_id, status);

	CREATE TABLE IF NOT EXISTS approval_delegates (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		org_id TEXT NOT NULL,
		principal_user_id TEXT NOT NULL,
		delegate_user_id TEXT NOT NULL,
		branch_id TEXT,
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_delegates_active_lookup
		ON approval_delegates(org_id, delegate_user_id, enabled, start_at, end_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// USER DIRECTORY (directory.UserDirectory)
// =============================================================================

func (s *Store) ByID(ctx context.Context, orgID, userID string) (*directory.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u directory.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, org_id, branch_id, first_name, last_name FROM users WHERE org_id = ? AND id = ?",
		orgID, userID,
	).Scan(&u.ID, &u.OrgID, &u.BranchID, &u.FirstName, &u.LastName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SaveUser upserts a directory user (seeding/sync path).
func (s *Store) SaveUser(ctx context.Context, u directory.User) (directory.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, org_id, branch_id, first_name, last_name)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(org_id, id) DO UPDATE SET
			branch_id = excluded.branch_id,
			first_name = excluded.first_name,
			last_name = excluded.last_name
	`, u.ID, u.OrgID, u.BranchID, u.FirstName, u.LastName)
	return u, err
}

// =============================================================================
// LEAVE TYPE STORE (leave.LeaveTypeStore)
// =============================================================================

func (s *Store) LeaveTypeByID(ctx context.Context, orgID, leaveTypeID string) (*leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lt leave.LeaveType
	err := s.db.QueryRowContext(ctx,
		"SELECT id, org_id, name, is_active FROM leave_types WHERE org_id = ? AND id = ?",
		orgID, leaveTypeID,
	).Scan(&lt.ID, &lt.OrgID, &lt.Name, &lt.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lt, nil
}

func (s *Store) ListActive(ctx context.Context, orgID string) ([]leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, org_id, name, is_active FROM leave_types WHERE org_id = ? AND is_active = TRUE ORDER BY name",
		orgID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []leave.LeaveType
	for rows.Next() {
		var lt leave.LeaveType
		if err := rows.Scan(&lt.ID, &lt.OrgID, &lt.Name, &lt.IsActive); err != nil {
			return nil, err
		}
		types = append(types, lt)
	}
	return types, rows.Err()
}

// SaveLeaveType upserts a leave type definition.
func (s *Store) SaveLeaveType(ctx context.Context, lt leave.LeaveType) (leave.LeaveType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lt.ID == "" {
		lt.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_types (id, org_id, name, is_active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(org_id, id) DO UPDATE SET
			name = excluded.name,
			is_active = excluded.is_active
	`, lt.ID, lt.OrgID, lt.Name, lt.IsActive)
	return lt, err
}

// =============================================================================
// POLICY STORE (leave.PolicyStore)
// =============================================================================

func (s *Store) ActiveForScope(ctx context.Context, orgID, leaveTypeID, branchID string) ([]leave.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, leave_type_id, branch_id, method, accrual_rate,
		       max_balance_hours, rounding_precision, is_active
		FROM leave_policies
		WHERE org_id = ? AND leave_type_id = ? AND is_active = TRUE
		  AND (branch_id IS NULL OR branch_id = ?)
	`, orgID, leaveTypeID, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []leave.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// SavePolicy upserts an accrual policy.
func (s *Store) SavePolicy(ctx context.Context, p leave.Policy) (leave.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	var maxBalance any
	if p.MaxBalanceHours != nil {
		maxBalance = p.MaxBalanceHours.String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_policies
		(id, org_id, leave_type_id, branch_id, method, accrual_rate, max_balance_hours, rounding_precision, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			branch_id = excluded.branch_id,
			method = excluded.method,
			accrual_rate = excluded.accrual_rate,
			max_balance_hours = excluded.max_balance_hours,
			rounding_precision = excluded.rounding_precision,
			is_active = excluded.is_active
	`, p.ID, p.OrgID, p.LeaveTypeID, nullStringPtr(p.BranchID), string(p.Method),
		p.AccrualRate.String(), maxBalance, p.RoundingPrecision, p.IsActive)
	return p, err
}

func scanPolicy(rows *sql.Rows) (leave.Policy, error) {
	var (
		p          leave.Policy
		branchID   sql.NullString
		method     string
		rate       string
		maxBalance sql.NullString
	)
	if err := rows.Scan(&p.ID, &p.OrgID, &p.LeaveTypeID, &branchID, &method,
		&rate, &maxBalance, &p.RoundingPrecision, &p.IsActive); err != nil {
		return p, fmt.Errorf("failed to scan policy: %w", err)
	}
	if branchID.Valid {
		v := branchID.String
		p.BranchID = &v
	}
	p.Method = leave.AccrualMethod(method)
	p.AccrualRate = mustDecimal(rate)
	if maxBalance.Valid {
		v := mustDecimal(maxBalance.String)
		p.MaxBalanceHours = &v
	}
	return p, nil
}

// =============================================================================
// LEDGER STORE (leave.LedgerStore) - append-only
// =============================================================================

// Append reads the key's latest balance and inserts the new entry inside
// one transaction. The store mutex serializes appends, so two posts for
// the same (user, leaveType) can never both read the same predecessor.
func (s *Store) Append(ctx context.Context, entry leave.LedgerEntry) (*leave.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var prevStr sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT balance_after FROM leave_ledger
		WHERE org_id = ? AND user_id = ? AND leave_type_id = ?
		ORDER BY seq DESC LIMIT 1
	`, entry.OrgID, entry.UserID, entry.LeaveTypeID).Scan(&prevStr)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	prev := decimal.Zero
	if prevStr.Valid {
		prev = mustDecimal(prevStr.String)
	}

	entry.ID = uuid.NewString()
	entry.BalanceAfter = prev.Add(entry.Delta)
	entry.CreatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO leave_ledger (id, org_id, user_id, leave_type_id, delta, balance_after, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.OrgID, entry.UserID, entry.LeaveTypeID,
		entry.Delta.String(), entry.BalanceAfter.String(), entry.Reason,
		entry.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Store) Latest(ctx context.Context, orgID, userID, leaveTypeID string) (*leave.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.queryLedger(ctx, `
		SELECT id, org_id, user_id, leave_type_id, delta, balance_after, reason, created_at
		FROM leave_ledger
		WHERE org_id = ? AND user_id = ? AND leave_type_id = ?
		ORDER BY seq DESC LIMIT 1
	`, orgID, userID, leaveTypeID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (s *Store) Entries(ctx context.Context, orgID, userID, leaveTypeID string) ([]leave.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryLedger(ctx, `
		SELECT id, org_id, user_id, leave_type_id, delta, balance_after, reason, created_at
		FROM leave_ledger
		WHERE org_id = ? AND user_id = ? AND leave_type_id = ?
		ORDER BY seq ASC
	`, orgID, userID, leaveTypeID)
}

func (s *Store) queryLedger(ctx context.Context, query string, args ...any) ([]leave.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []leave.LedgerEntry
	for rows.Next() {
		var (
			e            leave.LedgerEntry
			delta        string
			balanceAfter string
			createdAt    string
		)
		if err := rows.Scan(&e.ID, &e.OrgID, &e.UserID, &e.LeaveTypeID,
			&delta, &balanceAfter, &e.Reason, &createdAt); err != nil {
			return nil, err
		}
		e.Delta = mustDecimal(delta)
		e.BalanceAfter = mustDecimal(balanceAfter)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// REQUEST STORE (leave.RequestStore)
// =============================================================================

func (s *Store) Pending(ctx context.Context, orgID, userID, leaveTypeID string) ([]leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, user_id, leave_type_id, start_date, total_hours, status
		FROM leave_requests
		WHERE org_id = ? AND user_id = ? AND leave_type_id = ? AND status IN (?, ?)
		ORDER BY start_date ASC
	`, orgID, userID, leaveTypeID,
		string(leave.StatusSubmitted), string(leave.StatusApprovedStep1))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []leave.Request
	for rows.Next() {
		var (
			r          leave.Request
			startDate  string
			totalHours string
			status     string
		)
		if err := rows.Scan(&r.ID, &r.OrgID, &r.UserID, &r.LeaveTypeID,
			&startDate, &totalHours, &status); err != nil {
			return nil, err
		}
		r.StartDate, _ = time.Parse(time.RFC3339, startDate)
		r.TotalHours = mustDecimal(totalHours)
		r.Status = leave.RequestStatus(status)
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// SaveRequest upserts a leave request. The posting workflow owns status
// transitions; this store only persists them.
func (s *Store) SaveRequest(ctx context.Context, r leave.Request) (leave.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_requests (id, org_id, user_id, leave_type_id, start_date, total_hours, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_date = excluded.start_date,
			total_hours = excluded.total_hours,
			status = excluded.status
	`, r.ID, r.OrgID, r.UserID, r.LeaveTypeID,
		r.StartDate.UTC().Format(time.RFC3339), r.TotalHours.String(), string(r.Status))
	return r, err
}

// =============================================================================
// DELEGATE STORE (delegation.DelegateStore)
// =============================================================================

const delegateColumns = "id, org_id, principal_user_id, delegate_user_id, branch_id, start_at, end_at, enabled, created_at"

func (s *Store) Insert(ctx context.Context, d delegation.Delegate) (*delegation.Delegate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.ID = uuid.NewString()
	d.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approval_delegates
		(id, org_id, principal_user_id, delegate_user_id, branch_id, start_at, end_at, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.OrgID, d.PrincipalUserID, d.DelegateUserID, nullStringPtr(d.BranchID),
		formatTime(d.StartAt), formatTime(d.EndAt), d.Enabled, formatTime(d.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert delegate: %w", err)
	}
	return &d, nil
}

func (s *Store) Get(ctx context.Context, orgID, id string) (*delegation.Delegate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, err := s.queryDelegates(ctx,
		"SELECT "+delegateColumns+" FROM approval_delegates WHERE org_id = ? AND id = ?",
		orgID, id)
	if err != nil {
		return nil, err
	}
	if len(ds) == 0 {
		return nil, nil
	}
	return &ds[0], nil
}

func (s *Store) List(ctx context.Context, orgID string, activeOnly bool, now time.Time) ([]delegation.Delegate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + delegateColumns + " FROM approval_delegates WHERE org_id = ?"
	args := []any{orgID}
	if activeOnly {
		query += " AND enabled = TRUE AND start_at <= ? AND end_at >= ?"
		nowStr := formatTime(now)
		args = append(args, nowStr, nowStr)
	}
	query += " ORDER BY start_at DESC, seq DESC"

	return s.queryDelegates(ctx, query, args...)
}

func (s *Store) Update(ctx context.Context, d delegation.Delegate) (*delegation.Delegate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE approval_delegates
		SET principal_user_id = ?, delegate_user_id = ?, branch_id = ?,
		    start_at = ?, end_at = ?, enabled = ?
		WHERE org_id = ? AND id = ?
	`, d.PrincipalUserID, d.DelegateUserID, nullStringPtr(d.BranchID),
		formatTime(d.StartAt), formatTime(d.EndAt), d.Enabled, d.OrgID, d.ID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("delegate %s: %w", d.ID, delegation.ErrDelegateNotFound)
	}
	return &d, nil
}

func (s *Store) Delete(ctx context.Context, orgID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM approval_delegates WHERE org_id = ? AND id = ?", orgID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delegate %s: %w", id, delegation.ErrDelegateNotFound)
	}
	return nil
}

// ActiveFor returns the winning delegate grant covering the delegate user
// at the given instant. Later start_at wins; seq breaks exact ties.
func (s *Store) ActiveFor(ctx context.Context, orgID, delegateUserID, branchID string, now time.Time) (*delegation.Delegate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nowStr := formatTime(now)
	ds, err := s.queryDelegates(ctx, `
		SELECT `+delegateColumns+` FROM approval_delegates
		WHERE org_id = ? AND delegate_user_id = ?
		  AND enabled = TRUE AND start_at <= ? AND end_at >= ?
		  AND (branch_id IS NULL OR branch_id = ?)
		ORDER BY start_at DESC, seq DESC
		LIMIT 1
	`, orgID, delegateUserID, nowStr, nowStr, branchID)
	if err != nil {
		return nil, err
	}
	if len(ds) == 0 {
		return nil, nil
	}
	return &ds[0], nil
}

func (s *Store) queryDelegates(ctx context.Context, query string, args ...any) ([]delegation.Delegate, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query delegates: %w", err)
	}
	defer rows.Close()

	var delegates []delegation.Delegate
	for rows.Next() {
		var (
			d         delegation.Delegate
			branchID  sql.NullString
			startAt   string
			endAt     string
			createdAt string
		)
		if err := rows.Scan(&d.ID, &d.OrgID, &d.PrincipalUserID, &d.DelegateUserID,
			&branchID, &startAt, &endAt, &d.Enabled, &createdAt); err != nil {
			return nil, err
		}
		if branchID.Valid {
			v := branchID.String
			d.BranchID = &v
		}
		d.StartAt, _ = time.Parse(time.RFC3339, startAt)
		d.EndAt, _ = time.Parse(time.RFC3339, endAt)
		d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		delegates = append(delegates, d)
	}
	return delegates, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// formatTime stores UTC RFC3339 so lexicographic comparison matches
// chronological order.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
