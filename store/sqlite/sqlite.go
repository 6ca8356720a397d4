/*
Package sqlite provides a SQLite-backed implementation of leave.Store.

PURPOSE:
  Persists employees, leave requests, ledger entries and the event outbox
  in one database so that a request change, its ledger debit and its event
  commit or roll back together.

INTERFACES IMPLEMENTED:
  leave.Store:        RequestStore + EntryStore + Outbox + WithTx
  leave.Directory:    employees
  leave.OutboxReader: relay side of the outbox

APPEND-ONLY ENFORCEMENT:
  ledger_entries rejects UPDATE and DELETE through triggers. Corrections
  are new credit entries.

KEY TABLES:
  employees:      identity records (role, team, office)
  requests:       leave requests, upserted on every transition
  ledger_entries: immutable balance changes; idempotency_key is UNIQUE
  outbox_events:  events waiting for the relay

CONCURRENCY:
  The pool is limited to a single connection and WithTx additionally holds
  a mutex, so units of work run one at a time. Views handed to fn query
  through the *sql.Tx and never re-enter the Store, which keeps reads inside
  a unit of work consistent with its writes.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  coordinator := leave.NewCoordinator(store, leave.DefaultCatalog())

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - leave/store.go: Interface definitions
  - leave/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
)

// timeLayout is fixed-width so text ordering matches chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements leave.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

var _ leave.Store = (*Store)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and SQLite
	// allows a single writer anyway.
	db.SetMaxOpenConns(1)

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

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Employees (identity source)
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		team TEXT,
		office TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Leave requests
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		team TEXT,
		office TEXT,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		days INTEGER NOT NULL CHECK (days >= 1),
		reason TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
		applied_at TEXT NOT NULL,
		decided_by TEXT,
		decided_at TEXT,
		rejection_reason TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee
		ON requests(employee_id, applied_at);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON requests(status, applied_at);

	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		delta TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_balance
		ON ledger_entries(employee_id, leave_type_id);

	CREATE TRIGGER IF NOT EXISTS trg_ledger_no_update
		BEFORE UPDATE ON ledger_entries
		BEGIN SELECT RAISE(ABORT, 'ledger_entries is append-only'); END;
	CREATE TRIGGER IF NOT EXISTS trg_ledger_no_delete
		BEFORE DELETE ON ledger_entries
		BEGIN SELECT RAISE(ABORT, 'ledger_entries is append-only'); END;

	-- Transactional outbox
	CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		request_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		occurred_at TEXT NOT NULL,
		delivered_at TEXT,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_outbox_pending
		ON outbox_events(delivered_at) WHERE delivered_at IS NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx leave.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(txView{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txView struct {
	q querier
}

func (t txView) Requests() leave.RequestStore { return requestRepo{q: t.q} }
func (t txView) Entries() leave.EntryStore { return entryRepo{q: t.q} }
func (t txView) Outbox() leave.Outbox { return outboxRepo{q: t.q} }

// Requests, Entries and Outbox outside a unit of work use the pool directly.
func (s *Store) Requests() leave.RequestStore { return requestRepo{q: s.db} }
func (s *Store) Entries() leave.EntryStore { return entryRepo{q: s.db} }
func (s *Store) Outbox() leave.Outbox { return outboxRepo{q: s.db} }

// =============================================================================
// REQUESTS
// =============================================================================

type requestRepo struct {
	q querier
}

const requestColumns = `
	id, employee_id, leave_type_id, team, office, start_date, end_date, days,
	reason, status, applied_at, decided_by, decided_at, rejection_reason, updated_at`

// Save upserts a request. Identity fields are immutable after insert; only
// the decision columns change on conflict.
func (r requestRepo) Save(ctx context.Context, req leave.LeaveRequest) error {
	query := `
		INSERT INTO requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			decided_by = excluded.decided_by,
			decided_at = excluded.decided_at,
			rejection_reason = excluded.rejection_reason,
			updated_at = excluded.updated_at
	`

	var decidedBy, rejectionReason sql.NullString
	if req.DecidedBy != nil {
		decidedBy = nullString(string(*req.DecidedBy))
	}
	if req.RejectionReason != nil {
		rejectionReason = sql.NullString{String: *req.RejectionReason, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query,
		req.ID, req.EmployeeID, req.LeaveTypeID,
		nullString(req.Team), nullString(req.Office),
		req.Start.String(), req.End.String(), req.Days,
		req.Reason, req.Status, formatTime(req.AppliedAt),
		decidedBy, nullTime(req.DecidedAt), rejectionReason,
		formatTime(req.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save request: %w", err)
	}
	return nil
}

func (r requestRepo) Get(ctx context.Context, id leave.RequestID) (leave.LeaveRequest, error) {
	reqs, err := r.query(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	if err != nil {
		return leave.LeaveRequest{}, err
	}
	if len(reqs) == 0 {
		return leave.LeaveRequest{}, leave.ErrRequestNotFound
	}
	return reqs[0], nil
}

func (r requestRepo) ListByEmployee(ctx context.Context, employeeID leave.EmployeeID) ([]leave.LeaveRequest, error) {
	return r.query(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE employee_id = ?
		ORDER BY applied_at ASC, id ASC
	`, employeeID)
}

func (r requestRepo) ListPending(ctx context.Context) ([]leave.LeaveRequest, error) {
	return r.query(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE status = 'pending'
		ORDER BY applied_at ASC, id ASC
	`)
}

func (r requestRepo) query(ctx context.Context, query string, args ...any) ([]leave.LeaveRequest, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	requests := []leave.LeaveRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func scanRequest(rows *sql.Rows) (leave.LeaveRequest, error) {
	var (
		req                  leave.LeaveRequest
		team, office         sql.NullString
		startDate, endDate   string
		appliedAt, updatedAt string
		decidedBy, decidedAt sql.NullString
		rejectionReason      sql.NullString
	)

	err := rows.Scan(
		&req.ID, &req.EmployeeID, &req.LeaveTypeID, &team, &office,
		&startDate, &endDate, &req.Days, &req.Reason, &req.Status,
		&appliedAt, &decidedBy, &decidedAt, &rejectionReason, &updatedAt,
	)
	if err != nil {
		return req, fmt.Errorf("failed to scan request: %w", err)
	}

	req.Team = team.String
	req.Office = office.String
	if req.Start, err = leave.ParseDate(startDate); err != nil {
		return req, err
	}
	if req.End, err = leave.ParseDate(endDate); err != nil {
		return req, err
	}
	req.AppliedAt = parseTime(appliedAt)
	req.UpdatedAt = parseTime(updatedAt)
	if decidedBy.Valid {
		id := leave.EmployeeID(decidedBy.String)
		req.DecidedBy = &id
	}
	if decidedAt.Valid {
		t := parseTime(decidedAt.String)
		req.DecidedAt = &t
	}
	if rejectionReason.Valid {
		reason := rejectionReason.String
		req.RejectionReason = &reason
	}
	return req, nil
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

type entryRepo struct {
	q querier
}

// Append adds an entry to the ledger.
func (r entryRepo) Append(ctx context.Context, e leave.Entry) error {
	query := `
		INSERT INTO ledger_entries
		(id, employee_id, leave_type_id, delta, entry_type, reference_id, reason,
		 idempotency_key, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.q.ExecContext(ctx, query,
		e.ID, e.EmployeeID, e.LeaveTypeID, e.Delta.String(), e.Type,
		nullString(e.ReferenceID), nullString(e.Reason),
		nullString(e.IdempotencyKey), nullString(string(e.CreatedBy)),
		formatTime(e.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return leave.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// Load returns entries for one balance in insertion order.
func (r entryRepo) Load(ctx context.Context, employeeID leave.EmployeeID, leaveTypeID leave.LeaveTypeID) ([]leave.Entry, error) {
	query := `
		SELECT id, employee_id, leave_type_id, delta, entry_type, reference_id, reason,
		       idempotency_key, created_by, created_at
		FROM ledger_entries
		WHERE employee_id = ? AND leave_type_id = ?
		ORDER BY rowid ASC
	`

	rows, err := r.q.QueryContext(ctx, query, employeeID, leaveTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	entries := []leave.Entry{}
	for rows.Next() {
		var (
			e                   leave.Entry
			delta, createdAt    string
			referenceID, reason sql.NullString
			idempotencyKey, by  sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &e.EmployeeID, &e.LeaveTypeID, &delta, &e.Type,
			&referenceID, &reason, &idempotencyKey, &by, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		if e.Delta, err = decimal.NewFromString(delta); err != nil {
			return nil, fmt.Errorf("corrupt delta %q on entry %s: %w", delta, e.ID, err)
		}
		e.ReferenceID = referenceID.String
		e.Reason = reason.String
		e.IdempotencyKey = idempotencyKey.String
		e.CreatedBy = leave.EmployeeID(by.String)
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Exists checks if an idempotency key exists.
func (r entryRepo) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_entries WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// OUTBOX
// =============================================================================

type outboxRepo struct {
	q querier
}

func (r outboxRepo) Enqueue(ctx context.Context, e leave.Event) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO outbox_events (id, event_type, request_id, employee_id, actor_id, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.Type, e.RequestID, e.EmployeeID, e.ActorID, formatTime(e.OccurredAt))
	if err != nil {
		return fmt.Errorf("failed to enqueue event: %w", err)
	}
	return nil
}

// PendingEvents returns undelivered events in the order they were written.
// A non-positive limit returns all of them.
func (s *Store) PendingEvents(ctx context.Context, limit int) ([]leave.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, request_id, employee_id, actor_id, occurred_at
		FROM outbox_events
		WHERE delivered_at IS NULL
		ORDER BY rowid ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	events := []leave.Event{}
	for rows.Next() {
		var e leave.Event
		var occurredAt string
		if err := rows.Scan(&e.ID, &e.Type, &e.RequestID, &e.EmployeeID, &e.ActorID, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.OccurredAt = parseTime(occurredAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) MarkDelivered(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE outbox_events SET delivered_at = ? WHERE id = ?",
		formatTime(time.Now()), id,
	)
	return err
}

func (s *Store) MarkFailed(ctx context.Context, id string, reason string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE outbox_events SET attempts = attempts + 1, last_error = ? WHERE id = ?",
		reason, id,
	)
	return err
}

// DeliveryAttempts reports how many times delivery of an event has failed.
func (s *Store) DeliveryAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := s.db.QueryRowContext(ctx, "SELECT attempts FROM outbox_events WHERE id = ?", id).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return attempts, err
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e leave.Employee) error {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, role, team, office, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			team = excluded.team,
			office = excluded.office,
			updated_at = excluded.updated_at
	`, e.ID, e.Name, e.Role, nullString(e.Team), nullString(e.Office), now, now)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) Employee(ctx context.Context, id leave.EmployeeID) (leave.Employee, error) {
	var e leave.Employee
	var team, office sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, role, team, office FROM employees WHERE id = ?", id,
	).Scan(&e.ID, &e.Name, &e.Role, &team, &office)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.Employee{}, leave.ErrEmployeeNotFound
	}
	if err != nil {
		return leave.Employee{}, fmt.Errorf("failed to load employee: %w", err)
	}
	e.Team = team.String
	e.Office = office.String
	return e, nil
}

// ListEmployees returns the directory ordered by id.
func (s *Store) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, role, team, office FROM employees ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	employees := []leave.Employee{}
	for rows.Next() {
		var e leave.Employee
		var team, office sql.NullString
		if err := rows.Scan(&e.ID, &e.Name, &e.Role, &team, &office); err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		e.Team = team.String
		e.Office = office.String
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
