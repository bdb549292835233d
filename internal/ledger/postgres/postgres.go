package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Youngger9765/career-ios-backend-sub001/internal/ledger"
)

// Store implements ledger.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL-backed ledger store using the provided DSN and
// connection pool settings.
func New(dsn string, maxOpen, maxIdle, lifetimeMinutes, idleTimeMinutes int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}

	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if lifetimeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(lifetimeMinutes) * time.Minute)
	}
	if idleTimeMinutes > 0 {
		db.SetConnMaxIdleTime(time.Duration(idleTimeMinutes) * time.Minute)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS credit_entries (
	id BIGSERIAL PRIMARY KEY,
	uuid UUID NOT NULL UNIQUE,
	counselor_id BIGINT NOT NULL,
	delta BIGINT NOT NULL CHECK(delta != 0),
	resource_type TEXT,
	resource_id TEXT,
	cumulative_units BIGINT NOT NULL DEFAULT 0,
	note TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_credit_entries_counselor_created ON credit_entries(counselor_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_credit_entries_resource ON credit_entries(resource_type, resource_id);

CREATE TABLE IF NOT EXISTS credit_balances (
	counselor_id BIGINT PRIMARY KEY,
	available_credits BIGINT NOT NULL DEFAULT 0 CHECK(available_credits >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Apply appends the entry and adjusts the cached balance in one transaction.
// The conditional UPDATE takes a row lock on the balance row, so concurrent
// applies for the same counselor serialize inside PostgreSQL as well.
func (s *Store) Apply(ctx context.Context, entry ledger.Entry) (ledger.Entry, int64, error) {
	if err := entry.Validate(); err != nil {
		return ledger.Entry{}, 0, err
	}
	if entry.UUID == "" {
		entry.UUID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Entry{}, 0, fmt.Errorf("begin apply: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	balance, err := adjustBalance(ctx, tx, entry.CounselorID, entry.Delta, entry.CreatedAt)
	if err != nil {
		return ledger.Entry{}, 0, err
	}

	err = tx.QueryRowContext(ctx, `
INSERT INTO credit_entries(uuid, counselor_id, delta, resource_type, resource_id, cumulative_units, note, created_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`,
		entry.UUID,
		entry.CounselorID,
		entry.Delta,
		string(entry.ResourceType),
		entry.ResourceID,
		entry.CumulativeUnits,
		entry.Note,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return ledger.Entry{}, 0, fmt.Errorf("insert entry: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return ledger.Entry{}, 0, fmt.Errorf("commit apply: %w", err)
	}
	return entry, balance, nil
}

func adjustBalance(ctx context.Context, tx *sql.Tx, counselorID, delta int64, now time.Time) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx, `
UPDATE credit_balances
SET available_credits = available_credits + $1, updated_at = $2
WHERE counselor_id = $3 AND available_credits + $1 >= 0
RETURNING available_credits`,
		delta, now, counselorID).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("adjust balance: %w", err)
	}

	// No row updated: either the counselor is unknown or the conditional
	// update declined the overdraft.
	var existing int64
	scanErr := tx.QueryRowContext(ctx, `
SELECT available_credits FROM credit_balances WHERE counselor_id = $1 FOR UPDATE`, counselorID).Scan(&existing)
	switch {
	case scanErr == nil:
		return 0, ledger.ErrInsufficientCredits
	case errors.Is(scanErr, sql.ErrNoRows):
		if delta < 0 {
			return 0, ledger.ErrInsufficientCredits
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO credit_balances(counselor_id, available_credits, updated_at) VALUES($1, $2, $3)`,
			counselorID, delta, now); err != nil {
			return 0, fmt.Errorf("create balance row: %w", err)
		}
		return delta, nil
	default:
		return 0, fmt.Errorf("read balance: %w", scanErr)
	}
}

// BalanceOf returns the ledger-derived balance for the counselor.
func (s *Store) BalanceOf(ctx context.Context, counselorID int64) (int64, error) {
	if counselorID == 0 {
		return 0, errors.New("counselor id required")
	}
	var sum sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(delta), 0) FROM credit_entries WHERE counselor_id = $1`, counselorID).Scan(&sum)
	if err != nil {
		return 0, err
	}
	return sum.Int64, nil
}

// CachedBalance returns the denormalized balance, 0 when no row exists.
func (s *Store) CachedBalance(ctx context.Context, counselorID int64) (int64, error) {
	if counselorID == 0 {
		return 0, errors.New("counselor id required")
	}
	var balance int64
	err := s.db.QueryRowContext(ctx, `
SELECT available_credits FROM credit_balances WHERE counselor_id = $1`, counselorID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// SetCachedBalance overwrites the cached balance for the counselor.
func (s *Store) SetCachedBalance(ctx context.Context, counselorID, value int64) error {
	if counselorID == 0 {
		return errors.New("counselor id required")
	}
	if value < 0 {
		return fmt.Errorf("negative balance %d for counselor %d", value, counselorID)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO credit_balances(counselor_id, available_credits, updated_at)
VALUES($1, $2, $3)
ON CONFLICT (counselor_id) DO UPDATE SET
	available_credits = EXCLUDED.available_credits,
	updated_at = EXCLUDED.updated_at`,
		counselorID, value, time.Now().UTC())
	return err
}

// LatestUnitsForResource returns the highest cumulative units recorded for
// the resource, or 0 if it has never been charged.
func (s *Store) LatestUnitsForResource(ctx context.Context, rt ledger.ResourceType, resourceID string) (int64, error) {
	if rt == ledger.ResourceNone || resourceID == "" {
		return 0, fmt.Errorf("%w: resource reference required", ledger.ErrInvalidEntry)
	}
	var units sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
SELECT COALESCE(MAX(cumulative_units), 0)
FROM credit_entries
WHERE resource_type = $1 AND resource_id = $2`, string(rt), resourceID).Scan(&units)
	if err != nil {
		return 0, err
	}
	return units.Int64, nil
}

// ListRecent returns the latest entries for a counselor, newest first.
func (s *Store) ListRecent(ctx context.Context, counselorID int64, limit int) ([]ledger.Entry, error) {
	if counselorID == 0 {
		return nil, errors.New("counselor id required")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, uuid, counselor_id, delta, resource_type, resource_id, cumulative_units, note, created_at
FROM credit_entries
WHERE counselor_id = $1
ORDER BY id DESC
LIMIT $2`, counselorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var rt string
		if err := rows.Scan(&e.ID, &e.UUID, &e.CounselorID, &e.Delta, &rt, &e.ResourceID, &e.CumulativeUnits, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ResourceType = ledger.ResourceType(rt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CounselorIDs returns every counselor present in the ledger or the cache.
func (s *Store) CounselorIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT counselor_id FROM credit_entries
UNION
SELECT counselor_id FROM credit_balances
ORDER BY counselor_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
