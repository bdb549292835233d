package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/Youngger9765/career-ios-backend-sub001/internal/ledger"
)

// Store implements ledger.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite store at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
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
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL UNIQUE,
	counselor_id INTEGER NOT NULL,
	delta INTEGER NOT NULL CHECK(delta != 0),
	resource_type TEXT,
	resource_id TEXT,
	cumulative_units INTEGER NOT NULL DEFAULT 0,
	note TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_credit_entries_counselor_created ON credit_entries(counselor_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_credit_entries_resource ON credit_entries(resource_type, resource_id);

CREATE TABLE IF NOT EXISTS credit_balances (
	counselor_id INTEGER PRIMARY KEY,
	available_credits INTEGER NOT NULL DEFAULT 0 CHECK(available_credits >= 0),
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
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

// Ping verifies the database file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Apply appends the entry and adjusts the cached balance in one transaction.
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

	res, err := tx.ExecContext(ctx, `
INSERT INTO credit_entries(uuid, counselor_id, delta, resource_type, resource_id, cumulative_units, note, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.UUID,
		entry.CounselorID,
		entry.Delta,
		string(entry.ResourceType),
		entry.ResourceID,
		entry.CumulativeUnits,
		entry.Note,
		entry.CreatedAt,
	)
	if err != nil {
		return ledger.Entry{}, 0, fmt.Errorf("insert entry: %w", err)
	}
	if entry.ID, err = res.LastInsertId(); err != nil {
		return ledger.Entry{}, 0, fmt.Errorf("entry id: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return ledger.Entry{}, 0, fmt.Errorf("commit apply: %w", err)
	}
	return entry, balance, nil
}

// adjustBalance applies delta to the counselor's cache row, creating it on
// first use, and refuses any adjustment that would leave it negative.
func adjustBalance(ctx context.Context, tx *sql.Tx, counselorID, delta int64, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
UPDATE credit_balances
SET available_credits = available_credits + ?, updated_at = ?
WHERE counselor_id = ? AND available_credits + ? >= 0`,
		delta, now, counselorID, delta)
	if err != nil {
		return 0, fmt.Errorf("adjust balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("adjust balance: %w", err)
	}
	if affected == 0 {
		var existing int64
		scanErr := tx.QueryRowContext(ctx, `SELECT available_credits FROM credit_balances WHERE counselor_id = ?`, counselorID).Scan(&existing)
		switch {
		case scanErr == nil:
			// Row exists, the conditional update declined: overdraft.
			return 0, ledger.ErrInsufficientCredits
		case errors.Is(scanErr, sql.ErrNoRows):
			if delta < 0 {
				// First-ever event for this counselor is a debit.
				return 0, ledger.ErrInsufficientCredits
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO credit_balances(counselor_id, available_credits, updated_at) VALUES(?, ?, ?)`,
				counselorID, delta, now); err != nil {
				return 0, fmt.Errorf("create balance row: %w", err)
			}
			return delta, nil
		default:
			return 0, fmt.Errorf("read balance: %w", scanErr)
		}
	}

	var balance int64
	if err := tx.QueryRowContext(ctx, `SELECT available_credits FROM credit_balances WHERE counselor_id = ?`, counselorID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// BalanceOf returns the ledger-derived balance for the counselor.
func (s *Store) BalanceOf(ctx context.Context, counselorID int64) (int64, error) {
	if counselorID == 0 {
		return 0, errors.New("counselor id required")
	}
	var sum sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(delta), 0) FROM credit_entries WHERE counselor_id = ?`, counselorID).Scan(&sum)
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
SELECT available_credits FROM credit_balances WHERE counselor_id = ?`, counselorID).Scan(&balance)
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
VALUES(?, ?, ?)
ON CONFLICT(counselor_id) DO UPDATE SET
	available_credits = excluded.available_credits,
	updated_at = excluded.updated_at`,
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
WHERE resource_type = ? AND resource_id = ?`, string(rt), resourceID).Scan(&units)
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
WHERE counselor_id = ?
ORDER BY id DESC
LIMIT ?`, counselorID, limit)
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
