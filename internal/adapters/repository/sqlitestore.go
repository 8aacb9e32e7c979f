package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/trending/pkg/metrics"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "ranked_items: current score per item",
		SQL: `
CREATE TABLE ranked_items (
    item_id    TEXT PRIMARY KEY,
    score      REAL NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX idx_ranked_items_order   ON ranked_items(score DESC, item_id ASC);
CREATE INDEX idx_ranked_items_updated ON ranked_items(updated_at);
`,
	},
}

// SQLiteStore persists the ranking in a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	closed atomic.Bool
}

// NewSQLiteStore opens (or creates) the database at path and runs migrations.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = MemoryPath
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: writes serialize anyway, and :memory: is per-connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path}
	if err := s.configurePragmas(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) configurePragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	if s.path != MemoryPath {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}

func (s *SQLiteStore) fail(op string, err error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	metrics.RecordStoreError(BackendSQLite, op)
	return unavailable(BackendSQLite, op, err)
}

// Upsert replaces the row for itemID.
func (s *SQLiteStore) Upsert(ctx context.Context, itemID string, score float64, at time.Time) error {
	start := time.Now()
	defer func() { metrics.RecordStoreOp(BackendSQLite, "upsert", metrics.SinceMs(start)) }()

	if math.IsNaN(score) || math.IsInf(score, 0) {
		return ErrInvalidScore
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ranked_items (item_id, score, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET score = excluded.score, updated_at = excluded.updated_at
	`, itemID, score, at.UnixMilli())
	if err != nil {
		return s.fail("upsert", err)
	}
	return nil
}

// TopN walks the ordering index.
func (s *SQLiteStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOp(BackendSQLite, "top_n", metrics.SinceMs(start)) }()

	if n <= 0 {
		return []Entry{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, score, updated_at FROM ranked_items
		ORDER BY score DESC, item_id ASC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, s.fail("top_n", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, min(n, 64))
	for rows.Next() {
		var (
			e  Entry
			ms int64
		)
		if err := rows.Scan(&e.ItemID, &e.Score, &ms); err != nil {
			return nil, s.fail("top_n", err)
		}
		e.Rank = len(out) + 1
		e.UpdatedAt = time.UnixMilli(ms)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("top_n", err)
	}
	return out, nil
}

// Rank counts the rows ordered before itemID.
func (s *SQLiteStore) Rank(ctx context.Context, itemID string) (Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOp(BackendSQLite, "rank", metrics.SinceMs(start)) }()

	var (
		e     = Entry{ItemID: itemID}
		ms    int64
		ahead int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT r.score, r.updated_at,
		       (SELECT COUNT(*) FROM ranked_items o
		         WHERE o.score > r.score OR (o.score = r.score AND o.item_id < r.item_id))
		FROM ranked_items r WHERE r.item_id = ?
	`, itemID).Scan(&e.Score, &ms, &ahead)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, s.fail("rank", err)
	}
	e.Rank = ahead + 1
	e.UpdatedAt = time.UnixMilli(ms)
	return e, nil
}

// Count returns the number of rows.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ranked_items").Scan(&n); err != nil {
		return 0, s.fail("count", err)
	}
	return n, nil
}

// TrimToSize deletes every row ranked after position max.
func (s *SQLiteStore) TrimToSize(ctx context.Context, max int) (int, error) {
	if max < 0 {
		max = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM ranked_items WHERE item_id IN (
			SELECT item_id FROM ranked_items
			ORDER BY score DESC, item_id ASC
			LIMIT -1 OFFSET ?
		)
	`, max)
	if err != nil {
		return 0, s.fail("trim", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// RemoveOlderThan deletes rows last written before cutoff.
func (s *SQLiteStore) RemoveOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM ranked_items WHERE updated_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, s.fail("expire", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.fail("ping", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.closed.Store(true)
	return s.db.Close()
}
