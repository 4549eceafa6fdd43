package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	_ "modernc.org/sqlite"

	domain "github.com/webhunter-dev/webhunter/pkg/types"
)

const seenSchema = `CREATE TABLE IF NOT EXISTS seen_listings (
	source_id  TEXT NOT NULL,
	listing_id TEXT NOT NULL,
	status     TEXT NOT NULL,
	seen_at    TIMESTAMP NOT NULL,
	PRIMARY KEY (source_id, listing_id)
)`

// SQLiteStore implements Store on a single SQLite database file.
//
// The connection runs with synchronous=FULL so every MarkSeen is flushed to
// stable storage before it returns; a crash immediately after a successful
// delivery but before the mark lands is the only duplicate-risk window.
type SQLiteStore struct {
	db            *sql.DB
	log           *slog.Logger
	writeAttempts int
	nowFunc       func() time.Time
}

// SQLiteOption configures the SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) SQLiteOption {
	return func(s *SQLiteStore) {
		s.log = l
	}
}

// WithWriteAttempts bounds retries of an individual seen-mark write.
func WithWriteAttempts(n int) SQLiteOption {
	return func(s *SQLiteStore) {
		s.writeAttempts = n
	}
}

// WithNowFunc overrides the time function for testing.
func WithNowFunc(f func() time.Time) SQLiteOption {
	return func(s *SQLiteStore) {
		s.nowFunc = f
	}
}

// OpenSQLite opens (or creates) the seen store at path. Call Load before
// serving traffic.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	// A single connection serializes the durable write path across all
	// source loops.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:            db,
		log:           slog.Default(),
		writeAttempts: 3,
		nowFunc:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load prepares the schema and verifies the persisted state is readable.
// A database that fails the integrity check or cannot be queried returns an
// error wrapping ErrCorruptStore.
func (s *SQLiteStore) Load(ctx context.Context) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCorruptStore, pragma, err)
		}
	}

	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: integrity check: %v", ErrCorruptStore, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: integrity check reported %q", ErrCorruptStore, result)
	}

	if _, err := s.db.ExecContext(ctx, seenSchema); err != nil {
		return fmt.Errorf("%w: creating schema: %v", ErrCorruptStore, err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		return fmt.Errorf("%w: reading seen records: %v", ErrCorruptStore, err)
	}

	s.log.Info("seen store loaded", "records", n)
	return nil
}

// HasSeen implements Store.
func (s *SQLiteStore) HasSeen(ctx context.Context, sourceID, listingID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM seen_listings WHERE source_id = ? AND listing_id = ?",
		sourceID, listingID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying seen record: %w", err)
	}
	return true, nil
}

// MarkSeen implements Store. Transient write failures are retried with
// backoff up to the configured attempt ceiling; exhaustion returns an error
// wrapping ErrStoreUnavailable.
func (s *SQLiteStore) MarkSeen(
	ctx context.Context,
	sourceID, listingID string,
	status domain.SeenStatus,
) error {
	if sourceID == "" || listingID == "" {
		return fmt.Errorf("source and listing ids are required")
	}
	if !status.Valid() {
		return fmt.Errorf("invalid seen status %q", status)
	}

	err := retry.Do(
		func() error {
			// DO NOTHING keeps the first terminal status: records are
			// immutable once written.
			_, execErr := s.db.ExecContext(ctx,
				`INSERT INTO seen_listings (source_id, listing_id, status, seen_at)
				 VALUES (?, ?, ?, ?)
				 ON CONFLICT(source_id, listing_id) DO NOTHING`,
				sourceID, listingID, string(status), s.nowFunc().UTC(),
			)
			return execErr
		},
		retry.Attempts(uint(s.writeAttempts)),
		retry.Delay(100*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.log.Warn("retrying seen-mark write",
				"attempt", n, "source", sourceID, "listing", listingID, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: marking %s/%s: %v", ErrStoreUnavailable, sourceID, listingID, err)
	}
	return nil
}

// Prune implements Store.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := s.nowFunc().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM seen_listings WHERE seen_at < ?", cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning seen records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning seen records: %w", err)
	}
	return int(n), nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM seen_listings").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting seen records: %w", err)
	}
	return n, nil
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
