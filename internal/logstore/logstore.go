// Package logstore archives gateway log lines and connection transitions in
// a SQLite database so a session can be reviewed after the fact.
package logstore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Kind distinguishes archived entries.
type Kind string

const (
	KindLine   Kind = "line"
	KindStatus Kind = "status"
)

// Entry is one archived item. IDs sort in arrival order.
type Entry struct {
	ID   ulid.ULID
	Time time.Time
	Host string
	Kind Kind
	Text string
}

// Store is the SQLite archive. Safe for concurrent use.
type Store struct {
	db  *sql.DB
	log hclog.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Open opens or creates the archive at path.
func Open(path string, logger hclog.Logger) (*Store, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}

	s := &Store{
		db:      db,
		log:     logger,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("archive open", "path", path)
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS entries (
			id    TEXT PRIMARY KEY,
			ts    TEXT NOT NULL,
			host  TEXT NOT NULL,
			kind  TEXT NOT NULL,
			text  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_entries_kind ON entries(kind);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Append archives an entry and returns its ID.
func (s *Store) Append(ctx context.Context, e Entry) (ulid.ULID, error) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	s.mu.Lock()
	id, err := ulid.New(ulid.Timestamp(e.Time), s.entropy)
	s.mu.Unlock()
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("generate id: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries (id, ts, host, kind, text) VALUES (?, ?, ?, ?, ?)`,
		id.String(), e.Time.UTC().Format(time.RFC3339Nano), e.Host, string(e.Kind), e.Text)
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("insert entry: %w", err)
	}
	return id, nil
}

// Recent returns up to limit newest entries, oldest first. A kind of ""
// matches every entry.
func (s *Store) Recent(ctx context.Context, kind Kind, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, host, kind, text FROM (
			SELECT * FROM entries WHERE (? = '' OR kind = ?) ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, string(kind), string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var id, ts, k string
		var e Entry
		if err := rows.Scan(&id, &ts, &e.Host, &k, &e.Text); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if e.ID, err = ulid.ParseStrict(id); err != nil {
			return nil, fmt.Errorf("parse id %q: %w", id, err)
		}
		if e.Time, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse time %q: %w", ts, err)
		}
		e.Kind = Kind(k)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of archived entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// Prune deletes all but the newest keep entries.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM entries WHERE id NOT IN (
			SELECT id FROM entries ORDER BY id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune entries: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
