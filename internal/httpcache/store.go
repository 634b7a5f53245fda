package httpcache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one stored response.
type Entry struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	StoredAt   time.Time
}

// Store persists responses in a SQLite database keyed by normalized URL.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the cache database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// A single writer keeps modernc's driver happy under handler concurrency
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS responses (
		key TEXT PRIMARY KEY,
		status INTEGER NOT NULL,
		header TEXT NOT NULL,
		body BLOB,
		stored_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the stored entry for key, or (nil, nil) on a miss.
func (s *Store) Get(key string) (*Entry, error) {
	var (
		status   int
		header   string
		body     []byte
		storedAt int64
	)
	err := s.db.QueryRow(
		"SELECT status, header, body, stored_at FROM responses WHERE key = ?", key,
	).Scan(&status, &header, &body, &storedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache lookup failed: %w", err)
	}

	h := http.Header{}
	if err := json.Unmarshal([]byte(header), &h); err != nil {
		return nil, fmt.Errorf("corrupt cached header for %s: %w", key, err)
	}

	return &Entry{
		StatusCode: status,
		Header:     h,
		Body:       body,
		StoredAt:   time.Unix(storedAt, 0),
	}, nil
}

// Set stores or replaces the entry for key.
func (s *Store) Set(key string, e *Entry) error {
	header, err := json.Marshal(e.Header)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO responses (key, status, header, body, stored_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET status=excluded.status, header=excluded.header,
		 body=excluded.body, stored_at=excluded.stored_at`,
		key, e.StatusCode, string(header), e.Body, e.StoredAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache store failed: %w", err)
	}
	return nil
}

// Delete removes the entry for key.
func (s *Store) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM responses WHERE key = ?", key)
	return err
}

// Purge drops entries stored before the cutoff, regardless of their rule TTL.
// Useful as a maintenance hook for reclaiming media blob space.
func (s *Store) Purge(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM responses WHERE stored_at < ?", cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
