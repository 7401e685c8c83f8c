package session

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ShayCichocki/hive/pkg/models"
)

// IndexStatus is the recorded outcome of a session in the index.
type IndexStatus string

const (
	IndexActive   IndexStatus = "active"
	IndexStopped  IndexStatus = "stopped"
	IndexCrashed  IndexStatus = "crashed"
	IndexAborted  IndexStatus = "aborted"
	IndexRestored IndexStatus = "restored"
)

// IndexEntry is one row of the session index.
type IndexEntry struct {
	ID        string
	Name      string
	RootDir   string
	CreatedAt time.Time
	Status    IndexStatus
}

// Index is an SQLite catalogue of sessions, powering `hive sessions`.
// The on-disk session directories remain the source of truth; the index is
// an accelerator, and callers treat its failures as non-fatal to a run.
type Index struct {
	conn *sql.DB
	path string
	mu   sync.Mutex
}

// IndexPath returns the index database path under the sessions root.
func IndexPath(sessionRoot string) string {
	return filepath.Join(sessionRoot, "index.db")
}

// OpenIndex opens (creating if needed) the session index at path.
func OpenIndex(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session index: %w", err)
	}
	// WAL mode so a listing never blocks on a live run's writes.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	return &Index{conn: conn, path: path}, nil
}

// Close closes the index database.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.conn.Close()
}

// Migrate applies the index schema.
func (ix *Index) Migrate() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	_, err := ix.conn.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			root_dir TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'active'
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	`)
	if err != nil {
		return fmt.Errorf("migrate session index: %w", err)
	}
	return nil
}

// Record inserts or refreshes a session's row.
func (ix *Index) Record(sess *models.Session, status IndexStatus) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	_, err := ix.conn.Exec(`
		INSERT INTO sessions (id, name, root_dir, created_at, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status
	`, sess.ID, sess.Name, sess.RootDir, sess.CreatedAt.UTC().Format(time.RFC3339), string(status))
	if err != nil {
		return fmt.Errorf("record session %s: %w", sess.ID, err)
	}
	return nil
}

// SetStatus updates a session's recorded status.
func (ix *Index) SetStatus(sessionID string, status IndexStatus) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	_, err := ix.conn.Exec("UPDATE sessions SET status = ? WHERE id = ?", string(status), sessionID)
	if err != nil {
		return fmt.Errorf("update session %s: %w", sessionID, err)
	}
	return nil
}

// List returns all recorded sessions, newest first.
func (ix *Index) List() ([]IndexEntry, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rows, err := ix.conn.Query(`
		SELECT id, name, root_dir, created_at, status
		FROM sessions ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var entries []IndexEntry
	for rows.Next() {
		var e IndexEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Name, &e.RootDir, &createdAt, &e.Status); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
