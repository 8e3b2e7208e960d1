package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/studiowebux/restsh/internal/migrations"
)

// MaxEntries is the number of lines kept per endpoint.
const MaxEntries = 1000

// Store persists entered command lines in sqlite, scoped by endpoint.
type Store struct {
	db       *sql.DB
	endpoint string
}

// Open opens (or creates) the database at dbPath and brings its schema up
// to date.
func Open(dbPath string, endpoint string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db, endpoint: endpoint}, nil
}

// Load returns the most recent limit lines, oldest first. A limit of zero
// or less returns everything.
func (s *Store) Load(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT id, line, created_at FROM (
			SELECT id, line, created_at
			FROM line_history
			WHERE endpoint = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, s.endpoint, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Line, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Append records lines in one transaction and prunes the oldest lines
// beyond MaxEntries. Blank lines are skipped.
func (s *Store) Append(lines ...string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		_, err := tx.Exec(
			"INSERT INTO line_history (line, endpoint, created_at) VALUES (?, ?, ?)",
			line, s.endpoint, now,
		)
		if err != nil {
			return fmt.Errorf("failed to save history line: %w", err)
		}
	}

	_, err = tx.Exec(`
		DELETE FROM line_history
		WHERE endpoint = ? AND id NOT IN (
			SELECT id FROM line_history WHERE endpoint = ? ORDER BY id DESC LIMIT ?
		)
	`, s.endpoint, s.endpoint, MaxEntries)
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}
	return tx.Commit()
}

// Clear removes every line recorded for the endpoint.
func (s *Store) Clear() error {
	_, err := s.db.Exec("DELETE FROM line_history WHERE endpoint = ?", s.endpoint)
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Count returns the number of lines recorded for the endpoint.
func (s *Store) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM line_history WHERE endpoint = ?", s.endpoint).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get history count: %w", err)
	}
	return count, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
