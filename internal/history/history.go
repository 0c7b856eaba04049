// Package history provides SQLite-based persistence for per-user
// conversation turns with bounded retention.
package history

import (
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
);`

// Turn is one stored (role, content) entry of a user's conversation.
type Turn struct {
	Role    string
	Content string
}

// Store keeps the most recent maxHistory exchanges (one user turn plus
// one assistant turn each) per user. Writes are expected from a single
// logical caller; the store does not serialize external writers.
type Store struct {
	db         *sql.DB
	maxHistory int
}

// Open opens or creates the database at path and initializes the
// schema. A failure here is fatal to the caller; per-operation failures
// later are the caller's choice to degrade on.
func Open(path string, maxHistory int) (*Store, error) {
	return open("file:"+path+"?_busy_timeout=10000", maxHistory)
}

// OpenInMemory creates a throwaway in-memory store, useful for tests.
func OpenInMemory(maxHistory int) (*Store, error) {
	return open(":memory:", maxHistory)
}

func open(dsn string, maxHistory int) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// Single logical writer; one connection also keeps :memory:
	// databases from evaporating across pooled connections.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Store{db: db, maxHistory: maxHistory}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends a turn for user and prunes that user's oldest rows
// beyond 2×maxHistory (user and assistant turns combined). Insert and
// prune commit as one transaction.
func (s *Store) Record(user, role, content string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO history (user, role, content) VALUES (?, ?, ?)`, user, role, content); err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM history
		WHERE id IN (
			SELECT id FROM history
			WHERE user = ?
			ORDER BY timestamp DESC, id DESC
			LIMIT -1 OFFSET ?
		)`, user, s.maxHistory*2); err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	return tx.Commit()
}

// History returns user's retained turns, oldest first. Unknown users
// yield an empty slice, never an error.
func (s *Store) History(user string) ([]Turn, error) {
	rows, err := s.db.Query(`SELECT role, content FROM history WHERE user = ? ORDER BY timestamp ASC, id ASC`, user)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
