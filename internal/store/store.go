package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/ibeckermayer/rina/internal/state"
)

// Store keeps bot state in SQLite. It implements state.Backend.
type Store struct {
	db *sql.DB
}

// New creates a new Store with SQLite backend.
// Pass ":memory:" for an in-memory database (used by tests).
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Limit to single connection to avoid "database is locked" errors and so
	// an in-memory database is shared by every query.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memory (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS processed_notifications (
		id TEXT PRIMARY KEY,
		processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Load reads the memory log in insertion order and the processed set
func (s *Store) Load(ctx context.Context) (state.State, error) {
	st := state.New()

	rows, err := s.db.QueryContext(ctx, `SELECT text FROM memory ORDER BY seq`)
	if err != nil {
		return state.State{}, err
	}
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			rows.Close()
			return state.State{}, err
		}
		st.Memory = append(st.Memory, text)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return state.State{}, err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT id FROM processed_notifications`)
	if err != nil {
		return state.State{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return state.State{}, err
		}
		st.Processed[id] = struct{}{}
	}

	return st, rows.Err()
}

// Save rewrites both tables in one transaction
func (s *Store) Save(ctx context.Context, st state.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory`); err != nil {
		return err
	}
	for _, text := range st.Memory {
		if _, err := tx.ExecContext(ctx, `INSERT INTO memory (text) VALUES (?)`, text); err != nil {
			return err
		}
	}

	// Processed ids only ever grow, so existing rows keep their timestamps.
	for _, id := range st.ProcessedIDs() {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO processed_notifications (id) VALUES (?)`, id); err != nil {
			return err
		}
	}

	return tx.Commit()
}
