package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store persists promoted findings and the tool execution audit trail. The
// gating core treats memories as an append-mostly collection.
type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite pragmas: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'finding',
			priority TEXT,
			source TEXT,
			tags TEXT,
			citation TEXT,
			url TEXT,
			relevance_score REAL,
			created_at_unix INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at_unix DESC);`,
		`CREATE TABLE IF NOT EXISTS tool_audit (
			id TEXT PRIMARY KEY,
			tool TEXT NOT NULL,
			verdict TEXT NOT NULL,
			reason TEXT,
			source TEXT,
			risk_level TEXT,
			dry_run INTEGER NOT NULL DEFAULT 0,
			detail TEXT,
			created_at_unix INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tool_audit_created_at ON tool_audit(created_at_unix DESC);`,
	}
	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
