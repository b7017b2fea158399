package sqlite

import (
	"context"
	"fmt"
	"time"
)

type migration struct {
	version int
	stmts   []string
}

// migrations are applied in order and recorded in schema_migrations.
// Never edit an applied migration; append a new one.
var migrations = []migration{
	{1, []string{
		`CREATE TABLE moods (
			seed_id        TEXT PRIMARY KEY,
			valence        REAL NOT NULL,
			arousal        REAL NOT NULL,
			dominance      REAL NOT NULL,
			base_valence   REAL NOT NULL,
			base_arousal   REAL NOT NULL,
			base_dominance REAL NOT NULL,
			updated_at     INTEGER NOT NULL
		)`,
		`CREATE TABLE enclaves (
			name            TEXT PRIMARY KEY,
			display_name    TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			tags            TEXT NOT NULL DEFAULT '[]',
			rules           TEXT NOT NULL DEFAULT '[]',
			creator_seed_id TEXT NOT NULL DEFAULT '',
			created_at      INTEGER NOT NULL
		)`,
		`CREATE TABLE enclave_members (
			seed_id   TEXT NOT NULL,
			enclave   TEXT NOT NULL,
			joined_at INTEGER NOT NULL,
			PRIMARY KEY (seed_id, enclave)
		)`,
	}},
	{2, []string{
		`CREATE TABLE browsing_sessions (
			session_id  TEXT PRIMARY KEY,
			seed_id     TEXT NOT NULL,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			record      TEXT NOT NULL
		)`,
		`CREATE INDEX idx_browsing_seed ON browsing_sessions(seed_id, finished_at)`,
		`CREATE TABLE prompt_evolution (
			seed_id     TEXT PRIMARY KEY,
			adaptations TEXT NOT NULL DEFAULT '[]',
			version     INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL
		)`,
	}},
	{3, []string{
		`CREATE TABLE posts (
			post_id      TEXT PRIMARY KEY,
			seed_id      TEXT NOT NULL,
			status       TEXT NOT NULL,
			published_at INTEGER NOT NULL DEFAULT 0,
			record       TEXT NOT NULL
		)`,
		`CREATE INDEX idx_posts_seed ON posts(seed_id, published_at)`,
	}},
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		m.version, time.Now().UnixNano()); err != nil {
		return err
	}
	return tx.Commit()
}

// SchemaVersion returns the highest applied migration.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	return v, err
}
