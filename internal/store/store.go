package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

// querier is satisfied by both *sql.DB and *sql.Tx so entity, version and
// audit helpers can run inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const schemaVersion = 1

// schema creates the entity tables, the per-entity version ledger, the two
// audit tables and the key material tables. The RAISE triggers make the audit
// ledger append-only at the schema level: there is no code path, privileged
// or not, that can update or delete an entry. Closed versions are likewise
// frozen; only the open sentinel interval may be closed.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS staff (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		job_title TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS patients (
		id TEXT PRIMARY KEY,
		full_name_cipher TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL REFERENCES patients(id),
		doctor_id TEXT NOT NULL REFERENCES staff(id),
		scheduled_at INTEGER NOT NULL,
		diagnosis_cipher TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS entity_versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		attrs TEXT NOT NULL,
		valid_from INTEGER NOT NULL,
		valid_to INTEGER NOT NULL,
		actor TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entity_versions_lookup
		ON entity_versions(entity_type, entity_id, valid_from)`,
	`CREATE TABLE IF NOT EXISTS audit_structural (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		actor TEXT NOT NULL,
		command TEXT NOT NULL,
		recorded_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_connection (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		actor TEXT NOT NULL,
		host TEXT NOT NULL,
		app_name TEXT NOT NULL,
		recorded_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS key_material (
		name TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS field_keys (
		version INTEGER PRIMARY KEY,
		wrapped BLOB NOT NULL,
		retired INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TRIGGER IF NOT EXISTS audit_structural_no_update
		BEFORE UPDATE ON audit_structural
		BEGIN SELECT RAISE(ABORT, 'audit entries are immutable'); END`,
	`CREATE TRIGGER IF NOT EXISTS audit_structural_no_delete
		BEFORE DELETE ON audit_structural
		BEGIN SELECT RAISE(ABORT, 'audit entries are immutable'); END`,
	`CREATE TRIGGER IF NOT EXISTS audit_connection_no_update
		BEFORE UPDATE ON audit_connection
		BEGIN SELECT RAISE(ABORT, 'audit entries are immutable'); END`,
	`CREATE TRIGGER IF NOT EXISTS audit_connection_no_delete
		BEFORE DELETE ON audit_connection
		BEGIN SELECT RAISE(ABORT, 'audit entries are immutable'); END`,
	`CREATE TRIGGER IF NOT EXISTS entity_versions_closed_immutable
		BEFORE UPDATE ON entity_versions
		WHEN OLD.valid_to <> 9223372036854775807
		BEGIN SELECT RAISE(ABORT, 'closed versions are immutable'); END`,
	`CREATE TRIGGER IF NOT EXISTS entity_versions_no_delete
		BEFORE DELETE ON entity_versions
		BEGIN SELECT RAISE(ABORT, 'version history is never pruned'); END`,
}

// Store owns the sqlite database holding entities, versions, audit tables
// and wrapped key material.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path, applies the schema,
// and records the connection event. Schema creation itself is recorded in
// the structural audit table, actor "system".
func Open(ctx context.Context, path string, actor, host, appName string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// Logon-style audit: every connection is recorded, not skippable by the
	// caller. A failed append fails the open.
	if err := RecordConnection(ctx, db, actor, host, appName); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to record connection event: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	var current int
	if err := s.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	// DDL audit: structural changes are recorded at the moment they happen.
	for _, stmt := range schema {
		if err := RecordStructuralChange(ctx, s.db, "system", firstLine(stmt)); err != nil {
			return fmt.Errorf("failed to record structural change: %w", err)
		}
	}
	log.Printf("schema version %d applied to %s", schemaVersion, s.path)
	return nil
}

// WithTx runs fn inside a single transaction. Any error (including a panic
// unwinding through fn) rolls the whole unit of work back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for read paths and the key material layer.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func firstLine(stmt string) string {
	for i, r := range stmt {
		if r == '\n' {
			return stmt[:i]
		}
	}
	return stmt
}
