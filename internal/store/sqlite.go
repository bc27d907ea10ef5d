package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/seantiz/modreg/internal/model"
)

const createModulesTable = `
CREATE TABLE IF NOT EXISTS modules (
    id              TEXT PRIMARY KEY,
    module_key      TEXT NOT NULL UNIQUE,
    name            TEXT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    enabled         INTEGER NOT NULL DEFAULT 0,
    auto_register   INTEGER NOT NULL DEFAULT 1,
    integration_ref TEXT NOT NULL DEFAULT '',
    settings        TEXT NOT NULL DEFAULT '{}',
    dependencies    TEXT NOT NULL DEFAULT '[]',
    version         TEXT NOT NULL DEFAULT '',
    author          TEXT NOT NULL DEFAULT '',
    changelog       TEXT NOT NULL DEFAULT '',
    is_core         INTEGER NOT NULL DEFAULT 0,
    sort_order      INTEGER NOT NULL DEFAULT 0,
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL
)`

var createIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_modules_enabled ON modules (enabled, auto_register)`,
	`CREATE INDEX IF NOT EXISTS idx_modules_core ON modules (is_core)`,
}

const moduleColumns = `id, module_key, name, description, enabled, auto_register, integration_ref,
	settings, dependencies, version, author, changelog, is_core, sort_order,
	created_at, updated_at`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	*queries
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
//
// The pool is limited to one connection: SQLite has a single writer, and
// serialising on the connection makes every WithTx call atomic with respect
// to concurrent callers in this process.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createModulesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create modules table: %w", err)
	}
	for _, stmt := range createIndexes {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create index: %w", err)
		}
	}

	return &SQLiteStore{queries: &queries{db: db}, db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ready pings the database and checks that the modules table exists.
func (s *SQLiteStore) Ready(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'modules'",
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotProvisioned
	}
	if err != nil {
		return fmt.Errorf("check schema: %w", err)
	}
	return nil
}

// WithTx runs fn in a transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type queries struct {
	db dbtx
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModule(row rowScanner) (*model.Module, error) {
	m := &model.Module{}
	var settings, deps string
	if err := row.Scan(
		&m.ID, &m.Key, &m.Name, &m.Description, &m.Enabled, &m.AutoRegister, &m.IntegrationRef,
		&settings, &deps, &m.Version, &m.Author, &m.Changelog, &m.IsCore, &m.SortOrder,
		&m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(settings), &m.Settings); err != nil {
		return nil, fmt.Errorf("decode settings for %q: %w", m.Key, err)
	}
	if err := json.Unmarshal([]byte(deps), &m.Dependencies); err != nil {
		return nil, fmt.Errorf("decode dependencies for %q: %w", m.Key, err)
	}
	if m.Settings == nil {
		m.Settings = map[string]any{}
	}
	if m.Dependencies == nil {
		m.Dependencies = []string{}
	}
	return m, nil
}

func encodeCollections(m *model.Module) (string, string, error) {
	settings := m.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	deps := m.Dependencies
	if deps == nil {
		deps = []string{}
	}
	s, err := json.Marshal(settings)
	if err != nil {
		return "", "", fmt.Errorf("encode settings: %w", err)
	}
	d, err := json.Marshal(deps)
	if err != nil {
		return "", "", fmt.Errorf("encode dependencies: %w", err)
	}
	return string(s), string(d), nil
}

// where renders f as a WHERE clause over the table aliased as prefix.
func (f Filter) where(prefix string) (string, []any) {
	var conds []string
	var args []any
	add := func(col string, v *bool) {
		if v != nil {
			conds = append(conds, prefix+col+" = ?")
			args = append(args, *v)
		}
	}
	add("enabled", f.Enabled)
	add("auto_register", f.AutoRegister)
	add("is_core", f.Core)
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Find retrieves a module by key.
func (q *queries) Find(ctx context.Context, key string) (*model.Module, error) {
	m, err := scanModule(q.db.QueryRowContext(ctx,
		"SELECT "+moduleColumns+" FROM modules WHERE module_key = ?", key,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get module: %w", err)
	}
	return m, nil
}

// List returns modules matching f ordered by sort_order, then key.
func (q *queries) List(ctx context.Context, f Filter) ([]*model.Module, error) {
	where, args := f.where("")
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+moduleColumns+" FROM modules"+where+" ORDER BY sort_order, module_key", args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()

	var modules []*model.Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		modules = append(modules, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate modules: %w", err)
	}
	return modules, nil
}

// Count returns the number of modules matching f.
func (q *queries) Count(ctx context.Context, f Filter) (int, error) {
	where, args := f.where("")
	var n int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM modules"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count modules: %w", err)
	}
	return n, nil
}

// Dependents returns keys of modules matching f that list key as a dependency.
func (q *queries) Dependents(ctx context.Context, key string, f Filter) ([]string, error) {
	where, args := f.where("m.")
	if where == "" {
		where = " WHERE "
	} else {
		where += " AND "
	}
	args = append(args, key)
	rows, err := q.db.QueryContext(ctx,
		`SELECT DISTINCT m.module_key, m.sort_order FROM modules m, json_each(m.dependencies) d`+
			where+`d.value = ? ORDER BY m.sort_order, m.module_key`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list dependents: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		var order int
		if err := rows.Scan(&k, &order); err != nil {
			return nil, fmt.Errorf("scan dependent: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dependents: %w", err)
	}
	return keys, nil
}

// Insert creates a new module record. ID and timestamps are assigned when
// unset.
func (q *queries) Insert(ctx context.Context, m *model.Module) error {
	settings, deps, err := encodeCollections(m)
	if err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = model.NewID()
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now

	_, err = q.db.ExecContext(ctx,
		`INSERT INTO modules (`+moduleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Key, m.Name, m.Description, m.Enabled, m.AutoRegister, m.IntegrationRef,
		settings, deps, m.Version, m.Author, m.Changelog, m.IsCore, m.SortOrder,
		m.CreatedAt, m.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert module: %w", err)
	}
	return nil
}

// Upsert inserts m or overwrites every mutable column of the record with the
// same key. The stored ID and creation time are kept and written back to m.
func (q *queries) Upsert(ctx context.Context, m *model.Module) (bool, error) {
	settings, deps, err := encodeCollections(m)
	if err != nil {
		return false, err
	}
	newID := m.ID
	if newID == "" {
		newID = model.NewID()
	}
	now := time.Now().UTC()

	var id string
	err = q.db.QueryRowContext(ctx,
		`INSERT INTO modules (`+moduleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(module_key) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			enabled = excluded.enabled,
			auto_register = excluded.auto_register,
			integration_ref = excluded.integration_ref,
			settings = excluded.settings,
			dependencies = excluded.dependencies,
			version = excluded.version,
			author = excluded.author,
			is_core = excluded.is_core,
			sort_order = excluded.sort_order,
			updated_at = excluded.updated_at
		RETURNING id`,
		newID, m.Key, m.Name, m.Description, m.Enabled, m.AutoRegister, m.IntegrationRef,
		settings, deps, m.Version, m.Author, m.Changelog, m.IsCore, m.SortOrder,
		now, now,
	).Scan(&id)
	if err != nil {
		return false, fmt.Errorf("upsert module: %w", err)
	}

	stored, err := q.Find(ctx, m.Key)
	if err != nil {
		return false, err
	}
	m.ID, m.CreatedAt, m.UpdatedAt, m.Changelog = stored.ID, stored.CreatedAt, stored.UpdatedAt, stored.Changelog
	return id == newID, nil
}

// Update overwrites the mutable columns of an existing record.
func (q *queries) Update(ctx context.Context, m *model.Module) error {
	settings, deps, err := encodeCollections(m)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	result, err := q.db.ExecContext(ctx,
		`UPDATE modules SET
			name = ?, description = ?, enabled = ?, auto_register = ?, integration_ref = ?,
			settings = ?, dependencies = ?, version = ?, author = ?, changelog = ?,
			is_core = ?, sort_order = ?, updated_at = ?
		WHERE module_key = ?`,
		m.Name, m.Description, m.Enabled, m.AutoRegister, m.IntegrationRef,
		settings, deps, m.Version, m.Author, m.Changelog,
		m.IsCore, m.SortOrder, now, m.Key,
	)
	if err != nil {
		return fmt.Errorf("update module: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	m.UpdatedAt = now
	return nil
}

// Delete permanently removes the record for key.
func (q *queries) Delete(ctx context.Context, key string) error {
	result, err := q.db.ExecContext(ctx, "DELETE FROM modules WHERE module_key = ?", key)
	if err != nil {
		return fmt.Errorf("delete module: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
