// Package sqlstore is a storage.Backend on a SQL table, for SQLite and
// Postgres.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"xdao.co/memhub/storage"
)

// Dialect captures the SQL differences between engines.
type Dialect struct {
	Name   string
	Driver string

	create string
	upsert string
	get    string
}

var (
	SQLite = Dialect{
		Name:   "sqlite",
		Driver: "sqlite",
		create: `CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`,
		upsert: `INSERT INTO %s(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		get:    `SELECT value FROM %s WHERE key = ?`,
	}

	Postgres = Dialect{
		Name:   "postgres",
		Driver: "pgx",
		create: `CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		value BYTEA NOT NULL
	)`,
		upsert: `INSERT INTO %s(key, value) VALUES($1, $2) ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value`,
		get:    `SELECT value FROM %s WHERE key = $1`,
	}
)

// DialectByName returns the dialect called name.
func DialectByName(name string) (Dialect, error) {
	switch name {
	case "", SQLite.Name:
		return SQLite, nil
	case Postgres.Name, "pgx":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("sqlstore: unknown dialect %q", name)
	}
}

const defaultTable = "memhub_kv"

var (
	tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store keeps key/value pairs in one table.
type Store struct {
	db      *sql.DB
	dialect Dialect
	upsert  string
	get     string
	ownsDB  bool
}

// Open connects with dialect's driver and prepares the table.
func Open(ctx context.Context, dialect Dialect, dsn, table string) (*Store, error) {
	openMu.Lock()
	db, err := sqlOpen(dialect.Driver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	if dialect.Name == SQLite.Name {
		// One writer at a time avoids SQLITE_BUSY under concurrent writes.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}
	s, err := New(ctx, db, dialect, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// New uses an existing handle. The caller keeps ownership of db.
func New(ctx context.Context, db *sql.DB, dialect Dialect, table string) (*Store, error) {
	if table == "" {
		table = defaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("sqlstore: invalid table name %q", table)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(dialect.create, table)); err != nil {
		return nil, fmt.Errorf("create %s table: %w", table, err)
	}
	return &Store{
		db:      db,
		dialect: dialect,
		upsert:  fmt.Sprintf(dialect.upsert, table),
		get:     fmt.Sprintf(dialect.get, table),
	}, nil
}

func (s *Store) Write(ctx context.Context, key string, value []byte) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, s.upsert, key, value)
	return storage.IOError("write", err)
}

func (s *Store) Read(ctx context.Context, key string) ([]byte, bool, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, false, err
	}
	var value []byte
	err := s.db.QueryRowContext(ctx, s.get, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storage.IOError("read", err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
