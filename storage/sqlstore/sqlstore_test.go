package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"xdao.co/memhub/storage"
	"xdao.co/memhub/storage/testkit"
)

func TestSQLiteConformance(t *testing.T) {
	testkit.RunBackendConformance(t, func(t *testing.T) storage.Backend {
		s, err := Open(context.Background(), SQLite, filepath.Join(t.TempDir(), "kv.db"), "")
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")
	s, err := Open(ctx, SQLite, path, "values_v1")
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, "k", []byte{0, 1, 0}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, SQLite, path, "values_v1")
	require.NoError(t, err)
	defer s.Close()
	v, found, err := s.Read(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte{0, 1, 0}, v)
}

func TestInvalidTableName(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	_, err = New(context.Background(), db, Postgres, "kv; DROP TABLE users")
	require.Error(t, err)
}

func TestPostgresStatements(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS memhub_kv`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO memhub_kv\(key, value\) VALUES\(\$1, \$2\) ON CONFLICT\(key\) DO UPDATE SET value=EXCLUDED.value`).
		WithArgs("k", []byte("v")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT value FROM memhub_kv WHERE key = \$1`).
		WithArgs("k").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte("v")))
	mock.ExpectQuery(`SELECT value FROM memhub_kv WHERE key = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	s, err := New(ctx, db, Postgres, "")
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, "k", []byte("v")))

	v, found, err := s.Read(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v"), v)

	v, found, err = s.Read(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)
	require.Nil(t, v)

	require.NoError(t, s.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresErrorsAreIO(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	connErr := errors.New("connection reset")
	mock.ExpectExec(`CREATE TABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO`).WillReturnError(connErr)
	mock.ExpectQuery(`SELECT value`).WillReturnError(connErr)

	s, err := New(ctx, db, Postgres, "")
	require.NoError(t, err)

	err = s.Write(ctx, "k", []byte("v"))
	require.ErrorIs(t, err, connErr)
	require.True(t, storage.IsKind(err, storage.KindIO))

	_, _, err = s.Read(ctx, "k")
	require.ErrorIs(t, err, connErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenUsesDialectDriver(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS memhub_kv`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	var gotDriver, gotDSN string
	restore := OverrideSQLOpen(func(driver, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driver, dsn
		return db, nil
	})
	defer restore()

	s, err := Open(context.Background(), Postgres, "postgres://localhost/memhub", "")
	require.NoError(t, err)
	require.Equal(t, "pgx", gotDriver)
	require.Equal(t, "postgres://localhost/memhub", gotDSN)
	require.NoError(t, s.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDialectByName(t *testing.T) {
	d, err := DialectByName("postgres")
	require.NoError(t, err)
	require.Equal(t, "pgx", d.Driver)
	_, err = DialectByName("oracle")
	require.Error(t, err)
}
