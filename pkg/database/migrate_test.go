package database

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"001_create_checkout_attempts.up.sql":   {Data: []byte("CREATE TABLE checkout_attempts (id UUID PRIMARY KEY)")},
		"001_create_checkout_attempts.down.sql": {Data: []byte("DROP TABLE checkout_attempts")},
		"002_add_index.up.sql":                  {Data: []byte("CREATE INDEX idx_attempts_status ON checkout_attempts (status)")},
	}
}

func expectSchemaTable(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
}

func expectLockAndCheck(mock pgxmock.PgxPoolIface, name string, applied bool) {
	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(migrationLockKey).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(name).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(applied))
}

func TestRunMigrations_AppliesPendingInOrder(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	expectSchemaTable(mock)

	expectLockAndCheck(mock, "001_create_checkout_attempts.up.sql", false)
	mock.ExpectExec("CREATE TABLE checkout_attempts").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("001_create_checkout_attempts.up.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	expectLockAndCheck(mock, "002_add_index.up.sql", false)
	mock.ExpectExec("CREATE INDEX idx_attempts_status").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("002_add_index.up.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = RunMigrations(context.Background(), mock, testMigrations(), discardLogger())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_SkipsApplied(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	expectSchemaTable(mock)
	expectLockAndCheck(mock, "001_create_checkout_attempts.up.sql", true)
	mock.ExpectRollback()
	expectLockAndCheck(mock, "002_add_index.up.sql", true)
	mock.ExpectRollback()

	err = RunMigrations(context.Background(), mock, testMigrations(), discardLogger())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_SQLErrorIsNotRetried(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	migrations := fstest.MapFS{
		"001_broken.up.sql": {Data: []byte("CREATE TABLE oops (")},
	}

	expectSchemaTable(mock)
	expectLockAndCheck(mock, "001_broken.up.sql", false)
	mock.ExpectExec("CREATE TABLE oops").
		WillReturnError(&pgconn.PgError{Code: "42601", Message: "syntax error at end of input"})
	mock.ExpectRollback()

	err = RunMigrations(context.Background(), mock, migrations, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute migration 001_broken.up.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}
