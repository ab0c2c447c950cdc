// Package repotest wires repositories to go-sqlmock for unit tests.
package repotest

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// Logger discards every log line.
func Logger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// NewDB returns a database backed by sqlmock. Unmet expectations fail the test.
func NewDB(t *testing.T) (database.DB, sqlmock.Sqlmock) {
	t.Helper()

	raw, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		raw.Close()
	})

	return database.NewDatabaseInstance(sqlx.NewDb(raw, "postgres"), Logger()), mock
}
