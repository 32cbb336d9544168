package database

import (
	"context"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-admin-api/pkg/config"
)

func TestDSN(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss", Name: "school", SSLMode: "disable"}

	cfg.Driver = config.DriverPostgres
	assert.Equal(t, "host=db port=5432 user=app password=p@ss dbname=school sslmode=disable", DSN(cfg))

	cfg.Driver = config.DriverPgx
	assert.Equal(t, "postgres://app:p%40ss@db:5432/school?sslmode=disable", DSN(cfg))
}

func TestMigrateAppliesScriptsInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fsys := fstest.MapFS{
		"002_scores.sql": {Data: []byte("CREATE TABLE IF NOT EXISTS scores (id TEXT)")},
		"001_init.sql":   {Data: []byte("CREATE TABLE IF NOT EXISTS users (id TEXT)")},
		"README.md":      {Data: []byte("ignored")},
	}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS users")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS scores")).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Migrate(context.Background(), sqlx.NewDb(db, "sqlmock"), fsys))
	assert.NoError(t, mock.ExpectationsWereMet())
}
