package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectDeactivateOthers(mock sqlmock.Sqlmock, table, id string) *sqlmock.ExpectedExec {
	return mock.ExpectExec(regexp.QuoteMeta("UPDATE "+table+" SET is_active = FALSE, updated_at = $2 WHERE is_active = TRUE AND id <> $1")).
		WithArgs(id, sqlmock.AnyArg())
}

func expectActivate(mock sqlmock.Sqlmock, table, id string) *sqlmock.ExpectedExec {
	return mock.ExpectExec(regexp.QuoteMeta("UPDATE "+table+" SET is_active = TRUE, updated_at = $2 WHERE id = $1")).
		WithArgs(id, sqlmock.AnyArg())
}

func TestAcademicYearActivateDeactivatesOthers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	mock.ExpectBegin()
	expectDeactivateOthers(mock, "academic_years", "year-2").WillReturnResult(sqlmock.NewResult(0, 1))
	expectActivate(mock, "academic_years", "year-2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Activate(context.Background(), "year-2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSemesterActivateMissingRowRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSemesterRepository(db)

	mock.ExpectBegin()
	expectDeactivateOthers(mock, "semesters", "missing").WillReturnResult(sqlmock.NewResult(0, 1))
	expectActivate(mock, "semesters", "missing").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Activate(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	mock.ExpectBegin()
	expectDeactivateOthers(mock, "academic_years", "year-2").WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	err := repo.Activate(context.Background(), "year-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deactivate academic_years")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateRollsBackWhenActivateFails(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSemesterRepository(db)

	mock.ExpectBegin()
	expectDeactivateOthers(mock, "semesters", "sem-2").WillReturnResult(sqlmock.NewResult(0, 0))
	expectActivate(mock, "semesters", "sem-2").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.Activate(context.Background(), "sem-2")
	require.Error(t, err)
	assert.False(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}
