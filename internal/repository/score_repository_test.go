package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-admin-api/internal/grading"
	"github.com/noah-isme/school-admin-api/internal/models"
)

var scoreDetailColumns = []string{"id", "student_id", "subject_id", "class_id", "semester_id", "category", "title", "raw_score", "max_score", "weight", "recorded_by", "created_at", "updated_at", "subject_code", "subject_name", "student_number", "student_name"}

func TestScoreSnapshotOrdersForReports(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScoreRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(scoreDetailColumns).
		AddRow("s1", "stu-1", "sub-1", "class-1", "sem-1", "quiz", "Quiz 1", 8.0, 10.0, 0.2, "teacher-1", now, now, "MTH", "Mathematics", "001", "Ani")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE sc.student_id = $1 AND sc.semester_id = $2 ORDER BY sub.name, st.full_name, sc.created_at, sc.id")).
		WithArgs("stu-1", "sem-1").
		WillReturnRows(rows)

	scores, err := repo.Snapshot(context.Background(), models.ScoreFilter{StudentID: "stu-1", SemesterID: "sem-1"})
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, grading.CategoryQuiz, scores[0].Category)
	assert.Equal(t, "Mathematics", scores[0].SubjectName)
	assert.Equal(t, 0.2, scores[0].Record().Weight)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreListPaginates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScoreRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE sc.class_id = $1 AND sc.category = $2 ORDER BY sc.title ASC LIMIT 5 OFFSET 5")).
		WithArgs("class-1", grading.CategoryFinal).
		WillReturnRows(sqlmock.NewRows(scoreDetailColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM scores sc")).
		WithArgs("class-1", grading.CategoryFinal).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(6))

	scores, total, err := repo.List(context.Background(), models.ScoreFilter{
		ClassID: "class-1", Category: grading.CategoryFinal, Page: 2, PageSize: 5, SortBy: "title", SortOrder: "asc",
	})
	require.NoError(t, err)
	assert.Empty(t, scores)
	assert.Equal(t, 6, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
