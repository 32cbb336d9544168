package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-admin-api/internal/grading"
	"github.com/noah-isme/school-admin-api/internal/models"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

type mockScoreRepo struct {
	scores  map[string]models.Score
	created []models.Score
}

func (m *mockScoreRepo) List(ctx context.Context, filter models.ScoreFilter) ([]models.ScoreDetail, int, error) {
	out := make([]models.ScoreDetail, 0, len(m.scores))
	for _, s := range m.scores {
		out = append(out, models.ScoreDetail{Score: s})
	}
	return out, len(out), nil
}

func (m *mockScoreRepo) FindByID(ctx context.Context, id string) (*models.Score, error) {
	if s, ok := m.scores[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockScoreRepo) Create(ctx context.Context, score *models.Score) error {
	score.ID = "score-new"
	m.created = append(m.created, *score)
	m.scores[score.ID] = *score
	return nil
}

func (m *mockScoreRepo) Update(ctx context.Context, score *models.Score) error {
	m.scores[score.ID] = *score
	return nil
}

func (m *mockScoreRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.scores[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.scores, id)
	return nil
}

type stubEnrollmentChecker map[string]bool

func (s stubEnrollmentChecker) ExistsActiveInClass(ctx context.Context, studentID, classID string) (bool, error) {
	return s[studentID+"/"+classID], nil
}

func newScoreFixture() (*ScoreService, *mockScoreRepo, *recordingAudit) {
	repo := &mockScoreRepo{scores: map[string]models.Score{
		"score-1": {ID: "score-1", StudentID: "s1", SubjectID: "sub-m", ClassID: "c1", SemesterID: "sem1",
			Category: grading.CategoryQuiz, Title: "Quiz 1", RawScore: 8, MaxScore: 10, Weight: 0.2},
	}}
	enrollments := stubEnrollmentChecker{"s1/c1": true}
	subjects := stubSubjects{
		"sub-m":  {ID: "sub-m", Name: "Mathematics"},
		"sub-11": {ID: "sub-11", Name: "Physics", GradeLevelID: strPtr("gl-11")},
	}
	semesters := stubSemesters{
		"sem1":  {ID: "sem1", AcademicYearID: "year-1"},
		"sem-x": {ID: "sem-x", AcademicYearID: "year-2"},
	}
	classes := &mockClassReader{classes: map[string]models.Class{
		"c1": {ID: "c1", AcademicYearID: "year-1", GradeLevelID: "gl-10"},
	}}
	audit := &recordingAudit{}
	return NewScoreService(repo, enrollments, subjects, semesters, classes, audit, nil, nil), repo, audit
}

func validScoreRequest() CreateScoreRequest {
	return CreateScoreRequest{
		StudentID:  "s1",
		SubjectID:  "sub-m",
		ClassID:    "c1",
		SemesterID: "sem1",
		Category:   grading.CategoryMidterm,
		Title:      " Midterm ",
		RawScore:   45,
		MaxScore:   50,
		Weight:     0.3,
	}
}

func TestScoreServiceCreate(t *testing.T) {
	svc, repo, audit := newScoreFixture()

	score, err := svc.Create(context.Background(), validScoreRequest(), models.RequestMeta{ActorID: "teacher-1"})
	require.NoError(t, err)
	assert.Equal(t, "Midterm", score.Title)
	assert.Equal(t, "teacher-1", score.RecordedBy)
	assert.Len(t, repo.created, 1)
	assert.Equal(t, []string{models.AuditActionScoreCreate}, audit.actions())
}

func TestScoreServiceCreateSurfacesGradingReason(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CreateScoreRequest)
		reason string
	}{
		{"zero max", func(r *CreateScoreRequest) { r.MaxScore = 0 }, "max_score"},
		{"negative raw", func(r *CreateScoreRequest) { r.RawScore = -1 }, "raw_score"},
		{"weight above one", func(r *CreateScoreRequest) { r.Weight = 1.5 }, "weight"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, _ := newScoreFixture()
			req := validScoreRequest()
			tc.mutate(&req)

			_, err := svc.Create(context.Background(), req, models.RequestMeta{})
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, 400, appErr.Status)
			assert.Contains(t, appErr.Message, tc.reason)
			assert.Equal(t, tc.reason, appErr.Details["field"])
			assert.Empty(t, repo.created)
		})
	}
}

func TestScoreServiceCreateChecksReferences(t *testing.T) {
	svc, _, _ := newScoreFixture()
	ctx := context.Background()

	req := validScoreRequest()
	req.Category = "essay"
	_, err := svc.Create(ctx, req, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	req = validScoreRequest()
	req.SubjectID = "missing"
	_, err = svc.Create(ctx, req, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	req = validScoreRequest()
	req.SemesterID = "sem-x"
	_, err = svc.Create(ctx, req, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	req = validScoreRequest()
	req.SubjectID = "sub-11"
	_, err = svc.Create(ctx, req, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	req = validScoreRequest()
	req.StudentID = "s2"
	_, err = svc.Create(ctx, req, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestScoreServiceUpdate(t *testing.T) {
	svc, repo, audit := newScoreFixture()
	ctx := context.Background()

	updated, err := svc.Update(ctx, "score-1", UpdateScoreRequest{
		Category: grading.CategoryQuiz, Title: "Quiz 1 (regraded)", RawScore: 9, MaxScore: 10, Weight: 0.2,
	}, models.RequestMeta{ActorID: "teacher-2"})
	require.NoError(t, err)
	assert.Equal(t, 9.0, repo.scores["score-1"].RawScore)
	assert.Equal(t, "teacher-2", updated.RecordedBy)
	assert.Equal(t, []string{models.AuditActionScoreUpdate}, audit.actions())

	_, err = svc.Update(ctx, "score-1", UpdateScoreRequest{
		Category: grading.CategoryQuiz, Title: "Quiz 1", RawScore: 9, MaxScore: 0, Weight: 0.2,
	}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Equal(t, 10.0, repo.scores["score-1"].MaxScore)

	_, err = svc.Update(ctx, "missing", UpdateScoreRequest{
		Category: grading.CategoryQuiz, Title: "x", RawScore: 1, MaxScore: 1, Weight: 0,
	}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestScoreServiceDelete(t *testing.T) {
	svc, repo, audit := newScoreFixture()

	require.NoError(t, svc.Delete(context.Background(), "score-1", models.RequestMeta{}))
	assert.Empty(t, repo.scores)
	assert.Equal(t, []string{models.AuditActionScoreDelete}, audit.actions())

	err := svc.Delete(context.Background(), "score-1", models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestScoreServiceListValidatesCategory(t *testing.T) {
	svc, _, _ := newScoreFixture()
	_, _, err := svc.List(context.Background(), models.ScoreFilter{Category: "essay"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	scores, pagination, err := svc.List(context.Background(), models.ScoreFilter{Category: grading.CategoryQuiz})
	require.NoError(t, err)
	assert.Len(t, scores, 1)
	assert.Equal(t, 20, pagination.PageSize)
}
