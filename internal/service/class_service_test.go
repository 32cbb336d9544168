package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-admin-api/internal/models"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

type mockClassRepo struct {
	classes   map[string]models.Class
	active    map[string]int
	listCalls int
	deleted   []string
}

func (m *mockClassRepo) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	m.listCalls++
	out := make([]models.ClassDetail, 0, len(m.classes))
	for _, c := range m.classes {
		out = append(out, models.ClassDetail{Class: c, ActiveEnrollments: m.active[c.ID]})
	}
	return out, len(out), nil
}

func (m *mockClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassRepo) FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	if c, ok := m.classes[id]; ok {
		return &models.ClassDetail{Class: c, ActiveEnrollments: m.active[id]}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassRepo) ExistsByName(ctx context.Context, academicYearID, name, excludeID string) (bool, error) {
	for id, c := range m.classes {
		if c.AcademicYearID == academicYearID && c.Name == name && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockClassRepo) Create(ctx context.Context, class *models.Class) error {
	class.ID = "class-new"
	m.classes[class.ID] = *class
	return nil
}

func (m *mockClassRepo) Update(ctx context.Context, class *models.Class) error {
	m.classes[class.ID] = *class
	return nil
}

func (m *mockClassRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.classes, id)
	return nil
}

func (m *mockClassRepo) CountActiveEnrollments(ctx context.Context, id string) (int, error) {
	return m.active[id], nil
}

type stubGradeLevels map[string]models.GradeLevel

func (s stubGradeLevels) FindByID(ctx context.Context, id string) (*models.GradeLevel, error) {
	if level, ok := s[id]; ok {
		return &level, nil
	}
	return nil, sql.ErrNoRows
}

type stubYears map[string]models.AcademicYear

func (s stubYears) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	if year, ok := s[id]; ok {
		return &year, nil
	}
	return nil, sql.ErrNoRows
}

func newClassFixture() (*ClassService, *mockClassRepo, *memoryCache, *recordingAudit) {
	repo := &mockClassRepo{
		classes: map[string]models.Class{
			"c1": {ID: "c1", Name: "X-1", GradeLevelID: "gl-10", AcademicYearID: "year-1", Capacity: 30},
		},
		active: map[string]int{"c1": 25},
	}
	users := &mockUserRepo{users: map[string]*models.User{
		"t1": {ID: "t1", Role: models.RoleTeacher, Active: true},
		"a1": {ID: "a1", Role: models.RoleAdmin, Active: true},
	}}
	store := newMemoryCache()
	cache := NewCacheService(store, nil, time.Minute, nil, true)
	audit := &recordingAudit{}
	svc := NewClassService(repo, stubGradeLevels{"gl-10": {ID: "gl-10"}}, stubYears{"year-1": {ID: "year-1"}}, users, &stubRoster{}, cache, audit, nil, nil)
	return svc, repo, store, audit
}

func TestClassServiceListIsCached(t *testing.T) {
	svc, repo, store, _ := newClassFixture()
	ctx := context.Background()
	filter := models.ClassFilter{AcademicYearID: "year-1", Page: 1, PageSize: 20}

	first, _, err := svc.List(ctx, filter)
	require.NoError(t, err)
	second, pagination, err := svc.List(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, 25, second[0].ActiveEnrollments)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Len(t, store.data, 1)
}

func TestClassServiceCreateInvalidatesCache(t *testing.T) {
	svc, repo, store, audit := newClassFixture()
	ctx := context.Background()
	_, _, err := svc.List(ctx, models.ClassFilter{})
	require.NoError(t, err)

	detail, err := svc.Create(ctx, CreateClassRequest{
		Name: " X-2 ", GradeLevelID: "gl-10", AcademicYearID: "year-1", HomeroomTeacherID: strPtr("t1"), Capacity: 32,
	}, models.RequestMeta{ActorID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "X-2", detail.Name)
	assert.Contains(t, repo.classes, "class-new")
	assert.Equal(t, []string{classCachePattern}, store.invalidate)
	assert.Empty(t, store.data)
	assert.Equal(t, []string{models.AuditActionCreate}, audit.actions())
}

func TestClassServiceCreateValidation(t *testing.T) {
	svc, _, _, _ := newClassFixture()
	ctx := context.Background()
	base := CreateClassRequest{Name: "X-3", GradeLevelID: "gl-10", AcademicYearID: "year-1"}

	req := base
	req.Name = "X-1"
	_, err := svc.Create(ctx, req, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	req = base
	req.AcademicYearID = "missing"
	_, err = svc.Create(ctx, req, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	req = base
	req.GradeLevelID = "missing"
	_, err = svc.Create(ctx, req, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	req = base
	req.HomeroomTeacherID = strPtr("a1")
	_, err = svc.Create(ctx, req, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	req = base
	req.Capacity = -1
	_, err = svc.Create(ctx, req, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestClassServiceUpdateCapacityBelowHeadcount(t *testing.T) {
	svc, repo, _, _ := newClassFixture()
	ctx := context.Background()

	_, err := svc.Update(ctx, "c1", UpdateClassRequest{Name: "X-1", GradeLevelID: "gl-10", Capacity: 20}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrCapacityExceeded))
	assert.Equal(t, 30, repo.classes["c1"].Capacity)

	detail, err := svc.Update(ctx, "c1", UpdateClassRequest{Name: "X-1", GradeLevelID: "gl-10", Capacity: 0}, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, 0, detail.Capacity)
	assert.Equal(t, "year-1", detail.AcademicYearID)
}

func TestClassServiceDeleteRequiresEmptyClass(t *testing.T) {
	svc, repo, _, audit := newClassFixture()
	ctx := context.Background()

	err := svc.Delete(ctx, "c1", models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	repo.active["c1"] = 0
	require.NoError(t, svc.Delete(ctx, "c1", models.RequestMeta{}))
	assert.Equal(t, []string{"c1"}, repo.deleted)
	assert.Equal(t, []string{models.AuditActionDelete}, audit.actions())

	err = svc.Delete(ctx, "c1", models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestClassServiceRoster(t *testing.T) {
	svc, _, _, _ := newClassFixture()
	svc.roster = &stubRoster{students: map[string][]models.StudentRef{
		"c1": {{ID: "s1", StudentNumber: "S-001", FullName: "Ana"}},
	}}
	ctx := context.Background()

	students, err := svc.Roster(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "S-001", students[0].StudentNumber)

	_, err = svc.Roster(ctx, "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
