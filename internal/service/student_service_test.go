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

type mockStudentRepo struct {
	students    map[string]models.Student
	deactivated []string
	lastFilter  models.StudentFilter
	err         error
}

func newMockStudentRepo(students ...models.Student) *mockStudentRepo {
	m := &mockStudentRepo{students: map[string]models.Student{}}
	for _, s := range students {
		m.students[s.ID] = s
	}
	return m
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, 0, m.err
	}
	out := make([]models.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	for _, s := range m.students {
		if s.UserID != nil && *s.UserID == userID {
			found := s
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ExistsByNumber(ctx context.Context, number, excludeID string) (bool, error) {
	for id, s := range m.students {
		if s.StudentNumber == number && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = "generated"
	}
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Deactivate(ctx context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	s := m.students[id]
	s.Active = false
	m.students[id] = s
	return nil
}

func strPtr(s string) *string { return &s }

func TestStudentServiceCreate(t *testing.T) {
	repo := newMockStudentRepo()
	users := &mockUserRepo{users: map[string]*models.User{
		"u-student": {ID: "u-student", Role: models.RoleStudent, Active: true},
		"u-teacher": {ID: "u-teacher", Role: models.RoleTeacher, Active: true},
	}}
	audit := &recordingAudit{}
	svc := NewStudentService(repo, users, audit, nil, nil)

	req := StudentRequest{
		StudentNumber: " S-001 ",
		FullName:      "Rina Putri",
		Gender:        models.GenderFemale,
		BirthDate:     time.Date(2008, 5, 1, 0, 0, 0, 0, time.UTC),
		UserID:        strPtr("u-student"),
	}
	student, err := svc.Create(context.Background(), req, models.RequestMeta{ActorID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "S-001", student.StudentNumber)
	assert.True(t, student.Active)
	assert.Equal(t, []string{models.AuditActionCreate}, audit.actions())

	_, err = svc.Create(context.Background(), StudentRequest{
		StudentNumber: "S-001", FullName: "Other", Gender: models.GenderMale, BirthDate: req.BirthDate,
	}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	req.StudentNumber = "S-002"
	req.UserID = strPtr("u-teacher")
	_, err = svc.Create(context.Background(), req, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestStudentServiceCreateRejectsInvalidGender(t *testing.T) {
	svc := NewStudentService(newMockStudentRepo(), &mockUserRepo{users: map[string]*models.User{}}, nil, nil, nil)
	_, err := svc.Create(context.Background(), StudentRequest{
		StudentNumber: "S-9", FullName: "X", Gender: "Z", BirthDate: time.Now(),
	}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestStudentServiceUpdateKeepsOwnNumber(t *testing.T) {
	repo := newMockStudentRepo(models.Student{ID: "s1", StudentNumber: "S-1", FullName: "A", Gender: "M", Active: true})
	svc := NewStudentService(repo, &mockUserRepo{users: map[string]*models.User{}}, nil, nil, nil)

	updated, err := svc.Update(context.Background(), "s1", StudentRequest{
		StudentNumber: "S-1", FullName: "A Updated", Gender: "M", BirthDate: time.Now(),
	}, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "A Updated", updated.FullName)

	_, err = svc.Update(context.Background(), "missing", StudentRequest{
		StudentNumber: "S-2", FullName: "B", Gender: "M", BirthDate: time.Now(),
	}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestStudentServiceDeactivateIsIdempotent(t *testing.T) {
	repo := newMockStudentRepo(models.Student{ID: "s1", Active: true})
	audit := &recordingAudit{}
	svc := NewStudentService(repo, nil, audit, nil, nil)

	require.NoError(t, svc.Deactivate(context.Background(), "s1", models.RequestMeta{}))
	require.NoError(t, svc.Deactivate(context.Background(), "s1", models.RequestMeta{}))
	assert.Equal(t, []string{"s1"}, repo.deactivated)
	assert.Len(t, audit.entries, 1)
}

func TestStudentServiceGetByUser(t *testing.T) {
	repo := newMockStudentRepo(models.Student{ID: "s1", UserID: strPtr("u1")})
	svc := NewStudentService(repo, nil, nil, nil, nil)

	student, err := svc.GetByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "s1", student.ID)

	_, err = svc.GetByUser(context.Background(), "u2")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
