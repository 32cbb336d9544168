package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-admin-api/internal/models"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

type mockUserRepo struct {
	users map[string]*models.User
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var users []models.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == strings.ToLower(email) {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "generated"
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) Deactivate(ctx context.Context, id string) error {
	m.users[id].Active = false
	return nil
}

func TestUserServiceCreate(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{}}
	audit := &recordingAudit{}
	svc := NewUserService(repo, audit, nil, nil)

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Email: "Teacher@School.id", FullName: "Guru", Role: models.RoleTeacher, Active: true, Password: "secret-pass",
	}, models.RequestMeta{ActorID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "teacher@school.id", user.Email)
	assert.NotEqual(t, "secret-pass", user.PasswordHash)
	assert.Equal(t, []string{models.AuditActionUserCreate}, audit.actions())
	assert.NotContains(t, string(audit.entries[0].NewValues), "password")
}

func TestUserServiceCreateDuplicateEmail(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"1": {ID: "1", Email: "dup@school.id"}}}
	svc := NewUserService(repo, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email: "dup@school.id", FullName: "Dup", Role: models.RoleAdmin, Password: "secret-pass",
	}, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestUserServiceCreateValidation(t *testing.T) {
	svc := NewUserService(&mockUserRepo{users: map[string]*models.User{}}, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateUserRequest{Email: "bad", Role: "JANITOR"}, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestUserServiceUpdateRecordsBeforeAndAfter(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"1": {ID: "1", Email: "a@school.id", FullName: "Old", Role: models.RoleTeacher, Active: true}}}
	audit := &recordingAudit{}
	svc := NewUserService(repo, audit, nil, nil)

	inactive := false
	user, err := svc.Update(context.Background(), "1", UpdateUserRequest{FullName: "New", Role: models.RoleFinance, Active: &inactive}, models.RequestMeta{ActorID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleFinance, user.Role)
	assert.False(t, user.Active)
	require.Len(t, audit.entries, 1)
	assert.Contains(t, string(audit.entries[0].OldValues), "TEACHER")
	assert.Contains(t, string(audit.entries[0].NewValues), "FINANCE")
}

func TestUserServiceDelete(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"1": {ID: "1", Active: true}}}
	svc := NewUserService(repo, nil, nil, nil)

	assert.ErrorIs(t, svc.Delete(context.Background(), "1", models.RequestMeta{ActorID: "1"}), appErrors.ErrPreconditionFailed)
	assert.ErrorIs(t, svc.Delete(context.Background(), "missing", models.RequestMeta{ActorID: "admin"}), appErrors.ErrNotFound)
	require.NoError(t, svc.Delete(context.Background(), "1", models.RequestMeta{ActorID: "admin"}))
	assert.False(t, repo.users["1"].Active)
}
