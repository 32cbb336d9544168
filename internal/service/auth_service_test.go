package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/school-admin-api/internal/models"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

type mockAuthRepo struct {
	user             *models.User
	findByEmailErr   error
	refreshTokens    map[string]*models.RefreshToken
	revokedAllFor    []string
	lastLoginUpdated bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.user == nil {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.user == nil || m.user.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.user.PasswordHash = passwordHash
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAllFor = append(m.revokedAllFor, userID)
	for _, token := range m.refreshTokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.TokenHash] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[tokenHash]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) (bool, error) {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			if token.Revoked {
				return false, nil
			}
			token.Revoked = true
			token.RevokedAt = &revokedAt
			return true, nil
		}
	}
	return false, nil
}

func newTestAuthService(t *testing.T, active bool) (*AuthService, *mockAuthRepo, *recordingAudit) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &mockAuthRepo{user: &models.User{ID: "u-1", Email: "user@example.com", PasswordHash: string(hash), Active: active, Role: models.RoleTeacher}}
	audit := &recordingAudit{}
	svc := NewAuthService(repo, audit, nil, nil, AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "school-admin-api",
	})
	return svc, repo, audit
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	svc, repo, audit := newTestAuthService(t, true)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password123", IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.Equal(t, models.TokenTypeBearer, res.TokenType)
	assert.True(t, repo.lastLoginUpdated)
	assert.Equal(t, []string{models.AuditActionLogin}, audit.actions())

	_, stored := repo.refreshTokens[hashToken(res.RefreshToken)]
	assert.True(t, stored, "only the hash of the refresh token is persisted")

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestAuthServiceLoginRejectsBadPassword(t *testing.T) {
	svc, _, audit := newTestAuthService(t, true)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "wrong-pass"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
	assert.Empty(t, audit.actions())
}

func TestAuthServiceLoginRejectsUnknownEmail(t *testing.T) {
	svc, repo, _ := newTestAuthService(t, true)
	repo.user = nil

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@example.com", Password: "password123"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestAuthServiceLoginRejectsInactive(t *testing.T) {
	svc, _, _ := newTestAuthService(t, false)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password123"})
	assert.ErrorIs(t, err, appErrors.ErrInactiveAccount)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	svc, repo, _ := newTestAuthService(t, true)
	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password123"})
	require.NoError(t, err)

	res, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, res.RefreshToken)
	assert.True(t, repo.refreshTokens[hashToken(login.RefreshToken)].Revoked)
	assert.False(t, repo.refreshTokens[hashToken(res.RefreshToken)].Revoked)
}

func TestAuthServiceRefreshReuseRevokesAllSessions(t *testing.T) {
	svc, repo, _ := newTestAuthService(t, true)
	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password123"})
	require.NoError(t, err)

	rotated, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
	assert.Equal(t, []string{"u-1"}, repo.revokedAllFor)
	assert.True(t, repo.refreshTokens[hashToken(rotated.RefreshToken)].Revoked)
}

func TestAuthServiceRefreshExpired(t *testing.T) {
	svc, repo, _ := newTestAuthService(t, true)
	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password123"})
	require.NoError(t, err)
	repo.refreshTokens[hashToken(login.RefreshToken)].ExpiresAt = time.Now().Add(-time.Minute)

	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestAuthServiceLogoutChecksOwner(t *testing.T) {
	svc, _, _ := newTestAuthService(t, true)
	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password123"})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken}, "someone-else")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	require.NoError(t, svc.Logout(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken}, "u-1"))
}

func TestAuthServiceChangePassword(t *testing.T) {
	svc, repo, audit := newTestAuthService(t, true)

	err := svc.ChangePassword(context.Background(), "u-1", models.ChangePasswordRequest{OldPassword: "nope-nope", NewPassword: "brand-new-pass"}, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	err = svc.ChangePassword(context.Background(), "u-1", models.ChangePasswordRequest{OldPassword: "password123", NewPassword: "brand-new-pass"}, models.RequestMeta{})
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.user.PasswordHash), []byte("brand-new-pass")))
	assert.Equal(t, []string{"u-1"}, repo.revokedAllFor)
	assert.Contains(t, audit.actions(), models.AuditActionPasswordChange)
}

func TestAuthServiceValidateTokenRejectsGarbage(t *testing.T) {
	svc, _, _ := newTestAuthService(t, true)
	_, err := svc.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
