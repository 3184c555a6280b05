package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
	appErrors "github.com/noah-isme/teacher-transfer-api/pkg/errors"
)

type mockAuthTeachers struct {
	teacher *models.Teacher
	err     error
}

func (m *mockAuthTeachers) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.teacher == nil || m.teacher.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.teacher, nil
}

func newTestAuthService(repo *mockAuthTeachers) *AuthService {
	return NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "teacher-transfer-api",
	})
}

func TestAuthServiceIssueAndValidate(t *testing.T) {
	repo := &mockAuthTeachers{teacher: &models.Teacher{ID: "h1", Email: "head@example.com", Role: models.RoleHeadmaster}}
	svc := newTestAuthService(repo)

	resp, err := svc.IssueToken(context.Background(), models.IssueTokenRequest{TeacherID: "h1"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NotEmpty(t, resp.AccessToken)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "h1", claims.UserID)
	assert.Equal(t, models.RoleHeadmaster, claims.Role)
	assert.Equal(t, "head@example.com", claims.Email)
}

func TestAuthServiceIssueTokenErrors(t *testing.T) {
	svc := newTestAuthService(&mockAuthTeachers{})

	_, err := svc.IssueToken(context.Background(), models.IssueTokenRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.IssueToken(context.Background(), models.IssueTokenRequest{TeacherID: "ghost"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	broken := newTestAuthService(&mockAuthTeachers{err: errors.New("db down")})
	_, err = broken.IssueToken(context.Background(), models.IssueTokenRequest{TeacherID: "h1"})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestAuthServiceValidateTokenRejects(t *testing.T) {
	repo := &mockAuthTeachers{teacher: &models.Teacher{ID: "t1", Role: models.RoleTeacher}}
	svc := newTestAuthService(repo)

	resp, err := svc.IssueToken(context.Background(), models.IssueTokenRequest{TeacherID: "t1"})
	require.NoError(t, err)

	other := NewAuthService(repo, nil, nil, AuthConfig{AccessTokenSecret: "different", Issuer: "teacher-transfer-api"})
	_, err = other.ValidateToken(resp.AccessToken)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	_, err = svc.ValidateToken(resp.AccessToken)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{
		UserID:           "t1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
	})
	signed, err := foreign.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = newTestAuthService(repo).ValidateToken(signed)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	_, err = svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
