package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

// RoleHeadmaster reviews transfer requests; RoleDEO (district education officer) reviews profile edits.
const (
	RoleHeadmaster UserRole = "HEADMASTER"
	RoleDEO        UserRole = "DEO"
	RoleTeacher    UserRole = "TEACHER"
)

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	jwt.RegisteredClaims
}

// Pagination is attached to list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// IssueTokenRequest asks for an access token on behalf of a registered teacher.
type IssueTokenRequest struct {
	TeacherID string `json:"teacherId" validate:"required"`
}

// TokenResponse carries a signed access token.
type TokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
