package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
	appErrors "github.com/noah-isme/teacher-transfer-api/pkg/errors"
	"github.com/noah-isme/teacher-transfer-api/pkg/response"
)

// RoleSelf admits a teacher on routes whose :id names their own record.
const RoleSelf models.UserRole = "SELF"

// RequireRoles admits callers holding one of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		value, exists := c.Get(ContextUserKey)
		claims, ok := value.(*models.JWTClaims)
		if !exists || !ok || claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if allowed[claims.Role] || (allowed[RoleSelf] && ownsTarget(c, claims)) {
			c.Next()
			return
		}

		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("role %s cannot access %s", claims.Role, c.FullPath())))
		c.Abort()
	}
}

// A teacher's subject is their teacher ID; reviewers never match through SELF.
func ownsTarget(c *gin.Context, claims *models.JWTClaims) bool {
	target := c.Param("id")
	return target != "" && claims.Role == models.RoleTeacher && target == claims.UserID
}
