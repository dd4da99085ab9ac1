package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
	appErrors "github.com/noah-isme/sma-schedule-conflicts/pkg/errors"
	"github.com/noah-isme/sma-schedule-conflicts/pkg/response"
)

// RequireRoles lets a request through only when the caller holds one of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		value, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := value.(*models.JWTClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// SchedulerRoles may run scans and change schedules.
var SchedulerRoles = []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin, models.RoleScheduler}

// ReaderRoles may list conflicts and download reports.
var ReaderRoles = []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin, models.RoleScheduler, models.RoleTeacher}
