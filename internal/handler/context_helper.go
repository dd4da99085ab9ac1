package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-schedule-conflicts/internal/middleware"
	"github.com/noah-isme/sma-schedule-conflicts/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorName identifies the caller in resolution notes, preferring the email claim.
func actorName(c *gin.Context) string {
	claims := claimsFromContext(c)
	if claims == nil {
		return ""
	}
	if claims.Email != "" {
		return claims.Email
	}
	return claims.UserID
}
