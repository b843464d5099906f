package auth

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/joy095/roomslot/logger"
	"github.com/joy095/roomslot/models/shared_models"
	"github.com/joy095/roomslot/utils"
	"github.com/joy095/roomslot/utils/jwt_parse"
)

// AuthMiddleware verifies the bearer token and stores the caller in the context.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := jwt_parse.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			logger.WarnLogger.Warnf("Rejected request to %s: %v", c.FullPath(), err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "error": err.Error()})
			return
		}

		actor, err := jwt_parse.ParseToken(tokenString, secret)
		if err != nil {
			logger.WarnLogger.Warnf("Failed to parse JWT token: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "INVALID_TOKEN", "error": "Invalid token"})
			return
		}

		utils.SetActor(c, actor)
		c.Next()
	}
}

// RequireRole lets through only the listed roles. It must run after AuthMiddleware.
func RequireRole(roles ...shared_models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := utils.GetActorFromContext(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "error": err.Error()})
			return
		}
		if !slices.Contains(roles, actor.Role) {
			logger.WarnLogger.Warnf("Actor %s with role %s denied access to %s", actor.ID, actor.Role, c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "error": "Insufficient privileges"})
			return
		}
		c.Next()
	}
}
