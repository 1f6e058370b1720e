package middleware

import (
	"Huddle/internal/pkg/logger"
	"Huddle/internal/pkg/response"
	"Huddle/internal/pkg/security"
	"strings"

	"github.com/gin-gonic/gin"
)

const UserIDKey = "user_id"

// AuthMiddleware accepts a bearer token, or the token query parameter for
// WebSocket upgrades where browsers cannot set headers.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			if !strings.HasPrefix(authHeader, "Bearer ") {
				response.Fail(c, response.Unauthorized, "malformed authorization header")
				c.Abort()
				return
			}
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}
		if tokenString == "" {
			response.Fail(c, response.Unauthorized, "missing token")
			c.Abort()
			return
		}

		claims, err := security.ValidateToken(tokenString)
		if err != nil {
			response.Fail(c, response.Unauthorized, "token is invalid or expired")
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Request = c.Request.WithContext(logger.WithSession(c.Request.Context(), claims.UserID))

		c.Next()
	}
}
