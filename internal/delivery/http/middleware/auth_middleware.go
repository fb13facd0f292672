package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fintherapy-backend/internal/delivery/http/response"
	"fintherapy-backend/internal/domain"
	"fintherapy-backend/pkg/auth"
	"fintherapy-backend/pkg/security"
)

// SessionParser validates provider session tokens
type SessionParser interface {
	ParseSession(ctx context.Context, token string) (*auth.SessionClaims, error)
}

// AuthMiddleware authenticates the provider session token and loads the local user.
// The role always comes from the database, never from the token.
func AuthMiddleware(sessions SessionParser, authUC domain.AuthUsecase, audit *security.SecurityLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if tokenString == "" {
			if cookie, err := c.Cookie("__session"); err == nil {
				tokenString = cookie
			}
		}
		if tokenString == "" {
			response.Error(c, http.StatusUnauthorized, "Authorization header or __session cookie required", nil)
			c.Abort()
			return
		}

		claims, err := sessions.ParseSession(c.Request.Context(), tokenString)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "Invalid token", nil)
			c.Abort()
			return
		}

		user, err := authUC.GetCurrentUser(c.Request.Context(), claims.Subject)
		if err != nil {
			if audit != nil {
				audit.UnauthorizedAccess(c.Request.Context(), claims.Subject, c.ClientIP(), c.FullPath())
			}
			response.Error(c, http.StatusUnauthorized, "User not found", nil)
			c.Abort()
			return
		}

		c.Set(string(domain.KeyUserID), user.ID)
		c.Set(string(domain.KeyExternalID), user.ExternalID)
		c.Set(string(domain.KeyUserRole), user.Role)

		c.Next()
	}
}

// RequireRole must run after AuthMiddleware
func RequireRole(audit *security.SecurityLogger, roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(string(domain.KeyUserRole))
		current, _ := role.(domain.Role)
		for _, allowed := range roles {
			if current == allowed {
				c.Next()
				return
			}
		}
		if audit != nil {
			externalID := c.GetString(string(domain.KeyExternalID))
			audit.UnauthorizedAccess(c.Request.Context(), externalID, c.ClientIP(), c.FullPath())
		}
		response.Error(c, http.StatusForbidden, "Insufficient permissions", nil)
		c.Abort()
	}
}
