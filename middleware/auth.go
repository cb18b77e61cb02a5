package middleware

import (
	"net/http"
	"strings"

	"glacierguard-api/services"

	"github.com/gin-gonic/gin"
)

// ClaimsKey is the gin context key holding *services.Claims after RequireAuth.
const ClaimsKey = "claims"

// RequireAuth rejects requests without a valid "Authorization: Bearer" token.
func RequireAuth(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := auth.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// OptionalAuth applies RequireAuth only when enabled, otherwise it is a pass-through.
func OptionalAuth(enabled bool, auth *services.AuthService) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return RequireAuth(auth)
}
