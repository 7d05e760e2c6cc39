package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

// Middleware enforces bearer JWT tokens signed with HS256 and stashes the
// claims on the request context.
func Middleware(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole rejects callers whose token carries a different role. It
// must run after Middleware.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerRole(c) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		c.Next()
	}
}

// CallerID returns the authenticated subject, or "" when unauthenticated.
func CallerID(c *gin.Context) string {
	return callerClaims(c).Subject
}

// CallerRole returns the authenticated role, or "" when unauthenticated.
func CallerRole(c *gin.Context) string {
	return callerClaims(c).Role
}

func callerClaims(c *gin.Context) Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}
	}
	claims, ok := v.(Claims)
	if !ok {
		return Claims{}
	}
	return claims
}
