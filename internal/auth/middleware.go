package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"classattend/internal/model"
)

const principalKey = "principal"

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   model.Role
}

// PrincipalFrom returns the caller set by Authenticate.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

func bearer(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("bearer "):])
}

// Authenticate accepts a bearer access token, or the session cookie when no header is sent.
func Authenticate(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenStr := bearer(c); tokenStr != "" {
			claims, err := Parse(tokenStr, signingKey, issuer)
			role, ok := model.ParseRole(claims.Role)
			if err != nil || claims.Kind != KindAccess || !ok {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			c.Set(principalKey, Principal{UserID: claims.Subject, Role: role})
			c.Next()
			return
		}
		if p, ok := SessionPrincipal(c); ok {
			c.Set(principalKey, p)
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	}
}

// RequireRole lets through callers holding one of roles.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}

// DashboardGuard protects /dashboard/<role>/... pages: no session goes to /login, a session for
// another role goes to /unauthorized.
func DashboardGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := SessionPrincipal(c)
		if !ok {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		path := c.Request.URL.Path
		home := p.Role.DashboardPath()
		if path != home && !strings.HasPrefix(path, home+"/") {
			c.Redirect(http.StatusFound, "/unauthorized")
			c.Abort()
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}
