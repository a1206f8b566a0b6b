package identity

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ContextKeyPrincipal is the gin context key for the authenticated principal.
const ContextKeyPrincipal = "authPrincipal"

// Middleware resolves the bearer token when present. Anonymous requests pass
// through with no principal set; routes that need identity use RequireAuth.
func Middleware(p *Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			token = c.GetHeader("X-Auth-Token")
		}
		if token != "" {
			if principal, err := p.Resolve(c.Request.Context(), token); err == nil {
				c.Set(ContextKeyPrincipal, principal)
			}
		}
		c.Next()
	}
}

// RequireAuth rejects requests without a resolved principal.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ContextKeyPrincipal); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authentication required. Include 'Authorization: Bearer nmt_...' header.",
			})
			return
		}
		c.Next()
	}
}

// FromContext returns the authenticated principal, or nil for anonymous.
func FromContext(c *gin.Context) *Principal {
	if v, ok := c.Get(ContextKeyPrincipal); ok {
		if p, ok := v.(*Principal); ok {
			return p
		}
	}
	return nil
}
