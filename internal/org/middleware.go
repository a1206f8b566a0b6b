package org

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kalvisk/namura/internal/identity"
	"github.com/kalvisk/namura/internal/logging"
)

// ContextKeyAccess is the gin context key under which the resolved
// org access record is stored.
const ContextKeyAccess = "orgAccess"

// Middleware resolves the :slug route parameter to an organization and
// verifies the authenticated principal belongs to it. Outsiders get the
// same 404 as a slug that does not exist, so the route never reveals
// which organizations are real.
func Middleware(resolver *Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		slug := c.Param("slug")
		principal := identity.FromContext(c)

		access, err := resolver.Resolve(c.Request.Context(), slug, principal)
		if err != nil {
			if errors.Is(err, ErrOrgNotFound) || errors.Is(err, ErrNotMember) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
					"error":   "not_found",
					"message": "Organization not found",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to resolve organization",
			})
			return
		}

		logger := logging.WithOrg(c.Request.Context(), access.Org.ID, access.Org.Slug)
		ctx := logging.WithLogger(c.Request.Context(), logger)
		c.Request = c.Request.WithContext(ctx)
		c.Set(ContextKeyAccess, access)
		c.Next()
	}
}

// AccessFrom returns the org access stored by Middleware, or nil.
func AccessFrom(c *gin.Context) *Access {
	v, ok := c.Get(ContextKeyAccess)
	if !ok {
		return nil
	}
	access, ok := v.(*Access)
	if !ok {
		return nil
	}
	return access
}
