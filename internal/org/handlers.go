package org

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kalvisk/namura/internal/apperr"
	"github.com/kalvisk/namura/internal/identity"
	"github.com/kalvisk/namura/internal/notify"
	"github.com/kalvisk/namura/internal/validation"
)

// Handler provides HTTP endpoints for organizations and membership.
type Handler struct {
	service *Service
	store   Store
}

// NewHandler creates a new org handler.
func NewHandler(service *Service, store Store) *Handler {
	return &Handler{service: service, store: store}
}

// RegisterRoutes sets up routes that are not scoped to an organization.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/orgs", h.CreateOrg)
	r.GET("/orgs", h.ListOrgs)
	r.POST("/invitations/:token/accept", h.AcceptInvitation)
}

// RegisterOrgRoutes sets up routes under /orgs/:slug. The org middleware
// has already resolved the caller's access by the time these run.
func (h *Handler) RegisterOrgRoutes(r *gin.RouterGroup) {
	r.GET("", h.GetOrg)
	r.PATCH("", h.UpdateOrg)
	r.GET("/members", h.ListMembers)
	r.POST("/members/invitations", h.InviteMember)
	r.PATCH("/members/:id", h.ChangeMemberRole)
	r.DELETE("/members/:id", h.RemoveMember)
	r.GET("/members/invitations", h.ListInvitations)
	r.DELETE("/members/invitations/:id", h.CancelInvitation)
}

// CreateOrg handles POST /v1/orgs
func (h *Handler) CreateOrg(c *gin.Context) {
	principal := identity.FromContext(c)

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("name", req.Name),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	o, err := h.service.Create(c.Request.Context(), principal, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSlug):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_slug", "message": err.Error()})
		case errors.Is(err, ErrSlugTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "slug_taken", "message": err.Error()})
		default:
			apperr.Respond(c, err)
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"organization": o})
}

// ListOrgs handles GET /v1/orgs
func (h *Handler) ListOrgs(c *gin.Context) {
	principal := identity.FromContext(c)

	orgs, err := h.store.ListByPrincipal(c.Request.Context(), principal.ID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"organizations": orgs,
		"count":         len(orgs),
	})
}

// GetOrg handles GET /v1/orgs/:slug
func (h *Handler) GetOrg(c *gin.Context) {
	access := AccessFrom(c)
	c.JSON(http.StatusOK, gin.H{
		"organization": access.Org,
		"role":         access.Role,
		"isOwner":      access.IsOwner,
	})
}

// UpdateOrg handles PATCH /v1/orgs/:slug
func (h *Handler) UpdateOrg(c *gin.Context) {
	access := AccessFrom(c)
	if !access.CanManageOrg() {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Only administrators can change organization settings",
		})
		return
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	o, err := h.service.Update(c.Request.Context(), access, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"organization": o})
}

// ListMembers handles GET /v1/orgs/:slug/members
func (h *Handler) ListMembers(c *gin.Context) {
	access := AccessFrom(c)

	members, err := h.store.ListMemberships(c.Request.Context(), access.Org.ID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"members": members,
		"count":   len(members),
	})
}

// InviteRequest carries the fields for inviting a new member.
type InviteRequest struct {
	Email string `json:"email" binding:"required"`
	Role  Role   `json:"role"`
}

// InviteMember handles POST /v1/orgs/:slug/members/invitations
func (h *Handler) InviteMember(c *gin.Context) {
	access := AccessFrom(c)
	if !access.CanManageOrg() {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Only administrators can invite members",
		})
		return
	}

	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Email is required",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidEmail("email", req.Email),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	inv, err := h.service.Invite(c.Request.Context(), access, req.Email, req.Role)
	if err != nil {
		if errors.Is(err, notify.ErrDispatchFailed) {
			// The invitation exists; only the email failed.
			c.JSON(http.StatusCreated, gin.H{
				"invitation":    inv,
				"emailDelivery": "failed",
			})
			return
		}
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"invitation": inv})
}

// AcceptInvitation handles POST /v1/invitations/:token/accept
func (h *Handler) AcceptInvitation(c *gin.Context) {
	principal := identity.FromContext(c)
	token := c.Param("token")

	m, err := h.service.AcceptInvitation(c.Request.Context(), token, principal)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvitationNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Invitation not found"})
		case errors.Is(err, ErrInvitationExpired):
			c.JSON(http.StatusGone, gin.H{"error": "expired", "message": err.Error()})
		case errors.Is(err, ErrInvitationClosed):
			c.JSON(http.StatusConflict, gin.H{"error": "invalid_state", "message": err.Error()})
		case errors.Is(err, ErrMemberExists):
			c.JSON(http.StatusConflict, gin.H{"error": "already_member", "message": err.Error()})
		default:
			apperr.Respond(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"membership": m})
}

// RoleRequest carries a role change.
type RoleRequest struct {
	Role Role `json:"role" binding:"required"`
}

// ChangeMemberRole handles PATCH /v1/orgs/:slug/members/:id
func (h *Handler) ChangeMemberRole(c *gin.Context) {
	access := AccessFrom(c)
	if !access.CanManageOrg() {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Only administrators can change member roles",
		})
		return
	}

	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Role is required",
		})
		return
	}

	m, err := h.service.ChangeMemberRole(c.Request.Context(), access, c.Param("id"), req.Role)
	if err != nil {
		switch {
		case errors.Is(err, ErrMemberNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Member not found"})
		case errors.Is(err, ErrOwnerImmutable):
			c.JSON(http.StatusConflict, gin.H{"error": "owner_immutable", "message": err.Error()})
		default:
			apperr.Respond(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"membership": m})
}

// RemoveMember handles DELETE /v1/orgs/:slug/members/:id
func (h *Handler) RemoveMember(c *gin.Context) {
	access := AccessFrom(c)
	if !access.CanManageOrg() {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Only administrators can remove members",
		})
		return
	}

	err := h.service.RemoveMember(c.Request.Context(), access, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrMemberNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Member not found"})
		case errors.Is(err, ErrOwnerImmutable):
			c.JSON(http.StatusConflict, gin.H{"error": "owner_immutable", "message": err.Error()})
		default:
			apperr.Respond(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": true})
}

// ListInvitations handles GET /v1/orgs/:slug/members/invitations
func (h *Handler) ListInvitations(c *gin.Context) {
	access := AccessFrom(c)
	if !access.CanManageOrg() {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Only administrators can view invitations",
		})
		return
	}

	invs, err := h.store.ListInvitations(c.Request.Context(), access.Org.ID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"invitations": invs,
		"count":       len(invs),
	})
}

// CancelInvitation handles DELETE /v1/orgs/:slug/members/invitations/:id
func (h *Handler) CancelInvitation(c *gin.Context) {
	access := AccessFrom(c)
	if !access.CanManageOrg() {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Only administrators can cancel invitations",
		})
		return
	}

	err := h.service.CancelInvitation(c.Request.Context(), access, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvitationNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Invitation not found"})
		case errors.Is(err, ErrInvitationClosed):
			c.JSON(http.StatusConflict, gin.H{"error": "invalid_state", "message": err.Error()})
		default:
			apperr.Respond(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}
