package lease

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kalvisk/namura/internal/apperr"
	"github.com/kalvisk/namura/internal/identity"
	"github.com/kalvisk/namura/internal/notify"
	"github.com/kalvisk/namura/internal/org"
	"github.com/kalvisk/namura/internal/property"
)

// Handler provides the manager-side lease endpoints and the public
// invitation acceptance endpoint.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up routes that need authentication but no
// organization scope. Invited tenants are not members, so acceptance
// cannot live under /orgs/:slug.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/lease-invitations/:token/accept", h.AcceptInvitation)
}

// RegisterOrgRoutes sets up lease routes under /orgs/:slug.
func (h *Handler) RegisterOrgRoutes(r *gin.RouterGroup) {
	r.GET("/leases", h.ListLeases)
	r.POST("/units/:id/leases", h.CreateLease)
	r.GET("/leases/:id", h.GetLease)
	r.PUT("/leases/:id", h.UpdateLease)
	r.POST("/leases/:id/terminate", h.TerminateLease)
	r.DELETE("/leases/:id", h.DeleteLease)
	r.GET("/leases/:id/invitation", h.GetInvitation)
}

func respondLeaseErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrLeaseNotFound), errors.Is(err, ErrInvitationNotFound),
		errors.Is(err, property.ErrUnitNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, ErrUnitUnavailable), errors.Is(err, ErrNotDraft),
		errors.Is(err, ErrNotActive), errors.Is(err, ErrAlreadyAccepted),
		errors.Is(err, ErrInvitationClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
	case errors.Is(err, ErrInvitationExpired):
		c.JSON(http.StatusGone, gin.H{"error": "expired", "message": err.Error()})
	default:
		apperr.Respond(c, err)
	}
}

func requireOperator(c *gin.Context) *org.Access {
	access := org.AccessFrom(c)
	if !access.CanOperate() {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Requires manager access",
		})
		return nil
	}
	return access
}

// ListLeases handles GET /v1/orgs/:slug/leases
func (h *Handler) ListLeases(c *gin.Context) {
	access := org.AccessFrom(c)

	f := ListFilter{
		Status: Status(c.Query("status")),
		UnitID: c.Query("unit"),
	}
	leases, err := h.service.List(c.Request.Context(), access.Org.ID, f)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leases": leases,
		"count":  len(leases),
	})
}

// CreateLease handles POST /v1/orgs/:slug/units/:id/leases
func (h *Handler) CreateLease(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Tenant email, dates and rent amount are required",
		})
		return
	}

	l, inv, err := h.service.Create(c.Request.Context(), access.Org.ID, c.Param("id"), req)
	if err != nil {
		if errors.Is(err, notify.ErrDispatchFailed) {
			c.JSON(http.StatusCreated, gin.H{
				"lease":         l,
				"invitation":    inv,
				"emailDelivery": "failed",
			})
			return
		}
		respondLeaseErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"lease": l, "invitation": inv})
}

// GetLease handles GET /v1/orgs/:slug/leases/:id
func (h *Handler) GetLease(c *gin.Context) {
	access := org.AccessFrom(c)

	l, err := h.service.Get(c.Request.Context(), access.Org.ID, c.Param("id"))
	if err != nil {
		respondLeaseErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"lease": l})
}

// UpdateLease handles PUT /v1/orgs/:slug/leases/:id
func (h *Handler) UpdateLease(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Tenant email, dates and rent amount are required",
		})
		return
	}

	l, err := h.service.UpdateDraft(c.Request.Context(), access.Org.ID, c.Param("id"), req)
	if err != nil {
		respondLeaseErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"lease": l})
}

// TerminateRequest selects the state the unit falls back to.
type TerminateRequest struct {
	UnitStatus string `json:"unitStatus"`
}

// TerminateLease handles POST /v1/orgs/:slug/leases/:id/terminate
func (h *Handler) TerminateLease(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	var req TerminateRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	unitStatus := property.UnitStatus(req.UnitStatus)
	if unitStatus == "" {
		unitStatus = property.UnitAvailable
	}

	l, err := h.service.Terminate(c.Request.Context(), access.Org.ID, c.Param("id"), unitStatus)
	if err != nil {
		respondLeaseErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"lease": l})
}

// DeleteLease handles DELETE /v1/orgs/:slug/leases/:id
func (h *Handler) DeleteLease(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	if err := h.service.DeleteDraft(c.Request.Context(), access.Org.ID, c.Param("id")); err != nil {
		respondLeaseErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// GetInvitation handles GET /v1/orgs/:slug/leases/:id/invitation
func (h *Handler) GetInvitation(c *gin.Context) {
	access := org.AccessFrom(c)

	inv, err := h.service.Invitation(c.Request.Context(), access.Org.ID, c.Param("id"))
	if err != nil {
		respondLeaseErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invitation": inv})
}

// AcceptInvitation handles POST /v1/lease-invitations/:token/accept
func (h *Handler) AcceptInvitation(c *gin.Context) {
	principal := identity.FromContext(c)

	l, err := h.service.Accept(c.Request.Context(), c.Param("token"), principal)
	if err != nil {
		respondLeaseErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"lease": l})
}
