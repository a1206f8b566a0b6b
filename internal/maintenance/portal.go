package maintenance

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kalvisk/namura/internal/apperr"
	"github.com/kalvisk/namura/internal/identity"
	"github.com/kalvisk/namura/internal/lease"
)

// LeaseSource resolves a tenant's lease. The portal only lets tenants
// report issues against units they actively rent.
type LeaseSource interface {
	TenantLease(ctx context.Context, tenantID, leaseID string) (*lease.Lease, error)
}

// PortalHandler serves the tenant side of issue reporting.
type PortalHandler struct {
	service *Service
	leases  LeaseSource
}

func NewPortalHandler(service *Service, leases LeaseSource) *PortalHandler {
	return &PortalHandler{service: service, leases: leases}
}

// RegisterRoutes sets up tenant issue routes under /portal.
func (h *PortalHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/issues", h.ListIssues)
	r.GET("/issues/:id", h.GetIssue)
	r.POST("/leases/:id/issues", h.ReportIssue)
}

// ListIssues handles GET /v1/portal/issues
func (h *PortalHandler) ListIssues(c *gin.Context) {
	principal := identity.FromContext(c)

	issues, err := h.service.ListReported(c.Request.Context(), principal.ID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"issues": issues,
		"count":  len(issues),
	})
}

// GetIssue handles GET /v1/portal/issues/:id. Tenants only see issues
// they reported themselves.
func (h *PortalHandler) GetIssue(c *gin.Context) {
	principal := identity.FromContext(c)

	issue, err := h.service.store.GetIssue(c.Request.Context(), c.Param("id"))
	if err != nil || issue.ReportedBy != principal.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Issue not found"})
		return
	}

	if !issue.ShowEstimatedCost {
		issue.EstimatedCost = 0
	}
	c.JSON(http.StatusOK, gin.H{"issue": issue})
}

// ReportIssue handles POST /v1/portal/leases/:id/issues. The lease must
// belong to the caller and be active.
func (h *PortalHandler) ReportIssue(c *gin.Context) {
	principal := identity.FromContext(c)

	l, err := h.leases.TenantLease(c.Request.Context(), principal.ID, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Lease not found"})
		return
	}
	if l.Status != lease.StatusActive {
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": lease.ErrNotActive.Error()})
		return
	}

	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Type, priority and description are required",
		})
		return
	}
	// tenants never set the cost estimate
	req.EstimatedCost = ""
	req.ShowEstimatedCost = nil

	issue, err := h.service.Report(c.Request.Context(), l.OrgID, l.UnitID, principal.ID, req)
	if err != nil {
		respondMaintenanceErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"issue": issue})
}
