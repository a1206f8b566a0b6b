package lease

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kalvisk/namura/internal/apperr"
	"github.com/kalvisk/namura/internal/identity"
	"github.com/kalvisk/namura/internal/property"
)

// MeterService is the slice of the property service the tenant portal
// uses. Every call is scoped by the organization of the tenant's lease.
type MeterService interface {
	ListMeters(ctx context.Context, orgID, unitID string) ([]*property.UnitMeter, error)
	GetMeter(ctx context.Context, orgID, meterID string) (*property.UnitMeter, error)
	SubmitReading(ctx context.Context, orgID, meterID, submitterID string, req property.ReadingRequest) (*property.MeterReading, error)
	ReadingHistory(ctx context.Context, orgID, meterID string) ([]property.ConsumptionRow, error)
}

// PortalHandler serves tenants. Tenants hold no organization membership;
// their access derives entirely from active leases, so every route here
// resolves the lease first and scopes through it.
type PortalHandler struct {
	service *Service
	meters  MeterService
}

func NewPortalHandler(service *Service, meters MeterService) *PortalHandler {
	return &PortalHandler{service: service, meters: meters}
}

// RegisterRoutes sets up tenant routes under /portal.
func (h *PortalHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/leases", h.ListLeases)
	r.GET("/leases/:id", h.GetLease)
	r.GET("/leases/:id/meters", h.ListMeters)
	r.GET("/leases/:id/meters/:meterID/readings", h.ReadingHistory)
	r.POST("/leases/:id/meters/:meterID/readings", h.SubmitReading)
}

// tenantLease loads a lease and confirms the caller is its tenant. A lease
// that is not the caller's reads as absent.
func (h *PortalHandler) tenantLease(c *gin.Context) *Lease {
	principal := identity.FromContext(c)
	l, err := h.service.TenantLease(c.Request.Context(), principal.ID, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Lease not found"})
		return nil
	}
	return l
}

// tenantMeter confirms the meter sits on the lease's unit.
func (h *PortalHandler) tenantMeter(c *gin.Context, l *Lease) *property.UnitMeter {
	m, err := h.meters.GetMeter(c.Request.Context(), l.OrgID, c.Param("meterID"))
	if err != nil || m.UnitID != l.UnitID {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Meter not found"})
		return nil
	}
	return m
}

// ListLeases handles GET /v1/portal/leases
func (h *PortalHandler) ListLeases(c *gin.Context) {
	principal := identity.FromContext(c)

	leases, err := h.service.ListByTenant(c.Request.Context(), principal.ID, Status(c.Query("status")))
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leases": leases,
		"count":  len(leases),
	})
}

// GetLease handles GET /v1/portal/leases/:id
func (h *PortalHandler) GetLease(c *gin.Context) {
	l := h.tenantLease(c)
	if l == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"lease": l})
}

// ListMeters handles GET /v1/portal/leases/:id/meters
func (h *PortalHandler) ListMeters(c *gin.Context) {
	l := h.tenantLease(c)
	if l == nil {
		return
	}

	meters, err := h.meters.ListMeters(c.Request.Context(), l.OrgID, l.UnitID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"meters": meters,
		"count":  len(meters),
	})
}

// ReadingHistory handles GET /v1/portal/leases/:id/meters/:meterID/readings
func (h *PortalHandler) ReadingHistory(c *gin.Context) {
	l := h.tenantLease(c)
	if l == nil {
		return
	}
	m := h.tenantMeter(c, l)
	if m == nil {
		return
	}

	rows, err := h.meters.ReadingHistory(c.Request.Context(), l.OrgID, m.ID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"readings": rows,
		"count":    len(rows),
	})
}

// SubmitReading handles POST /v1/portal/leases/:id/meters/:meterID/readings.
// Only the tenant of an active lease may submit, and only for meters on
// the leased unit.
func (h *PortalHandler) SubmitReading(c *gin.Context) {
	l := h.tenantLease(c)
	if l == nil {
		return
	}
	if l.Status != StatusActive {
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": ErrNotActive.Error()})
		return
	}
	m := h.tenantMeter(c, l)
	if m == nil {
		return
	}

	var req property.ReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Reading and date are required",
		})
		return
	}

	principal := identity.FromContext(c)
	r, err := h.meters.SubmitReading(c.Request.Context(), l.OrgID, m.ID, principal.ID, req)
	if err != nil {
		if errors.Is(err, property.ErrMeterNotActive) {
			c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
			return
		}
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"reading": r})
}
