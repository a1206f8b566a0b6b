package property

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kalvisk/namura/internal/apperr"
	"github.com/kalvisk/namura/internal/org"
)

// Handler provides HTTP endpoints for properties, units, meters and
// readings. Tenants submit readings through the portal routes instead;
// everything here is the manager side.
type Handler struct {
	service *Service
	store   Store
}

// NewHandler creates a new property handler.
func NewHandler(service *Service, store Store) *Handler {
	return &Handler{service: service, store: store}
}

// RegisterOrgRoutes sets up property routes under /orgs/:slug.
func (h *Handler) RegisterOrgRoutes(r *gin.RouterGroup) {
	r.GET("/properties", h.ListProperties)
	r.POST("/properties", h.CreateProperty)
	r.GET("/properties/:id", h.GetProperty)
	r.PUT("/properties/:id", h.UpdateProperty)
	r.GET("/properties/:id/units", h.ListUnits)
	r.POST("/properties/:id/units", h.CreateUnit)
	r.GET("/units/:id", h.GetUnit)
	r.PUT("/units/:id", h.UpdateUnit)
	r.GET("/units/:id/meters", h.ListMeters)
	r.POST("/units/:id/meters", h.InstallMeter)
	r.POST("/meters/:id/supersede", h.SupersedeMeter)
	r.PUT("/meters/:id", h.UpdateMeter)
	r.POST("/meters/:id/deactivate", h.DeactivateMeter)
	r.GET("/meters/:id/readings", h.ReadingHistory)
	r.POST("/meters/:id/readings", h.SubmitReading)
	r.POST("/readings/:id/verify", h.VerifyReading)
}

func respondPropertyErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrPropertyNotFound), errors.Is(err, ErrUnitNotFound),
		errors.Is(err, ErrMeterNotFound), errors.Is(err, ErrReadingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, ErrAddressTaken), errors.Is(err, ErrUnitNumberTaken),
		errors.Is(err, ErrActiveMeterExists), errors.Is(err, ErrMeterNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
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

// ListProperties handles GET /v1/orgs/:slug/properties
func (h *Handler) ListProperties(c *gin.Context) {
	access := org.AccessFrom(c)

	props, err := h.store.ListProperties(c.Request.Context(), access.Org.ID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"properties": props,
		"count":      len(props),
	})
}

// CreateProperty handles POST /v1/orgs/:slug/properties
func (h *Handler) CreateProperty(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	var req PropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Address is required",
		})
		return
	}

	p, err := h.service.CreateProperty(c.Request.Context(), access.Org.ID, req)
	if err != nil {
		respondPropertyErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"property": p})
}

// GetProperty handles GET /v1/orgs/:slug/properties/:id
func (h *Handler) GetProperty(c *gin.Context) {
	access := org.AccessFrom(c)

	p, err := h.service.GetProperty(c.Request.Context(), access.Org.ID, c.Param("id"))
	if err != nil {
		respondPropertyErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"property": p})
}

// UpdateProperty handles PUT /v1/orgs/:slug/properties/:id
func (h *Handler) UpdateProperty(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	var req PropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Address is required",
		})
		return
	}

	p, err := h.service.UpdateProperty(c.Request.Context(), access.Org.ID, c.Param("id"), req)
	if err != nil {
		respondPropertyErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"property": p})
}

// ListUnits handles GET /v1/orgs/:slug/properties/:id/units
func (h *Handler) ListUnits(c *gin.Context) {
	access := org.AccessFrom(c)

	if _, err := h.service.GetProperty(c.Request.Context(), access.Org.ID, c.Param("id")); err != nil {
		respondPropertyErr(c, err)
		return
	}
	units, err := h.store.ListUnits(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"units": units,
		"count": len(units),
	})
}

// CreateUnit handles POST /v1/orgs/:slug/properties/:id/units
func (h *Handler) CreateUnit(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	var req UnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Unit number is required",
		})
		return
	}

	u, err := h.service.CreateUnit(c.Request.Context(), access.Org.ID, c.Param("id"), req)
	if err != nil {
		respondPropertyErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"unit": u})
}

// GetUnit handles GET /v1/orgs/:slug/units/:id
func (h *Handler) GetUnit(c *gin.Context) {
	access := org.AccessFrom(c)

	u, err := h.service.GetUnit(c.Request.Context(), access.Org.ID, c.Param("id"))
	if err != nil {
		respondPropertyErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unit": u})
}

// UpdateUnit handles PUT /v1/orgs/:slug/units/:id
func (h *Handler) UpdateUnit(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	var req UnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Unit number is required",
		})
		return
	}

	u, err := h.service.UpdateUnit(c.Request.Context(), access.Org.ID, c.Param("id"), req)
	if err != nil {
		respondPropertyErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unit": u})
}

// ListMeters handles GET /v1/orgs/:slug/units/:id/meters
func (h *Handler) ListMeters(c *gin.Context) {
	access := org.AccessFrom(c)

	meters, err := h.service.ListMeters(c.Request.Context(), access.Org.ID, c.Param("id"))
	if err != nil {
		respondPropertyErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"meters": meters,
		"count":  len(meters),
	})
}

// InstallMeter handles POST /v1/orgs/:slug/units/:id/meters
func (h *Handler) InstallMeter(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	var req MeterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Meter type and number are required",
		})
		return
	}

	m, err := h.service.InstallMeter(c.Request.Context(), access.Org.ID, c.Param("id"), req)
	if err != nil {
		respondPropertyErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"meter": m})
}

// SupersedeMeter handles POST /v1/orgs/:slug/meters/:id/supersede
func (h *Handler) SupersedeMeter(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	var req MeterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Meter number is required",
		})
		return
	}

	m, err := h.service.SupersedeMeter(c.Request.Context(), access.Org.ID, c.Param("id"), req)
	if err != nil {
		respondPropertyErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"meter": m})
}

// UpdateMeter handles PUT /v1/orgs/:slug/meters/:id
func (h *Handler) UpdateMeter(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	var req MeterUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	m, err := h.service.UpdateMeter(c.Request.Context(), access.Org.ID, c.Param("id"), req)
	if err != nil {
		respondPropertyErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"meter": m})
}

// DeactivateMeter handles POST /v1/orgs/:slug/meters/:id/deactivate
func (h *Handler) DeactivateMeter(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	m, err := h.service.DeactivateMeter(c.Request.Context(), access.Org.ID, c.Param("id"))
	if err != nil {
		respondPropertyErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"meter": m})
}

// ReadingHistory handles GET /v1/orgs/:slug/meters/:id/readings
func (h *Handler) ReadingHistory(c *gin.Context) {
	access := org.AccessFrom(c)

	rows, err := h.service.ReadingHistory(c.Request.Context(), access.Org.ID, c.Param("id"))
	if err != nil {
		respondPropertyErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"readings": rows,
		"count":    len(rows),
	})
}

// SubmitReading handles POST /v1/orgs/:slug/meters/:id/readings
func (h *Handler) SubmitReading(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	var req ReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Reading and date are required",
		})
		return
	}

	r, err := h.service.SubmitReading(c.Request.Context(), access.Org.ID, c.Param("id"), access.Principal.ID, req)
	if err != nil {
		respondPropertyErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"reading": r})
}

// VerifyReading handles POST /v1/orgs/:slug/readings/:id/verify
func (h *Handler) VerifyReading(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	r, err := h.service.VerifyReading(c.Request.Context(), access.Org.ID, c.Param("id"), access.Principal.ID)
	if err != nil {
		respondPropertyErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reading": r})
}
