package maintenance

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kalvisk/namura/internal/apperr"
	"github.com/kalvisk/namura/internal/org"
	"github.com/kalvisk/namura/internal/property"
)

// Handler provides the manager-side issue and repair endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterOrgRoutes sets up issue routes under /orgs/:slug.
func (h *Handler) RegisterOrgRoutes(r *gin.RouterGroup) {
	r.GET("/issues", h.ListIssues)
	r.POST("/units/:id/issues", h.ReportIssue)
	r.GET("/issues/:id", h.GetIssue)
	r.POST("/issues/:id/assign", h.AssignWork)
	r.POST("/issues/:id/status", h.UpdateStatus)
	r.GET("/issues/:id/work", h.ListWork)
	r.POST("/work/:id/complete", h.CompleteWork)
}

func respondMaintenanceErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrIssueNotFound), errors.Is(err, ErrMaintenanceNotFound),
		errors.Is(err, property.ErrUnitNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotCompletable):
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

// ListIssues handles GET /v1/orgs/:slug/issues
func (h *Handler) ListIssues(c *gin.Context) {
	access := org.AccessFrom(c)

	f := IssueFilter{
		UnitID:   c.Query("unit"),
		Status:   IssueStatus(c.Query("status")),
		Priority: Priority(c.Query("priority")),
		Type:     IssueType(c.Query("type")),
	}
	issues, err := h.service.List(c.Request.Context(), access.Org.ID, f)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"issues": issues,
		"count":  len(issues),
	})
}

// ReportIssue handles POST /v1/orgs/:slug/units/:id/issues
func (h *Handler) ReportIssue(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
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

	issue, err := h.service.Report(c.Request.Context(), access.Org.ID, c.Param("id"), access.Principal.ID, req)
	if err != nil {
		respondMaintenanceErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"issue": issue})
}

// GetIssue handles GET /v1/orgs/:slug/issues/:id
func (h *Handler) GetIssue(c *gin.Context) {
	access := org.AccessFrom(c)

	issue, err := h.service.Get(c.Request.Context(), access.Org.ID, c.Param("id"))
	if err != nil {
		respondMaintenanceErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"issue": issue})
}

// AssignWork handles POST /v1/orgs/:slug/issues/:id/assign
func (h *Handler) AssignWork(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Assignee and scheduled date are required",
		})
		return
	}

	w, err := h.service.Assign(c.Request.Context(), access.Org.ID, c.Param("id"), req)
	if err != nil {
		respondMaintenanceErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"work": w})
}

// StatusRequest selects the issue's next status.
type StatusRequest struct {
	Status IssueStatus `json:"status" binding:"required"`
}

// UpdateStatus handles POST /v1/orgs/:slug/issues/:id/status
func (h *Handler) UpdateStatus(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Status is required",
		})
		return
	}

	issue, err := h.service.UpdateStatus(c.Request.Context(), access.Org.ID, c.Param("id"), req.Status, access.Principal.ID)
	if err != nil {
		respondMaintenanceErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"issue": issue})
}

// ListWork handles GET /v1/orgs/:slug/issues/:id/work
func (h *Handler) ListWork(c *gin.Context) {
	access := org.AccessFrom(c)

	work, err := h.service.WorkForIssue(c.Request.Context(), access.Org.ID, c.Param("id"))
	if err != nil {
		respondMaintenanceErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"work":  work,
		"count": len(work),
	})
}

// CompleteWork handles POST /v1/orgs/:slug/work/:id/complete
func (h *Handler) CompleteWork(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Cost is required",
		})
		return
	}

	w, err := h.service.CompleteWork(c.Request.Context(), access.Org.ID, c.Param("id"), req)
	if err != nil {
		respondMaintenanceErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"work": w})
}
