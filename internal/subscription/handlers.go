package subscription

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/kalvisk/namura/internal/apperr"
	"github.com/kalvisk/namura/internal/org"
)

// Handler provides HTTP endpoints for plans and subscriptions.
type Handler struct {
	service *Service
}

// NewHandler creates a new subscription handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the public plan catalogue route.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/plans", h.ListPlans)
}

// RegisterOrgRoutes sets up subscription routes under /orgs/:slug.
func (h *Handler) RegisterOrgRoutes(r *gin.RouterGroup) {
	r.GET("/subscription", h.GetSubscription)
	r.POST("/subscription/checkout", h.Checkout)
	r.DELETE("/subscription", h.Cancel)
}

// ListPlans handles GET /v1/plans
func (h *Handler) ListPlans(c *gin.Context) {
	plans := make([]Plan, 0, len(Plans))
	for _, p := range Plans {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Price < plans[j].Price })

	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

// GetSubscription handles GET /v1/orgs/:slug/subscription
func (h *Handler) GetSubscription(c *gin.Context) {
	access := org.AccessFrom(c)
	if !access.CanManageOrg() {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Only administrators can view the subscription",
		})
		return
	}

	sub, err := h.service.Current(c.Request.Context(), access.Org.ID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No subscription for this organization",
			})
			return
		}
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subscription": sub,
		"plan":         Plans[sub.Plan],
	})
}

// CheckoutRequest carries a plan purchase.
type CheckoutRequest struct {
	Plan PlanCode `json:"plan" binding:"required"`
}

// Checkout handles POST /v1/orgs/:slug/subscription/checkout
func (h *Handler) Checkout(c *gin.Context) {
	access := org.AccessFrom(c)
	if !access.IsOwner {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Only the organization owner can change the plan",
		})
		return
	}

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Plan is required",
		})
		return
	}

	sub, err := h.service.Checkout(c.Request.Context(), access.Org.ID, req.Plan)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Plan not found",
			})
			return
		}
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

// Cancel handles DELETE /v1/orgs/:slug/subscription
func (h *Handler) Cancel(c *gin.Context) {
	access := org.AccessFrom(c)
	if !access.IsOwner {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Only the organization owner can cancel the subscription",
		})
		return
	}

	sub, err := h.service.Cancel(c.Request.Context(), access.Org.ID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No subscription for this organization",
			})
			return
		}
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}
