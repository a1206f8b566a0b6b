package billing

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kalvisk/namura/internal/apperr"
	"github.com/kalvisk/namura/internal/lease"
	"github.com/kalvisk/namura/internal/notify"
	"github.com/kalvisk/namura/internal/org"
	"github.com/kalvisk/namura/internal/validation"
)

// Handler provides the manager-side tax and invoice endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterOrgRoutes sets up billing routes under /orgs/:slug.
func (h *Handler) RegisterOrgRoutes(r *gin.RouterGroup) {
	r.GET("/taxes", h.ListTaxes)
	r.POST("/taxes", h.CreateTax)
	r.PUT("/taxes/:id", h.UpdateTax)
	r.DELETE("/taxes/:id", h.DeleteTax)
	r.POST("/taxes/:id/default", h.SetDefaultTax)

	r.GET("/invoices", h.ListInvoices)
	r.GET("/leases/:id/invoice-candidates", h.InvoiceCandidates)
	r.POST("/leases/:id/invoices", h.CreateInvoice)
	r.GET("/invoices/:id", h.GetInvoice)
	r.PUT("/invoices/:id/items", h.UpdateItems)
	r.POST("/invoices/:id/send", h.SendInvoice)
	r.POST("/invoices/:id/pay", h.MarkPaid)
	r.POST("/invoices/:id/cancel", h.CancelInvoice)
}

func respondBillingErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrTaxNotFound), errors.Is(err, ErrInvoiceNotFound),
		errors.Is(err, lease.ErrLeaseNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, ErrTaxInUse), errors.Is(err, ErrInvoiceNotDraft),
		errors.Is(err, ErrInvalidState), errors.Is(err, ErrNoTenant),
		errors.Is(err, ErrNoLines):
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

func requireManager(c *gin.Context) *org.Access {
	access := org.AccessFrom(c)
	if !access.CanManageOrg() {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "Requires organization admin access",
		})
		return nil
	}
	return access
}

// ListTaxes handles GET /v1/orgs/:slug/taxes
func (h *Handler) ListTaxes(c *gin.Context) {
	access := org.AccessFrom(c)

	taxes, err := h.service.ListTaxes(c.Request.Context(), access.Org.ID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"taxes": taxes, "count": len(taxes)})
}

// CreateTax handles POST /v1/orgs/:slug/taxes
func (h *Handler) CreateTax(c *gin.Context) {
	access := requireManager(c)
	if access == nil {
		return
	}

	var req TaxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Name and rate are required",
		})
		return
	}

	t, err := h.service.CreateTax(c.Request.Context(), access.Org.ID, req)
	if err != nil {
		respondBillingErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"tax": t})
}

// UpdateTax handles PUT /v1/orgs/:slug/taxes/:id
func (h *Handler) UpdateTax(c *gin.Context) {
	access := requireManager(c)
	if access == nil {
		return
	}

	var req TaxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Name and rate are required",
		})
		return
	}

	t, err := h.service.UpdateTax(c.Request.Context(), access.Org.ID, c.Param("id"), req)
	if err != nil {
		respondBillingErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tax": t})
}

// DeleteTax handles DELETE /v1/orgs/:slug/taxes/:id
func (h *Handler) DeleteTax(c *gin.Context) {
	access := requireManager(c)
	if access == nil {
		return
	}

	force := c.Query("force") == "true"
	if err := h.service.DeleteTax(c.Request.Context(), access.Org.ID, c.Param("id"), force); err != nil {
		respondBillingErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// SetDefaultTax handles POST /v1/orgs/:slug/taxes/:id/default
func (h *Handler) SetDefaultTax(c *gin.Context) {
	access := requireManager(c)
	if access == nil {
		return
	}

	t, err := h.service.SetDefaultTax(c.Request.Context(), access.Org.ID, c.Param("id"))
	if err != nil {
		respondBillingErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tax": t})
}

// ListInvoices handles GET /v1/orgs/:slug/invoices
func (h *Handler) ListInvoices(c *gin.Context) {
	access := org.AccessFrom(c)

	f := InvoiceFilter{
		Status:  InvoiceStatus(c.Query("status")),
		LeaseID: c.Query("lease"),
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(validation.DateFormat, v); err == nil {
			f.From = t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(validation.DateFormat, v); err == nil {
			f.To = t
		}
	}

	invoices, err := h.service.List(c.Request.Context(), access.Org.ID, f)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoices": invoices, "count": len(invoices)})
}

// InvoiceCandidates handles GET /v1/orgs/:slug/leases/:id/invoice-candidates
func (h *Handler) InvoiceCandidates(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	lines, existing, err := h.service.PreviewCandidates(c.Request.Context(),
		access.Org.ID, c.Param("id"), c.Query("month"))
	if err != nil {
		if errors.Is(err, ErrInvoiceExists) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "invoice_exists",
				"message": err.Error(),
				"invoice": existing,
			})
			return
		}
		respondBillingErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"candidates": lines, "count": len(lines)})
}

// CreateInvoice handles POST /v1/orgs/:slug/leases/:id/invoices
func (h *Handler) CreateInvoice(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Selected line indexes are required",
		})
		return
	}

	inv, items, err := h.service.CreateInvoice(c.Request.Context(), access.Org.ID, c.Param("id"), req)
	if err != nil {
		if errors.Is(err, ErrInvoiceExists) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "invoice_exists",
				"message": err.Error(),
				"invoice": inv,
			})
			return
		}
		respondBillingErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"invoice": inv, "items": items})
}

// GetInvoice handles GET /v1/orgs/:slug/invoices/:id
func (h *Handler) GetInvoice(c *gin.Context) {
	access := org.AccessFrom(c)

	inv, items, err := h.service.Get(c.Request.Context(), access.Org.ID, c.Param("id"))
	if err != nil {
		respondBillingErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoice": inv, "items": items})
}

// ItemsRequest is the full replacement set for a draft invoice.
type ItemsRequest struct {
	Items []ItemRequest `json:"items" binding:"required"`
}

// UpdateItems handles PUT /v1/orgs/:slug/invoices/:id/items
func (h *Handler) UpdateItems(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	var req ItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Each item needs a description, quantity and unit price",
		})
		return
	}

	inv, items, err := h.service.UpdateItems(c.Request.Context(), access.Org.ID, c.Param("id"), req.Items)
	if err != nil {
		respondBillingErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoice": inv, "items": items})
}

// SendInvoice handles POST /v1/orgs/:slug/invoices/:id/send
func (h *Handler) SendInvoice(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	inv, err := h.service.Send(c.Request.Context(), access.Org.ID, c.Param("id"))
	if err != nil {
		if errors.Is(err, notify.ErrDispatchFailed) {
			c.JSON(http.StatusOK, gin.H{"invoice": inv, "emailDelivery": "failed"})
			return
		}
		respondBillingErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoice": inv})
}

// MarkPaid handles POST /v1/orgs/:slug/invoices/:id/pay
func (h *Handler) MarkPaid(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	inv, err := h.service.MarkPaid(c.Request.Context(), access.Org.ID, c.Param("id"))
	if err != nil {
		respondBillingErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoice": inv})
}

// CancelRequest acknowledges that cancellation is permanent.
type CancelRequest struct {
	Confirm bool `json:"confirm"`
}

// CancelInvoice handles POST /v1/orgs/:slug/invoices/:id/cancel
func (h *Handler) CancelInvoice(c *gin.Context) {
	access := requireOperator(c)
	if access == nil {
		return
	}

	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	inv, err := h.service.Cancel(c.Request.Context(), access.Org.ID, c.Param("id"), req.Confirm)
	if err != nil {
		respondBillingErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoice": inv})
}
