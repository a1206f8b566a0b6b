package billing

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kalvisk/namura/internal/identity"
)

// PortalHandler serves tenants their own invoices. Tenants see an invoice
// once it has been sent; drafts and cancelled invoices read as absent.
type PortalHandler struct {
	service *Service
}

func NewPortalHandler(service *Service) *PortalHandler {
	return &PortalHandler{service: service}
}

// RegisterRoutes sets up tenant invoice routes under /portal.
func (h *PortalHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/invoices", h.ListInvoices)
	r.GET("/invoices/:id", h.GetInvoice)
}

// ListInvoices handles GET /v1/portal/invoices
func (h *PortalHandler) ListInvoices(c *gin.Context) {
	principal := identity.FromContext(c)

	invoices, err := h.service.TenantInvoices(c.Request.Context(), principal.ID)
	if err != nil {
		respondBillingErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoices": invoices, "count": len(invoices)})
}

// GetInvoice handles GET /v1/portal/invoices/:id
func (h *PortalHandler) GetInvoice(c *gin.Context) {
	principal := identity.FromContext(c)

	inv, items, err := h.service.TenantInvoice(c.Request.Context(), principal.ID, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Invoice not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoice": inv, "items": items})
}
