package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	dto "github.com/prometheus/client_model/go"
)

func TestInvoicesTotal_Increments(t *testing.T) {
	InvoicesTotal.Reset()

	InvoicesTotal.WithLabelValues("draft").Inc()
	InvoicesTotal.WithLabelValues("draft").Inc()
	InvoicesTotal.WithLabelValues("sent").Inc()

	m := &dto.Metric{}
	counter, err := InvoicesTotal.GetMetricWithLabelValues("draft")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues failed: %v", err)
	}
	_ = counter.Write(m)

	if m.Counter.GetValue() != 2.0 {
		t.Errorf("expected counter value 2, got %f", m.Counter.GetValue())
	}
}

func TestMiddleware_RecordsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	HTTPRequestsTotal.Reset()

	r := gin.New()
	r.Use(Middleware())
	r.GET("/orgs/:slug/invoices", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/orgs/acme/invoices", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	// the route pattern, not the concrete slug, becomes the label
	m := &dto.Metric{}
	counter, err := HTTPRequestsTotal.GetMetricWithLabelValues("GET", "/orgs/:slug/invoices", "200")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues failed: %v", err)
	}
	_ = counter.Write(m)

	if m.Counter.GetValue() != 1.0 {
		t.Errorf("expected counter value 1, got %f", m.Counter.GetValue())
	}
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	HTTPRequestsTotal.Reset()

	r := gin.New()
	r.Use(Middleware())

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/nope", nil)
	r.ServeHTTP(w, req)

	m := &dto.Metric{}
	counter, err := HTTPRequestsTotal.GetMetricWithLabelValues("GET", "unmatched", "404")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues failed: %v", err)
	}
	_ = counter.Write(m)

	if m.Counter.GetValue() != 1.0 {
		t.Errorf("expected counter value 1, got %f", m.Counter.GetValue())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", Handler())

	MeterReadingsTotal.WithLabelValues("cold_water").Inc()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "namura_meter_readings_total") {
		t.Error("expected namura_meter_readings_total in scrape output")
	}
}
