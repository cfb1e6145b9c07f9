package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("severity", "severe"),
		attribute.String("account_id", "456"),
		attribute.String("outcome", "invalid"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "account_id" {
			t.Fatalf("expected account_id to be dropped")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordSignup(context.Background())
	m.RecordLogin(context.Background(), "success")
	m.RecordReportSubmitted(context.Background(), "light")
	m.RecordRateLimitDenied(context.Background(), "login", "exhausted")
}

func TestNoopMetricsRecord(t *testing.T) {
	m := NewNoop()
	if m == nil {
		t.Fatal("expected metrics")
	}
	m.RecordStatusChange(context.Background(), "resolved")
	m.RecordTwoFactorVerified(context.Background(), "success")
}

func TestHTTPMetricsCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	router := gin.New()
	router.Use(GinMiddleware(m))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues("/health", http.MethodGet, "200"))
	if got != 3 {
		t.Fatalf("expected 3 requests, got %v", got)
	}
}
