package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsExposed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	RegisterGauge(reg, "betclever_ws_clients", "Connected change feed clients.", func() float64 { return 3 })

	m.ObserveRequest("GET", "/api/v1/me", "200", 5*time.Millisecond)
	m.ObserveLogin("ok")
	m.ObserveLogin("ok")
	m.ObserveReviewStatus("approved")
	m.ObserveDocuments("identity", 2)
	m.ObserveRejectedDocuments(1)

	if got := testutil.ToFloat64(m.Logins.WithLabelValues("ok")); got != 2 {
		t.Fatalf("expected 2 logins, got %v", got)
	}
	if got := testutil.ToFloat64(m.DocumentsAccepted.WithLabelValues("identity")); got != 2 {
		t.Fatalf("expected 2 documents, got %v", got)
	}

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rr.Body)
	for _, want := range []string{"http_requests_total", "betclever_review_status_changes_total", "betclever_ws_clients 3"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", "/", "200", time.Second)
	m.ObserveRegistration("ok")
	m.ObserveProjectStatus("payout")
}
