package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func TestFeedMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFeedEmission(3)
	c.RecordFeedEmission(5)
	c.RecordFeedError()
	c.RecordCommentPosted()

	if got := findFamily(t, reg, "portfolio_feed_emissions_total").GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("feed_emissions_total = %v, want 2", got)
	}
	if got := findFamily(t, reg, "portfolio_feed_comments").GetMetric()[0].GetGauge().GetValue(); got != 5 {
		t.Errorf("feed_comments = %v, want 5", got)
	}
	if got := findFamily(t, reg, "portfolio_feed_errors_total").GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("feed_errors_total = %v, want 1", got)
	}
}

func TestLikeTogglesByState(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLikeToggled(true)
	c.RecordLikeToggled(true)
	c.RecordLikeToggled(false)

	values := map[string]float64{}
	for _, metric := range findFamily(t, reg, "portfolio_like_toggles_total").GetMetric() {
		values[metric.GetLabel()[0].GetValue()] = metric.GetCounter().GetValue()
	}
	if values["liked"] != 2 || values["unliked"] != 1 {
		t.Errorf("unexpected like toggles %v", values)
	}
}

func TestStreamsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.StreamOpened()
	c.StreamOpened()
	c.StreamClosed()

	if got := findFamily(t, reg, "portfolio_active_streams").GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Errorf("active_streams = %v, want 1", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordChatReply("ok")
	c.RecordHTTPRequest("/comments", http.StatusOK, 20*time.Millisecond)
	c.RecordHTTPRequest("", http.StatusNotFound, time.Millisecond)

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, expected := range []string{
		`portfolio_chat_replies_total{outcome="ok"} 1`,
		`portfolio_http_requests_total{route="/comments",status_code="200"} 1`,
		`portfolio_http_requests_total{route="unmatched",status_code="404"} 1`,
	} {
		if !strings.Contains(string(body), expected) {
			t.Errorf("expected exposition to contain %q", expected)
		}
	}
}
