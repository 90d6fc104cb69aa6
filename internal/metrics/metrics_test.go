package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.IncOutcome("slack", "replied")
	m.ObserveBackend("ok", time.Second)
	m.ObserveRequest("/healthz", "GET", 200, time.Millisecond)
	m.IncDebugUploads("ok")
	m.AddInflight(1)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.IncOutcome("slack", "replied")
	m.IncRepliesSent("slack", "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`relay_events_total{outcome="replied",platform="slack"} 1`,
		`relay_replies_sent_total{platform="slack",result="ok"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
