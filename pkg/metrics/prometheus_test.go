package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.WakeDetected("primary")
	m.Command("ai", "success", time.Second)
	m.Executor(1, 2)
	m.WatchdogAlert("speech")
	if m.Handler() == nil {
		t.Fatalf("expected a handler even for nil metrics")
	}
}

func TestCountersRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.WakeDetected("fallback")
	m.WakeDetected("fallback")
	m.ExecutorRejectedInc()

	body := scrape(t, m)
	if !strings.Contains(body, `jarvis_wake_detections_total{tier="fallback"} 2`) {
		t.Fatalf("expected 2 fallback detections:\n%s", body)
	}
	if !strings.Contains(body, "jarvis_executor_rejected_total 1") {
		t.Fatalf("expected 1 rejection:\n%s", body)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Transition("ASLEEP", "AWAKE_IDLE")

	body := scrape(t, m)
	if !strings.Contains(body, `jarvis_state_transitions_total{from="ASLEEP",to="AWAKE_IDLE"} 1`) {
		t.Fatalf("transition counter missing from exposition:\n%s", body)
	}
}
