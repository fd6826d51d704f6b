package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getMetricsBody(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Transition(t *testing.T) {
	m := New()
	m.Transition("join", "ok", 3*time.Millisecond)
	m.Transition("join", "ok", time.Millisecond)
	m.Transition("start", "partial_failure", time.Millisecond)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `santa_transitions_total{op="join",status="ok"} 2`)
	assert.Contains(t, body, `santa_transitions_total{op="start",status="partial_failure"} 1`)
	assert.Contains(t, body, `santa_transition_duration_seconds_count{op="join"} 2`)
}

func TestMetrics_DraftAndDelivery(t *testing.T) {
	m := New()
	m.Drafted(4)
	m.Delivery("send_private", true)
	m.Delivery("send_private", false)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, "santa_draft_participants_count 1")
	assert.Contains(t, body, `santa_deliveries_total{kind="send_private",result="ok"} 1`)
	assert.Contains(t, body, `santa_deliveries_total{kind="send_private",result="failed"} 1`)
}

func TestMetrics_Sweep(t *testing.T) {
	m := New()
	m.SweepCompleted(10, 3, time.Second)
	m.SetActiveSessions(map[string]int{"open": 5, "started": 2})
	m.SetActiveSessions(map[string]int{"open": 4})

	body := getMetricsBody(t, m)
	assert.Contains(t, body, "santa_sweeps_total 1")
	assert.Contains(t, body, "santa_sweep_expired_total 3")
	assert.Contains(t, body, `santa_active_sessions{state="open"} 4`)
	assert.NotContains(t, body, `santa_active_sessions{state="started"}`)
}

func TestMetrics_HTTPRequest(t *testing.T) {
	m := New()
	m.HTTPRequest("GET", "/api/v1/sessions", "200")

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `santa_mgmt_requests_total{code="200",method="GET",route="/api/v1/sessions"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetrics_Gauge(t *testing.T) {
	m := New()
	require.NoError(t, m.Gauge("santa_admin_cache_hit_ratio", "hits", func() float64 { return 0.5 }))
	assert.Error(t, m.Gauge("santa_admin_cache_hit_ratio", "hits", func() float64 { return 1 }))

	body := getMetricsBody(t, m)
	assert.Contains(t, body, "santa_admin_cache_hit_ratio 0.5")
}
