package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCountersAndGauges(t *testing.T) {
	m := New(Gauges{
		ActiveAgents: func() float64 { return 3 },
		QueueLength:  func() float64 { return 2 },
	})

	m.Transitions.WithLabelValues("Wandering", "MovingToQueue").Inc()
	m.Recycles.WithLabelValues("returned").Add(2)
	m.Revenue.Add(150)

	body := scrape(t, m)
	require.Contains(t, body, `motelsim_agent_transitions_total{from="Wandering",to="MovingToQueue"} 1`)
	require.Contains(t, body, `motelsim_agent_recycles_total{reason="returned"} 2`)
	require.Contains(t, body, "motelsim_billing_revenue_total 150")
	require.Contains(t, body, "motelsim_agent_active 3")
	require.Contains(t, body, "motelsim_counter_queue_length 2")
	require.NotContains(t, body, "motelsim_rooms_total")
}
