package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"equityBot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.Metrics = (*Recorder)(nil)

// value returns the sample of name whose labels include every pair in labels.
func value(t *testing.T, r *Recorder, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := r.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			got := make(map[string]string)
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue metrics
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func TestRecorder_Collects(t *testing.T) {
	r := NewRecorder()

	r.ObserveDecision("L2_relative_strength", false)
	r.ObserveDecision("L2_relative_strength", false)
	r.ObserveDecision("L6_final", true)
	r.IncSkip("cooldown")
	r.IncOrder("BUY", true)
	r.IncExit("partial_tier")
	r.SetRealizedPNL(-120.5, 340)
	r.SetOpenPositions(3)

	assert.Equal(t, 2.0, value(t, r, "equitybot_decisions_total", map[string]string{"stage": "L2_relative_strength", "passed": "false"}))
	assert.Equal(t, 1.0, value(t, r, "equitybot_decisions_total", map[string]string{"stage": "L6_final", "passed": "true"}))
	assert.Equal(t, 1.0, value(t, r, "equitybot_skips_total", map[string]string{"reason": "cooldown"}))
	assert.Equal(t, 1.0, value(t, r, "equitybot_orders_total", map[string]string{"side": "BUY", "accepted": "true"}))
	assert.Equal(t, 1.0, value(t, r, "equitybot_exits_total", map[string]string{"rule": "partial_tier"}))
	assert.Equal(t, -120.5, value(t, r, "equitybot_realized_pnl", map[string]string{"period": "daily"}))
	assert.Equal(t, 340.0, value(t, r, "equitybot_realized_pnl", map[string]string{"period": "weekly"}))
	assert.Equal(t, 3.0, value(t, r, "equitybot_open_positions", nil))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.IncExit("hard_stop")

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `equitybot_exits_total{rule="hard_stop"} 1`)
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	a.IncSkip("banned")
	assert.Equal(t, 0.0, value(t, b, "equitybot_skips_total", map[string]string{"reason": "banned"}))
}
