package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyWindowSnapshot(t *testing.T) {
	w := newLatencyWindow(8)
	w.Record("send_message", 500, false)
	w.Record("send_message", 700, true)
	w.Record("send_message", 900, false)
	w.Record("edit_message", 40, false)

	snap := w.Snapshot()
	assert.Equal(t, 8, snap.WindowSize)
	require.Len(t, snap.Ops, 2)
	assert.Equal(t, "edit_message", snap.Ops[0].Op)

	s := snap.Ops[1]
	assert.Equal(t, GatewayOpStats{
		Op:         "send_message",
		Calls:      3,
		Failures:   1,
		Samples:    3,
		LastMS:     900,
		AvgMS:      700,
		P50MS:      700,
		P95MS:      900,
		MaxMS:      900,
		BudgetMS:   750,
		OverBudget: true,
	}, s)
}

func TestLatencyWindowKeepsRecentSamples(t *testing.T) {
	w := newLatencyWindow(2)
	w.Record("edit_message", 1, false)
	w.Record("edit_message", 2, false)
	w.Record("edit_message", 30, false)

	s := w.Snapshot().Ops[0]
	assert.Equal(t, 3, s.Calls)
	assert.Equal(t, 2, s.Samples)
	assert.Equal(t, 16.0, s.AvgMS)
	assert.Equal(t, 30.0, s.LastMS)
	assert.False(t, s.OverBudget)
}

func TestLatencyWindowIgnoresBadSamples(t *testing.T) {
	w := newLatencyWindow(4)
	w.Record("", 5, false)
	w.Record("custom_op", -1, false)
	assert.Empty(t, w.Snapshot().Ops)

	w.Record("custom_op", 5, false)
	s := w.Snapshot().Ops[0]
	assert.Zero(t, s.BudgetMS)
	assert.False(t, s.OverBudget)
}

func TestNearestRank(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, 5.0, nearestRank(sorted, 50))
	assert.Equal(t, 10.0, nearestRank(sorted, 95))
	assert.Equal(t, 1.0, nearestRank(sorted, 0))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.SessionEvent("created")
	m.Interaction("join", "ok")
	m.Evicted(2)
	m.WSConnection(1)
	m.ObserveGatewayCall("send_message", time.Millisecond, errors.New("boom"))
	assert.Empty(t, m.GatewayLatencySnapshot().Ops)
}

func TestMetricsRecordsGatewayFailures(t *testing.T) {
	m := NewMetrics("test_observability_" + time.Now().Format("150405") + "_" + time.Now().Format("000000000"))
	m.ObserveGatewayCall("fetch_message", 3*time.Millisecond, errors.New("boom"))
	m.ObserveGatewayCall("fetch_message", 5*time.Millisecond, nil)

	snap := m.GatewayLatencySnapshot()
	require.Len(t, snap.Ops, 1)
	assert.Equal(t, 2, snap.Ops[0].Calls)
	assert.Equal(t, 1, snap.Ops[0].Failures)
}
