package observability

import (
	"math"
	"sort"
	"sync"
	"time"
)

// GatewayOpStats summarises the recent calls of one gateway operation.
type GatewayOpStats struct {
	Op       string  `json:"op"`
	Calls    int     `json:"calls"`
	Failures int     `json:"failures"`
	Samples  int     `json:"samples"`
	LastMS   float64 `json:"last_ms"`
	AvgMS    float64 `json:"avg_ms"`
	P50MS    float64 `json:"p50_ms"`
	P95MS    float64 `json:"p95_ms"`
	MaxMS    float64 `json:"max_ms"`
	BudgetMS float64 `json:"budget_p95_ms,omitempty"`
	// OverBudget is set when p95 exceeds the op's budget.
	OverBudget bool `json:"over_budget"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	WindowSize  int              `json:"window_size"`
	Ops         []GatewayOpStats `json:"ops"`
}

// Rough p95 budgets for the chat gateway's REST round trips.
var gatewayBudgetsMS = map[string]float64{
	"send_message":     750,
	"edit_message":     750,
	"fetch_message":    500,
	"resolve_mentions": 1500,
}

// latencyWindow keeps the last maxSamples durations of each gateway op
// plus lifetime call and failure counts.
type latencyWindow struct {
	mu         sync.Mutex
	maxSamples int
	ops        map[string]*opRecord
}

type opRecord struct {
	recent   []float64
	calls    int
	failures int
}

func newLatencyWindow(maxSamples int) *latencyWindow {
	if maxSamples <= 0 {
		maxSamples = 256
	}
	return &latencyWindow{maxSamples: maxSamples, ops: make(map[string]*opRecord)}
}

func (w *latencyWindow) Record(op string, ms float64, failed bool) {
	if op == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	rec := w.ops[op]
	if rec == nil {
		rec = &opRecord{recent: make([]float64, 0, w.maxSamples)}
		w.ops[op] = rec
	}
	rec.calls++
	if failed {
		rec.failures++
	}
	if len(rec.recent) == w.maxSamples {
		copy(rec.recent, rec.recent[1:])
		rec.recent = rec.recent[:w.maxSamples-1]
	}
	rec.recent = append(rec.recent, ms)
}

func (w *latencyWindow) Snapshot() LatencySnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.maxSamples,
		Ops:         make([]GatewayOpStats, 0, len(w.ops)),
	}
	for op, rec := range w.ops {
		snap.Ops = append(snap.Ops, rec.stats(op))
	}
	sort.Slice(snap.Ops, func(i, j int) bool { return snap.Ops[i].Op < snap.Ops[j].Op })
	return snap
}

func (r *opRecord) stats(op string) GatewayOpStats {
	st := GatewayOpStats{Op: op, Calls: r.calls, Failures: r.failures, Samples: len(r.recent)}
	if len(r.recent) == 0 {
		return st
	}
	sorted := append([]float64(nil), r.recent...)
	sort.Float64s(sorted)
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	st.LastMS = round2(r.recent[len(r.recent)-1])
	st.AvgMS = round2(sum / float64(len(sorted)))
	st.P50MS = round2(nearestRank(sorted, 50))
	st.P95MS = round2(nearestRank(sorted, 95))
	st.MaxMS = round2(sorted[len(sorted)-1])
	if budget, ok := gatewayBudgetsMS[op]; ok {
		st.BudgetMS = budget
		st.OverBudget = st.P95MS > budget
	}
	return st
}

// nearestRank returns the smallest sample with at least pct percent of
// the samples at or below it.
func nearestRank(sorted []float64, pct int) float64 {
	rank := int(math.Ceil(float64(pct) / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
