package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the bot. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	Interactions     *prometheus.CounterVec
	Evictions        prometheus.Counter
	GatewayErrors    *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	WSConnections    prometheus.Gauge
	CommandCalls     *prometheus.CounterVec
	PublishLatency   prometheus.Histogram
	gatewayLatencies *latencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_checkin_sessions",
			Help:      "Number of running check-in sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkin_events_total",
			Help:      "Check-in session lifecycle events by type.",
		}, []string{"event"}),
		Interactions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_total",
			Help:      "Check-in button interactions by action and outcome.",
		}, []string{"action", "outcome"}),
		Evictions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Participants removed after reaching the absence threshold.",
		}),
		GatewayErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_errors_total",
			Help:      "Messaging gateway failures by operation.",
		}, []string{"op"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Live feed websocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open live feed websocket connections.",
		}),
		CommandCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_calls_total",
			Help:      "Slash command invocations by command and outcome.",
		}, []string{"command", "outcome"}),
		PublishLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_publish_latency_ms",
			Help:      "Time spent publishing one reminder cycle in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000},
		}),
		gatewayLatencies: newLatencyWindow(256),
	}
}

func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) Interaction(action, outcome string) {
	if m == nil {
		return
	}
	m.Interactions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) Evicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Evictions.Add(float64(n))
}

func (m *Metrics) Command(command, outcome string) {
	if m == nil {
		return
	}
	m.CommandCalls.WithLabelValues(command, outcome).Inc()
}

// WSConnection moves the open feed connection gauge by delta.
func (m *Metrics) WSConnection(delta int) {
	if m == nil {
		return
	}
	m.WSConnections.Add(float64(delta))
}

func (m *Metrics) WSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// ObserveGatewayCall records the latency of one gateway operation and
// counts it as an error when err is non-nil.
func (m *Metrics) ObserveGatewayCall(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.gatewayLatencies.Record(op, float64(d.Microseconds())/1000, err != nil)
	if err != nil {
		m.GatewayErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) ObservePublishLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.PublishLatency.Observe(float64(d.Milliseconds()))
}

// GatewayLatencySnapshot summarises recent gateway call latencies.
func (m *Metrics) GatewayLatencySnapshot() LatencySnapshot {
	if m == nil {
		return newLatencyWindow(0).Snapshot()
	}
	return m.gatewayLatencies.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
