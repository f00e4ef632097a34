// Package metrics exposes the agent's own health as Prometheus metrics.
// It satisfies vigil.Observer and transport.Observer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// connectionStates lists every transport state so the gauge reads 1 for the
// current state and 0 for the rest.
var connectionStates = []string{"disconnected", "connecting", "connected", "authenticated", "reconnecting"}

type Metrics struct {
	// Captures by outcome: captured, sampled_out, sink_error.
	Captures *prometheus.CounterVec

	// Messages written to the collector, by envelope type.
	MessagesSent *prometheus.CounterVec

	// Messages waiting in the offline queue.
	QueuedMessages prometheus.Gauge

	// Messages dropped because the offline queue was full.
	QueueEvictions prometheus.Counter

	// Records dropped by the async sink.
	AsyncDropped prometheus.Counter

	// Reconnects scheduled.
	ReconnectAttempts prometheus.Counter

	// Current connection state (1 for the active state).
	ConnectionState *prometheus.GaugeVec
}

// New registers the metrics with reg. With a nil reg a private registry is
// used, so the metrics work but are not exported anywhere.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		Captures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_captures_total",
			Help: "Total number of exception captures by outcome.",
		}, []string{"outcome"}),

		MessagesSent: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_messages_sent_total",
			Help: "Total number of messages written to the collector.",
		}, []string{"type"}),

		QueuedMessages: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "vigil_queued_messages",
			Help: "Current number of messages waiting for an authenticated connection.",
		}),

		QueueEvictions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "vigil_queue_evictions_total",
			Help: "Total number of queued messages dropped because the queue was full.",
		}),

		AsyncDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "vigil_async_dropped_total",
			Help: "Total number of records dropped by the async sink.",
		}),

		ReconnectAttempts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "vigil_reconnect_attempts_total",
			Help: "Total number of reconnect attempts scheduled.",
		}),

		ConnectionState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "vigil_connection_state",
			Help: "Current collector connection state (1 for the active state).",
		}, []string{"state"}),
	}
	m.ObserveState("disconnected")
	return m
}

func (m *Metrics) ObserveCapture(outcome string) {
	m.Captures.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveMessageSent(msgType string) {
	m.MessagesSent.WithLabelValues(msgType).Inc()
}

func (m *Metrics) ObserveQueueDepth(n int) {
	m.QueuedMessages.Set(float64(n))
}

func (m *Metrics) ObserveEviction() {
	m.QueueEvictions.Inc()
}

func (m *Metrics) ObserveAsyncDrop() {
	m.AsyncDropped.Inc()
}

func (m *Metrics) ObserveReconnectAttempt() {
	m.ReconnectAttempts.Inc()
}

func (m *Metrics) ObserveState(state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ConnectionState.WithLabelValues(s).Set(v)
	}
}
