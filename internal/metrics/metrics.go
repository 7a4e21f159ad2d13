// Package metrics exposes Prometheus collectors for the zone connection:
// command round trips, notifications received and the connection state.
package metrics

import (
	"net/http"
	"time"

	"github.com/boardledger/boardgame-go/internal/zone"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Command results recorded by RecordCommand.
const (
	ResultSuccess        = "success"
	ResultErrors         = "errors"
	ResultNotSet         = "not_set"
	ResultTransportError = "transport_error"
)

var connectionStates = []zone.ConnectionState{
	zone.ConnectionStateUnavailable,
	zone.ConnectionStateGeneralFailure,
	zone.ConnectionStateTLSError,
	zone.ConnectionStateAvailable,
	zone.ConnectionStateConnecting,
	zone.ConnectionStateAuthenticating,
	zone.ConnectionStateOnline,
	zone.ConnectionStateDisconnecting,
}

// Collector holds the client collectors on a private registry. A nil
// *Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	commands        *prometheus.CounterVec
	commandLatency  *prometheus.HistogramVec
	notifications   *prometheus.CounterVec
	connectionState *prometheus.GaugeVec
	stateChanges    prometheus.Counter
}

// NewCollector creates a collector whose metric names start with namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "boardgame"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "zone",
			Name:      "commands_total",
			Help:      "Zone commands sent, by command type and result.",
		},
		[]string{"command", "result"},
	)

	c.commandLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "zone",
			Name:      "command_duration_seconds",
			Help:      "Round trip time of zone commands.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"command"},
	)

	c.notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "zone",
			Name:      "notifications_total",
			Help:      "Zone notifications received, by type.",
		},
		[]string{"type"},
	)

	c.connectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "1 for the current connection state, 0 for every other state.",
		},
		[]string{"state"},
	)

	c.stateChanges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "state_changes_total",
			Help:      "Connection state transitions.",
		},
	)

	c.registry.MustRegister(
		c.commands,
		c.commandLatency,
		c.notifications,
		c.connectionState,
		c.stateChanges,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	for _, s := range connectionStates {
		c.connectionState.WithLabelValues(s.String()).Set(0)
	}
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler exposing the collected metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordCommand records one command round trip.
func (c *Collector) RecordCommand(command zone.CommandType, result string, duration time.Duration) {
	if c == nil {
		return
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	c.commands.WithLabelValues(string(command), result).Inc()
	c.commandLatency.WithLabelValues(string(command)).Observe(duration.Seconds())
}

func (c *Collector) RecordNotification(t zone.NotificationType) {
	if c == nil {
		return
	}
	if t == "" {
		t = "unknown"
	}
	c.notifications.WithLabelValues(string(t)).Inc()
}

// RecordConnectionState marks s as the current state.
func (c *Collector) RecordConnectionState(s zone.ConnectionState) {
	if c == nil {
		return
	}
	for _, state := range connectionStates {
		value := 0.0
		if state == s {
			value = 1
		}
		c.connectionState.WithLabelValues(state.String()).Set(value)
	}
	c.stateChanges.Inc()
}

// ResultOf classifies a command outcome for RecordCommand.
func ResultOf(resp zone.Response, err error) string {
	if err != nil {
		return ResultTransportError
	}
	switch resp.(type) {
	case zone.Errors:
		return ResultErrors
	case zone.NotSet, nil:
		return ResultNotSet
	default:
		return ResultSuccess
	}
}
