// Package server exposes Prometheus metrics for connections, rooms, routed
// frames and fan-out deliveries.
package server

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons for inbound frames.
const (
	dropMalformed   = "malformed"
	dropUnknownType = "unknown_type"
	dropRateLimited = "rate_limited"
)

// Metrics groups the collectors updated by the hub and its components.
type Metrics struct {
	registry *prometheus.Registry

	connections      prometheus.Gauge
	rooms            prometheus.Gauge
	frames           *prometheus.CounterVec
	framesDropped    *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
}

// NewMetrics registers the relay collectors on a fresh registry, so several
// hubs (as in tests) never collide on the global one.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_connections",
			Help: "Number of open WebSocket connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_rooms",
			Help: "Number of rooms with at least one member.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_frames_total",
			Help: "Inbound frames routed, by envelope type.",
		}, []string{"type"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_frames_dropped_total",
			Help: "Inbound frames dropped before routing, by reason.",
		}, []string{"reason"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_deliveries_total",
			Help: "Outbound frames queued to members, by kind.",
		}, []string{"kind"}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_delivery_failures_total",
			Help: "Outbound frames skipped for a member, by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		m.connections,
		m.rooms,
		m.frames,
		m.framesDropped,
		m.deliveries,
		m.deliveryFailures,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) frameRouted(typ string) {
	m.frames.WithLabelValues(typ).Inc()
}

func (m *Metrics) frameDropped(reason string) {
	m.framesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) delivered(kind string, n int) {
	if n > 0 {
		m.deliveries.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *Metrics) deliveryFailed(err error) {
	reason := "closed"
	if errors.Is(err, ErrSendBufferFull) {
		reason = "buffer_full"
	}
	m.deliveryFailures.WithLabelValues(reason).Inc()
}
