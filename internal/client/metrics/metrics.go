// Package metrics exposes Prometheus collectors for the client's remote
// calls, token refreshes and change feed. All methods are safe on a nil
// *Metrics, which disables collection.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roomchat_client"

// Call outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeRemote    = "remote_error"
	OutcomeForbidden = "forbidden"
	OutcomeTransport = "transport_error"
	OutcomeAuth      = "auth_failure"
)

type Metrics struct {
	registry *prometheus.Registry

	rpcCalls          *prometheus.CounterVec
	rpcLatency        *prometheus.HistogramVec
	refreshes         *prometheus.CounterVec
	retries           prometheus.Counter
	feedNotifications prometheus.Counter
	feedConnected     prometheus.Gauge
}

// New registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "Remote calls by method, call shape and outcome.",
		}, []string{"method", "shape", "outcome"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_call_duration_seconds",
			Help:      "Remote call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "shape"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts by result.",
		}, []string{"result"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_retries_total",
			Help:      "Calls replayed after a forbidden response.",
		}),
		feedNotifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_notifications_total",
			Help:      "Change notifications received on the push channel.",
		}),
		feedConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_connected",
			Help:      "1 while the push channel is connected.",
		}),
	}

	m.registry.MustRegister(
		m.rpcCalls,
		m.rpcLatency,
		m.refreshes,
		m.retries,
		m.feedNotifications,
		m.feedConnected,
		prometheus.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCall(method, shape, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.rpcCalls.WithLabelValues(method, shape, outcome).Inc()
	m.rpcLatency.WithLabelValues(method, shape).Observe(d.Seconds())
}

func (m *Metrics) ObserveRefresh(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) ObserveNotification() {
	if m == nil {
		return
	}
	m.feedNotifications.Inc()
}

func (m *Metrics) SetFeedConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.feedConnected.Set(1)
		return
	}
	m.feedConnected.Set(0)
}
