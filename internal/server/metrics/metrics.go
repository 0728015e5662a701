// Package metrics exposes Prometheus counters for the session lifecycle.
// All methods are safe on a nil *Metrics, so services can run without one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "somecontacts"

// Outcome labels.
const (
	ResultOK      = "ok"
	ResultDenied  = "denied"
	ResultExpired = "expired"
	ResultRevoked = "revoked"
	ResultInvalid = "invalid"
	ResultError   = "error"
)

type Metrics struct {
	registry      *prometheus.Registry
	logins        *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	gateDecisions *prometheus.CounterVec
	revoked       *prometheus.CounterVec
	purged        prometheus.Counter
}

// New registers the auth collectors plus the Go runtime and process
// collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refreshes_total",
			Help:      "Refresh attempts by result.",
		}, []string{"result"}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "gate_decisions_total",
			Help:      "Revocation gate decisions by result.",
		}, []string{"result"}),
		revoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tokens_revoked_total",
			Help:      "Ledger rows moved to inactive, by trigger.",
		}, []string{"reason"}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tokens_purged_total",
			Help:      "Expired ledger rows deleted.",
		}),
	}

	m.registry.MustRegister(
		m.logins, m.refreshes, m.gateDecisions, m.revoked, m.purged,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Login(result string) {
	if m != nil {
		m.logins.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Refresh(result string) {
	if m != nil {
		m.refreshes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) GateDecision(result string) {
	if m != nil {
		m.gateDecisions.WithLabelValues(result).Inc()
	}
}

// Revoked adds n rows revoked for reason ("logout", "logout_all", "rotation").
func (m *Metrics) Revoked(reason string, n int64) {
	if m != nil && n > 0 {
		m.revoked.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *Metrics) Purged(n int64) {
	if m != nil && n > 0 {
		m.purged.Add(float64(n))
	}
}
