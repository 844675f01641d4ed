// Package metrics holds the prometheus collectors of the api and reconciler
// processes. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "likefeed"

type Metrics struct {
	registry *prometheus.Registry

	rewards        *prometheus.CounterVec
	settleLatency  prometheus.Histogram
	gasFallbacks   prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
	ledgerAttempts *prometheus.GaugeVec
	reconciler     *prometheus.CounterVec
}

// New builds a fresh registry with the process and Go collectors plus the
// service collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		rewards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "rewards_total",
			Help:      "Like reward settlements segmented by outcome.",
		}, []string{"outcome"}),
		settleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "duration_seconds",
			Help:      "Time from request validation to counter increment or failure.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		gasFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "gas_estimate_fallbacks_total",
			Help:      "Transfers built with the fallback gas limit because estimation failed.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests segmented by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP handler latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ledgerAttempts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "attempts",
			Help:      "Reward attempts currently in each status.",
		}, []string{"status"}),
		reconciler: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "actions_total",
			Help:      "Reconciler decisions segmented by action.",
		}, []string{"action"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.rewards,
		m.settleLatency,
		m.gasFallbacks,
		m.httpRequests,
		m.httpLatency,
		m.ledgerAttempts,
		m.reconciler,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSettlement records one finished like settlement.
func (m *Metrics) ObserveSettlement(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.rewards.WithLabelValues(outcome).Inc()
	m.settleLatency.Observe(took.Seconds())
}

func (m *Metrics) GasFallback() {
	if m == nil {
		return
	}
	m.gasFallbacks.Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(took.Seconds())
}

// SetLedger replaces the per-status gauges with counts.
func (m *Metrics) SetLedger(counts map[string]int64) {
	if m == nil {
		return
	}
	m.ledgerAttempts.Reset()
	for status, n := range counts {
		m.ledgerAttempts.WithLabelValues(status).Set(float64(n))
	}
}

func (m *Metrics) ReconcilerAction(action string) {
	if m == nil {
		return
	}
	m.reconciler.WithLabelValues(action).Inc()
}
