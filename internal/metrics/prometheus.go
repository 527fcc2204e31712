// Package metrics records bridge activity with Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Notification outcomes.
const (
	OutcomeSent       = "sent"
	OutcomeFailed     = "failed"
	OutcomeSuppressed = "suppressed"
	OutcomeNoData     = "no_data"
)

// Recorder owns a private registry so several instances can coexist in tests.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	verdicts       *prometheus.CounterVec
	alertsRejected *prometheus.CounterVec
	regimeChecks   *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	ratios         *prometheus.GaugeVec
	altseason      prometheus.Gauge
	latency        *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec

	ratioMu     sync.Mutex
	ratioLabels map[string]struct{}
}

// New creates a recorder with Go runtime and process collectors attached.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Recorder{
		registry:    reg,
		ratioLabels: make(map[string]struct{}),
		verdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_bridge_verdicts_total",
				Help: "Verdicts returned for inbound alerts",
			},
			[]string{"verdict", "fallback"},
		),
		alertsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_bridge_alerts_rejected_total",
				Help: "Inbound alerts rejected before evaluation",
			},
			[]string{"reason"},
		),
		regimeChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_bridge_regime_evaluations_total",
				Help: "Regime evaluations by outcome",
			},
			[]string{"is_altseason"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_bridge_notifications_total",
				Help: "Regime notification attempts by outcome",
			},
			[]string{"outcome"},
		),
		ratios: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signal_bridge_regime_ratio",
				Help: "Last observed regime ratio",
			},
			[]string{"rule"},
		),
		altseason: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "signal_bridge_altseason",
				Help: "1 when the last evaluation reported altseason",
			},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signal_bridge_operation_duration_seconds",
				Help:    "Duration of outbound operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_bridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signal_bridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route", "method"},
		),
	}
}

// Handler exposes the registry for scraping.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordVerdict counts one returned verdict.
func (r *Recorder) RecordVerdict(verdict string, fallback bool) {
	if r == nil {
		return
	}
	r.verdicts.WithLabelValues(verdict, strconv.FormatBool(fallback)).Inc()
}

// RecordRejected counts an alert refused before evaluation.
func (r *Recorder) RecordRejected(reason string) {
	if r == nil {
		return
	}
	r.alertsRejected.WithLabelValues(reason).Inc()
}

// RecordRegime records the outcome of one regime evaluation. Ratios missing
// from the reading are removed from the ratio gauge.
func (r *Recorder) RecordRegime(isAltseason bool, ratios map[string]float64) {
	if r == nil {
		return
	}
	r.regimeChecks.WithLabelValues(strconv.FormatBool(isAltseason)).Inc()
	if isAltseason {
		r.altseason.Set(1)
	} else {
		r.altseason.Set(0)
	}

	r.ratioMu.Lock()
	defer r.ratioMu.Unlock()
	for rule := range r.ratioLabels {
		if _, ok := ratios[rule]; !ok {
			r.ratios.DeleteLabelValues(rule)
			delete(r.ratioLabels, rule)
		}
	}
	for rule, v := range ratios {
		r.ratios.WithLabelValues(rule).Set(v)
		r.ratioLabels[rule] = struct{}{}
	}
}

// RecordNotification counts a notification outcome.
func (r *Recorder) RecordNotification(outcome string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(outcome).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	if r == nil {
		return
	}
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordHTTP records one served request.
func (r *Recorder) RecordHTTP(route, method string, status int, seconds float64) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(seconds)
}
