// Package metrics exposes the firewall's Prometheus counters.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bouncer"

// Recorder implements waf.MetricsRecorder and evidence.PruneObserver.
// A nil *Recorder discards everything.
type Recorder struct {
	verdicts       *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	evidenceWrites *prometheus.CounterVec
	evidenceDur    *prometheus.HistogramVec
	pruned         prometheus.Counter
	datasetLoads   *prometheus.CounterVec
	datasetLoaded  prometheus.Gauge
}

// NewRecorder registers metrics with provided registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Requests classified, grouped by decision",
		}, []string{"decision"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Rejected requests grouped by the check that fired",
		}, []string{"check"}),
		evidenceWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evidence_writes_total",
			Help:      "Evidence writes grouped by outcome",
		}, []string{"outcome"}),
		evidenceDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evidence_write_duration_seconds",
			Help:      "Latency of evidence writes",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evidence_pruned_total",
			Help:      "Expired evidence records removed",
		}),
		datasetLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_loads_total",
			Help:      "Signature dataset loads grouped by result",
		}, []string{"result"}),
		datasetLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_loaded_timestamp_seconds",
			Help:      "Unix time the active signature dataset was loaded",
		}),
	}

	reg.MustRegister(
		r.verdicts,
		r.rejections,
		r.evidenceWrites,
		r.evidenceDur,
		r.pruned,
		r.datasetLoads,
		r.datasetLoaded,
	)
	return r
}

// Handler returns HTTP handler serving /metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ObserveVerdict counts a decision. For rejections the rule's check, the part before the slash, is counted too.
func (r *Recorder) ObserveVerdict(decision string, rule string) {
	if r == nil {
		return
	}
	if decision == "" {
		decision = "unknown"
	}
	r.verdicts.WithLabelValues(decision).Inc()

	if rule != "" {
		r.rejections.WithLabelValues(checkOf(rule)).Inc()
	}
}

// ObserveEvidenceWrite records how a write ended and how long it took.
func (r *Recorder) ObserveEvidenceWrite(outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	r.evidenceWrites.WithLabelValues(outcome).Inc()
	r.evidenceDur.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObservePruned adds n removed records.
func (r *Recorder) ObservePruned(n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.pruned.Add(float64(n))
}

// ObserveDatasetLoad records a dataset load attempt. at is only used on success.
func (r *Recorder) ObserveDatasetLoad(err error, at time.Time) {
	if r == nil {
		return
	}
	if err != nil {
		r.datasetLoads.WithLabelValues("error").Inc()
		return
	}
	r.datasetLoads.WithLabelValues("success").Inc()
	r.datasetLoaded.Set(float64(at.Unix()))
}

// checkOf keeps label cardinality at the number of checks.
func checkOf(rule string) string {
	check, _, _ := strings.Cut(rule, "/")
	return check
}
