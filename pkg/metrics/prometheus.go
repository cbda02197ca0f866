package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	trainingRuns     *prometheus.CounterVec
	trainingDuration prometheus.Histogram
	driftChecks      *prometheus.CounterVec
	driftScore       *prometheus.GaugeVec
	accuracyDrop     *prometheus.GaugeVec
	promotions       *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		trainingRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revsight_training_runs_total",
				Help: "Training runs by outcome",
			},
			[]string{"outcome"},
		),
		trainingDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "revsight_training_duration_seconds",
				Help:    "Duration of full training runs",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		driftChecks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revsight_drift_checks_total",
				Help: "Drift checks by model version and result",
			},
			[]string{"version", "drifting"},
		),
		driftScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "revsight_drift_score",
				Help: "Latest overall drift score (mean PSI) per version",
			},
			[]string{"version"},
		),
		accuracyDrop: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "revsight_accuracy_drop",
				Help: "Latest train-vs-production accuracy drop per version",
			},
			[]string{"version"},
		),
		promotions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revsight_promotions_total",
				Help: "Model promotions",
			},
			[]string{"version"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revsight_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "revsight_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTrainingRun counts a run by outcome (accepted, rejected, failed,
// insufficient_data).
func (r *Recorder) RecordTrainingRun(outcome string) {
	r.trainingRuns.WithLabelValues(outcome).Inc()
}

// RecordTrainingDuration records a full run's wall time.
func (r *Recorder) RecordTrainingDuration(seconds float64) {
	r.trainingDuration.Observe(seconds)
}

// RecordDriftCheck counts a drift check result.
func (r *Recorder) RecordDriftCheck(version string, drifting bool) {
	label := "false"
	if drifting {
		label = "true"
	}
	r.driftChecks.WithLabelValues(version, label).Inc()
}

// RecordDriftScore records the latest overall drift score.
func (r *Recorder) RecordDriftScore(version string, score float64) {
	r.driftScore.WithLabelValues(version).Set(score)
}

// RecordAccuracyDrop records the latest accuracy drop.
func (r *Recorder) RecordAccuracyDrop(version string, drop float64) {
	r.accuracyDrop.WithLabelValues(version).Set(drop)
}

// RecordPromotion counts a promotion.
func (r *Recorder) RecordPromotion(version string) {
	r.promotions.WithLabelValues(version).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
