package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes decision and ensemble metrics to Prometheus.
type Recorder struct {
	decisions       *prometheus.CounterVec
	decisionLatency *prometheus.HistogramVec
	ensembleVersion prometheus.Gauge
	ensembleWeight  *prometheus.GaugeVec
	reloads         *prometheus.CounterVec
	publishFailures prometheus.Counter
	trainingRMSE    *prometheus.GaugeVec
}

// New registers the recorder's collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shelfcast_decisions_total",
				Help: "Decisions served, by stock status or error code.",
			},
			[]string{"outcome", "horizon"},
		),
		decisionLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shelfcast_decision_duration_seconds",
				Help:    "Decision latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"cached"},
		),
		ensembleVersion: f.NewGauge(prometheus.GaugeOpts{
			Name: "shelfcast_ensemble_version",
			Help: "Version of the installed ensemble snapshot.",
		}),
		ensembleWeight: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shelfcast_ensemble_weight",
				Help: "Blending weight per model in the installed snapshot.",
			},
			[]string{"model"},
		),
		reloads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shelfcast_ensemble_reloads_total",
				Help: "Ensemble reload attempts by result.",
			},
			[]string{"result"},
		),
		publishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "shelfcast_decision_publish_failures_total",
			Help: "Decision records that could not be published.",
		}),
		trainingRMSE: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shelfcast_training_rmse",
				Help: "Hold-out RMSE of the last training run per model.",
			},
			[]string{"model"},
		),
	}
}

func (r *Recorder) RecordDecision(outcome, horizon string, cached bool, d time.Duration) {
	r.decisions.WithLabelValues(outcome, horizon).Inc()
	label := "false"
	if cached {
		label = "true"
	}
	r.decisionLatency.WithLabelValues(label).Observe(d.Seconds())
}

// RecordSnapshot replaces the per-model weight gauges.
func (r *Recorder) RecordSnapshot(version int, weights map[string]float64) {
	r.ensembleVersion.Set(float64(version))
	r.ensembleWeight.Reset()
	for model, w := range weights {
		r.ensembleWeight.WithLabelValues(model).Set(w)
	}
}

func (r *Recorder) RecordReload(result string) {
	r.reloads.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordPublishFailure() {
	r.publishFailures.Inc()
}

func (r *Recorder) RecordTrainingRMSE(model string, rmse float64) {
	r.trainingRMSE.WithLabelValues(model).Set(rmse)
}
