package metrics

import (
	"MarketStructure/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	analyzeDuration *prometheus.HistogramVec
	signalsEmitted  *prometheus.CounterVec
	signalsSent     *prometheus.CounterVec
	emptyResults    *prometheus.CounterVec
	volatility      *prometheus.GaugeVec
	activeLevels    *prometheus.GaugeVec
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
}

// New registers the recorder with the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the recorder with reg, so tests can use a
// private registry.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		analyzeDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "structure_analyze_duration_seconds",
				Help:    "Duration of one engine analysis",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"instrument"},
		),
		signalsEmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "structure_signals_emitted_total",
				Help: "Candidates emitted by the engine",
			},
			[]string{"instrument", "pattern", "direction"},
		),
		signalsSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "structure_signals_published_total",
				Help: "Signals delivered to a backend",
			},
			[]string{"backend", "instrument"},
		),
		emptyResults: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "structure_empty_results_total",
				Help: "Analyses that produced no signal, by reason",
			},
			[]string{"instrument", "reason"},
		),
		volatility: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "structure_volatility",
				Help: "Last volatility estimate per instrument",
			},
			[]string{"instrument", "method"},
		),
		activeLevels: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "structure_active_levels",
				Help: "Anchor levels evaluated in the last analysis",
			},
			[]string{"instrument"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "structure_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "structure_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordAnalysis records one engine call and its outcome.
func (r *Recorder) RecordAnalysis(instrument string, seconds float64, res models.AnalysisResult) {
	r.analyzeDuration.WithLabelValues(instrument).Observe(seconds)
	r.activeLevels.WithLabelValues(instrument).Set(float64(len(res.Levels)))
	if res.Volatility != nil {
		r.volatility.WithLabelValues(instrument, string(res.Volatility.Method)).Set(res.Volatility.Value)
	}
	if len(res.Candidates) == 0 {
		r.emptyResults.WithLabelValues(instrument, string(res.Reason)).Inc()
		return
	}
	for _, c := range res.Candidates {
		r.signalsEmitted.WithLabelValues(instrument, string(c.Pattern), string(c.Direction)).Inc()
	}
}

// RecordSignal records a signal delivered to a backend.
func (r *Recorder) RecordSignal(backend string, s *models.Signal) {
	r.signalsSent.WithLabelValues(backend, s.Candidate.Instrument).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
