package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API records per-endpoint latency and errors for the HTTP handlers.
type API struct {
	latency *prometheus.HistogramVec
	errors  *prometheus.CounterVec
}

// NewAPI registers the API metrics with reg.
func NewAPI(reg prometheus.Registerer) *API {
	f := promauto.With(reg)
	return &API{
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "structure",
				Subsystem: "api",
				Name:      "latency_seconds",
				Help:      "Latency of API endpoints",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "structure",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Errors by API endpoint",
			},
			[]string{"endpoint"},
		),
	}
}

// Observe records one call. Use it with defer and a start time.
func (a *API) Observe(endpoint string, start time.Time, err error) {
	if a == nil {
		return
	}
	a.latency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		a.errors.WithLabelValues(endpoint).Inc()
	}
}
