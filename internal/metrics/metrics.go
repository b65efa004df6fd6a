package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records series operations. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	seriesEntries     prometheus.Gauge
	seriesDays        prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "templog_operations_total",
			Help: "Total series operations by operation and result.",
		}, []string{"op", "result"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "templog_operation_duration_seconds",
			Help:    "Histogram of series operation durations, provider round trip included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		seriesEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "templog_series_entries",
			Help: "Number of readings in the sparse series.",
		}),
		seriesDays: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "templog_series_days",
			Help: "Number of calendar days covered by the dense series.",
		}),
	}

	m.registry.MustRegister(
		m.operationsTotal,
		m.operationDuration,
		m.seriesEntries,
		m.seriesDays,
	)

	return m
}

func (m *Metrics) ObserveOperation(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operationsTotal.WithLabelValues(op, result).Inc()
	m.operationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) SetSeriesSize(entries, days int) {
	if m == nil {
		return
	}
	m.seriesEntries.Set(float64(entries))
	m.seriesDays.Set(float64(days))
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
