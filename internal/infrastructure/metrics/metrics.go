package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"rpkimon/internal/ports"
)

// Metrics tracks ingestion throughput and entity growth.
type Metrics struct {
	UpdatesCreated  prometheus.Counter
	Records         *prometheus.CounterVec
	EntitiesCreated *prometheus.CounterVec
	BatchDuration   *prometheus.HistogramVec
}

// New registers the ingestion metrics on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		UpdatesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "rpkimon_updates_created_total",
			Help: "Total number of ingestion runs (updates) started",
		}),
		Records: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rpkimon_records_total",
			Help: "Report records processed, by batch kind and outcome",
		}, []string{"kind", "outcome"}),
		EntitiesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rpkimon_entities_created_total",
			Help: "Dimension rows newly created by get-or-create, by entity",
		}, []string{"entity"}),
		BatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rpkimon_batch_duration_seconds",
			Help:    "Duration of one batch ingestion",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
	}
}

func (m *Metrics) IncrementUpdatesCreated() {
	if m == nil {
		return
	}
	m.UpdatesCreated.Inc()
}

func (m *Metrics) IncrementRecord(kind, outcome string) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(kind, outcome).Inc()
}

var _ ports.IngestMetrics = (*Metrics)(nil)

// IncrementCreated counts entity only when created is true, so callers can
// pass the get-or-create flag straight through.
func (m *Metrics) IncrementCreated(entity string, created bool) {
	if m == nil || !created {
		return
	}
	m.EntitiesCreated.WithLabelValues(entity).Inc()
}

// ObserveBatch records the duration of a batch that started at start.
func (m *Metrics) ObserveBatch(kind string, start time.Time) {
	if m == nil {
		return
	}
	m.BatchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
