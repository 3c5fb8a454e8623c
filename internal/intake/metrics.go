package intake

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for ingestion batches.
type Metrics struct {
	batches   *prometheus.CounterVec
	documents *prometheus.CounterVec
	parts     *prometheus.CounterVec
	matches   *prometheus.CounterVec
	created   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

// NewMetrics registers the intake metrics against registerer, or the default
// Prometheus registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultMetricsOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerdesk_intake_batches_total",
			Help: "Ingestion batches driven to completion by kind, mode and whether they were aborted.",
		}, []string{"kind", "mode", "aborted"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerdesk_intake_documents_total",
			Help: "Extracted documents by kind, final status and failing stage.",
		}, []string{"kind", "status", "stage"}),
		parts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerdesk_intake_parts_total",
			Help: "Extracted line items by final status.",
		}, []string{"status"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerdesk_intake_matches_total",
			Help: "Party match decisions by kind and match type.",
		}, []string{"kind", "match"}),
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerdesk_intake_parties_created_total",
			Help: "Parties created for unmatched documents.",
		}, []string{"kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledgerdesk_intake_batch_duration_seconds",
			Help:    "Wall time spent driving a batch.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"kind", "mode"}),
	}
	registerer.MustRegister(m.batches, m.documents, m.parts, m.matches, m.created, m.duration)
	return m
}

// Observe records a finished report.
func (m *Metrics) Observe(r Report) {
	if m == nil {
		return
	}
	kind := string(r.Kind)
	aborted := "false"
	if r.Aborted {
		aborted = "true"
	}
	m.batches.WithLabelValues(kind, string(r.Mode), aborted).Inc()
	for _, o := range r.Outcomes {
		m.documents.WithLabelValues(kind, string(o.Status), string(o.FailedStage)).Inc()
		if o.PartyID > 0 {
			m.matches.WithLabelValues(kind, o.Match.String()).Inc()
		}
		for _, p := range o.Parts {
			m.parts.WithLabelValues(string(p.Status)).Inc()
		}
	}
	if r.Totals.PartiesCreated > 0 {
		m.created.WithLabelValues(kind).Add(float64(r.Totals.PartiesCreated))
	}
	if !r.StartedAt.IsZero() && !r.FinishedAt.IsZero() {
		m.duration.WithLabelValues(kind, string(r.Mode)).Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
	}
}
