package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics counts storefront synchronization outcomes. A nil receiver is a no-op.
type SyncMetrics struct {
	webhookEvents   *prometheus.CounterVec
	stockDeltas     *prometheus.CounterVec
	divergences     *prometheus.CounterVec
	orphans         *prometheus.CounterVec
	categoryCreates prometheus.Counter
	exports         *prometheus.CounterVec
}

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	m := &SyncMetrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Storefront webhook deliveries by audit event and signature validity.",
		}, []string{"event", "signature_valid"}),
		stockDeltas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_deltas_total",
			Help:      "Sale-driven stock deltas by outcome.",
		}, []string{"outcome"}),
		divergences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "divergent_fields_total",
			Help:      "Divergent fields found by rechecks.",
		}, []string{"field"}),
		orphans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphaned_mappings_total",
			Help:      "Mappings whose remote product or variant disappeared.",
		}, []string{"kind"}),
		categoryCreates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "categories_created_total",
			Help:      "Categories created on the storefront.",
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Product exports by mapping kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	reg.MustRegister(m.webhookEvents, m.stockDeltas, m.divergences, m.orphans, m.categoryCreates, m.exports)
	return m
}

func (m *SyncMetrics) IncWebhookEvent(event string, signatureValid bool) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(event), strconv.FormatBool(signatureValid)).Inc()
}

// IncStockDelta records a stock sync outcome: succeeded, failed, skipped or duplicate.
func (m *SyncMetrics) IncStockDelta(outcome string) {
	if m == nil || m.stockDeltas == nil {
		return
	}
	m.stockDeltas.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *SyncMetrics) IncDivergence(field string) {
	if m == nil || m.divergences == nil {
		return
	}
	m.divergences.WithLabelValues(normalizeLabel(field)).Inc()
}

// AddOrphans records n orphaned mappings of the given kind (product or variant).
func (m *SyncMetrics) AddOrphans(kind string, n int) {
	if m == nil || m.orphans == nil || n <= 0 {
		return
	}
	m.orphans.WithLabelValues(normalizeLabel(kind)).Add(float64(n))
}

func (m *SyncMetrics) IncCategoryCreated() {
	if m == nil || m.categoryCreates == nil {
		return
	}
	m.categoryCreates.Inc()
}

// IncExport records one export attempt. Outcome is created, updated or failed.
func (m *SyncMetrics) IncExport(kind, outcome string) {
	if m == nil || m.exports == nil {
		return
	}
	m.exports.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}
