package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics exposes counters/histograms for SLA scan and escalation flows.
type EngineMetrics struct {
	scansTotal       *prometheus.CounterVec
	scanDuration     *prometheus.HistogramVec
	escalationsTotal *prometheus.CounterVec
	breachesTotal    *prometheus.CounterVec
	itemsSkipped     *prometheus.CounterVec
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxloop",
			Subsystem: "sla",
			Name:      "scans_total",
			Help:      "Total SLA scans per account",
		}, []string{"status"}),
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voxloop",
			Subsystem: "sla",
			Name:      "scan_duration_seconds",
			Help:      "Duration of one account scan",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		escalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxloop",
			Subsystem: "sla",
			Name:      "escalations_total",
			Help:      "Total escalation records opened",
		}, []string{"tier", "reason"}),
		breachesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxloop",
			Subsystem: "sla",
			Name:      "breaches_total",
			Help:      "Total first-time SLA breach notifications",
		}, []string{"kind"}),
		itemsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxloop",
			Subsystem: "sla",
			Name:      "items_skipped_total",
			Help:      "Feedback items skipped during a scan",
		}, []string{"reason"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.scansTotal, m.scanDuration, m.escalationsTotal, m.breachesTotal, m.itemsSkipped)
	return m
}

func (m *EngineMetrics) ObserveScan(status string, seconds float64) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues(status).Inc()
	m.scanDuration.WithLabelValues(status).Observe(seconds)
}

func (m *EngineMetrics) ObserveEscalation(tier, reason string) {
	if m == nil {
		return
	}
	m.escalationsTotal.WithLabelValues(tier, reason).Inc()
}

func (m *EngineMetrics) ObserveBreach(kind string) {
	if m == nil {
		return
	}
	m.breachesTotal.WithLabelValues(kind).Inc()
}

func (m *EngineMetrics) ObserveSkippedItem(reason string) {
	if m == nil {
		return
	}
	m.itemsSkipped.WithLabelValues(reason).Inc()
}
