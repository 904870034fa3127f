package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineMetricsRegisterAndObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)

	m.ObserveScan("ok", 0.42)
	m.ObserveEscalation("1", "sla_breach")
	m.ObserveBreach("first_response")
	m.ObserveSkippedItem("store_error")

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["voxloop_sla_scans_total"])
	assert.True(t, names["voxloop_sla_scan_duration_seconds"])
	assert.True(t, names["voxloop_sla_escalations_total"])
	assert.True(t, names["voxloop_sla_breaches_total"])
	assert.True(t, names["voxloop_sla_items_skipped_total"])
}

func TestEngineMetricsNilReceiverSafe(t *testing.T) {
	var m *EngineMetrics
	assert.NotPanics(t, func() {
		m.ObserveScan("ok", 1)
		m.ObserveEscalation("2", "critical_rating")
		m.ObserveBreach("resolution")
		m.ObserveSkippedItem("config_error")
	})
}
