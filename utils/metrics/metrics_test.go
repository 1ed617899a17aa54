package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewScanMetrics(reg)
	require.NotNil(t, m)

	m.Cycles.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Cycles))

	m.Opportunities.WithLabelValues("multi_hop").Add(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.Opportunities.WithLabelValues("multi_hop")))

	m.CapitalAllocated.Set(40000)
	assert.Equal(t, float64(40000), testutil.ToFloat64(m.CapitalAllocated))

	m.CycleDuration.Observe(0.1)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["omniarb_cycles_total"])
	assert.True(t, names["omniarb_cycle_duration_seconds"])
	assert.True(t, names["omniarb_capital_allocated_usd"])
}

func TestVenueAvailability(t *testing.T) {
	m := NewScanMetrics(nil)

	assert.Equal(t, float64(-1), m.VenueAvailability("uni"))

	m.ObserveQuote("uni", nil)
	m.ObserveQuote("uni", nil)
	m.ObserveQuote("uni", nil)
	m.ObserveQuote("uni", errors.New("timeout"))

	assert.Equal(t, 0.75, m.VenueAvailability("uni"))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Quotes.WithLabelValues("uni", QuoteUnavailable)))
}

func TestNewScanMetricsTwiceOnSameRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewScanMetrics(reg)
	assert.Panics(t, func() { NewScanMetrics(reg) })
}
