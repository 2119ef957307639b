package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketfeed/identifier"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNewRegistry_RegistersAgainstExplicitRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)
	require.NotNil(t, r)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRegistry_MultipleInstancesDoNotCollide(t *testing.T) {
	// Each Registry is built against its own prometheus.Registerer, so
	// constructing two in the same process (as the tests in this package
	// do) must never panic on duplicate registration.
	NewRegistry(prometheus.NewRegistry())
	NewRegistry(prometheus.NewRegistry())
}

func TestRegistry_RecordReconnect(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.RecordReconnect(identifier.Binance)
	r.RecordReconnect(identifier.Binance)

	c, err := r.Reconnects.GetMetricWithLabelValues(string(identifier.Binance))
	require.NoError(t, err)
	assert.Equal(t, float64(2), counterValue(t, c))
}

func TestRegistry_ObserveBookUpdateLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.ObserveBookUpdateLatencySeconds(identifier.Kraken, "btc-usdt-spot", 0.05)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "marketfeed_book_update_latency_seconds" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRegistry_SetActiveInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.SetActiveInstruments(identifier.Okx, 7)

	families, err := reg.Gather()
	require.NoError(t, err)
	var gauge *dto.Metric
	for _, f := range families {
		if f.GetName() == "marketfeed_active_instruments" {
			gauge = f.Metric[0]
		}
	}
	require.NotNil(t, gauge)
	assert.Equal(t, float64(7), gauge.GetGauge().GetValue())
}
