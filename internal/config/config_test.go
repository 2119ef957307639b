package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketfeed/identifier"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "marketfeed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
subscriptions:
  - exchange: binance
    base: BTC
    quote: USDT
    kind: public_trades
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, 500, cfg.Backoff.BaseMS)
	assert.Equal(t, 30000, cfg.Backoff.MaxMS)
	assert.Equal(t, 2.0, cfg.Backoff.Factor)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	// With no explicit path, Load searches "." for marketfeed.yaml; a
	// missing file there is not itself an error, only the resulting lack
	// of any subscription is (env vars alone are a legitimate way to
	// configure this binary).
	wd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, os.Chdir(wd)) })
	require.NoError(t, os.Chdir(t.TempDir()))

	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one subscription")
}

func TestValidate_RejectsUnknownKind(t *testing.T) {
	path := writeConfig(t, `
subscriptions:
  - exchange: binance
    base: BTC
    quote: USDT
    kind: not_a_real_kind
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate_RejectsBackoffCapBelowBase(t *testing.T) {
	path := writeConfig(t, `
subscriptions:
  - exchange: binance
    base: BTC
    quote: USDT
    kind: public_trades
backoff:
  base_ms: 1000
  max_ms: 500
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestByExchange_SplitsBookFromData(t *testing.T) {
	path := writeConfig(t, `
subscriptions:
  - exchange: binance
    base: BTC
    quote: USDT
    kind: public_trades
  - exchange: binance
    base: BTC
    quote: USDT
    kind: order_books_l2
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	data, books, err := cfg.ByExchange()
	require.NoError(t, err)
	require.Len(t, data, 1)
	require.Len(t, books, 1)
	assert.Equal(t, identifier.PublicTrades, data[0].Kind)
	assert.Equal(t, identifier.OrderBooksL2, books[0].Kind)
}

func TestReconnectBackoff_TranslatesFields(t *testing.T) {
	path := writeConfig(t, `
subscriptions:
  - exchange: binance
    base: BTC
    quote: USDT
    kind: public_trades
backoff:
  base_ms: 250
  max_ms: 8000
  factor: 1.5
  jitter_pct: 0.1
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	backoff := cfg.ReconnectBackoff()
	assert.Equal(t, int64(250), backoff.Base.Milliseconds())
	assert.Equal(t, int64(8000), backoff.Cap.Milliseconds())
	assert.Equal(t, 1.5, backoff.Factor)
	assert.Equal(t, 0.1, backoff.Jitter)
}
