// Package config loads the example binary's runtime configuration: which
// venues and instruments to subscribe to, backoff tuning, and the metrics
// HTTP port. Grounded on the teacher's viper-free YAML config loaders
// (internal/config/providers.go) for validation shape, and on
// fd1az-arbitrage-bot's internal/config/config.go for the viper
// file+env-var loading convention, since the teacher itself does not use
// viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/sawpanic/marketfeed/identifier"
	"github.com/sawpanic/marketfeed/reconnect"
)

// Config is the complete example-binary configuration.
type Config struct {
	App           AppConfig            `mapstructure:"app"`
	Subscriptions []SubscriptionConfig `mapstructure:"subscriptions"`
	Backoff       BackoffConfig        `mapstructure:"backoff"`
	Metrics       MetricsConfig        `mapstructure:"metrics"`
}

// AppConfig holds general process settings.
type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

// SubscriptionConfig names one (exchange, base, quote, kind) subscription
// request in the config file's wire shape, translated to
// identifier.Subscription by Subscriptions().
type SubscriptionConfig struct {
	Exchange string `mapstructure:"exchange"`
	Base     string `mapstructure:"base"`
	Quote    string `mapstructure:"quote"`
	Kind     string `mapstructure:"kind"`
}

// BackoffConfig tunes reconnect.Backoff.
type BackoffConfig struct {
	BaseMS   int     `mapstructure:"base_ms"`
	MaxMS    int     `mapstructure:"max_ms"`
	Factor   float64 `mapstructure:"factor"`
	JitterPc float64 `mapstructure:"jitter_pct"`
}

// MetricsConfig configures the Prometheus exposition endpoint the caller
// serves (spec §1 keeps exposition itself out of this module's scope; this
// config field only tells the example binary which port to bind).
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads configPath (if non-empty) plus MARKETFEED_-prefixed
// environment variables into a Config, applying defaults and validating
// the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("marketfeed")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("MARKETFEED")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.log_level", "info")
	v.SetDefault("backoff.base_ms", 500)
	v.SetDefault("backoff.max_ms", 30000)
	v.SetDefault("backoff.factor", 2.0)
	v.SetDefault("backoff.jitter_pct", 0.2)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}

// Validate checks the loaded config is internally consistent.
func (c *Config) Validate() error {
	if len(c.Subscriptions) == 0 {
		return fmt.Errorf("at least one subscription is required")
	}
	for i, sub := range c.Subscriptions {
		if sub.Exchange == "" {
			return fmt.Errorf("subscriptions[%d]: exchange is required", i)
		}
		if sub.Base == "" || sub.Quote == "" {
			return fmt.Errorf("subscriptions[%d]: base and quote are required", i)
		}
		if _, err := parseKind(sub.Kind); err != nil {
			return fmt.Errorf("subscriptions[%d]: %w", i, err)
		}
	}
	if c.Backoff.BaseMS <= 0 {
		return fmt.Errorf("backoff.base_ms must be positive")
	}
	if c.Backoff.MaxMS < c.Backoff.BaseMS {
		return fmt.Errorf("backoff.max_ms must be >= backoff.base_ms")
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be a valid TCP port when metrics.enabled is true")
	}
	return nil
}

func parseKind(s string) (identifier.SubKind, error) {
	switch identifier.SubKind(s) {
	case identifier.PublicTrades, identifier.OrderBooksL1, identifier.OrderBooksL2, identifier.Liquidations, identifier.Candles:
		return identifier.SubKind(s), nil
	default:
		return "", fmt.Errorf("unknown subscription kind %q", s)
	}
}

// Subscriptions translates the config's wire-shaped subscription list into
// identifier.Subscription values, all against Spot instruments — this
// example binary does not expose the full InstrumentKind union through
// config.
func (c *Config) Subscriptions() ([]identifier.Subscription, error) {
	out := make([]identifier.Subscription, 0, len(c.Subscriptions))
	for _, sub := range c.Subscriptions {
		kind, err := parseKind(sub.Kind)
		if err != nil {
			return nil, err
		}
		out = append(out, identifier.Subscription{
			Exchange:   identifier.ExchangeId(sub.Exchange),
			Instrument: identifier.NewInstrument(sub.Base, sub.Quote, identifier.Spot{}),
			Kind:       kind,
		})
	}
	return out, nil
}

// ByExchange groups Subscriptions() results by SubKind, matching the
// streams.Builder contract that every Build call covers one uniform
// payload type (trade/L1/liquidation/candle vs. L2 book).
func (c *Config) ByExchange() (data []identifier.Subscription, books []identifier.Subscription, err error) {
	subs, err := c.Subscriptions()
	if err != nil {
		return nil, nil, err
	}
	for _, sub := range subs {
		if sub.Kind == identifier.OrderBooksL2 {
			books = append(books, sub)
		} else {
			data = append(data, sub)
		}
	}
	return data, books, nil
}

// ReconnectBackoff builds a reconnect.Backoff from the configured values.
func (c *Config) ReconnectBackoff() reconnect.Backoff {
	return reconnect.Backoff{
		Base:   time.Duration(c.Backoff.BaseMS) * time.Millisecond,
		Cap:    time.Duration(c.Backoff.MaxMS) * time.Millisecond,
		Factor: c.Backoff.Factor,
		Jitter: c.Backoff.JitterPc,
	}
}
