package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/marketfeed/book"
	"github.com/sawpanic/marketfeed/connector"
	"github.com/sawpanic/marketfeed/event"
	"github.com/sawpanic/marketfeed/identifier"
	"github.com/sawpanic/marketfeed/internal/config"
	"github.com/sawpanic/marketfeed/metrics"
	"github.com/sawpanic/marketfeed/streams"
	"github.com/sawpanic/marketfeed/subscriber"
	"github.com/sawpanic/marketfeed/transform"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var configPath string

	rootCmd := &cobra.Command{
		Use:   "marketfeed",
		Short: "Normalize live order books and trades across crypto venues",
		Long: `marketfeed dials each configured exchange's WebSocket feed, validates
subscriptions, reconnects on drop, and republishes normalized trades, L1
quotes, candles, and reconstructed order books.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to marketfeed.yaml (defaults to ./marketfeed.yaml)")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("marketfeed exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if level, err := zerolog.ParseLevel(cfg.App.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.NewRegistry(reg)

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux}
		go func() {
			log.Info().Int("port", cfg.Metrics.Port).Msg("serving /metrics")
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	dataSubs, bookSubs, err := cfg.ByExchange()
	if err != nil {
		return fmt.Errorf("resolve subscriptions: %w", err)
	}

	deps := streams.Deps{
		Connectors: connector.Default(),
		Subscriber: subscriber.New(subscriber.WithMetrics(metricsRegistry)),
		Books:      book.NewOrderBookMap(),
		Backoff:    cfg.ReconnectBackoff(),
		Metrics:    metricsRegistry,
		// Binance and Bitstamp push no snapshot on the socket; Coinbase,
		// Kraken, and Okx do, so only these two need an out-of-band
		// HTTP fetcher (spec §4.5).
		SnapshotFetchers: map[identifier.ExchangeId]func(identifier.InstrumentKey) *book.SnapshotFetcher{
			identifier.Binance:  connector.BinanceSnapshotFetcher,
			identifier.Bitstamp: connector.BitstampSnapshotFetcher,
		},
	}
	builder := streams.NewBuilder(deps)

	if len(dataSubs) > 0 {
		dataStreams, err := builder.BuildData(ctx, dataSubs)
		if err != nil {
			return fmt.Errorf("build data streams: %w", err)
		}
		go consumeData(ctx, dataStreams)
	}

	if len(bookSubs) > 0 {
		bookStreams, err := builder.BuildBooks(ctx, bookSubs)
		if err != nil {
			return fmt.Errorf("build book streams: %w", err)
		}
		go consumeBooks(ctx, bookStreams)
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")
	return nil
}

// consumeData logs every normalized trade/L1/candle/liquidation event. A
// real embedder would route these into its own order/risk pipeline instead.
func consumeData(ctx context.Context, s streams.Streams[transform.MarketEvent]) {
	for tagged := range s.JoinMap(ctx) {
		ev := tagged.Event
		if ev.IsReconnecting() {
			log.Warn().Str("exchange", string(ev.Origin())).Msg("data stream reconnecting")
			continue
		}
		outcome, _ := ev.Value()
		if outcome.IsErr() {
			log.Warn().Str("exchange", string(tagged.Exchange)).Err(outcome.Err).Msg("decode error")
			continue
		}
		me := outcome.Value
		log.Debug().
			Str("exchange", string(me.Exchange)).
			Str("instrument", me.Instrument.String()).
			Interface("kind", me.Kind).
			Msg("market event")
	}
}

// consumeBooks logs every order book event. A real embedder would read
// book.OrderBookMap directly rather than consuming this stream, since the
// builder already publishes every applied delta/snapshot there; this exists
// to demonstrate draining the channel so it doesn't block upstream.
func consumeBooks(ctx context.Context, s streams.Streams[event.OrderBookEvent]) {
	for tagged := range s.JoinMap(ctx) {
		ev := tagged.Event
		if ev.IsReconnecting() {
			log.Warn().Str("exchange", string(ev.Origin())).Msg("book stream reconnecting")
			continue
		}
		outcome, _ := ev.Value()
		if outcome.IsErr() {
			log.Warn().Str("exchange", string(tagged.Exchange)).Err(outcome.Err).Msg("book decode error")
		}
	}
}
