// Package metrics instruments reconnects, gap counts, and validation
// failures with Prometheus counters/gauges (spec §1: "metrics emission" is
// out of scope, but the counters themselves are not — registering them
// against a caller-supplied prometheus.Registerer is). Grounded on the
// teacher's own MetricsRegistry (internal/interfaces/http/metrics.go) for
// construction shape and its guards.Telemetry (internal/providers/guards/
// telemetry.go) for the per-venue Record* naming convention.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sawpanic/marketfeed/identifier"
)

// Registry holds every counter/gauge this module exposes. Unlike the
// teacher's global DefaultMetrics, Registry takes no package-level state:
// callers construct one against their own prometheus.Registerer so a
// process embedding this module more than once, or under test, never
// collides on metric names.
type Registry struct {
	Reconnects          *prometheus.CounterVec
	ValidationFailures  *prometheus.CounterVec
	SubscribeFailures   *prometheus.CounterVec
	SequenceGaps        *prometheus.CounterVec
	BufferOverflows     *prometheus.CounterVec
	UnidentifiableFrame *prometheus.CounterVec
	DeserialiseFailures *prometheus.CounterVec
	SnapshotFetches     *prometheus.CounterVec
	SnapshotFetchErrors *prometheus.CounterVec
	BookUpdateLatency   *prometheus.HistogramVec
	ActiveInstruments   *prometheus.GaugeVec
}

// NewRegistry builds every metric and registers it against reg (spec §1:
// this module instruments, the caller owns the HTTP exposition endpoint).
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		Reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_reconnects_total",
				Help: "Total number of socket reconnects by exchange.",
			},
			[]string{"exchange"},
		),
		ValidationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_validation_failures_total",
				Help: "Total number of subscription validation failures by exchange.",
			},
			[]string{"exchange"},
		),
		SubscribeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_subscribe_failures_total",
				Help: "Total number of socket connect/subscribe failures by exchange.",
			},
			[]string{"exchange"},
		),
		SequenceGaps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_sequence_gaps_total",
				Help: "Total number of order book sequence gaps detected by exchange and instrument.",
			},
			[]string{"exchange", "instrument"},
		),
		BufferOverflows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_buffer_overflows_total",
				Help: "Total number of warmup delta buffer overflows by exchange and instrument.",
			},
			[]string{"exchange", "instrument"},
		),
		UnidentifiableFrame: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_unidentifiable_frames_total",
				Help: "Total number of inbound frames that did not match any active subscription.",
			},
			[]string{"exchange"},
		),
		DeserialiseFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_deserialise_failures_total",
				Help: "Total number of frames that failed to deserialize by exchange.",
			},
			[]string{"exchange"},
		),
		SnapshotFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_snapshot_fetches_total",
				Help: "Total number of HTTP snapshot fetches attempted by exchange and instrument.",
			},
			[]string{"exchange", "instrument"},
		),
		SnapshotFetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_snapshot_fetch_errors_total",
				Help: "Total number of HTTP snapshot fetches that exhausted their retries by exchange and instrument.",
			},
			[]string{"exchange", "instrument"},
		),
		BookUpdateLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketfeed_book_update_latency_seconds",
				Help:    "Time between exchange timestamp and local application of an order book event.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"exchange", "instrument"},
		),
		ActiveInstruments: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketfeed_active_instruments",
				Help: "Number of instruments with a synced order book by exchange.",
			},
			[]string{"exchange"},
		),
	}

	reg.MustRegister(
		r.Reconnects,
		r.ValidationFailures,
		r.SubscribeFailures,
		r.SequenceGaps,
		r.BufferOverflows,
		r.UnidentifiableFrame,
		r.DeserialiseFailures,
		r.SnapshotFetches,
		r.SnapshotFetchErrors,
		r.BookUpdateLatency,
		r.ActiveInstruments,
	)
	return r
}

// RecordReconnect increments the reconnect counter for exchange.
func (r *Registry) RecordReconnect(exchange identifier.ExchangeId) {
	r.Reconnects.WithLabelValues(string(exchange)).Inc()
}

// RecordValidationFailure increments the validation-failure counter for exchange.
func (r *Registry) RecordValidationFailure(exchange identifier.ExchangeId) {
	r.ValidationFailures.WithLabelValues(string(exchange)).Inc()
}

// RecordSubscribeFailure increments the subscribe-failure counter for exchange.
func (r *Registry) RecordSubscribeFailure(exchange identifier.ExchangeId) {
	r.SubscribeFailures.WithLabelValues(string(exchange)).Inc()
}

// RecordSequenceGap increments the sequence-gap counter for one instrument.
func (r *Registry) RecordSequenceGap(exchange identifier.ExchangeId, instrument string) {
	r.SequenceGaps.WithLabelValues(string(exchange), instrument).Inc()
}

// RecordBufferOverflow increments the buffer-overflow counter for one instrument.
func (r *Registry) RecordBufferOverflow(exchange identifier.ExchangeId, instrument string) {
	r.BufferOverflows.WithLabelValues(string(exchange), instrument).Inc()
}

// RecordUnidentifiable increments the unidentifiable-frame counter for exchange.
func (r *Registry) RecordUnidentifiable(exchange identifier.ExchangeId) {
	r.UnidentifiableFrame.WithLabelValues(string(exchange)).Inc()
}

// RecordDeserialiseFailure increments the deserialise-failure counter for exchange.
func (r *Registry) RecordDeserialiseFailure(exchange identifier.ExchangeId) {
	r.DeserialiseFailures.WithLabelValues(string(exchange)).Inc()
}

// RecordSnapshotFetch increments the snapshot-fetch attempt counter for one instrument.
func (r *Registry) RecordSnapshotFetch(exchange identifier.ExchangeId, instrument string) {
	r.SnapshotFetches.WithLabelValues(string(exchange), instrument).Inc()
}

// RecordSnapshotFetchError increments the snapshot-fetch error counter for one instrument.
func (r *Registry) RecordSnapshotFetchError(exchange identifier.ExchangeId, instrument string) {
	r.SnapshotFetchErrors.WithLabelValues(string(exchange), instrument).Inc()
}

// ObserveBookUpdateLatencySeconds records one book-update latency sample.
func (r *Registry) ObserveBookUpdateLatencySeconds(exchange identifier.ExchangeId, instrument string, seconds float64) {
	r.BookUpdateLatency.WithLabelValues(string(exchange), instrument).Observe(seconds)
}

// SetActiveInstruments sets the active-instrument gauge for exchange.
func (r *Registry) SetActiveInstruments(exchange identifier.ExchangeId, count float64) {
	r.ActiveInstruments.WithLabelValues(string(exchange)).Set(count)
}
