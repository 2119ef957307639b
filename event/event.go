// Package event holds the reconnection-aware wrapper and the normalized
// MarketEvent envelope that every transformer ultimately produces.
package event

import (
	"time"

	"github.com/sawpanic/marketfeed/identifier"
)

// Event wraps a stream item T with reconnection signaling. A Reconnecting
// event precedes resumption from a fresh session and tells downstream
// consumers to invalidate any derived state keyed to the old session (spec
// §3, §6).
type Event[T any] struct {
	reconnecting bool
	origin       identifier.ExchangeId
	item         T
}

// Reconnecting builds a reconnect-signal event for origin.
func Reconnecting[T any](origin identifier.ExchangeId) Event[T] {
	return Event[T]{reconnecting: true, origin: origin}
}

// Item builds a normal data-carrying event.
func Item[T any](item T) Event[T] {
	return Event[T]{item: item}
}

// IsReconnecting reports whether this event is a reconnect signal rather
// than a data item.
func (e Event[T]) IsReconnecting() bool { return e.reconnecting }

// Origin is only meaningful when IsReconnecting is true.
func (e Event[T]) Origin() identifier.ExchangeId { return e.origin }

// Value returns the wrapped item and whether it was present (i.e. this was
// not a Reconnecting event).
func (e Event[T]) Value() (T, bool) {
	return e.item, !e.reconnecting
}

// MarketEvent is the normalized, venue-independent event every transformer
// emits (spec §3, §6 conceptual schema).
type MarketEvent[K any, D any] struct {
	TimeExchange time.Time
	TimeReceived time.Time
	Exchange     identifier.ExchangeId
	Instrument   K
	Kind         D
}

// New stamps TimeReceived at construction time, matching the "set at parse
// time" invariant in spec §3.
func New[K any, D any](timeExchange time.Time, exchange identifier.ExchangeId, instrument K, kind D) MarketEvent[K, D] {
	return MarketEvent[K, D]{
		TimeExchange: timeExchange,
		TimeReceived: time.Now(),
		Exchange:     exchange,
		Instrument:   instrument,
		Kind:         kind,
	}
}
