// Package transform implements C4: the stateless, per-frame normalization
// step between a raw socket frame and a venue-independent MarketEvent
// (spec §4.4). It never holds book state across calls — L2 deltas and
// snapshots are decoded here and handed, undigested, to the book engine
// (package book), which owns the stateful sequence-continuity machinery.
package transform

import (
	"time"

	"github.com/sawpanic/marketfeed/book"
	"github.com/sawpanic/marketfeed/errs"
	"github.com/sawpanic/marketfeed/event"
	"github.com/sawpanic/marketfeed/identifier"
)

// Payload is a closed sum type over the shapes a decoded frame can carry.
// Exactly one field is non-nil; which one is determined by the SubKind the
// originating SubscriptionId routes to.
type Payload struct {
	Trade        *event.PublicTrade
	BookL1       *event.OrderBookL1
	BookSnapshot *book.Snapshot
	BookDelta    *book.Delta
	Liquidation  *event.Liquidation
	Candle       *event.Candle
}

// Frame is one decoded venue message: which subscription it belongs to,
// when the venue says it happened, and its normalized payload.
type Frame struct {
	SubId        identifier.SubscriptionId
	TimeExchange time.Time
	Payload      Payload
}

// VenueDecoder turns one raw inbound message into zero Frames (housekeeping:
// heartbeats, subscribe acks arriving late, unrelated channel chatter) or
// more than zero (a venue may batch several instruments' updates into one
// message). A non-nil error means raw could not be parsed;
// Transformer.Decode wraps it in errs.Deserialise, yields it as a
// recoverable per-item error, and drops the message.
type VenueDecoder interface {
	Decode(raw []byte) ([]Frame, error)
}

// Transformer binds a VenueDecoder to one socket session's routing table,
// implementing the spec §4.4 signature:
// (ExchangeId, InstrumentKey, Item) -> []Result[MarketEvent, DataError].
type Transformer struct {
	Exchange identifier.ExchangeId
	Decoder  VenueDecoder
}

// Kind is the normalized event payload every non-book MarketEvent carries.
// Like transform.Payload, it is a closed sum type: exactly one field is set.
type Kind struct {
	Trade       *event.PublicTrade
	BookL1      *event.OrderBookL1
	Liquidation *event.Liquidation
	Candle      *event.Candle
}

// MarketEvent is this module's concrete instantiation of the generic
// event.MarketEvent envelope for non-book data.
type MarketEvent = event.MarketEvent[identifier.InstrumentKey, Kind]

// BookFrame is what Decode yields for an OrderBooksL2 subscription: the raw
// decoded snapshot/delta plus routing, left for the caller (package
// streams, which owns one book.Updater per instrument) to feed into the
// book engine.
type BookFrame struct {
	Instrument   identifier.InstrumentKey
	TimeExchange time.Time
	Snapshot     *book.Snapshot
	Delta        *book.Delta
}

// Result is what Decode produces for one raw frame: zero or more normalized
// data events, zero or more book frames for the caller to apply, and a
// per-item error for anything unresolvable (routing-table miss, unparseable
// payload) that should be surfaced without tearing down the socket.
type Result struct {
	Events []event.Outcome[MarketEvent]
	Books  []BookFrame
}

// Decode implements spec §4.4: it demultiplexes raw via Decoder, resolves
// each decoded Frame's SubscriptionId through routing, and normalizes.
// A SubscriptionId absent from routing yields errs.Unidentifiable as a
// per-item Outcome error rather than being dropped (spec §7).
func (t *Transformer) Decode(raw []byte, routing identifier.Map) (Result, error) {
	frames, err := t.Decoder.Decode(raw)
	if err != nil {
		return Result{Events: []event.Outcome[MarketEvent]{
			event.Errf[MarketEvent](&errs.Deserialise{Exchange: t.Exchange, Payload: raw, Err: err}),
		}}, nil
	}

	var res Result
	for _, f := range frames {
		key, ok := routing.Lookup(f.SubId)
		if !ok {
			res.Events = append(res.Events, event.Errf[MarketEvent](&errs.Unidentifiable{SubId: f.SubId}))
			continue
		}

		switch {
		case f.Payload.BookSnapshot != nil:
			res.Books = append(res.Books, BookFrame{Instrument: key, TimeExchange: f.TimeExchange, Snapshot: f.Payload.BookSnapshot})
		case f.Payload.BookDelta != nil:
			res.Books = append(res.Books, BookFrame{Instrument: key, TimeExchange: f.TimeExchange, Delta: f.Payload.BookDelta})
		default:
			res.Events = append(res.Events, event.Ok(event.New(f.TimeExchange, t.Exchange, key, Kind{
				Trade:       f.Payload.Trade,
				BookL1:      f.Payload.BookL1,
				Liquidation: f.Payload.Liquidation,
				Candle:      f.Payload.Candle,
			})))
		}
	}
	return res, nil
}
