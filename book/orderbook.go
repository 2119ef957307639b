package book

import "time"

// OrderBook is the locally-replicated Level-2 book for one instrument:
// bids sorted descending by price, asks sorted ascending, with the
// sequence number of the last applied event (spec §3).
//
// Invariants: no side contains duplicate prices or a zero-amount level;
// best bid price < best ask price except transiently during an atomic
// update (spec §8 property 4) — this type does not enforce that last
// invariant itself, it is a property of correctly-ordered delta
// application by Updater.
type OrderBook struct {
	bids *side
	asks *side

	LastUpdateId uint64
	TimeExchange time.Time
}

// NewOrderBook constructs an empty book.
func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids: newSide(true),
		asks: newSide(false),
	}
}

// Bids returns a read-only, best-first copy of the bid side.
func (b *OrderBook) Bids() []Level { return append([]Level(nil), b.bids.levels...) }

// Asks returns a read-only, best-first copy of the ask side.
func (b *OrderBook) Asks() []Level { return append([]Level(nil), b.asks.levels...) }

// BestBid returns the highest bid, if any.
func (b *OrderBook) BestBid() (Level, bool) { return b.bids.best() }

// BestAsk returns the lowest ask, if any.
func (b *OrderBook) BestAsk() (Level, bool) { return b.asks.best() }

// ApplyLevels upserts each bid/ask level into the corresponding side.
// Levels with Amount == 0 remove the price from that side (spec §4.5
// "apply semantics").
func (b *OrderBook) ApplyLevels(bids, asks []Level) {
	for _, l := range bids {
		b.bids.upsert(l)
	}
	for _, l := range asks {
		b.asks.upsert(l)
	}
}

// Reset replaces both sides wholesale, used when adopting a snapshot.
func (b *OrderBook) Reset(bids, asks []Level, lastUpdateId uint64, timeExchange time.Time) {
	b.bids = newSide(true)
	b.asks = newSide(false)
	b.ApplyLevels(bids, asks)
	b.LastUpdateId = lastUpdateId
	b.TimeExchange = timeExchange
}

// Clone deep-copies the book. Published OrderBookEvents carry a Clone so
// a reader cannot observe a writer's subsequent mutation (spec §4.5
// "Published events": "the book after applying").
func (b *OrderBook) Clone() *OrderBook {
	return &OrderBook{
		bids:         b.bids.clone(),
		asks:         b.asks.clone(),
		LastUpdateId: b.LastUpdateId,
		TimeExchange: b.TimeExchange,
	}
}

// Crossed reports whether best bid >= best ask, which is permitted only
// transiently during an atomic multi-level update on venues whose feed
// allows it (spec §8 property 4); callers may use this to decide whether
// to log but must never treat it as fatal.
func (b *OrderBook) Crossed() bool {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return false
	}
	return bid.Price.Cmp(ask.Price) >= 0
}
