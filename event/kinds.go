package event

import (
	"time"
)

// Side is the aggressor/quote side of a trade, liquidation, or book level.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// PublicTrade is a normalized trade print. Float is acceptable here per
// spec §9 ("float permitted only in L1/trade normalization"); decimal
// arithmetic is reserved for the book engine.
type PublicTrade struct {
	Id     string
	Price  float64
	Amount float64
	Side   Side
}

// OrderBookL1 is top-of-book only: best bid/ask.
type OrderBookL1 struct {
	LastUpdateTime time.Time
	BestBidPrice   float64
	BestBidAmount  float64
	BestAskPrice   float64
	BestAskAmount  float64
}

// Liquidation is a forced-close print on derivatives venues.
type Liquidation struct {
	Side     Side
	Price    float64
	Quantity float64
	Time     time.Time
}

// Candle is an OHLCV bar for a fixed interval.
type Candle struct {
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	CloseTime  time.Time
	TradeCount int64
}

// OrderBookEventKind tags whether an OrderBookEvent resets receiver state
// (Snapshot) or is applied as a delta on top of existing state (Update).
type OrderBookEventKind int

const (
	SnapshotKind OrderBookEventKind = iota
	UpdateKind
)

// OrderBookEvent carries the book *after* applying (spec §4.5: "the book
// after applying, not the delta alone"). Book is left as `any` here to
// avoid an import cycle with package book; callers type-assert to
// *book.OrderBook.
type OrderBookEvent struct {
	Kind OrderBookEventKind
	Book any
}

func SnapshotEvent(b any) OrderBookEvent { return OrderBookEvent{Kind: SnapshotKind, Book: b} }
func UpdateEvent(b any) OrderBookEvent   { return OrderBookEvent{Kind: UpdateKind, Book: b} }
