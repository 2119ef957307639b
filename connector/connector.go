// Package connector defines the per-exchange binding contract (spec §4.2):
// URL resolution, subscribe-frame construction, response validation, and
// heartbeat policy. Each venue's capabilities are expressed as a narrow
// Connector implementation rather than a generic/trait web (spec §9).
package connector

import (
	"time"

	"github.com/sawpanic/marketfeed/identifier"
)

// FrameKind distinguishes the wire encoding of a Frame.
type FrameKind int

const (
	TextFrame FrameKind = iota
	BinaryFrame
)

// Frame is one outbound WebSocket frame (a subscribe request or a
// heartbeat ping).
type Frame struct {
	Kind FrameKind
	Data []byte
}

// ValidateResult is what ValidateResponse reports about one inbound frame
// received during the validation phase (spec §4.3 step 4).
type ValidateResult struct {
	// Recognized is false when raw isn't a subscription-response frame at
	// all (e.g. it's market data or a housekeeping frame); the subscriber
	// buffers such frames for replay rather than dropping them.
	Recognized bool
	// Success is only meaningful when Recognized is true.
	Success bool
	// Detail explains a failure; set when Recognized && !Success.
	Detail string
}

// Connector is the capability contract a venue binding exposes to the
// subscriber, transformer, and reconnecting-stream layers.
type Connector interface {
	// ID returns the stable ExchangeId constant for this venue.
	ID() identifier.ExchangeId

	// URL resolves the base WebSocket URL, fallibly (malformed templates,
	// missing venue-specific path segments).
	URL() (string, error)

	// Requests returns the WebSocket frames needed to subscribe to subs.
	// A venue MAY batch many subscriptions into one frame (Binance) or
	// emit one frame per subscription (Bitstamp) — both are valid.
	Requests(subs []identifier.Subscription) ([]Frame, error)

	// ExpectedAcks returns how many successful ValidateResponse results the
	// subscriber must see before the socket is considered validated. This
	// is NOT always len(Requests(subs)): a venue's frame-to-ack cardinality
	// is its own wire convention — Binance ACKs once per subscribe frame
	// regardless of how many params it carries, OKX packs many subs into
	// one frame but ACKs once per sub, and Kraken sends one frame per
	// channel but ACKs once per pair across all of them.
	ExpectedAcks(subs []identifier.Subscription) int

	// ValidateResponse decodes and validates one inbound frame during the
	// validation phase.
	ValidateResponse(raw []byte) (ValidateResult, error)

	// HeartbeatInterval returns the interval the stream should expect
	// inbound traffic within, or ok=false for venues with no app-level
	// heartbeat (spec §4.2, §4.6).
	HeartbeatInterval() (d time.Duration, ok bool)

	// PingRequest returns the frame to emit on each heartbeat tick, if
	// the venue expects the client to ping rather than just observe
	// traffic.
	PingRequest() (Frame, bool)
}

// Formatter derives the venue-specific channel and market tokens that feed
// SubscriptionId (spec §4.1). Kept separate from Connector so a venue's
// token formatting can be unit tested without a live connection.
type Formatter interface {
	// ChannelToken returns the channel token for kind, or an error
	// wrapping errs.Unsupported if this venue doesn't support kind.
	ChannelToken(kind identifier.SubKind, instrumentKind identifier.InstrumentKind) (string, error)
	// MarketToken returns the market token for instrument in this venue's
	// formatting convention.
	MarketToken(instrument identifier.Instrument) string
}

// SubscriptionId derives the canonical id for one subscription using f's
// formatting rules (spec §4.1).
func SubscriptionId(f Formatter, sub identifier.Subscription) (identifier.SubscriptionId, error) {
	channel, err := f.ChannelToken(sub.Kind, sub.Instrument.Kind)
	if err != nil {
		return "", err
	}
	market := f.MarketToken(sub.Instrument)
	return identifier.NewSubscriptionId(channel, market), nil
}
