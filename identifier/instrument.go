package identifier

import (
	"fmt"
	"strings"
)

// Instrument is a (base, quote, kind) triple. Base and quote are lowercased
// at construction time — internal names are always canonical case; only
// venue-specific formatting re-cases them for the wire.
type Instrument struct {
	Base  string
	Quote string
	Kind  InstrumentKind
}

// NewInstrument builds an Instrument, lowercasing base and quote.
func NewInstrument(base, quote string, kind InstrumentKind) Instrument {
	return Instrument{
		Base:  strings.ToLower(base),
		Quote: strings.ToLower(quote),
		Kind:  kind,
	}
}

// String renders a debug-friendly, canonical identifier. It is not a wire
// format — venue connectors own their own market-token formatting.
func (i Instrument) String() string {
	return fmt.Sprintf("%s-%s-%s", i.Base, i.Quote, i.Kind.Kind())
}

// InstrumentKey identifies an instrument on a specific exchange. It is the
// value side of the SubscriptionId -> InstrumentKey map populated during
// subscribe, and the key used to look up a live order book in OrderBookMap.
type InstrumentKey struct {
	Exchange   ExchangeId
	Instrument Instrument
}

// String is the canonical hash key for InstrumentKey. Instrument embeds an
// InstrumentKind that may carry a decimal.Decimal (Option.Strike); decimal's
// internal *big.Int makes naive struct equality pointer-based, so every
// consumer that needs to index by InstrumentKey must hash via String(),
// never via Go map-key equality on the struct itself.
func (k InstrumentKey) String() string {
	return fmt.Sprintf("%s:%s", k.Exchange, k.Instrument)
}
