package transform

import (
	"fmt"

	"github.com/sawpanic/marketfeed/identifier"
)

// NewDecoder builds the VenueDecoder for id, or an error if none is
// registered. Decoders that synthesize per-subscription sequence state
// (Coinbase, Bitstamp, Kraken, Okx) are constructed fresh per socket
// session so a reconnect starts their counters clean.
func NewDecoder(id identifier.ExchangeId) (VenueDecoder, error) {
	switch id {
	case identifier.Binance:
		return Binance{}, nil
	case identifier.Coinbase:
		return NewCoinbase(), nil
	case identifier.Bitstamp:
		return NewBitstamp(), nil
	case identifier.Kraken:
		return NewKraken(), nil
	case identifier.Okx:
		return NewOkx(), nil
	default:
		return nil, fmt.Errorf("transform: no decoder registered for exchange %q", id)
	}
}
