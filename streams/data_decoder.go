package streams

import (
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketfeed/event"
	"github.com/sawpanic/marketfeed/identifier"
	"github.com/sawpanic/marketfeed/transform"
)

// DataDecoder adapts transform.Transformer (trades/L1/liquidations/candles)
// into a reconnect.Decoder[transform.MarketEvent]. It is stateless, so
// unlike BookDecoder the same instance is safe to reuse across sessions,
// but the builder still constructs one per session for symmetry and so a
// future stateful refinement doesn't silently leak state across reconnects.
type DataDecoder struct {
	Transformer *transform.Transformer
}

// Decode implements reconnect.Decoder[transform.MarketEvent]. L2 book
// frames should never reach a DataDecoder — a subscription batch is routed
// to either BookDecoder or DataDecoder by SubKind at build time — but a
// stray one is logged as a warning and not forwarded.
func (d *DataDecoder) Decode(raw []byte, routing identifier.Map) ([]event.Outcome[transform.MarketEvent], error) {
	result, err := d.Transformer.Decode(raw, routing)
	if err != nil {
		return nil, err
	}
	if len(result.Books) > 0 {
		log.Warn().Int("count", len(result.Books)).Msg("data decoder received L2 book frames; subscription routing is misconfigured")
	}
	return result.Events, nil
}
