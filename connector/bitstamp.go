package connector

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sawpanic/marketfeed/errs"
	"github.com/sawpanic/marketfeed/identifier"
)

// Bitstamp emits one frame per subscription rather than batching (spec
// §4.2, §6: "one frame per subscription: {"event":"bts:subscribe",...}").
type Bitstamp struct{}

func NewBitstamp() *Bitstamp { return &Bitstamp{} }

func (Bitstamp) ID() identifier.ExchangeId { return identifier.Bitstamp }

func (Bitstamp) URL() (string, error) {
	return "wss://ws.bitstamp.net", nil
}

func (b Bitstamp) ChannelToken(kind identifier.SubKind, _ identifier.InstrumentKind) (string, error) {
	switch kind {
	case identifier.PublicTrades:
		return "live_trades", nil
	case identifier.OrderBooksL2:
		return "diff_order_book", nil
	default:
		return "", &errs.Unsupported{Exchange: identifier.Bitstamp, SubKind: kind}
	}
}

func (Bitstamp) MarketToken(instrument identifier.Instrument) string {
	return strings.ToLower(instrument.Base + instrument.Quote)
}

type bitstampSubscribeRequest struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

func (b Bitstamp) Requests(subs []identifier.Subscription) ([]Frame, error) {
	frames := make([]Frame, 0, len(subs))
	for _, s := range subs {
		channel, err := b.ChannelToken(s.Kind, s.Instrument.Kind)
		if err != nil {
			return nil, err
		}
		market := b.MarketToken(s.Instrument)
		payload, err := json.Marshal(bitstampSubscribeRequest{
			Event: "bts:subscribe",
			Data:  map[string]interface{}{"channel": fmt.Sprintf("%s_%s", channel, market)},
		})
		if err != nil {
			return nil, fmt.Errorf("bitstamp: marshal subscribe request: %w", err)
		}
		frames = append(frames, Frame{Kind: TextFrame, Data: payload})
	}
	return frames, nil
}

// ExpectedAcks equals len(subs): Bitstamp emits and acks one frame per
// subscription, with no batching in either direction.
func (Bitstamp) ExpectedAcks(subs []identifier.Subscription) int { return len(subs) }

type bitstampResponse struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
}

func (Bitstamp) ValidateResponse(raw []byte) (ValidateResult, error) {
	var resp bitstampResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ValidateResult{}, nil
	}
	switch resp.Event {
	case "bts:subscription_succeeded":
		return ValidateResult{Recognized: true, Success: true}, nil
	case "bts:error":
		return ValidateResult{Recognized: true, Success: false, Detail: fmt.Sprintf("subscribe failed on channel %s", resp.Channel)}, nil
	default:
		return ValidateResult{}, nil
	}
}

func (Bitstamp) HeartbeatInterval() (time.Duration, bool) {
	return 0, false
}

func (Bitstamp) PingRequest() (Frame, bool) { return Frame{}, false }
