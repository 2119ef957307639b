package connector

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sawpanic/marketfeed/errs"
	"github.com/sawpanic/marketfeed/identifier"
)

// Kraken batches pairs under one subscription object, mirroring
// internal/providers/kraken/websocket.go's SubscriptionRequest shape, but
// confirmations arrive per-pair as {"event":"subscriptionStatus",...}.
type Kraken struct{}

func NewKraken() *Kraken { return &Kraken{} }

func (Kraken) ID() identifier.ExchangeId { return identifier.Kraken }

func (Kraken) URL() (string, error) {
	return "wss://ws.kraken.com", nil
}

func (k Kraken) ChannelToken(kind identifier.SubKind, _ identifier.InstrumentKind) (string, error) {
	switch kind {
	case identifier.PublicTrades:
		return "trade", nil
	case identifier.OrderBooksL2:
		return "book", nil
	default:
		return "", &errs.Unsupported{Exchange: identifier.Kraken, SubKind: kind}
	}
}

func (Kraken) MarketToken(instrument identifier.Instrument) string {
	return strings.ToUpper(instrument.Base) + "/" + strings.ToUpper(instrument.Quote)
}

type krakenSubscribeRequest struct {
	Event        string                 `json:"event"`
	Pair         []string               `json:"pair"`
	Subscription map[string]interface{} `json:"subscription"`
}

func (k Kraken) Requests(subs []identifier.Subscription) ([]Frame, error) {
	byChannel := make(map[string][]string)
	order := make([]string, 0)
	for _, s := range subs {
		channel, err := k.ChannelToken(s.Kind, s.Instrument.Kind)
		if err != nil {
			return nil, err
		}
		if _, ok := byChannel[channel]; !ok {
			order = append(order, channel)
		}
		byChannel[channel] = append(byChannel[channel], k.MarketToken(s.Instrument))
	}

	frames := make([]Frame, 0, len(order))
	for _, channel := range order {
		payload, err := json.Marshal(krakenSubscribeRequest{
			Event: "subscribe",
			Pair:  byChannel[channel],
			Subscription: map[string]interface{}{
				"name": channel,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("kraken: marshal subscribe request: %w", err)
		}
		frames = append(frames, Frame{Kind: TextFrame, Data: payload})
	}
	return frames, nil
}

// ExpectedAcks equals len(subs): Kraken sends one frame per channel but
// confirms subscriptionStatus per pair, so a channel frame listing three
// pairs yields three acks, not one.
func (Kraken) ExpectedAcks(subs []identifier.Subscription) int { return len(subs) }

type krakenSubscriptionStatus struct {
	Event  string `json:"event"`
	Status string `json:"status"`
	Pair   string `json:"pair"`
	ErrMsg string `json:"errorMessage"`
}

func (Kraken) ValidateResponse(raw []byte) (ValidateResult, error) {
	var status krakenSubscriptionStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return ValidateResult{}, nil
	}
	if status.Event != "subscriptionStatus" {
		return ValidateResult{}, nil
	}
	if status.Status == "subscribed" {
		return ValidateResult{Recognized: true, Success: true}, nil
	}
	return ValidateResult{Recognized: true, Success: false, Detail: status.ErrMsg}, nil
}

func (Kraken) HeartbeatInterval() (time.Duration, bool) {
	return 60 * time.Second, true
}

func (Kraken) PingRequest() (Frame, bool) {
	payload, _ := json.Marshal(map[string]string{"event": "ping"})
	return Frame{Kind: TextFrame, Data: payload}, true
}
