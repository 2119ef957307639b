package connector

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sawpanic/marketfeed/errs"
	"github.com/sawpanic/marketfeed/identifier"
)

// Coinbase sends one subscribe frame per channel name, listing every
// product id wanted on that channel (spec §6 example).
type Coinbase struct{}

func NewCoinbase() *Coinbase { return &Coinbase{} }

func (Coinbase) ID() identifier.ExchangeId { return identifier.Coinbase }

func (Coinbase) URL() (string, error) {
	return "wss://ws-feed.exchange.coinbase.com", nil
}

func (c Coinbase) ChannelToken(kind identifier.SubKind, _ identifier.InstrumentKind) (string, error) {
	switch kind {
	case identifier.PublicTrades:
		return "matches", nil
	case identifier.OrderBooksL2:
		return "level2", nil
	case identifier.OrderBooksL1:
		return "ticker", nil
	default:
		return "", &errs.Unsupported{Exchange: identifier.Coinbase, SubKind: kind}
	}
}

func (Coinbase) MarketToken(instrument identifier.Instrument) string {
	return strings.ToUpper(instrument.Base) + "-" + strings.ToUpper(instrument.Quote)
}

type coinbaseSubscribeRequest struct {
	Type       string   `json:"type"`
	ProductIds []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

func (c Coinbase) Requests(subs []identifier.Subscription) ([]Frame, error) {
	byChannel := make(map[string]map[string]struct{})
	order := make([]string, 0)
	for _, s := range subs {
		channel, err := c.ChannelToken(s.Kind, s.Instrument.Kind)
		if err != nil {
			return nil, err
		}
		if byChannel[channel] == nil {
			byChannel[channel] = make(map[string]struct{})
			order = append(order, channel)
		}
		byChannel[channel][c.MarketToken(s.Instrument)] = struct{}{}
	}

	frames := make([]Frame, 0, len(order))
	for _, channel := range order {
		products := make([]string, 0, len(byChannel[channel]))
		for p := range byChannel[channel] {
			products = append(products, p)
		}
		payload, err := json.Marshal(coinbaseSubscribeRequest{
			Type:       "subscribe",
			ProductIds: products,
			Channels:   []string{channel},
		})
		if err != nil {
			return nil, fmt.Errorf("coinbase: marshal subscribe request: %w", err)
		}
		frames = append(frames, Frame{Kind: TextFrame, Data: payload})
	}
	return frames, nil
}

// ExpectedAcks equals the number of distinct channels subscribed: Coinbase
// sends one "subscriptions" confirmation per subscribe frame it received,
// one frame per channel, regardless of how many product ids ride on it.
func (c Coinbase) ExpectedAcks(subs []identifier.Subscription) int {
	channels := make(map[string]struct{})
	for _, s := range subs {
		channel, err := c.ChannelToken(s.Kind, s.Instrument.Kind)
		if err != nil {
			continue
		}
		channels[channel] = struct{}{}
	}
	return len(channels)
}

type coinbaseResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

func (Coinbase) ValidateResponse(raw []byte) (ValidateResult, error) {
	var resp coinbaseResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ValidateResult{}, nil
	}
	switch resp.Type {
	case "subscriptions":
		return ValidateResult{Recognized: true, Success: true}, nil
	case "error":
		detail := resp.Message
		if resp.Reason != "" {
			detail = fmt.Sprintf("%s: %s", resp.Message, resp.Reason)
		}
		return ValidateResult{Recognized: true, Success: false, Detail: detail}, nil
	default:
		return ValidateResult{}, nil
	}
}

func (Coinbase) HeartbeatInterval() (time.Duration, bool) {
	return 30 * time.Second, true
}

func (Coinbase) PingRequest() (Frame, bool) { return Frame{}, false }
