package connector

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sawpanic/marketfeed/errs"
	"github.com/sawpanic/marketfeed/identifier"
)

// Binance batches every subscription into a single {"method":"SUBSCRIBE",...}
// frame (spec §4.2, §6 "Subscription frame shapes"). Order books are
// snapshot-via-HTTP (spec §4.5 "fetch-based snapshots"); this connector
// only owns the socket side.
type Binance struct{}

func NewBinance() *Binance { return &Binance{} }

func (Binance) ID() identifier.ExchangeId { return identifier.Binance }

func (Binance) URL() (string, error) {
	return "wss://stream.binance.com:9443/stream", nil
}

func (b Binance) ChannelToken(kind identifier.SubKind, _ identifier.InstrumentKind) (string, error) {
	switch kind {
	case identifier.PublicTrades:
		return "aggTrade", nil
	case identifier.OrderBooksL1:
		return "bookTicker", nil
	case identifier.OrderBooksL2:
		return "depth@100ms", nil
	case identifier.Candles:
		return "kline_1m", nil
	default:
		return "", &errs.Unsupported{Exchange: identifier.Binance, SubKind: kind}
	}
}

func (Binance) MarketToken(instrument identifier.Instrument) string {
	return strings.ToUpper(instrument.Base + instrument.Quote)
}

type binanceSubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	Id     int      `json:"id"`
}

func (b Binance) Requests(subs []identifier.Subscription) ([]Frame, error) {
	params := make([]string, 0, len(subs))
	for _, s := range subs {
		channel, err := b.ChannelToken(s.Kind, s.Instrument.Kind)
		if err != nil {
			return nil, err
		}
		market := strings.ToLower(b.MarketToken(s.Instrument))
		params = append(params, fmt.Sprintf("%s@%s", market, channel))
	}
	payload, err := json.Marshal(binanceSubscribeRequest{Method: "SUBSCRIBE", Params: params, Id: 1})
	if err != nil {
		return nil, fmt.Errorf("binance: marshal subscribe request: %w", err)
	}
	return []Frame{{Kind: TextFrame, Data: payload}}, nil
}

// ExpectedAcks is always 1: every subscription rides one SUBSCRIBE frame
// and Binance ACKs the whole request by its "id", not per-param.
func (Binance) ExpectedAcks(subs []identifier.Subscription) int { return 1 }

type binanceSubscribeResponse struct {
	Result any `json:"result"`
	Id     int `json:"id"`
	Error  *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

func (Binance) ValidateResponse(raw []byte) (ValidateResult, error) {
	var resp binanceSubscribeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ValidateResult{}, nil // not a sub-response shape; let caller buffer it
	}
	if resp.Id == 0 {
		return ValidateResult{}, nil
	}
	if resp.Error != nil {
		return ValidateResult{Recognized: true, Success: false, Detail: resp.Error.Msg}, nil
	}
	return ValidateResult{Recognized: true, Success: true}, nil
}

func (Binance) HeartbeatInterval() (time.Duration, bool) {
	// Binance sends unsolicited ping frames at the protocol level; no
	// app-level heartbeat payload is required from the client.
	return 0, false
}

func (Binance) PingRequest() (Frame, bool) { return Frame{}, false }
