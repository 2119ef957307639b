package connector

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sawpanic/marketfeed/errs"
	"github.com/sawpanic/marketfeed/identifier"
)

// Okx batches an "args" list of {channel, instId} pairs in one frame.
// Unlike Binance/Bitstamp, OKX pushes an initial full snapshot on the
// books channel itself rather than requiring a separate HTTP fetch (spec
// §4.5 "venues that push an initial snapshot on the socket").
type Okx struct{}

func NewOkx() *Okx { return &Okx{} }

func (Okx) ID() identifier.ExchangeId { return identifier.Okx }

func (Okx) URL() (string, error) {
	return "wss://ws.okx.com:8443/ws/v5/public", nil
}

func (o Okx) ChannelToken(kind identifier.SubKind, _ identifier.InstrumentKind) (string, error) {
	switch kind {
	case identifier.PublicTrades:
		return "trades", nil
	case identifier.OrderBooksL2:
		return "books", nil
	case identifier.OrderBooksL1:
		return "bbo-tbt", nil
	default:
		return "", &errs.Unsupported{Exchange: identifier.Okx, SubKind: kind}
	}
}

func (Okx) MarketToken(instrument identifier.Instrument) string {
	return strings.ToUpper(instrument.Base) + "-" + strings.ToUpper(instrument.Quote)
}

type okxArg struct {
	Channel string `json:"channel"`
	InstId  string `json:"instId"`
}

type okxSubscribeRequest struct {
	Op   string   `json:"op"`
	Args []okxArg `json:"args"`
}

func (o Okx) Requests(subs []identifier.Subscription) ([]Frame, error) {
	args := make([]okxArg, 0, len(subs))
	for _, s := range subs {
		channel, err := o.ChannelToken(s.Kind, s.Instrument.Kind)
		if err != nil {
			return nil, err
		}
		args = append(args, okxArg{Channel: channel, InstId: o.MarketToken(s.Instrument)})
	}
	payload, err := json.Marshal(okxSubscribeRequest{Op: "subscribe", Args: args})
	if err != nil {
		return nil, fmt.Errorf("okx: marshal subscribe request: %w", err)
	}
	return []Frame{{Kind: TextFrame, Data: payload}}, nil
}

// ExpectedAcks equals len(subs): OKX packs every {channel, instId} arg into
// one "subscribe" frame but emits a separate "subscribe"/"error" event per
// arg, not one per frame.
func (Okx) ExpectedAcks(subs []identifier.Subscription) int { return len(subs) }

type okxSubscribeResponse struct {
	Event string `json:"event"`
	Arg   okxArg `json:"arg"`
	Code  string `json:"code"`
	Msg   string `json:"msg"`
}

func (Okx) ValidateResponse(raw []byte) (ValidateResult, error) {
	var resp okxSubscribeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ValidateResult{}, nil
	}
	switch resp.Event {
	case "subscribe":
		return ValidateResult{Recognized: true, Success: true}, nil
	case "error":
		return ValidateResult{Recognized: true, Success: false, Detail: resp.Msg}, nil
	default:
		return ValidateResult{}, nil
	}
}

func (Okx) HeartbeatInterval() (time.Duration, bool) {
	return 25 * time.Second, true
}

func (Okx) PingRequest() (Frame, bool) {
	return Frame{Kind: TextFrame, Data: []byte("ping")}, true
}
