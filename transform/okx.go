package transform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/marketfeed/book"
	"github.com/sawpanic/marketfeed/event"
	"github.com/sawpanic/marketfeed/identifier"
)

// Okx decodes the {"arg":{"channel":...,"instId":...},"action":...,"data":
// [...]} envelope (spec §6 example payloads). The books channel reports
// "action":"snapshot"|"update" explicitly, which Okx uses directly instead
// of inferring snapshot-vs-delta from shape the way Kraken must.
type Okx struct {
	mu  sync.Mutex
	seq map[identifier.SubscriptionId]uint64
}

func NewOkx() *Okx {
	return &Okx{seq: make(map[identifier.SubscriptionId]uint64)}
}

func (o *Okx) next(subId identifier.SubscriptionId) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq[subId]++
	return o.seq[subId]
}

func (o *Okx) reset(subId identifier.SubscriptionId) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq[subId] = 0
}

type okxEnvelope struct {
	Arg struct {
		Channel string `json:"channel"`
		InstId  string `json:"instId"`
	} `json:"arg"`
	Action string            `json:"action"`
	Data   []json.RawMessage `json:"data"`
}

func (o *Okx) Decode(raw []byte) ([]Frame, error) {
	if string(raw) == "pong" {
		// The bare-text reply to our text ping; nothing to emit.
		return nil, nil
	}
	var env okxEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("okx: unmarshal envelope: %w", err)
	}
	if env.Arg.Channel == "" {
		// Not a data push (subscribe/error ack); nothing to emit.
		return nil, nil
	}
	subId := identifier.NewSubscriptionId(env.Arg.Channel, env.Arg.InstId)

	switch env.Arg.Channel {
	case "trades":
		return o.decodeTrades(subId, env.Data)
	case "bbo-tbt":
		return o.decodeBbo(subId, env.Data)
	case "books":
		return o.decodeBooks(subId, env.Action, env.Data)
	default:
		return nil, fmt.Errorf("okx: unrecognized channel %q", env.Arg.Channel)
	}
}

type okxLevel [4]string // price, size, deprecated, numOrders

func parseOkxLevels(raw []okxLevel) ([]book.Level, error) {
	levels := make([]book.Level, 0, len(raw))
	for _, l := range raw {
		price, err := decimal.NewFromString(l[0])
		if err != nil {
			return nil, fmt.Errorf("okx: parse level price %q: %w", l[0], err)
		}
		amount, err := decimal.NewFromString(l[1])
		if err != nil {
			return nil, fmt.Errorf("okx: parse level amount %q: %w", l[1], err)
		}
		levels = append(levels, book.Level{Price: price, Amount: amount})
	}
	return levels, nil
}

func okxTimestamp(ms string) time.Time {
	v, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.UnixMilli(v)
}

type okxTrade struct {
	TradeId string `json:"tradeId"`
	Px      string `json:"px"`
	Sz      string `json:"sz"`
	Side    string `json:"side"`
	Ts      string `json:"ts"`
}

func (o *Okx) decodeTrades(subId identifier.SubscriptionId, raw []json.RawMessage) ([]Frame, error) {
	frames := make([]Frame, 0, len(raw))
	for _, item := range raw {
		var t okxTrade
		if err := json.Unmarshal(item, &t); err != nil {
			return nil, fmt.Errorf("okx: unmarshal trade: %w", err)
		}
		price, err := strconv.ParseFloat(t.Px, 64)
		if err != nil {
			return nil, fmt.Errorf("okx: parse trade price: %w", err)
		}
		size, err := strconv.ParseFloat(t.Sz, 64)
		if err != nil {
			return nil, fmt.Errorf("okx: parse trade size: %w", err)
		}
		side := event.Buy
		if t.Side == "sell" {
			side = event.Sell
		}
		frames = append(frames, Frame{
			SubId:        subId,
			TimeExchange: okxTimestamp(t.Ts),
			Payload: Payload{Trade: &event.PublicTrade{
				Id:     t.TradeId,
				Price:  price,
				Amount: size,
				Side:   side,
			}},
		})
	}
	return frames, nil
}

type okxBboData struct {
	Asks []okxLevel `json:"asks"`
	Bids []okxLevel `json:"bids"`
	Ts   string     `json:"ts"`
}

func (o *Okx) decodeBbo(subId identifier.SubscriptionId, raw []json.RawMessage) ([]Frame, error) {
	frames := make([]Frame, 0, len(raw))
	for _, item := range raw {
		var d okxBboData
		if err := json.Unmarshal(item, &d); err != nil {
			return nil, fmt.Errorf("okx: unmarshal bbo: %w", err)
		}
		if len(d.Bids) == 0 || len(d.Asks) == 0 {
			continue
		}
		bidPrice, err := strconv.ParseFloat(d.Bids[0][0], 64)
		if err != nil {
			return nil, fmt.Errorf("okx: parse bbo bid price: %w", err)
		}
		bidAmount, err := strconv.ParseFloat(d.Bids[0][1], 64)
		if err != nil {
			return nil, fmt.Errorf("okx: parse bbo bid amount: %w", err)
		}
		askPrice, err := strconv.ParseFloat(d.Asks[0][0], 64)
		if err != nil {
			return nil, fmt.Errorf("okx: parse bbo ask price: %w", err)
		}
		askAmount, err := strconv.ParseFloat(d.Asks[0][1], 64)
		if err != nil {
			return nil, fmt.Errorf("okx: parse bbo ask amount: %w", err)
		}
		ts := okxTimestamp(d.Ts)
		frames = append(frames, Frame{
			SubId:        subId,
			TimeExchange: ts,
			Payload: Payload{BookL1: &event.OrderBookL1{
				LastUpdateTime: ts,
				BestBidPrice:   bidPrice,
				BestBidAmount:  bidAmount,
				BestAskPrice:   askPrice,
				BestAskAmount:  askAmount,
			}},
		})
	}
	return frames, nil
}

type okxBookData struct {
	Asks []okxLevel `json:"asks"`
	Bids []okxLevel `json:"bids"`
	Ts   string     `json:"ts"`
}

func (o *Okx) decodeBooks(subId identifier.SubscriptionId, action string, raw []json.RawMessage) ([]Frame, error) {
	frames := make([]Frame, 0, len(raw))
	for _, item := range raw {
		var d okxBookData
		if err := json.Unmarshal(item, &d); err != nil {
			return nil, fmt.Errorf("okx: unmarshal book data: %w", err)
		}
		asks, err := parseOkxLevels(d.Asks)
		if err != nil {
			return nil, err
		}
		bids, err := parseOkxLevels(d.Bids)
		if err != nil {
			return nil, err
		}
		ts := okxTimestamp(d.Ts)

		if action == "snapshot" {
			o.reset(subId)
			frames = append(frames, Frame{
				SubId:        subId,
				TimeExchange: ts,
				Payload: Payload{BookSnapshot: &book.Snapshot{
					LastUpdateId: 0,
					Bids:         bids,
					Asks:         asks,
					TimeExchange: ts,
				}},
			})
			continue
		}
		id := o.next(subId)
		frames = append(frames, Frame{
			SubId:        subId,
			TimeExchange: ts,
			Payload: Payload{BookDelta: &book.Delta{
				FirstUpdateId: id,
				LastUpdateId:  id,
				Bids:          bids,
				Asks:          asks,
				TimeExchange:  ts,
			}},
		})
	}
	return frames, nil
}
