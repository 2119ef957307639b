package transform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sawpanic/marketfeed/book"
	"github.com/sawpanic/marketfeed/event"
	"github.com/sawpanic/marketfeed/identifier"
)

// bitstampChannelPrefixes lists known channel tokens longest-first so a
// combined "<channel>_<market>" string splits unambiguously.
var bitstampChannelPrefixes = []string{"diff_order_book", "live_trades"}

func splitBitstampChannel(full string) (channel, market string, ok bool) {
	for _, prefix := range bitstampChannelPrefixes {
		if strings.HasPrefix(full, prefix+"_") {
			return prefix, strings.TrimPrefix(full, prefix+"_"), true
		}
	}
	return "", "", false
}

// Bitstamp decodes the {"event":...,"channel":"<channel>_<market>","data":
// {...}} envelope (spec §6 example payloads). Like Coinbase, Bitstamp's
// diff_order_book channel carries no sequence field, so deltas get a
// synthesized monotonic id per channel to drive the generic book engine.
type Bitstamp struct {
	mu  sync.Mutex
	seq map[identifier.SubscriptionId]uint64
}

func NewBitstamp() *Bitstamp {
	return &Bitstamp{seq: make(map[identifier.SubscriptionId]uint64)}
}

func (b *Bitstamp) next(subId identifier.SubscriptionId) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq[subId]++
	return b.seq[subId]
}

type bitstampEnvelope struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

func (b *Bitstamp) Decode(raw []byte) ([]Frame, error) {
	var env bitstampEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("bitstamp: unmarshal envelope: %w", err)
	}
	channel, market, ok := splitBitstampChannel(env.Channel)
	if !ok {
		// Subscription acks and other housekeeping frames carry no channel
		// suffix we recognize; nothing to emit.
		return nil, nil
	}
	subId := identifier.NewSubscriptionId(channel, market)

	switch env.Event {
	case "trade":
		return b.decodeTrade(subId, env.Data)
	case "data":
		return b.decodeDiff(subId, env.Data)
	default:
		return nil, nil
	}
}

type bitstampTrade struct {
	Id             int64  `json:"id"`
	Amount         string `json:"amount"`
	Price          string `json:"price"`
	Type           int    `json:"type"`
	Microtimestamp string `json:"microtimestamp"`
}

func (b *Bitstamp) decodeTrade(subId identifier.SubscriptionId, raw json.RawMessage) ([]Frame, error) {
	var t bitstampTrade
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("bitstamp: unmarshal trade: %w", err)
	}
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("bitstamp: parse trade price: %w", err)
	}
	amount, err := strconv.ParseFloat(t.Amount, 64)
	if err != nil {
		return nil, fmt.Errorf("bitstamp: parse trade amount: %w", err)
	}
	side := event.Buy
	if t.Type == 1 {
		side = event.Sell
	}
	return []Frame{{
		SubId:        subId,
		TimeExchange: bitstampMicrotime(t.Microtimestamp),
		Payload: Payload{Trade: &event.PublicTrade{
			Id:     strconv.FormatInt(t.Id, 10),
			Price:  price,
			Amount: amount,
			Side:   side,
		}},
	}}, nil
}

type bitstampDiff struct {
	Microtimestamp string      `json:"microtimestamp"`
	Bids           [][2]string `json:"bids"`
	Asks           [][2]string `json:"asks"`
}

func (b *Bitstamp) decodeDiff(subId identifier.SubscriptionId, raw json.RawMessage) ([]Frame, error) {
	var d bitstampDiff
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("bitstamp: unmarshal diff order book: %w", err)
	}
	bids, err := parseCoinbaseLevels(d.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := parseCoinbaseLevels(d.Asks)
	if err != nil {
		return nil, err
	}
	id := b.next(subId)
	ts := bitstampMicrotime(d.Microtimestamp)
	return []Frame{{
		SubId:        subId,
		TimeExchange: ts,
		Payload: Payload{BookDelta: &book.Delta{
			FirstUpdateId: id,
			LastUpdateId:  id,
			Bids:          bids,
			Asks:          asks,
			TimeExchange:  ts,
		}},
	}}, nil
}

func bitstampMicrotime(micros string) time.Time {
	v, err := strconv.ParseInt(micros, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.UnixMicro(v)
}
