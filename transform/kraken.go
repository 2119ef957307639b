package transform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/marketfeed/book"
	"github.com/sawpanic/marketfeed/event"
	"github.com/sawpanic/marketfeed/identifier"
)

// Kraken decodes the public feed's positional-array message shape:
// [channelId, payload, channelName, pair] (spec §6 example payloads).
// Kraken's book channel carries no (first,last) sequence pair either, so
// deltas get a synthesized monotonic id per subscription, same
// accommodation as Coinbase/Bitstamp.
type Kraken struct {
	mu  sync.Mutex
	seq map[identifier.SubscriptionId]uint64
}

func NewKraken() *Kraken {
	return &Kraken{seq: make(map[identifier.SubscriptionId]uint64)}
}

func (k *Kraken) next(subId identifier.SubscriptionId) uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.seq[subId]++
	return k.seq[subId]
}

func (k *Kraken) reset(subId identifier.SubscriptionId) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.seq[subId] = 0
}

type krakenLevel [3]string // price, volume, time

func parseKrakenLevels(raw []krakenLevel) ([]book.Level, error) {
	levels := make([]book.Level, 0, len(raw))
	for _, l := range raw {
		price, err := decimal.NewFromString(l[0])
		if err != nil {
			return nil, fmt.Errorf("kraken: parse level price %q: %w", l[0], err)
		}
		amount, err := decimal.NewFromString(l[1])
		if err != nil {
			return nil, fmt.Errorf("kraken: parse level amount %q: %w", l[1], err)
		}
		levels = append(levels, book.Level{Price: price, Amount: amount})
	}
	return levels, nil
}

type krakenBookPayload struct {
	// Full snapshot keys.
	As []krakenLevel `json:"as"`
	Bs []krakenLevel `json:"bs"`
	// Incremental update keys.
	A []krakenLevel `json:"a"`
	B []krakenLevel `json:"b"`
}

func (k *Kraken) Decode(raw []byte) ([]Frame, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		// Not a positional array (e.g. a {"event":...} status/heartbeat
		// object); no data to emit.
		return nil, nil
	}
	if len(arr) < 4 {
		return nil, nil
	}
	var channelName, pair string
	if err := json.Unmarshal(arr[len(arr)-2], &channelName); err != nil {
		return nil, fmt.Errorf("kraken: parse channel name: %w", err)
	}
	if err := json.Unmarshal(arr[len(arr)-1], &pair); err != nil {
		return nil, fmt.Errorf("kraken: parse pair: %w", err)
	}

	switch {
	case channelName == "trade":
		subId := identifier.NewSubscriptionId("trade", pair)
		return k.decodeTrades(subId, arr[1])
	case strings.HasPrefix(channelName, "book"):
		subId := identifier.NewSubscriptionId("book", pair)
		return k.decodeBook(subId, arr[1:len(arr)-2])
	default:
		return nil, nil
	}
}

type krakenTrade [6]string // price, volume, time, side, orderType, misc

func (k *Kraken) decodeTrades(subId identifier.SubscriptionId, raw json.RawMessage) ([]Frame, error) {
	var trades []krakenTrade
	if err := json.Unmarshal(raw, &trades); err != nil {
		return nil, fmt.Errorf("kraken: unmarshal trades: %w", err)
	}
	frames := make([]Frame, 0, len(trades))
	for _, t := range trades {
		price, err := strconv.ParseFloat(t[0], 64)
		if err != nil {
			return nil, fmt.Errorf("kraken: parse trade price: %w", err)
		}
		volume, err := strconv.ParseFloat(t[1], 64)
		if err != nil {
			return nil, fmt.Errorf("kraken: parse trade volume: %w", err)
		}
		secs, err := strconv.ParseFloat(t[2], 64)
		if err != nil {
			return nil, fmt.Errorf("kraken: parse trade time: %w", err)
		}
		side := event.Buy
		if t[3] == "s" {
			side = event.Sell
		}
		ts := time.UnixMicro(int64(secs * 1e6))
		frames = append(frames, Frame{
			SubId:        subId,
			TimeExchange: ts,
			Payload: Payload{Trade: &event.PublicTrade{
				Id:     fmt.Sprintf("%s-%d", subId, ts.UnixNano()),
				Price:  price,
				Amount: volume,
				Side:   side,
			}},
		})
	}
	return frames, nil
}

// decodeBook merges the one or two data objects a Kraken book message can
// carry (bids and asks sometimes arrive as separate positional objects on
// the same update) into a single snapshot-or-delta Frame.
func (k *Kraken) decodeBook(subId identifier.SubscriptionId, dataObjs []json.RawMessage) ([]Frame, error) {
	var isSnapshot bool
	var bids, asks []book.Level
	for _, obj := range dataObjs {
		var p krakenBookPayload
		if err := json.Unmarshal(obj, &p); err != nil {
			return nil, fmt.Errorf("kraken: unmarshal book payload: %w", err)
		}
		if len(p.As) > 0 || len(p.Bs) > 0 {
			isSnapshot = true
			levels, err := parseKrakenLevels(p.As)
			if err != nil {
				return nil, err
			}
			asks = append(asks, levels...)
			levels, err = parseKrakenLevels(p.Bs)
			if err != nil {
				return nil, err
			}
			bids = append(bids, levels...)
		}
		if len(p.A) > 0 {
			levels, err := parseKrakenLevels(p.A)
			if err != nil {
				return nil, err
			}
			asks = append(asks, levels...)
		}
		if len(p.B) > 0 {
			levels, err := parseKrakenLevels(p.B)
			if err != nil {
				return nil, err
			}
			bids = append(bids, levels...)
		}
	}

	now := time.Now()
	if isSnapshot {
		k.reset(subId)
		return []Frame{{
			SubId:        subId,
			TimeExchange: now,
			Payload: Payload{BookSnapshot: &book.Snapshot{
				LastUpdateId: 0,
				Bids:         bids,
				Asks:         asks,
				TimeExchange: now,
			}},
		}}, nil
	}
	id := k.next(subId)
	return []Frame{{
		SubId:        subId,
		TimeExchange: now,
		Payload: Payload{BookDelta: &book.Delta{
			FirstUpdateId: id,
			LastUpdateId:  id,
			Bids:          bids,
			Asks:          asks,
			TimeExchange:  now,
		}},
	}}, nil
}
