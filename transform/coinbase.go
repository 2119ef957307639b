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

// Coinbase decodes the exchange websocket feed's "matches"/"ticker"/
// "level2" channel messages. Unlike Binance, Coinbase's level2
// channel carries no sequence number at all, so Coinbase synthesizes a
// monotonic per-subscription counter to feed the book engine's generic
// continuity state machine uniformly (spec §4.5 assumes a numeric
// (first, last) pair exists; this venue doesn't expose one to validate
// against, so the synthesized ids can never observe a real gap — the
// reconnect+resnapshot path is this venue's only real gap backstop).
type Coinbase struct {
	mu  sync.Mutex
	seq map[identifier.SubscriptionId]uint64
}

func NewCoinbase() *Coinbase {
	return &Coinbase{seq: make(map[identifier.SubscriptionId]uint64)}
}

func (c *Coinbase) next(subId identifier.SubscriptionId) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq[subId]++
	return c.seq[subId]
}

func (c *Coinbase) reset(subId identifier.SubscriptionId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq[subId] = 0
}

type coinbaseEnvelope struct {
	Type        string      `json:"type"`
	ProductId   string      `json:"product_id"`
	Price       string      `json:"price"`
	Size        string      `json:"size"`
	Side        string      `json:"side"`
	Time        time.Time   `json:"time"`
	TradeId     int64       `json:"trade_id"`
	BestBid     string      `json:"best_bid"`
	BestBidSize string      `json:"best_bid_size"`
	BestAsk     string      `json:"best_ask"`
	BestAskSize string      `json:"best_ask_size"`
	Bids        [][2]string `json:"bids"`
	Asks        [][2]string `json:"asks"`
	Changes     [][3]string `json:"changes"`
	Reason      string      `json:"reason"`
}

func (c *Coinbase) Decode(raw []byte) ([]Frame, error) {
	var env coinbaseEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("coinbase: unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "match", "last_match":
		return c.decodeMatch(env)
	case "ticker":
		return c.decodeTicker(env)
	case "snapshot":
		return c.decodeSnapshot(env)
	case "l2update":
		return c.decodeL2Update(env)
	default:
		// subscriptions/heartbeat/error acks arriving post-validation: no
		// data to emit.
		return nil, nil
	}
}

func (c *Coinbase) decodeMatch(env coinbaseEnvelope) ([]Frame, error) {
	subId := identifier.NewSubscriptionId("matches", env.ProductId)
	price, err := strconv.ParseFloat(env.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("coinbase: parse match price: %w", err)
	}
	size, err := strconv.ParseFloat(env.Size, 64)
	if err != nil {
		return nil, fmt.Errorf("coinbase: parse match size: %w", err)
	}
	side := event.Buy
	if env.Side == "sell" {
		side = event.Sell
	}
	return []Frame{{
		SubId:        subId,
		TimeExchange: env.Time,
		Payload: Payload{Trade: &event.PublicTrade{
			Id:     strconv.FormatInt(env.TradeId, 10),
			Price:  price,
			Amount: size,
			Side:   side,
		}},
	}}, nil
}

func (c *Coinbase) decodeTicker(env coinbaseEnvelope) ([]Frame, error) {
	subId := identifier.NewSubscriptionId("ticker", env.ProductId)
	bidPrice, err := strconv.ParseFloat(env.BestBid, 64)
	if err != nil {
		return nil, fmt.Errorf("coinbase: parse best bid: %w", err)
	}
	bidSize, err := strconv.ParseFloat(env.BestBidSize, 64)
	if err != nil {
		return nil, fmt.Errorf("coinbase: parse best bid size: %w", err)
	}
	askPrice, err := strconv.ParseFloat(env.BestAsk, 64)
	if err != nil {
		return nil, fmt.Errorf("coinbase: parse best ask: %w", err)
	}
	askSize, err := strconv.ParseFloat(env.BestAskSize, 64)
	if err != nil {
		return nil, fmt.Errorf("coinbase: parse best ask size: %w", err)
	}
	return []Frame{{
		SubId:        subId,
		TimeExchange: env.Time,
		Payload: Payload{BookL1: &event.OrderBookL1{
			LastUpdateTime: env.Time,
			BestBidPrice:   bidPrice,
			BestBidAmount:  bidSize,
			BestAskPrice:   askPrice,
			BestAskAmount:  askSize,
		}},
	}}, nil
}

func parseCoinbaseLevels(raw [][2]string) ([]book.Level, error) {
	levels := make([]book.Level, 0, len(raw))
	for _, l := range raw {
		price, err := decimal.NewFromString(l[0])
		if err != nil {
			return nil, fmt.Errorf("coinbase: parse level price %q: %w", l[0], err)
		}
		amount, err := decimal.NewFromString(l[1])
		if err != nil {
			return nil, fmt.Errorf("coinbase: parse level amount %q: %w", l[1], err)
		}
		levels = append(levels, book.Level{Price: price, Amount: amount})
	}
	return levels, nil
}

func (c *Coinbase) decodeSnapshot(env coinbaseEnvelope) ([]Frame, error) {
	subId := identifier.NewSubscriptionId("level2", env.ProductId)
	c.reset(subId)
	bids, err := parseCoinbaseLevels(env.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := parseCoinbaseLevels(env.Asks)
	if err != nil {
		return nil, err
	}
	now := time.Now()
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

func (c *Coinbase) decodeL2Update(env coinbaseEnvelope) ([]Frame, error) {
	subId := identifier.NewSubscriptionId("level2", env.ProductId)
	var bids, asks []book.Level
	for _, change := range env.Changes {
		side, priceStr, amountStr := change[0], change[1], change[2]
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("coinbase: parse change price %q: %w", priceStr, err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("coinbase: parse change amount %q: %w", amountStr, err)
		}
		level := book.Level{Price: price, Amount: amount}
		if side == "buy" {
			bids = append(bids, level)
		} else {
			asks = append(asks, level)
		}
	}
	id := c.next(subId)
	ts := env.Time
	if ts.IsZero() {
		ts = time.Now()
	}
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
