package transform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/marketfeed/book"
	"github.com/sawpanic/marketfeed/event"
	"github.com/sawpanic/marketfeed/identifier"
)

// Binance decodes frames from the combined-stream envelope
// {"stream":"<market>@<channel>","data":{...}} (spec §6 example payloads).
type Binance struct{}

type binanceEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

func (Binance) Decode(raw []byte) ([]Frame, error) {
	var env binanceEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("binance: unmarshal envelope: %w", err)
	}
	if env.Stream == "" {
		// Not a combined-stream data frame (e.g. a late subscribe ack); no
		// data to emit, not an error.
		return nil, nil
	}
	market, channel, ok := strings.Cut(env.Stream, "@")
	if !ok {
		return nil, fmt.Errorf("binance: malformed stream name %q", env.Stream)
	}
	subId := identifier.NewSubscriptionId(channel, strings.ToUpper(market))

	switch {
	case strings.HasPrefix(channel, "depth"):
		return decodeBinanceDepth(subId, env.Data)
	case channel == "bookTicker":
		return decodeBinanceBookTicker(subId, env.Data)
	case channel == "aggTrade":
		return decodeBinanceAggTrade(subId, env.Data)
	case strings.HasPrefix(channel, "kline"):
		return decodeBinanceKline(subId, env.Data)
	default:
		return nil, fmt.Errorf("binance: unrecognized channel %q", channel)
	}
}

type binanceLevel [2]string

func parseBinanceLevels(raw []binanceLevel) ([]book.Level, error) {
	levels := make([]book.Level, 0, len(raw))
	for _, l := range raw {
		price, err := decimal.NewFromString(l[0])
		if err != nil {
			return nil, fmt.Errorf("binance: parse price %q: %w", l[0], err)
		}
		amount, err := decimal.NewFromString(l[1])
		if err != nil {
			return nil, fmt.Errorf("binance: parse amount %q: %w", l[1], err)
		}
		levels = append(levels, book.Level{Price: price, Amount: amount})
	}
	return levels, nil
}

type binanceDepthUpdate struct {
	EventTime int64          `json:"E"`
	FirstId   uint64         `json:"U"`
	LastId    uint64         `json:"u"`
	Bids      []binanceLevel `json:"b"`
	Asks      []binanceLevel `json:"a"`
}

func decodeBinanceDepth(subId identifier.SubscriptionId, raw json.RawMessage) ([]Frame, error) {
	var d binanceDepthUpdate
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("binance: unmarshal depth update: %w", err)
	}
	bids, err := parseBinanceLevels(d.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := parseBinanceLevels(d.Asks)
	if err != nil {
		return nil, err
	}
	ts := time.UnixMilli(d.EventTime)
	return []Frame{{
		SubId:        subId,
		TimeExchange: ts,
		Payload: Payload{BookDelta: &book.Delta{
			FirstUpdateId: d.FirstId,
			LastUpdateId:  d.LastId,
			Bids:          bids,
			Asks:          asks,
			TimeExchange:  ts,
		}},
	}}, nil
}

type binanceBookTicker struct {
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

func decodeBinanceBookTicker(subId identifier.SubscriptionId, raw json.RawMessage) ([]Frame, error) {
	var t binanceBookTicker
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("binance: unmarshal book ticker: %w", err)
	}
	bidPrice, err := strconv.ParseFloat(t.BidPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("binance: parse bid price: %w", err)
	}
	bidQty, err := strconv.ParseFloat(t.BidQty, 64)
	if err != nil {
		return nil, fmt.Errorf("binance: parse bid qty: %w", err)
	}
	askPrice, err := strconv.ParseFloat(t.AskPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("binance: parse ask price: %w", err)
	}
	askQty, err := strconv.ParseFloat(t.AskQty, 64)
	if err != nil {
		return nil, fmt.Errorf("binance: parse ask qty: %w", err)
	}
	now := time.Now()
	return []Frame{{
		SubId:        subId,
		TimeExchange: now,
		Payload: Payload{BookL1: &event.OrderBookL1{
			LastUpdateTime: now,
			BestBidPrice:   bidPrice,
			BestBidAmount:  bidQty,
			BestAskPrice:   askPrice,
			BestAskAmount:  askQty,
		}},
	}}, nil
}

type binanceAggTrade struct {
	TradeId int64  `json:"a"`
	Price   string `json:"p"`
	Qty     string `json:"q"`
	TradeAt int64  `json:"T"`
	IsMaker bool   `json:"m"`
}

func decodeBinanceAggTrade(subId identifier.SubscriptionId, raw json.RawMessage) ([]Frame, error) {
	var t binanceAggTrade
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("binance: unmarshal agg trade: %w", err)
	}
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("binance: parse trade price: %w", err)
	}
	qty, err := strconv.ParseFloat(t.Qty, 64)
	if err != nil {
		return nil, fmt.Errorf("binance: parse trade qty: %w", err)
	}
	side := event.Buy
	if t.IsMaker {
		// Buyer is the maker: the trade was taker-initiated on the sell side.
		side = event.Sell
	}
	return []Frame{{
		SubId:        subId,
		TimeExchange: time.UnixMilli(t.TradeAt),
		Payload: Payload{Trade: &event.PublicTrade{
			Id:     strconv.FormatInt(t.TradeId, 10),
			Price:  price,
			Amount: qty,
			Side:   side,
		}},
	}}, nil
}

type binanceKline struct {
	Kline struct {
		CloseTime  int64  `json:"T"`
		Open       string `json:"o"`
		High       string `json:"h"`
		Low        string `json:"l"`
		Close      string `json:"c"`
		Volume     string `json:"v"`
		TradeCount int64  `json:"n"`
		Closed     bool   `json:"x"`
	} `json:"k"`
}

func decodeBinanceKline(subId identifier.SubscriptionId, raw json.RawMessage) ([]Frame, error) {
	var k binanceKline
	if err := json.Unmarshal(raw, &k); err != nil {
		return nil, fmt.Errorf("binance: unmarshal kline: %w", err)
	}
	if !k.Kline.Closed {
		// Intra-bar updates carry no complete candle; nothing to emit yet.
		return nil, nil
	}
	open, err := strconv.ParseFloat(k.Kline.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("binance: parse kline open: %w", err)
	}
	high, err := strconv.ParseFloat(k.Kline.High, 64)
	if err != nil {
		return nil, fmt.Errorf("binance: parse kline high: %w", err)
	}
	low, err := strconv.ParseFloat(k.Kline.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("binance: parse kline low: %w", err)
	}
	closePrice, err := strconv.ParseFloat(k.Kline.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("binance: parse kline close: %w", err)
	}
	volume, err := strconv.ParseFloat(k.Kline.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("binance: parse kline volume: %w", err)
	}
	ts := time.UnixMilli(k.Kline.CloseTime)
	return []Frame{{
		SubId:        subId,
		TimeExchange: ts,
		Payload: Payload{Candle: &event.Candle{
			Open:       open,
			High:       high,
			Low:        low,
			Close:      closePrice,
			Volume:     volume,
			CloseTime:  ts,
			TradeCount: k.Kline.TradeCount,
		}},
	}}, nil
}
