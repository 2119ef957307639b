package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/marketfeed/book"
	"github.com/sawpanic/marketfeed/identifier"
)

// httpClient is shared by every REST snapshot fetcher below; 10s matches the
// teacher's internal/data/venue/binance/orderbook.go REST depth client.
var httpClient = &http.Client{Timeout: 10 * time.Second}

func parseHTTPLevels(raw [][2]string) ([]book.Level, error) {
	levels := make([]book.Level, 0, len(raw))
	for _, l := range raw {
		price, err := decimal.NewFromString(l[0])
		if err != nil {
			return nil, fmt.Errorf("parse level price %q: %w", l[0], err)
		}
		amount, err := decimal.NewFromString(l[1])
		if err != nil {
			return nil, fmt.Errorf("parse level amount %q: %w", l[1], err)
		}
		levels = append(levels, book.Level{Price: price, Amount: amount})
	}
	return levels, nil
}

type binanceDepthResponse struct {
	LastUpdateId uint64      `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// BinanceSnapshotFetcher builds the book.SnapshotFetcher for one Binance
// Spot instrument, hitting the public REST depth endpoint (grounded on the
// teacher's internal/data/venue/binance/orderbook.go: GET .../api/v3/depth
// with a numeric lastUpdateId anchoring the L2 stream's (U, u) continuity
// check per spec §4.5). Binance pushes no snapshot on the socket, so every
// BuildBooks call for this venue must supply one of these per instrument.
func BinanceSnapshotFetcher(key identifier.InstrumentKey) *book.SnapshotFetcher {
	symbol := strings.ToUpper(key.Instrument.Base + key.Instrument.Quote)
	fetch := func(ctx context.Context) (book.Snapshot, error) {
		url := fmt.Sprintf("https://api.binance.com/api/v3/depth?symbol=%s&limit=1000", symbol)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return book.Snapshot{}, fmt.Errorf("binance: build depth request: %w", err)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return book.Snapshot{}, fmt.Errorf("binance: depth request: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return book.Snapshot{}, fmt.Errorf("binance: depth request returned status %d", resp.StatusCode)
		}
		var dr binanceDepthResponse
		if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
			return book.Snapshot{}, fmt.Errorf("binance: decode depth response: %w", err)
		}
		bids, err := parseHTTPLevels(dr.Bids)
		if err != nil {
			return book.Snapshot{}, fmt.Errorf("binance: %w", err)
		}
		asks, err := parseHTTPLevels(dr.Asks)
		if err != nil {
			return book.Snapshot{}, fmt.Errorf("binance: %w", err)
		}
		return book.Snapshot{
			LastUpdateId: dr.LastUpdateId,
			Bids:         bids,
			Asks:         asks,
			TimeExchange: time.Now(),
		}, nil
	}
	// 1 req/s with a burst of 2 paces this instrument's fetch retries. Each
	// call builds its own limiter, so fetches for different instruments are
	// not throttled against each other.
	return book.NewSnapshotFetcher(fetch, 1, 2)
}

type bitstampOrderBookResponse struct {
	Timestamp         string      `json:"timestamp"`
	MicrotimestampStr string      `json:"microtimestamp"`
	Bids              [][2]string `json:"bids"`
	Asks              [][2]string `json:"asks"`
}

// BitstampSnapshotFetcher builds the book.SnapshotFetcher for one Bitstamp
// instrument via the public order_book REST endpoint. Bitstamp's
// diff_order_book websocket channel carries no initial snapshot either, so
// this fills the same role BinanceSnapshotFetcher does for Binance (spec
// §4.5). Bitstamp's diff_order_book deltas carry no real sequence number
// either (transform/bitstamp.go synthesizes one per channel starting at 1),
// so — exactly like the Coinbase snapshot handler — LastUpdateId here is
// fixed at 0 rather than derived from the REST response's microtimestamp: it
// only needs to sit one below the first synthesized delta id for the book
// engine's adopt rule (R2) to latch on.
func BitstampSnapshotFetcher(key identifier.InstrumentKey) *book.SnapshotFetcher {
	market := strings.ToLower(key.Instrument.Base + key.Instrument.Quote)
	fetch := func(ctx context.Context) (book.Snapshot, error) {
		url := fmt.Sprintf("https://www.bitstamp.net/api/v2/order_book/%s/", market)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return book.Snapshot{}, fmt.Errorf("bitstamp: build order_book request: %w", err)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return book.Snapshot{}, fmt.Errorf("bitstamp: order_book request: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return book.Snapshot{}, fmt.Errorf("bitstamp: order_book request returned status %d", resp.StatusCode)
		}
		var or bitstampOrderBookResponse
		if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
			return book.Snapshot{}, fmt.Errorf("bitstamp: decode order_book response: %w", err)
		}
		bids, err := parseHTTPLevels(or.Bids)
		if err != nil {
			return book.Snapshot{}, fmt.Errorf("bitstamp: %w", err)
		}
		asks, err := parseHTTPLevels(or.Asks)
		if err != nil {
			return book.Snapshot{}, fmt.Errorf("bitstamp: %w", err)
		}
		return book.Snapshot{
			LastUpdateId: 0,
			Bids:         bids,
			Asks:         asks,
			TimeExchange: time.Now(),
		}, nil
	}
	return book.NewSnapshotFetcher(fetch, 1, 2)
}
