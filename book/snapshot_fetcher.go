package book

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// SnapshotFetchFunc fetches the current authoritative snapshot for one
// instrument over HTTP. Connectors for venues that don't push an initial
// snapshot on the socket (Binance Spot, Bitstamp, Kucoin) supply one of
// these; venues that push a snapshot frame (OKX, Bybit, Gate.io) don't need
// it (spec §4.5 "State per instrument").
type SnapshotFetchFunc func(ctx context.Context) (Snapshot, error)

// SnapshotFetcher throttles and retries the HTTP snapshot fetches of the
// one instrument its fetch function covers, matching the teacher's TTL-cached REST fetch pattern
// (internal/data/venue/binance/orderbook.go) but rate-limited instead of
// cached, since a fresh snapshot is required on every warmup/resync.
type SnapshotFetcher struct {
	limiter *rate.Limiter
	fetch   SnapshotFetchFunc
}

// NewSnapshotFetcher builds a fetcher with its own limiter, admitting rps
// requests per second with bursts of up to burst. The limiter is not
// shared with any other fetcher.
func NewSnapshotFetcher(fetch SnapshotFetchFunc, rps float64, burst int) *SnapshotFetcher {
	return &SnapshotFetcher{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		fetch:   fetch,
	}
}

// Fetch waits for limiter admission, then fetches. ctx cancellation is
// honored both while waiting for the limiter and during the HTTP call.
func (f *SnapshotFetcher) Fetch(ctx context.Context) (Snapshot, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return Snapshot{}, err
	}
	return f.fetch(ctx)
}

// FetchWithRetry retries transient fetch failures with capped exponential
// backoff, bailing out once ctx is done.
func (f *SnapshotFetcher) FetchWithRetry(ctx context.Context, maxAttempts int, base time.Duration) (Snapshot, error) {
	var lastErr error
	backoff := base
	for attempt := 0; attempt < maxAttempts; attempt++ {
		snap, err := f.Fetch(ctx)
		if err == nil {
			return snap, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
	return Snapshot{}, lastErr
}
