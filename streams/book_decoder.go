// Package streams implements C7 (the stream builder and fan-in) and wires
// C5 (the book reconstruction engine) and C8 (the shared book map) into the
// per-socket reconnect.Stream runtime (spec §4.5, §4.7, §4.8).
package streams

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketfeed/book"
	"github.com/sawpanic/marketfeed/event"
	"github.com/sawpanic/marketfeed/identifier"
	"github.com/sawpanic/marketfeed/transform"
)

// bookState is one instrument's updater plus fetch bookkeeping, guarded by
// its own mutex so concurrent decode calls and the async snapshot-fetch
// goroutine never race on the same Updater.
type bookState struct {
	mu           sync.Mutex
	updater      *book.Updater
	fetcher      *book.SnapshotFetcher
	fetchStarted bool
}

// BookDecoder adapts package transform's stateless L2 decoding plus
// package book's stateful sequence-continuity engine into a single
// reconnect.Decoder[event.OrderBookEvent] for one socket session. One
// BookDecoder is constructed per (re)connect, so its per-instrument Updater
// state and fetch-once bookkeeping always start clean after a reconnect
// (spec §8 property 5: the first OrderBookEvent after reconnect is always
// a Snapshot).
type BookDecoder struct {
	Exchange    identifier.ExchangeId
	Transformer *transform.Transformer
	Writer      *book.OrderBookMap
	// NewFetcher builds the per-instrument HTTP snapshot fetcher for venues
	// that need one fetched out-of-band (Binance, Bitstamp); nil for venues
	// that push an initial snapshot on the socket itself (Coinbase, Kraken,
	// Okx). book.SnapshotFetchFunc closes over one fixed instrument, so a
	// fresh *book.SnapshotFetcher is built per instrument the first time
	// it's seen, not shared across instruments.
	NewFetcher func(identifier.InstrumentKey) *book.SnapshotFetcher

	ctx     context.Context
	states  sync.Map // identifier.InstrumentKey.String() -> *bookState
	pending chan event.Outcome[event.OrderBookEvent]

	// epoch and current together stop a previous session's in-flight
	// snapshot fetch from publishing into OrderBookMap after a newer
	// session has already taken over the same instrument: fetchSnapshot
	// checks its own epoch is still current before applying.
	epoch   uint64
	current *atomic.Uint64
}

// NewBookDecoder builds a BookDecoder bound to ctx, which governs the
// lifetime of any background snapshot-fetch goroutines it spawns. gen is
// shared across every session of one logical stream so each reconnect gets
// a strictly increasing epoch.
func NewBookDecoder(ctx context.Context, exchange identifier.ExchangeId, transformer *transform.Transformer, writer *book.OrderBookMap, gen *atomic.Uint64) *BookDecoder {
	return &BookDecoder{
		Exchange:    exchange,
		Transformer: transformer,
		Writer:      writer,
		ctx:         ctx,
		pending:     make(chan event.Outcome[event.OrderBookEvent], 64),
		epoch:       gen.Add(1),
		current:     gen,
	}
}

func (d *BookDecoder) stateFor(key identifier.InstrumentKey) *bookState {
	if v, ok := d.states.Load(key.String()); ok {
		return v.(*bookState)
	}
	st := &bookState{updater: book.NewUpdater(d.Exchange, key)}
	actual, _ := d.states.LoadOrStore(key.String(), st)
	return actual.(*bookState)
}

// Decode implements the reconnect.Decoder[event.OrderBookEvent] signature.
func (d *BookDecoder) Decode(raw []byte, routing identifier.Map) ([]event.Outcome[event.OrderBookEvent], error) {
	var out []event.Outcome[event.OrderBookEvent]
	out = append(out, d.drainPending()...)

	result, err := d.Transformer.Decode(raw, routing)
	if err != nil {
		// Transformer.Decode only returns a non-nil top-level error for
		// conditions outside its own per-item error reporting; none of the
		// current decoders produce one, but honor the contract.
		return out, err
	}
	for _, ev := range result.Events {
		if ev.IsErr() {
			out = append(out, event.Errf[event.OrderBookEvent](ev.Err))
		}
	}

	for _, bf := range result.Books {
		evs, applyErr := d.apply(bf)
		for _, e := range evs {
			out = append(out, event.Ok(e))
		}
		if applyErr != nil {
			return out, applyErr
		}
	}
	return out, nil
}

func (d *BookDecoder) drainPending() []event.Outcome[event.OrderBookEvent] {
	var out []event.Outcome[event.OrderBookEvent]
	for {
		select {
		case o := <-d.pending:
			out = append(out, o)
		default:
			return out
		}
	}
}

func (d *BookDecoder) apply(bf transform.BookFrame) ([]event.OrderBookEvent, error) {
	st := d.stateFor(bf.Instrument)
	st.mu.Lock()
	defer st.mu.Unlock()

	if bf.Snapshot != nil {
		evs, err := st.updater.ApplySnapshot(*bf.Snapshot)
		d.publish(bf.Instrument, st.updater, evs)
		return evs, err
	}

	if d.NewFetcher != nil && !st.fetchStarted {
		st.fetchStarted = true
		st.fetcher = d.NewFetcher(bf.Instrument)
		go d.fetchSnapshot(bf.Instrument, st.fetcher)
	}
	evs, err := st.updater.ApplyDelta(*bf.Delta)
	d.publish(bf.Instrument, st.updater, evs)
	return evs, err
}

// fetchSnapshot runs on its own goroutine for venues without a
// socket-pushed snapshot. Deltas keep buffering in the Updater (rule R5)
// while the fetch is in flight; once it lands, applying it replays any
// deltas that arrived meanwhile (rules R1/R2).
func (d *BookDecoder) fetchSnapshot(key identifier.InstrumentKey, fetcher *book.SnapshotFetcher) {
	logger := log.With().Str("component", "streams").Str("exchange", string(d.Exchange)).Str("instrument", key.String()).Logger()

	snap, err := fetcher.FetchWithRetry(d.ctx, 5, 500*time.Millisecond)
	if err != nil {
		logger.Error().Err(err).Msg("snapshot fetch failed; instrument will remain unsynced until reconnect")
		return
	}
	if d.current.Load() != d.epoch {
		logger.Debug().Msg("fetch completed after this session was superseded; discarding")
		return
	}

	st := d.stateFor(key)
	st.mu.Lock()
	evs, applyErr := st.updater.ApplySnapshot(snap)
	d.publishLocked(key, st.updater, evs)
	st.mu.Unlock()

	for _, e := range evs {
		d.queue(event.Ok(e))
	}
	if applyErr != nil {
		d.queue(event.Errf[event.OrderBookEvent](applyErr))
	}
}

func (d *BookDecoder) queue(o event.Outcome[event.OrderBookEvent]) {
	select {
	case d.pending <- o:
	case <-d.ctx.Done():
	}
}

func (d *BookDecoder) publish(key identifier.InstrumentKey, u *book.Updater, evs []event.OrderBookEvent) {
	if len(evs) == 0 {
		return
	}
	d.Writer.Writer(key).Publish(u.Book().Clone())
}

func (d *BookDecoder) publishLocked(key identifier.InstrumentKey, u *book.Updater, evs []event.OrderBookEvent) {
	d.publish(key, u, evs)
}
