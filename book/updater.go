package book

import (
	"github.com/sawpanic/marketfeed/errs"
	"github.com/sawpanic/marketfeed/event"
	"github.com/sawpanic/marketfeed/identifier"
)

// MaxBuffer bounds the number of deltas an Updater accumulates while
// awaiting its first snapshot. Exceeding it is terminal (spec §4.5 rule
// R5). 1024 is the spec's recommended default.
const MaxBuffer = 1024

type updaterState int

const (
	stateAwaitingSnapshot updaterState = iota
	stateBuffering
	stateSynced
)

// Updater is the per-instrument state machine that turns a snapshot plus a
// stream of deltas into a locally-replicated OrderBook, enforcing the
// sequence-continuity rules of spec §4.5. One Updater is owned by exactly
// one task; it is not safe for concurrent use — publish via OrderBookMap
// for concurrent reads.
type Updater struct {
	exchange   identifier.ExchangeId
	instrument identifier.InstrumentKey

	state   updaterState
	book    *OrderBook
	buffer  []Delta
	adopted bool
}

// NewUpdater constructs an Updater for one instrument, starting in
// AwaitingSnapshot.
func NewUpdater(exchange identifier.ExchangeId, instrument identifier.InstrumentKey) *Updater {
	return &Updater{
		exchange:   exchange,
		instrument: instrument,
		state:      stateAwaitingSnapshot,
		book:       NewOrderBook(),
	}
}

// PushDelta buffers a delta received before the snapshot has landed (rule
// R5). Returns errs.BufferOverflow, terminal, once the cap is exceeded.
func (u *Updater) PushDelta(d Delta) error {
	if u.state == stateSynced {
		panic("book: PushDelta called while Synced; call ApplyDelta instead")
	}
	u.state = stateBuffering
	if len(u.buffer) >= MaxBuffer {
		return &errs.BufferOverflow{Exchange: u.exchange, Instrument: u.instrument, Capacity: MaxBuffer}
	}
	u.buffer = append(u.buffer, d)
	return nil
}

// ApplySnapshot adopts a snapshot: replaces book state, replays any
// buffered deltas that land after it (rules R1/R2), and emits the
// Snapshot event followed by any Update events produced by replay.
func (u *Updater) ApplySnapshot(s Snapshot) ([]event.OrderBookEvent, error) {
	u.book.Reset(s.Bids, s.Asks, s.LastUpdateId, s.TimeExchange)
	u.state = stateSynced
	u.adopted = false

	events := []event.OrderBookEvent{event.SnapshotEvent(u.book.Clone())}

	buffered := u.buffer
	u.buffer = nil
	for _, d := range buffered {
		evs, err := u.applySyncedOrAdopt(d)
		events = append(events, evs...)
		if err != nil {
			return events, err
		}
	}
	return events, nil
}

// ApplyDelta feeds one delta into the state machine per rules R1-R4.
func (u *Updater) ApplyDelta(d Delta) ([]event.OrderBookEvent, error) {
	if u.state != stateSynced {
		return nil, u.PushDelta(d)
	}
	return u.applySyncedOrAdopt(d)
}

// applySyncedOrAdopt implements rules R1 (stale drop), R2 (adopt first
// applied delta against a snapshot), R3 (continuity apply), and R4 (gap ->
// terminal InvalidSequence). R2 is in play for every delta — buffered
// replay or live — until the first one is adopted against the snapshot's
// LastUpdateId; once u.adopted is true, only R3/R4 apply. A snapshot with
// an empty buffer reaches this straight from a live ApplyDelta call, so
// the adopt check cannot be gated on "called from snapshot replay".
func (u *Updater) applySyncedOrAdopt(d Delta) ([]event.OrderBookEvent, error) {
	s := u.book.LastUpdateId

	if !u.adopted {
		// R1: stale relative to the snapshot.
		if d.LastUpdateId <= s {
			return nil, nil
		}
		// R2: this delta straddles the snapshot's last_update_id — adopt
		// it as the first applied delta.
		if d.FirstUpdateId <= s+1 && s+1 <= d.LastUpdateId {
			u.adopted = true
			u.book.ApplyLevels(d.Bids, d.Asks)
			u.book.LastUpdateId = d.LastUpdateId
			u.book.TimeExchange = d.TimeExchange
			return []event.OrderBookEvent{event.UpdateEvent(u.book.Clone())}, nil
		}
		// Neither stale nor adoptable yet: wait for a later delta that
		// straddles S. This can legitimately happen when the snapshot
		// races ahead of buffered deltas; do not treat as a gap until we
		// have adopted at least once.
		return nil, nil
	}

	// R3: continuity.
	if d.FirstUpdateId == s+1 {
		u.book.ApplyLevels(d.Bids, d.Asks)
		u.book.LastUpdateId = d.LastUpdateId
		u.book.TimeExchange = d.TimeExchange
		return []event.OrderBookEvent{event.UpdateEvent(u.book.Clone())}, nil
	}

	// R1 equivalent once synced: a delta fully behind current state is
	// stale noise, not a gap.
	if d.LastUpdateId <= s {
		return nil, nil
	}

	// R4: gap detected.
	return nil, &errs.InvalidSequence{
		Exchange:       u.exchange,
		Instrument:     u.instrument,
		PrevLastUpdate: s,
		FirstUpdate:    d.FirstUpdateId,
	}
}

// Book returns the current live book. Callers that need a stable read
// should Clone() it or go through OrderBookMap.
func (u *Updater) Book() *OrderBook { return u.book }
