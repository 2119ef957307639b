package book

import "time"

// Delta is one venue-normalized incremental book change. FirstUpdateId and
// LastUpdateId follow the Binance-style (U, u) convention; venues that
// instead publish a single (prev_last_update_id, last_update_id) pair set
// FirstUpdateId = prev_last_update_id + 1 at the connector boundary so the
// continuity predicate in rule R3 is uniform across venues (spec §4.5).
type Delta struct {
	FirstUpdateId uint64
	LastUpdateId  uint64
	Bids          []Level
	Asks          []Level
	TimeExchange  time.Time
}

// Snapshot is the authoritative full book state fetched over HTTP or
// pushed on the socket, carrying the sequence number deltas are compared
// against (spec §4.5, "Let S = snapshot's last_update_id").
type Snapshot struct {
	LastUpdateId uint64
	Bids         []Level
	Asks         []Level
	TimeExchange time.Time
}
