// Package reconnect implements the per-socket reconnecting-stream state
// machine (spec §4.6): Connecting -> Validating -> Running ->
// Reconnecting, with exponential backoff+jitter and heartbeat-miss
// detection.
package reconnect

import (
	"math/rand"
	"time"
)

// Backoff computes exponential backoff with jitter, bounded by Cap (spec
// §4.6 recommended defaults: base 500ms, factor 2, cap 30s, ±10% jitter).
type Backoff struct {
	Base   time.Duration
	Factor float64
	Cap    time.Duration
	Jitter float64
}

// DefaultBackoff returns the spec-recommended defaults.
func DefaultBackoff() Backoff {
	return Backoff{Base: 500 * time.Millisecond, Factor: 2, Cap: 30 * time.Second, Jitter: 0.10}
}

// Duration returns the backoff delay for the given zero-indexed attempt
// number, with jitter applied via rng (nil seeds a new source from the
// current time).
func (b Backoff) Duration(attempt int, rng *rand.Rand) time.Duration {
	if b.Base <= 0 {
		b = DefaultBackoff()
	}
	d := float64(b.Base)
	for i := 0; i < attempt; i++ {
		d *= b.Factor
		if d > float64(b.Cap) {
			d = float64(b.Cap)
			break
		}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	jitter := 1 + (rng.Float64()*2-1)*b.Jitter
	delay := time.Duration(d * jitter)
	if delay > b.Cap {
		delay = b.Cap
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}
