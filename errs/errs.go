// Package errs implements the closed error taxonomy of the ingestion
// pipeline (spec §7). Only InvalidSequence, BufferOverflow and Unsupported
// are terminal;
// everything else is recoverable and must never panic the process.
package errs

import (
	"fmt"

	"github.com/sawpanic/marketfeed/identifier"
)

// Socket wraps a transport-level failure. Recoverable: triggers reconnect
// with backoff.
type Socket struct {
	Exchange identifier.ExchangeId
	Err      error
}

func (e *Socket) Error() string {
	return fmt.Sprintf("%s: socket error: %v", e.Exchange, e.Err)
}
func (e *Socket) Unwrap() error { return e.Err }

// Subscribe means the validator rejected (or timed out waiting for) a
// subscription ACK. Recoverable: the reconnecting stream logs it, counts it
// as a subscribe failure and redials after backoff. It is not emitted to the
// consumer (a failed connect emits no Reconnecting event) and never crashes
// the process.
type Subscribe struct {
	Exchange identifier.ExchangeId
	Detail   string
}

func (e *Subscribe) Error() string {
	return fmt.Sprintf("%s: subscribe failed: %s", e.Exchange, e.Detail)
}

// Deserialise is a per-frame parse failure. Recoverable: log and drop the
// frame, do not tear down the socket.
type Deserialise struct {
	Exchange identifier.ExchangeId
	Payload  []byte
	Err      error
}

func (e *Deserialise) Error() string {
	return fmt.Sprintf("%s: deserialise failed: %v", e.Exchange, e.Err)
}
func (e *Deserialise) Unwrap() error { return e.Err }

// Unidentifiable means the transformer saw a SubscriptionId with no entry
// in the routing Map. Yielded as an Err item; does not tear down the
// socket.
type Unidentifiable struct {
	SubId identifier.SubscriptionId
}

func (e *Unidentifiable) Error() string {
	return fmt.Sprintf("unidentifiable subscription id: %s", e.SubId)
}

// InvalidSequence is a book-updater gap (spec §4.5 rule R4). Terminal for
// the owning socket: the stream reconnects and refetches the snapshot.
type InvalidSequence struct {
	Exchange       identifier.ExchangeId
	Instrument     identifier.InstrumentKey
	PrevLastUpdate uint64
	FirstUpdate    uint64
}

func (e *InvalidSequence) Error() string {
	return fmt.Sprintf("%s %s: invalid sequence: prev_last_update_id=%d first_update_id=%d",
		e.Exchange, e.Instrument, e.PrevLastUpdate, e.FirstUpdate)
}

// Terminal reports whether err should tear down the owning socket (spec
// §7 policy: InvalidSequence, BufferOverflow, and init-time Unsupported are
// terminal; everything else is recoverable in place).
func Terminal(err error) bool {
	switch err.(type) {
	case *InvalidSequence, *BufferOverflow, *Unsupported:
		return true
	default:
		return false
	}
}

// Unsupported is raised for a (Exchange, SubKind) pair with no capability,
// either at static build time (missing connector registration) or at
// dynamic init. Terminal: initialization fails and no task is spawned.
type Unsupported struct {
	Exchange identifier.ExchangeId
	SubKind  identifier.SubKind
}

func (e *Unsupported) Error() string {
	return fmt.Sprintf("unsupported: exchange=%s sub_kind=%s", e.Exchange, e.SubKind)
}

// BufferOverflow is raised when the warmup delta buffer exceeds its cap
// (spec §4.5 rule R5) before a snapshot arrives. Terminal, handled the same
// way as InvalidSequence by the book updater's caller.
type BufferOverflow struct {
	Exchange   identifier.ExchangeId
	Instrument identifier.InstrumentKey
	Capacity   int
}

func (e *BufferOverflow) Error() string {
	return fmt.Sprintf("%s %s: delta buffer overflow at capacity %d", e.Exchange, e.Instrument, e.Capacity)
}
