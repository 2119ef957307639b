package reconnect

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketfeed/errs"
	"github.com/sawpanic/marketfeed/event"
	"github.com/sawpanic/marketfeed/identifier"
	"github.com/sawpanic/marketfeed/subscriber"
)

// Decoder turns one inbound frame into zero or more outcomes using the
// session's routing table. A returned error for which errs.Terminal is true
// (InvalidSequence, BufferOverflow, Unsupported) ends the session and forces
// a full reconnect+re-subscribe; any other returned error is forwarded as an
// event.Errf item and the session continues. Per-item failures that should
// not tear down the socket (Deserialise, Unidentifiable) are carried as
// event.Errf outcomes in the returned slice.
type Decoder[V any] func(raw []byte, routing identifier.Map) ([]event.Outcome[V], error)

// Session is what one successful Connect produces: the validated socket
// plus a Decoder scoped to that session. A fresh Decoder per session is
// required, not just permitted: stateful decoders (package streams'
// BookDecoder) must start every reconnect from a clean per-instrument
// Updater so the first OrderBookEvent after a reconnect is always a
// Snapshot (spec §8 property 5) rather than a continuity check against a
// book left over from the dead session.
type Session[V any] struct {
	Result *subscriber.Result
	Decode Decoder[V]
}

// Connect opens and validates one socket and builds the Decoder for the
// resulting session. It is ordinarily a closure over
// subscriber.Subscriber.Subscribe bound to one venue and subscription set,
// paired with a freshly constructed Decoder.
type Connect[V any] func(ctx context.Context) (*Session[V], error)

// Stream runs the Connecting -> Validating -> Running -> Reconnecting state
// machine for one venue socket (spec §4.6). Validating is performed inside
// Connect (by subscriber.Subscribe); Stream itself owns Running and
// Reconnecting.
type Stream[V any] struct {
	Exchange identifier.ExchangeId
	Connect  Connect[V]
	Backoff  Backoff

	// HeartbeatInterval/HasHeartbeat mirror the bound connector's
	// HeartbeatInterval(); Ping, when set, writes the connector's
	// PingRequest() frame on each heartbeat tick. These are plumbed in rather
	// than re-derived from the Binding to keep Stream decoupled from the
	// connector package.
	HeartbeatInterval time.Duration
	HasHeartbeat      bool
	Ping              func(sock interface{ WriteMessage([]byte) error }) error

	// Metrics is optional; nil disables instrumentation entirely.
	Metrics interface {
		RecordReconnect(identifier.ExchangeId)
		RecordSubscribeFailure(identifier.ExchangeId)
	}
}

// Run starts the state machine and returns a channel of reconnection-aware
// outcome events. The channel closes when ctx is cancelled.
func (s *Stream[V]) Run(ctx context.Context) <-chan event.Event[event.Outcome[V]] {
	out := make(chan event.Event[event.Outcome[V]])
	go s.loop(ctx, out)
	return out
}

func (s *Stream[V]) loop(ctx context.Context, out chan<- event.Event[event.Outcome[V]]) {
	defer close(out)
	logger := log.With().Str("component", "reconnect").Str("exchange", string(s.Exchange)).Logger()

	backoff := s.Backoff
	if backoff.Base <= 0 {
		backoff = DefaultBackoff()
	}

	attempt := 0
	first := true
	for {
		if ctx.Err() != nil {
			return
		}

		sess, err := s.Connect(ctx)
		if err != nil {
			if s.Metrics != nil {
				s.Metrics.RecordSubscribeFailure(s.Exchange)
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return
			}
			if errs.Terminal(err) {
				logger.Error().Err(err).Msg("connect failed terminally; stream stopping")
				return
			}
			logger.Warn().Err(err).Int("attempt", attempt).Msg("connect failed; backing off")
			if !sleep(ctx, backoff.Duration(attempt, nil)) {
				return
			}
			attempt++
			continue
		}
		attempt = 0

		if !first {
			logger.Info().Msg("resumed after reconnect")
		}
		first = false

		terminalErr := s.runSession(ctx, sess, out, logger)
		if ctx.Err() != nil {
			return
		}

		logger.Warn().Err(terminalErr).Msg("session ended; reconnecting")
		if s.Metrics != nil {
			s.Metrics.RecordReconnect(s.Exchange)
		}
		select {
		case out <- event.Reconnecting[event.Outcome[V]](s.Exchange):
		case <-ctx.Done():
			return
		}

		if !sleep(ctx, backoff.Duration(attempt, nil)) {
			return
		}
		attempt++
	}
}

// runSession replays buffered validation frames, then reads until the
// socket errors, a terminal decode error occurs, or ctx is cancelled. It
// always closes res.Socket before returning.
func (s *Stream[V]) runSession(ctx context.Context, sess *Session[V], out chan<- event.Event[event.Outcome[V]], logger zerolog.Logger) error {
	res := sess.Result
	defer res.Socket.Close()

	for _, raw := range res.Buffered {
		if err := s.emit(ctx, sess.Decode, raw, res.Map, out); err != nil {
			return err
		}
	}

	type read struct {
		data []byte
		err  error
	}
	readCh := make(chan read)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			data, err := res.Socket.ReadMessage()
			select {
			case readCh <- read{data: data, err: err}:
				if err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	var lastSeenMu sync.Mutex
	lastSeen := time.Now()

	var tickCh <-chan time.Time
	if s.HasHeartbeat && s.HeartbeatInterval > 0 {
		ticker := time.NewTicker(s.HeartbeatInterval)
		defer ticker.Stop()
		tickCh = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-readCh:
			if r.err != nil {
				return &errs.Socket{Exchange: s.Exchange, Err: r.err}
			}
			lastSeenMu.Lock()
			lastSeen = time.Now()
			lastSeenMu.Unlock()
			if err := s.emit(ctx, sess.Decode, r.data, res.Map, out); err != nil {
				return err
			}
		case <-tickCh:
			lastSeenMu.Lock()
			since := time.Since(lastSeen)
			lastSeenMu.Unlock()
			// Spec §4.6: absence of traffic for 2x the heartbeat interval
			// forces a reconnect.
			if since > 2*s.HeartbeatInterval {
				logger.Warn().Dur("since", since).Msg("heartbeat missed")
				return &errs.Socket{Exchange: s.Exchange, Err: context.DeadlineExceeded}
			}
			if s.Ping != nil {
				if err := s.Ping(res.Socket); err != nil {
					return &errs.Socket{Exchange: s.Exchange, Err: err}
				}
			}
		}
	}
}

// emit decodes raw and forwards every resulting outcome. A terminal decode
// error is returned (and not itself emitted) so the caller can drive the
// reconnect path; non-terminal per-item failures travel inside the decoded
// outcomes as event.Errf values and do not stop the session.
func (s *Stream[V]) emit(ctx context.Context, decode Decoder[V], raw []byte, routing identifier.Map, out chan<- event.Event[event.Outcome[V]]) error {
	outcomes, err := decode(raw, routing)
	if err != nil && errs.Terminal(err) {
		return err
	}
	for _, o := range outcomes {
		select {
		case out <- event.Item(o):
		case <-ctx.Done():
			return nil
		}
	}
	if err != nil {
		select {
		case out <- event.Item(event.Errf[V](err)):
		case <-ctx.Done():
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
