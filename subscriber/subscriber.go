// Package subscriber implements C3: opening a socket, sending subscribe
// frames, and validating acknowledgement before handing the socket off to
// the reconnecting-stream layer (spec §4.3).
package subscriber

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"

	"github.com/sawpanic/marketfeed/connector"
	"github.com/sawpanic/marketfeed/errs"
	"github.com/sawpanic/marketfeed/identifier"
	"github.com/sawpanic/marketfeed/transport"
)

// DefaultValidationTimeout is the spec's recommended bound on the
// validation loop (spec §4.3 step 4).
const DefaultValidationTimeout = 10 * time.Second

// Result is the product of a successful Subscribe: a validated, open
// socket plus the immutable routing table built from the requested
// subscriptions.
type Result struct {
	Socket transport.Socket
	Map    identifier.Map
	// Buffered holds non-subresponse frames observed during validation
	// (e.g. market data arriving before all ACKs land). Spec §4.3 step 5
	// requires these not be silently dropped; the reconnecting stream
	// replays them as the first frames of Running state.
	Buffered [][]byte
}

// Binding pairs a Connector with its Formatter capability. In this module
// every connector implements both interfaces itself.
type Binding interface {
	connector.Connector
	connector.Formatter
}

// Subscriber opens and validates one venue's socket per Subscribe call.
type Subscriber struct {
	dial              transport.Dialer
	validationTimeout time.Duration
	breakers          sync.Map // identifier.ExchangeId -> *gobreaker.CircuitBreaker[*Result]
	metrics           Metrics
}

// Metrics is the subset of metrics.Registry this package records against.
// Kept as a narrow local interface so package subscriber never imports
// package metrics.
type Metrics interface {
	RecordValidationFailure(identifier.ExchangeId)
}

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithValidationTimeout overrides DefaultValidationTimeout.
func WithValidationTimeout(d time.Duration) Option {
	return func(s *Subscriber) { s.validationTimeout = d }
}

// WithDialer overrides transport.GorillaDialer, used in tests to inject a
// fake transport.
func WithDialer(d transport.Dialer) Option {
	return func(s *Subscriber) { s.dial = d }
}

// WithMetrics registers m to receive validation-failure counts.
func WithMetrics(m Metrics) Option {
	return func(s *Subscriber) { s.metrics = m }
}

// New builds a Subscriber with transport.GorillaDialer and
// DefaultValidationTimeout unless overridden.
func New(opts ...Option) *Subscriber {
	s := &Subscriber{
		dial:              transport.GorillaDialer,
		validationTimeout: DefaultValidationTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Subscriber) breakerFor(id identifier.ExchangeId) *gobreaker.CircuitBreaker[*Result] {
	if v, ok := s.breakers.Load(id); ok {
		return v.(*gobreaker.CircuitBreaker[*Result])
	}
	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("subscriber.%s", id),
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Spec §7: "after N repeated failures, surface to consumer
			// via Reconnecting loop — never crash". Three consecutive
			// Subscribe failures trips the breaker so a persistently
			// misbehaving venue stops being hammered every backoff tick.
			return counts.ConsecutiveFailures >= 3
		},
	}
	cb := gobreaker.NewCircuitBreaker[*Result](settings)
	actual, _ := s.breakers.LoadOrStore(id, cb)
	return actual.(*gobreaker.CircuitBreaker[*Result])
}

// Subscribe resolves b's URL, opens a socket, builds the routing Map,
// sends subscribe frames, and blocks until every expected acknowledgement
// arrives or validationTimeout elapses (spec §4.3 steps 1-5).
func (s *Subscriber) Subscribe(ctx context.Context, b Binding, subs []identifier.Subscription) (*Result, error) {
	breaker := s.breakerFor(b.ID())
	return breaker.Execute(func() (*Result, error) {
		return s.subscribeOnce(ctx, b, subs)
	})
}

func (s *Subscriber) subscribeOnce(ctx context.Context, b Binding, subs []identifier.Subscription) (*Result, error) {
	// attemptID ties every log line for one dial+validate attempt together,
	// the same way the teacher tags one inbound HTTP request (internal/
	// interfaces/http/server.go's requestID).
	attemptID := uuid.New().String()[:8]
	logger := log.With().Str("component", "subscriber").Str("exchange", string(b.ID())).Str("attempt", attemptID).Logger()

	url, err := b.URL()
	if err != nil {
		return nil, fmt.Errorf("subscriber: resolve url: %w", err)
	}

	routing := make(map[identifier.SubscriptionId]identifier.InstrumentKey, len(subs))
	for _, sub := range subs {
		id, err := connector.SubscriptionId(b, sub)
		if err != nil {
			return nil, err
		}
		routing[id] = sub.Key()
	}
	routingMap := identifier.NewMap(routing)

	logger.Debug().Int("subscriptions", len(subs)).Str("url", url).Msg("dialing")
	sock, err := s.dial(ctx, url)
	if err != nil {
		return nil, &errs.Socket{Exchange: b.ID(), Err: err}
	}

	frames, err := b.Requests(subs)
	if err != nil {
		_ = sock.Close()
		return nil, err
	}
	for _, frame := range frames {
		if err := sock.WriteMessage(frame.Data); err != nil {
			_ = sock.Close()
			return nil, &errs.Socket{Exchange: b.ID(), Err: err}
		}
	}

	buffered, err := s.validate(ctx, sock, b, b.ExpectedAcks(subs), logger)
	if err != nil {
		_ = sock.Close()
		return nil, err
	}

	logger.Info().Int("subscriptions", len(subs)).Msg("subscription validated")
	return &Result{Socket: sock, Map: routingMap, Buffered: buffered}, nil
}

// validate implements spec §4.3 step 4-5: read frames until expectedAcks
// successful validations are seen, buffering any non-subresponse frame for
// replay rather than dropping it.
func (s *Subscriber) validate(ctx context.Context, sock transport.Socket, b Binding, expectedAcks int, logger zerolog.Logger) ([][]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.validationTimeout)
	defer cancel()

	type read struct {
		data []byte
		err  error
	}
	msgCh := make(chan read)
	go func() {
		for {
			data, err := sock.ReadMessage()
			select {
			case msgCh <- read{data: data, err: err}:
				if err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	var buffered [][]byte
	successes := 0
	for successes < expectedAcks {
		select {
		case <-ctx.Done():
			s.recordValidationFailure(b.ID())
			return buffered, &errs.Subscribe{Exchange: b.ID(), Detail: "validation timed out"}
		case r := <-msgCh:
			if r.err != nil {
				s.recordValidationFailure(b.ID())
				return buffered, &errs.Socket{Exchange: b.ID(), Err: r.err}
			}
			result, err := b.ValidateResponse(r.data)
			if err != nil {
				logger.Debug().Err(err).Msg("unparseable frame during validation; buffering")
				buffered = append(buffered, r.data)
				continue
			}
			if !result.Recognized {
				buffered = append(buffered, r.data)
				continue
			}
			if !result.Success {
				s.recordValidationFailure(b.ID())
				return buffered, &errs.Subscribe{Exchange: b.ID(), Detail: result.Detail}
			}
			successes++
		}
	}
	return buffered, nil
}

func (s *Subscriber) recordValidationFailure(id identifier.ExchangeId) {
	if s.metrics != nil {
		s.metrics.RecordValidationFailure(id)
	}
}
