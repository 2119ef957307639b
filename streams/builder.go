package streams

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sawpanic/marketfeed/book"
	"github.com/sawpanic/marketfeed/connector"
	"github.com/sawpanic/marketfeed/errs"
	"github.com/sawpanic/marketfeed/event"
	"github.com/sawpanic/marketfeed/identifier"
	"github.com/sawpanic/marketfeed/reconnect"
	"github.com/sawpanic/marketfeed/subscriber"
	"github.com/sawpanic/marketfeed/transform"
)

// Streams is the per-exchange fan-out of one subscription batch (spec §4.7:
// "Streams<T> keyed by exchange"). T is fixed per Build* call — a batch
// mixing kinds across a Build call is not supported; call Build once per
// kind and Join the results at a higher level if a consumer genuinely wants
// every kind interleaved.
type Streams[T any] struct {
	byExchange map[identifier.ExchangeId]<-chan event.Event[event.Outcome[T]]
}

// Select returns the dedicated stream for one exchange, if it was part of
// the batch this Streams was built from.
func (s Streams[T]) Select(id identifier.ExchangeId) (<-chan event.Event[event.Outcome[T]], bool) {
	ch, ok := s.byExchange[id]
	return ch, ok
}

// Exchanges lists the exchanges this Streams fans out over.
func (s Streams[T]) Exchanges() []identifier.ExchangeId {
	out := make([]identifier.ExchangeId, 0, len(s.byExchange))
	for id := range s.byExchange {
		out = append(out, id)
	}
	return out
}

// Join merges every exchange's stream into one un-keyed channel (spec
// §4.7 "join(): merge losing exchange identity"). The merged channel closes
// once every source has closed or ctx is cancelled.
func (s Streams[T]) Join(ctx context.Context) <-chan event.Event[event.Outcome[T]] {
	out := make(chan event.Event[event.Outcome[T]])
	var wg sync.WaitGroup
	for _, ch := range s.byExchange {
		wg.Add(1)
		go func(c <-chan event.Event[event.Outcome[T]]) {
			defer wg.Done()
			forward(ctx, c, out)
		}(ch)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Tagged pairs a merged event with the exchange it came from.
type Tagged[T any] struct {
	Exchange identifier.ExchangeId
	Event    event.Event[event.Outcome[T]]
}

// JoinMap merges every exchange's stream, tagging each event with its
// origin exchange (spec §4.7 "join_map(): merge, retaining exchange
// identity via a tag").
func (s Streams[T]) JoinMap(ctx context.Context) <-chan Tagged[T] {
	out := make(chan Tagged[T])
	var wg sync.WaitGroup
	for id, ch := range s.byExchange {
		wg.Add(1)
		go func(id identifier.ExchangeId, c <-chan event.Event[event.Outcome[T]]) {
			defer wg.Done()
			for {
				select {
				case v, ok := <-c:
					if !ok {
						return
					}
					select {
					case out <- Tagged[T]{Exchange: id, Event: v}:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(id, ch)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func forward[T any](ctx context.Context, in <-chan T, out chan<- T) {
	for {
		select {
		case v, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Deps bundles everything a Builder needs to turn subscriptions into live
// streams: the venue registry, the socket-open/validate layer, and (for L2
// batches) the shared book map and per-venue snapshot-fetch factories.
type Deps struct {
	Connectors *connector.Registry
	Subscriber *subscriber.Subscriber
	Books      *book.OrderBookMap
	// SnapshotFetchers supplies NewFetcher for venues whose L2 feed needs an
	// out-of-band HTTP snapshot (spec §4.5). Absent entries mean the venue
	// pushes its own snapshot on the socket.
	SnapshotFetchers map[identifier.ExchangeId]func(identifier.InstrumentKey) *book.SnapshotFetcher
	Backoff          reconnect.Backoff
	// Metrics is optional; nil disables instrumentation on every built Stream.
	Metrics interface {
		RecordReconnect(identifier.ExchangeId)
		RecordSubscribeFailure(identifier.ExchangeId)
	}
}

// Builder constructs reconnecting Streams from subscription batches (spec
// C7). One Builder may be reused across many Build calls.
type Builder struct {
	deps Deps
}

// NewBuilder constructs a Builder over deps.
func NewBuilder(deps Deps) *Builder {
	return &Builder{deps: deps}
}

// groupByExchange partitions subs by Exchange, failing fast (no task
// spawned for any exchange) if any requested (exchange, kind) pair has no
// registered connector or the connector doesn't support the kind (spec
// scenario S5: "DynamicStreams::init fails before spawning any task when
// one sub-kind is unsupported").
func (b *Builder) groupByExchange(subs []identifier.Subscription) (map[identifier.ExchangeId][]identifier.Subscription, error) {
	if len(subs) == 0 {
		return nil, fmt.Errorf("streams: build called with no subscriptions")
	}
	grouped := make(map[identifier.ExchangeId][]identifier.Subscription)
	for _, sub := range subs {
		binding, err := b.binding(sub.Exchange)
		if err != nil {
			return nil, err
		}
		if _, err := binding.ChannelToken(sub.Kind, sub.Instrument.Kind); err != nil {
			return nil, err
		}
		grouped[sub.Exchange] = append(grouped[sub.Exchange], sub)
	}
	return grouped, nil
}

func (b *Builder) binding(id identifier.ExchangeId) (subscriber.Binding, error) {
	conn, err := b.deps.Connectors.Build(id)
	if err != nil {
		return nil, err
	}
	binding, ok := conn.(subscriber.Binding)
	if !ok {
		return nil, fmt.Errorf("streams: connector for %s does not implement subscriber.Binding", id)
	}
	return binding, nil
}

// BuildData builds Streams of normalized non-book MarketEvents for a batch
// of trade/L1/liquidation/candle subscriptions, one reconnecting socket per
// exchange present in the batch.
func (b *Builder) BuildData(ctx context.Context, subs []identifier.Subscription) (Streams[transform.MarketEvent], error) {
	grouped, err := b.groupByExchange(subs)
	if err != nil {
		return Streams[transform.MarketEvent]{}, err
	}

	byExchange := make(map[identifier.ExchangeId]<-chan event.Event[event.Outcome[transform.MarketEvent]], len(grouped))
	for exchange, exchangeSubs := range grouped {
		binding, err := b.binding(exchange)
		if err != nil {
			return Streams[transform.MarketEvent]{}, err
		}
		if _, err := transform.NewDecoder(exchange); err != nil {
			return Streams[transform.MarketEvent]{}, err
		}
		heartbeat, hasHeartbeat := binding.HeartbeatInterval()
		ping, hasPing := binding.PingRequest()

		stream := &reconnect.Stream[transform.MarketEvent]{
			Exchange: exchange,
			Backoff:  b.deps.Backoff,
			Connect: func(ctx context.Context) (*reconnect.Session[transform.MarketEvent], error) {
				decoder, err := transform.NewDecoder(exchange)
				if err != nil {
					return nil, err
				}
				res, err := b.deps.Subscriber.Subscribe(ctx, binding, exchangeSubs)
				if err != nil {
					return nil, err
				}
				tr := &transform.Transformer{Exchange: exchange, Decoder: decoder}
				dd := &DataDecoder{Transformer: tr}
				return &reconnect.Session[transform.MarketEvent]{Result: res, Decode: dd.Decode}, nil
			},
			HeartbeatInterval: heartbeat,
			HasHeartbeat:      hasHeartbeat,
			Metrics:           b.deps.Metrics,
		}
		if hasPing {
			stream.Ping = pingFunc(ping)
		}
		byExchange[exchange] = stream.Run(ctx)
	}
	return Streams[transform.MarketEvent]{byExchange: byExchange}, nil
}

// BuildBooks builds Streams of OrderBookEvents for a batch of
// OrderBooksL2 subscriptions, wiring each exchange's socket into the book
// engine and publishing every applied event into b.deps.Books.
func (b *Builder) BuildBooks(ctx context.Context, subs []identifier.Subscription) (Streams[event.OrderBookEvent], error) {
	for _, sub := range subs {
		if sub.Kind != identifier.OrderBooksL2 {
			return Streams[event.OrderBookEvent]{}, &errs.Unsupported{Exchange: sub.Exchange, SubKind: sub.Kind}
		}
	}
	grouped, err := b.groupByExchange(subs)
	if err != nil {
		return Streams[event.OrderBookEvent]{}, err
	}

	byExchange := make(map[identifier.ExchangeId]<-chan event.Event[event.Outcome[event.OrderBookEvent]], len(grouped))
	for exchange, exchangeSubs := range grouped {
		binding, err := b.binding(exchange)
		if err != nil {
			return Streams[event.OrderBookEvent]{}, err
		}
		if _, err := transform.NewDecoder(exchange); err != nil {
			return Streams[event.OrderBookEvent]{}, err
		}
		heartbeat, hasHeartbeat := binding.HeartbeatInterval()
		ping, hasPing := binding.PingRequest()
		newFetcher := b.deps.SnapshotFetchers[exchange]

		var epochGen atomic.Uint64
		stream := &reconnect.Stream[event.OrderBookEvent]{
			Exchange: exchange,
			Backoff:  b.deps.Backoff,
			Connect: func(ctx context.Context) (*reconnect.Session[event.OrderBookEvent], error) {
				decoder, err := transform.NewDecoder(exchange)
				if err != nil {
					return nil, err
				}
				res, err := b.deps.Subscriber.Subscribe(ctx, binding, exchangeSubs)
				if err != nil {
					return nil, err
				}
				tr := &transform.Transformer{Exchange: exchange, Decoder: decoder}
				bd := NewBookDecoder(ctx, exchange, tr, b.deps.Books, &epochGen)
				bd.NewFetcher = newFetcher
				return &reconnect.Session[event.OrderBookEvent]{Result: res, Decode: bd.Decode}, nil
			},
			HeartbeatInterval: heartbeat,
			HasHeartbeat:      hasHeartbeat,
			Metrics:           b.deps.Metrics,
		}
		if hasPing {
			stream.Ping = pingFunc(ping)
		}
		byExchange[exchange] = stream.Run(ctx)
	}
	return Streams[event.OrderBookEvent]{byExchange: byExchange}, nil
}

func pingFunc(frame connector.Frame) func(sock interface{ WriteMessage([]byte) error }) error {
	return func(sock interface{ WriteMessage([]byte) error }) error {
		return sock.WriteMessage(frame.Data)
	}
}
