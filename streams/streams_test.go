package streams

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketfeed/connector"
	"github.com/sawpanic/marketfeed/errs"
	"github.com/sawpanic/marketfeed/event"
	"github.com/sawpanic/marketfeed/identifier"
	"github.com/sawpanic/marketfeed/subscriber"
)

func testBuilder() *Builder {
	return NewBuilder(Deps{
		Connectors: connector.Default(),
		Subscriber: subscriber.New(),
	})
}

func TestBuildData_UnsupportedSubKindFailsBeforeSpawning(t *testing.T) {
	b := testBuilder()
	unsupported := identifier.Subscription{
		Exchange:   identifier.Coinbase,
		Instrument: identifier.NewInstrument("BTC", "USDT", identifier.Spot{}),
		Kind:       identifier.Liquidations,
	}
	_, err := b.BuildData(context.Background(), []identifier.Subscription{unsupported})
	require.Error(t, err)
	var u *errs.Unsupported
	require.ErrorAs(t, err, &u)
}

func TestBuildData_UnknownExchangeFailsBeforeSpawning(t *testing.T) {
	b := testBuilder()
	sub := identifier.Subscription{
		Exchange:   identifier.Bybit,
		Instrument: identifier.NewInstrument("BTC", "USDT", identifier.Spot{}),
		Kind:       identifier.PublicTrades,
	}
	_, err := b.BuildData(context.Background(), []identifier.Subscription{sub})
	require.Error(t, err)
}

func TestBuildData_NoSubscriptions(t *testing.T) {
	b := testBuilder()
	_, err := b.BuildData(context.Background(), nil)
	require.Error(t, err)
}

func TestBuildBooks_RejectsNonL2Kind(t *testing.T) {
	b := testBuilder()
	sub := identifier.Subscription{
		Exchange:   identifier.Binance,
		Instrument: identifier.NewInstrument("BTC", "USDT", identifier.Spot{}),
		Kind:       identifier.PublicTrades,
	}
	_, err := b.BuildBooks(context.Background(), []identifier.Subscription{sub})
	require.Error(t, err)
	var u *errs.Unsupported
	require.ErrorAs(t, err, &u)
}

func TestStreams_Join_MergesAcrossExchanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := make(chan event.Event[event.Outcome[int]], 1)
	bCh := make(chan event.Event[event.Outcome[int]], 1)
	a <- event.Item(event.Ok(1))
	bCh <- event.Item(event.Ok(2))
	close(a)
	close(bCh)

	s := Streams[int]{byExchange: map[identifier.ExchangeId]<-chan event.Event[event.Outcome[int]]{
		identifier.Binance:  a,
		identifier.Coinbase: bCh,
	}}

	var got []int
	for ev := range s.Join(ctx) {
		v, ok := ev.Value()
		require.True(t, ok)
		got = append(got, v.Value)
	}
	assert.ElementsMatch(t, []int{1, 2}, got)
}

func TestStreams_JoinMap_RetainsOrigin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := make(chan event.Event[event.Outcome[int]], 1)
	a <- event.Item(event.Ok(1))
	close(a)

	s := Streams[int]{byExchange: map[identifier.ExchangeId]<-chan event.Event[event.Outcome[int]]{
		identifier.Binance: a,
	}}

	tagged := <-s.JoinMap(ctx)
	assert.Equal(t, identifier.Binance, tagged.Exchange)
	v, ok := tagged.Event.Value()
	require.True(t, ok)
	assert.Equal(t, 1, v.Value)
}

func TestStreams_Join_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	src := make(chan event.Event[event.Outcome[int]])
	s := Streams[int]{byExchange: map[identifier.ExchangeId]<-chan event.Event[event.Outcome[int]]{
		identifier.Binance: src,
	}}

	out := s.Join(ctx)
	cancel()

	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Join did not close after context cancellation")
	}
}

func TestStreams_Exchanges(t *testing.T) {
	s := Streams[int]{byExchange: map[identifier.ExchangeId]<-chan event.Event[event.Outcome[int]]{
		identifier.Binance:  make(chan event.Event[event.Outcome[int]]),
		identifier.Coinbase: make(chan event.Event[event.Outcome[int]]),
	}}
	assert.ElementsMatch(t, []identifier.ExchangeId{identifier.Binance, identifier.Coinbase}, s.Exchanges())
}
