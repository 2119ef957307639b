package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketfeed/identifier"
)

func TestTransformer_Decode_Trade(t *testing.T) {
	subId := identifier.NewSubscriptionId("aggTrade", "BTCUSDT")
	key := identifier.InstrumentKey{
		Exchange:   identifier.Binance,
		Instrument: identifier.NewInstrument("BTC", "USDT", identifier.Spot{}),
	}
	routing := identifier.NewMap(map[identifier.SubscriptionId]identifier.InstrumentKey{subId: key})

	tr := &Transformer{Exchange: identifier.Binance, Decoder: Binance{}}
	raw := []byte(`{"stream":"btcusdt@aggTrade","data":{"a":1,"p":"50000.5","q":"0.1","T":1700000000000,"m":false}}`)

	res, err := tr.Decode(raw, routing)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	require.Empty(t, res.Books)

	outcome := res.Events[0]
	require.False(t, outcome.IsErr())
	require.NotNil(t, outcome.Value.Kind.Trade)
	assert.Equal(t, 50000.5, outcome.Value.Kind.Trade.Price)
	assert.Equal(t, 0.1, outcome.Value.Kind.Trade.Amount)
}

func TestTransformer_Decode_UnidentifiableRoutingMiss(t *testing.T) {
	tr := &Transformer{Exchange: identifier.Binance, Decoder: Binance{}}
	raw := []byte(`{"stream":"ethusdt@aggTrade","data":{"a":1,"p":"3000","q":"1","T":1700000000000,"m":false}}`)

	res, err := tr.Decode(raw, identifier.NewMap(nil))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.True(t, res.Events[0].IsErr())
}

func TestTransformer_Decode_BookDelta(t *testing.T) {
	subId := identifier.NewSubscriptionId("depth", "BTCUSDT")
	key := identifier.InstrumentKey{
		Exchange:   identifier.Binance,
		Instrument: identifier.NewInstrument("BTC", "USDT", identifier.Spot{}),
	}
	routing := identifier.NewMap(map[identifier.SubscriptionId]identifier.InstrumentKey{subId: key})

	tr := &Transformer{Exchange: identifier.Binance, Decoder: Binance{}}
	raw := []byte(`{"stream":"btcusdt@depth","data":{"E":1700000000000,"U":1,"u":2,"b":[["50000","1"]],"a":[["50010","2"]]}}`)

	res, err := tr.Decode(raw, routing)
	require.NoError(t, err)
	require.Empty(t, res.Events)
	require.Len(t, res.Books, 1)
	assert.Equal(t, key, res.Books[0].Instrument)
	require.NotNil(t, res.Books[0].Delta)
	assert.Equal(t, uint64(1), res.Books[0].Delta.FirstUpdateId)
	assert.Equal(t, uint64(2), res.Books[0].Delta.LastUpdateId)
}

// Coinbase's level2 channel carries no sequence field at all; the decoder
// synthesizes a monotonic per-subscription counter so the book engine's
// generic continuity check still has a numeric pair to validate against.
func TestCoinbase_SynthesizesMonotonicDeltaIds(t *testing.T) {
	c := NewCoinbase()
	raw := []byte(`{"type":"l2update","product_id":"BTC-USD","time":"2024-01-01T00:00:00Z","changes":[["buy","50000","1"]]}`)

	first, err := c.Decode(raw)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, uint64(1), first[0].Payload.BookDelta.FirstUpdateId)

	second, err := c.Decode(raw)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, uint64(2), second[0].Payload.BookDelta.FirstUpdateId)
}

// A snapshot resets the synthesized counter for its subscription so a fresh
// session starts the adopt rule (R2) from zero again.
func TestCoinbase_SnapshotResetsSequence(t *testing.T) {
	c := NewCoinbase()
	update := []byte(`{"type":"l2update","product_id":"BTC-USD","changes":[["buy","50000","1"]]}`)
	_, err := c.Decode(update)
	require.NoError(t, err)
	_, err = c.Decode(update)
	require.NoError(t, err)

	snap := []byte(`{"type":"snapshot","product_id":"BTC-USD","bids":[["50000","1"]],"asks":[["50010","2"]]}`)
	frames, err := c.Decode(snap)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, uint64(0), frames[0].Payload.BookSnapshot.LastUpdateId)

	next, err := c.Decode(update)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next[0].Payload.BookDelta.FirstUpdateId)
}

func TestNewDecoder_UnknownExchange(t *testing.T) {
	_, err := NewDecoder(identifier.ExchangeId("not-a-venue"))
	require.Error(t, err)
}

func TestNewDecoder_BuildsFreshStatePerCall(t *testing.T) {
	d1, err := NewDecoder(identifier.Bitstamp)
	require.NoError(t, err)
	d2, err := NewDecoder(identifier.Bitstamp)
	require.NoError(t, err)
	assert.NotSame(t, d1, d2)
}
