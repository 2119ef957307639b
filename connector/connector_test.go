package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketfeed/errs"
	"github.com/sawpanic/marketfeed/identifier"
)

// Property 1 (spec §8): for every supported (Exchange, Instrument,
// SubKind), id() yields the documented "{channel}|{market}" string.
func TestSubscriptionId_RoundTrip(t *testing.T) {
	btcUsdt := identifier.NewInstrument("BTC", "USDT", identifier.Spot{})

	cases := []struct {
		name      string
		formatter Formatter
		kind      identifier.SubKind
		wantId    identifier.SubscriptionId
	}{
		{"binance depth", NewBinance(), identifier.OrderBooksL2, "depth@100ms|BTCUSDT"},
		{"binance trades", NewBinance(), identifier.PublicTrades, "aggTrade|BTCUSDT"},
		{"coinbase trades", NewCoinbase(), identifier.PublicTrades, "matches|BTC-USDT"},
		{"bitstamp book", NewBitstamp(), identifier.OrderBooksL2, "diff_order_book|btcusdt"},
		{"kraken book", NewKraken(), identifier.OrderBooksL2, "book|BTC/USDT"},
		{"okx book", NewOkx(), identifier.OrderBooksL2, "books|BTC-USDT"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := identifier.Subscription{Exchange: identifier.Binance, Instrument: btcUsdt, Kind: tc.kind}
			id, err := SubscriptionId(tc.formatter, sub)
			require.NoError(t, err)
			assert.Equal(t, tc.wantId, id)
		})
	}
}

// S5 (spec §8): an unsupported (Exchange, SubKind) pair fails at runtime
// with Unsupported, not a panic.
func TestChannelToken_Unsupported(t *testing.T) {
	_, err := NewCoinbase().ChannelToken(identifier.Liquidations, identifier.Spot{})
	require.Error(t, err)
	var unsupported *errs.Unsupported
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, identifier.Coinbase, unsupported.Exchange)
	assert.Equal(t, identifier.Liquidations, unsupported.SubKind)
	assert.True(t, errs.Terminal(unsupported))
}

func TestRegistry_BuildUnknownExchange(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build(identifier.Bybit)
	require.Error(t, err)
	var unsupported *errs.Unsupported
	require.ErrorAs(t, err, &unsupported)
}

func TestRegistry_Default_BuildsEveryRegisteredVenue(t *testing.T) {
	r := Default()
	for _, id := range []identifier.ExchangeId{identifier.Binance, identifier.Coinbase, identifier.Bitstamp, identifier.Kraken, identifier.Okx} {
		c, err := r.Build(id)
		require.NoError(t, err)
		assert.Equal(t, id, c.ID())
	}
}

func TestBinance_ValidateResponse_SuccessAndError(t *testing.T) {
	b := NewBinance()

	ok, err := b.ValidateResponse([]byte(`{"result":null,"id":1}`))
	require.NoError(t, err)
	assert.True(t, ok.Recognized)
	assert.True(t, ok.Success)

	bad, err := b.ValidateResponse([]byte(`{"id":1,"error":{"code":-1,"msg":"bad symbol"}}`))
	require.NoError(t, err)
	assert.True(t, bad.Recognized)
	assert.False(t, bad.Success)
	assert.Equal(t, "bad symbol", bad.Detail)

	notResponse, err := b.ValidateResponse([]byte(`{"e":"depthUpdate"}`))
	require.NoError(t, err)
	assert.False(t, notResponse.Recognized)
}
