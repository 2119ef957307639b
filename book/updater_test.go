package book

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketfeed/errs"
	"github.com/sawpanic/marketfeed/event"
	"github.com/sawpanic/marketfeed/identifier"
)

func lvl(price, amount string) Level {
	return Level{Price: decimal.RequireFromString(price), Amount: decimal.RequireFromString(amount)}
}

func testKey() identifier.InstrumentKey {
	return identifier.InstrumentKey{
		Exchange:   identifier.Binance,
		Instrument: identifier.NewInstrument("BTC", "USDT", identifier.Spot{}),
	}
}

// S1 Binance spot L2 gap (spec §8): snapshot last_update_id=100; deltas
// (U=101,u=110), (U=111,u=120), (U=125,u=130). First two apply; third is a
// gap and is terminal.
func TestUpdater_S1_GapDetection(t *testing.T) {
	u := NewUpdater(identifier.Binance, testKey())

	events, err := u.ApplySnapshot(Snapshot{LastUpdateId: 100, Bids: []Level{lvl("100", "1")}, Asks: []Level{lvl("101", "1")}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.SnapshotKind, events[0].Kind)

	events, err = u.ApplyDelta(Delta{FirstUpdateId: 101, LastUpdateId: 110, Bids: []Level{lvl("99", "2")}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.UpdateKind, events[0].Kind)
	assert.EqualValues(t, 110, u.Book().LastUpdateId)

	events, err = u.ApplyDelta(Delta{FirstUpdateId: 111, LastUpdateId: 120, Bids: []Level{lvl("99", "3")}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.EqualValues(t, 120, u.Book().LastUpdateId)

	_, err = u.ApplyDelta(Delta{FirstUpdateId: 125, LastUpdateId: 130})
	require.Error(t, err)
	var seqErr *errs.InvalidSequence
	require.ErrorAs(t, err, &seqErr)
	assert.EqualValues(t, 120, seqErr.PrevLastUpdate)
	assert.EqualValues(t, 125, seqErr.FirstUpdate)
	assert.True(t, errs.Terminal(err))
}

func TestUpdater_R1_StaleDeltaDropped(t *testing.T) {
	u := NewUpdater(identifier.Binance, testKey())
	_, err := u.ApplySnapshot(Snapshot{LastUpdateId: 100})
	require.NoError(t, err)

	events, err := u.ApplyDelta(Delta{FirstUpdateId: 50, LastUpdateId: 90})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.EqualValues(t, 100, u.Book().LastUpdateId)
}

func TestUpdater_R2_AdoptStraddlingDelta(t *testing.T) {
	u := NewUpdater(identifier.Binance, testKey())
	_, err := u.ApplySnapshot(Snapshot{LastUpdateId: 100})
	require.NoError(t, err)

	events, err := u.ApplyDelta(Delta{FirstUpdateId: 95, LastUpdateId: 105, Bids: []Level{lvl("50", "1")}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.EqualValues(t, 105, u.Book().LastUpdateId)
}

func TestUpdater_R5_BufferOverflowTerminal(t *testing.T) {
	u := NewUpdater(identifier.Binance, testKey())
	var lastErr error
	for i := 0; i < MaxBuffer+1; i++ {
		lastErr = u.PushDelta(Delta{FirstUpdateId: uint64(i), LastUpdateId: uint64(i) + 1})
	}
	require.Error(t, lastErr)
	var overflow *errs.BufferOverflow
	require.ErrorAs(t, lastErr, &overflow)
	assert.True(t, errs.Terminal(overflow)) // R5: cap exceeded is terminal, same as a sequence gap
}

func TestOrderBook_Sortedness_NoZeroLevels(t *testing.T) {
	b := NewOrderBook()
	b.ApplyLevels(
		[]Level{lvl("10", "1"), lvl("12", "1"), lvl("11", "1")},
		[]Level{lvl("15", "1"), lvl("13", "1"), lvl("14", "1")},
	)
	bids := b.Bids()
	asks := b.Asks()
	require.Len(t, bids, 3)
	require.Len(t, asks, 3)
	for i := 1; i < len(bids); i++ {
		assert.True(t, bids[i-1].Price.GreaterThan(bids[i].Price))
	}
	for i := 1; i < len(asks); i++ {
		assert.True(t, asks[i-1].Price.LessThan(asks[i].Price))
	}

	b.ApplyLevels([]Level{lvl("11", "0")}, nil)
	bids = b.Bids()
	for _, l := range bids {
		assert.False(t, l.Price.Equal(decimal.RequireFromString("11")))
	}
}

func TestOrderBook_BestPrices(t *testing.T) {
	b := NewOrderBook()
	b.ApplyLevels([]Level{lvl("100", "1")}, []Level{lvl("101", "1")})
	bid, _ := b.BestBid()
	ask, _ := b.BestAsk()
	assert.True(t, bid.Price.LessThan(ask.Price))
	assert.False(t, b.Crossed())
}
