package subscriber

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketfeed/connector"
	"github.com/sawpanic/marketfeed/errs"
	"github.com/sawpanic/marketfeed/identifier"
	"github.com/sawpanic/marketfeed/transport"
)

// fakeSocket replays a scripted sequence of inbound frames and records
// outbound writes, standing in for a real websocket in tests.
type fakeSocket struct {
	mu       sync.Mutex
	inbound  [][]byte
	idx      int
	written  [][]byte
	closed   bool
	blockErr error
}

func (f *fakeSocket) ReadMessage() ([]byte, error) {
	f.mu.Lock()
	if f.idx >= len(f.inbound) {
		blockErr := f.blockErr
		f.mu.Unlock()
		if blockErr != nil {
			return nil, blockErr
		}
		// Simulate a socket with nothing more to say; block forever so
		// the caller's own timeout (not this fake) governs the test.
		select {}
	}
	data := f.inbound[f.idx]
	f.idx++
	f.mu.Unlock()
	return data, nil
}

func (f *fakeSocket) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeSocket) WritePing() error { return nil }

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func dialerFor(sock *fakeSocket) transport.Dialer {
	return func(ctx context.Context, url string) (transport.Socket, error) {
		return sock, nil
	}
}

func btcUsdtSub() identifier.Subscription {
	return identifier.Subscription{
		Exchange:   identifier.Binance,
		Instrument: identifier.NewInstrument("BTC", "USDT", identifier.Spot{}),
		Kind:       identifier.OrderBooksL2,
	}
}

func TestSubscribe_Success(t *testing.T) {
	sock := &fakeSocket{inbound: [][]byte{[]byte(`{"result":null,"id":1}`)}}
	s := New(WithDialer(dialerFor(sock)), WithValidationTimeout(time.Second))

	res, err := s.Subscribe(context.Background(), connector.NewBinance(), []identifier.Subscription{btcUsdtSub()})
	require.NoError(t, err)
	assert.Len(t, res.Map, 1)
	assert.Len(t, sock.written, 1)
	assert.Empty(t, res.Buffered)
}

func TestSubscribe_BuffersMarketDataDuringValidation(t *testing.T) {
	sock := &fakeSocket{inbound: [][]byte{
		[]byte(`{"e":"depthUpdate","U":1,"u":2}`),
		[]byte(`{"result":null,"id":1}`),
	}}
	s := New(WithDialer(dialerFor(sock)), WithValidationTimeout(time.Second))

	res, err := s.Subscribe(context.Background(), connector.NewBinance(), []identifier.Subscription{btcUsdtSub()})
	require.NoError(t, err)
	require.Len(t, res.Buffered, 1)
	assert.Contains(t, string(res.Buffered[0]), "depthUpdate")
}

func TestSubscribe_RejectedBySubscribe(t *testing.T) {
	sock := &fakeSocket{inbound: [][]byte{
		[]byte(`{"id":1,"error":{"code":-1,"msg":"bad symbol"}}`),
	}}
	s := New(WithDialer(dialerFor(sock)), WithValidationTimeout(time.Second))

	_, err := s.Subscribe(context.Background(), connector.NewBinance(), []identifier.Subscription{btcUsdtSub()})
	require.Error(t, err)
	var subErr *errs.Subscribe
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "bad symbol", subErr.Detail)
	assert.True(t, sock.closed)
}

func TestSubscribe_ValidationTimeout(t *testing.T) {
	sock := &fakeSocket{}
	s := New(WithDialer(dialerFor(sock)), WithValidationTimeout(30*time.Millisecond))

	_, err := s.Subscribe(context.Background(), connector.NewBinance(), []identifier.Subscription{btcUsdtSub()})
	require.Error(t, err)
	var subErr *errs.Subscribe
	require.ErrorAs(t, err, &subErr)
}

func TestSubscribe_OkxBatchedAcks_LaterFailureInSameBatchSurfaces(t *testing.T) {
	// OKX packs both subscriptions into one outbound frame but ACKs each
	// arg separately; the second arg's ack arrives after the first's
	// success and must still fail validation rather than be dropped as
	// market-data housekeeping.
	sock := &fakeSocket{inbound: [][]byte{
		[]byte(`{"event":"subscribe","arg":{"channel":"books","instId":"BTC-USDT"}}`),
		[]byte(`{"event":"error","arg":{"channel":"books","instId":"ETH-USDT"},"code":"60012","msg":"bad instId"}`),
	}}
	s := New(WithDialer(dialerFor(sock)), WithValidationTimeout(time.Second))

	subs := []identifier.Subscription{
		{Exchange: identifier.Okx, Instrument: identifier.NewInstrument("BTC", "USDT", identifier.Spot{}), Kind: identifier.OrderBooksL2},
		{Exchange: identifier.Okx, Instrument: identifier.NewInstrument("ETH", "USDT", identifier.Spot{}), Kind: identifier.OrderBooksL2},
	}
	_, err := s.Subscribe(context.Background(), connector.NewOkx(), subs)
	require.Error(t, err)
	var subErr *errs.Subscribe
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "bad instId", subErr.Detail)
	assert.Len(t, sock.written, 1) // both subs batched into one outbound frame
}

func TestSubscribe_UnsupportedSubKindFailsBeforeDialing(t *testing.T) {
	sock := &fakeSocket{}
	s := New(WithDialer(dialerFor(sock)))

	unsupported := identifier.Subscription{
		Exchange:   identifier.Coinbase,
		Instrument: identifier.NewInstrument("BTC", "USDT", identifier.Spot{}),
		Kind:       identifier.Liquidations,
	}
	_, err := s.Subscribe(context.Background(), connector.NewCoinbase(), []identifier.Subscription{unsupported})
	require.Error(t, err)
	var u *errs.Unsupported
	require.ErrorAs(t, err, &u)
	assert.Empty(t, sock.written)
}
