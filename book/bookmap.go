package book

import (
	"sync"
	"sync/atomic"

	"github.com/sawpanic/marketfeed/identifier"
)

// ReadView is a read handle on one instrument's published book cell. Each
// Read returns the book most recently published (nil after Invalidate);
// a published *OrderBook is a clone the writer never mutates. Reading never
// blocks the writer beyond the brief moment of swapping the pointer (spec
// §4.8).
type ReadView struct {
	ptr *atomic.Pointer[OrderBook]
}

// Read returns the most recently published book for this instrument.
func (v ReadView) Read() *OrderBook {
	return v.ptr.Load()
}

// entry holds one instrument's atomically-swappable book cell; Writer is
// the single-writer handle onto it.
type entry struct {
	cell atomic.Pointer[OrderBook]
}

// OrderBookMap publishes live L2 books for concurrent read-many access,
// keyed by InstrumentKey. Entries are created by Writer, under the map's
// lock, the first time a key is published, so the set of instruments grows
// while streams run; each per-instrument cell is swapped only by its single
// writer.
type OrderBookMap struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewOrderBookMap constructs an empty map.
func NewOrderBookMap() *OrderBookMap {
	return &OrderBookMap{entries: make(map[string]*entry)}
}

// Writer returns the publish handle for key, creating the backing cell if
// this is the first time key has been seen. Only the updater task for key
// should call Publish on the returned handle.
func (m *OrderBookMap) Writer(key identifier.InstrumentKey) *Writer {
	k := key.String()

	m.mu.RLock()
	e, ok := m.entries[k]
	m.mu.RUnlock()
	if ok {
		return &Writer{entry: e}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok = m.entries[k]
	if !ok {
		e = &entry{}
		m.entries[k] = e
	}
	return &Writer{entry: e}
}

// Find returns a read view for key, if an updater has published at least
// once for it.
func (m *OrderBookMap) Find(key identifier.InstrumentKey) (ReadView, bool) {
	m.mu.RLock()
	e, ok := m.entries[key.String()]
	m.mu.RUnlock()
	if !ok {
		return ReadView{}, false
	}
	if e.cell.Load() == nil {
		return ReadView{}, false
	}
	return ReadView{ptr: &e.cell}, true
}

// Writer is the single-writer publish handle for one instrument's book
// cell.
type Writer struct {
	entry *entry
}

// Publish atomically swaps in the next book state for readers to observe.
func (w *Writer) Publish(b *OrderBook) {
	w.entry.cell.Store(b)
}

// Invalidate clears the published book, e.g. on a Reconnecting event, so
// readers cannot observe stale pre-reconnect state (spec §8 property 5:
// the next OrderBookEvent after reconnect is always a Snapshot).
func (w *Writer) Invalidate() {
	w.entry.cell.Store(nil)
}
