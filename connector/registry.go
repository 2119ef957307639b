package connector

import (
	"fmt"
	"sync"

	"github.com/sawpanic/marketfeed/errs"
	"github.com/sawpanic/marketfeed/identifier"
)

// Factory builds a Connector for one exchange. Registered at init time by
// each venue binding's file (spec §9: "registry populated at
// construction").
type Factory func() Connector

// Registry is a lookup table from ExchangeId to a Connector factory,
// mirroring the teacher's capability-probing provider registry
// (src/infrastructure/providers/registry.go) but keyed by venue identity
// rather than capability, since here every venue supports the same
// Connector shape and capability is instead expressed per-SubKind via
// Formatter.ChannelToken returning Unsupported.
type Registry struct {
	mu        sync.RWMutex
	factories map[identifier.ExchangeId]Factory
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[identifier.ExchangeId]Factory)}
}

// Register adds or replaces the factory for id.
func (r *Registry) Register(id identifier.ExchangeId, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

// Build constructs a fresh Connector for id, or errs.Unsupported if no
// factory is registered.
func (r *Registry) Build(id identifier.ExchangeId) (Connector, error) {
	r.mu.RLock()
	f, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("connector registry: %w", &errs.Unsupported{Exchange: id})
	}
	return f(), nil
}

// Default returns a registry pre-populated with every connector this
// module ships.
func Default() *Registry {
	r := NewRegistry()
	r.Register(identifier.Binance, func() Connector { return NewBinance() })
	r.Register(identifier.Coinbase, func() Connector { return NewCoinbase() })
	r.Register(identifier.Bitstamp, func() Connector { return NewBitstamp() })
	r.Register(identifier.Kraken, func() Connector { return NewKraken() })
	r.Register(identifier.Okx, func() Connector { return NewOkx() })
	return r
}
