package identifier

import "fmt"

// SubscriptionId is the canonical "{channel}|{market}" string used to
// demultiplex an exchange's multiplexed socket back to an InstrumentKey. It
// is unique per (exchange, subscription) for the lifetime of a socket.
type SubscriptionId string

// NewSubscriptionId derives the canonical id from a channel token and a
// market token. Construction is total for any non-empty pair — the
// formatting rules that produce channel/market tokens are where a venue can
// fail (Unsupported), not this step.
func NewSubscriptionId(channel, market string) SubscriptionId {
	return SubscriptionId(fmt.Sprintf("%s|%s", channel, market))
}

func (id SubscriptionId) String() string { return string(id) }

// Map is populated from all (SubscriptionId -> InstrumentKey) pairs before
// a socket's subscribe frames are sent, and is immutable thereafter for the
// lifetime of that socket.
type Map map[SubscriptionId]InstrumentKey

// NewMap builds an immutable-by-convention routing table from subscriptions
// already paired with their derived SubscriptionId.
func NewMap(entries map[SubscriptionId]InstrumentKey) Map {
	m := make(Map, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	return m
}

// Lookup resolves a SubscriptionId to the InstrumentKey it routes to.
func (m Map) Lookup(id SubscriptionId) (InstrumentKey, bool) {
	k, ok := m[id]
	return k, ok
}
