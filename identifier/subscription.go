package identifier

// Subscription is a request triple: which venue, which instrument, which
// kind of channel. The Channel and Market tokens are venue-specific and are
// filled in by a connector.Formatter before the SubscriptionId is derived.
type Subscription struct {
	Exchange   ExchangeId
	Instrument Instrument
	Kind       SubKind
}

// Key returns the InstrumentKey this subscription will route to once its
// SubscriptionId is resolved to the instrument.
func (s Subscription) Key() InstrumentKey {
	return InstrumentKey{Exchange: s.Exchange, Instrument: s.Instrument}
}
