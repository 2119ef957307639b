package identifier

// SubKind is the closed set of channel kinds a Subscription can request.
type SubKind string

const (
	PublicTrades SubKind = "public_trades"
	OrderBooksL1 SubKind = "order_books_l1"
	OrderBooksL2 SubKind = "order_books_l2"
	Liquidations SubKind = "liquidations"
	Candles      SubKind = "candles"
)

func (k SubKind) String() string { return string(k) }
