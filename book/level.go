// Package book implements the Level-2 order-book reconstruction engine:
// snapshot adoption, delta buffering during warmup, sequence-gap detection,
// and the shared, concurrently-readable book map (spec §4.5, §4.8).
package book

import "github.com/shopspring/decimal"

// Level is a single (price, amount) point on one side of a book. Decimal
// arithmetic is used throughout the book engine to avoid float drift (spec
// §3, §9) — float is reserved for L1/trade normalization in package event.
type Level struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// IsRemoval reports whether this level represents a removal: amount == 0
// levels are never stored, only applied as a delete at Price (spec §3).
func (l Level) IsRemoval() bool {
	return l.Amount.Sign() == 0
}
