package identifier

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentKind is a closed, tagged union over the shapes an Instrument can
// take. Concrete implementations are comparable Go values, but Option's
// decimal Strike compares by pointer, so map keys are built from
// InstrumentKey.String() rather than from the struct itself.
type InstrumentKind interface {
	Kind() string
}

// Spot is the plain base/quote instrument kind, no settlement asset.
type Spot struct{}

func (Spot) Kind() string { return "spot" }

// Perpetual is a perpetual future settling in Settle.
type Perpetual struct {
	Settle string
}

func (Perpetual) Kind() string { return "perpetual" }

// Future is a dated future settling in Settle at Expiry.
type Future struct {
	Settle string
	Expiry time.Time
}

func (Future) Kind() string { return "future" }

// OptionKind distinguishes call/put.
type OptionKind string

const (
	OptionCall OptionKind = "call"
	OptionPut  OptionKind = "put"
)

// OptionExercise distinguishes American/European exercise style.
type OptionExercise string

const (
	ExerciseAmerican OptionExercise = "american"
	ExerciseEuropean OptionExercise = "european"
)

// Option is a dated, struck option settling in Settle.
type Option struct {
	Settle   string
	Kind     OptionKind
	Exercise OptionExercise
	Expiry   time.Time
	Strike   decimal.Decimal
}

func (Option) Kind() string { return "option" }
