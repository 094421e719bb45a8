package number

import (
	"github.com/shopspring/decimal"
)

// MaxPrecision is the number of fractional decimal digits kept by every
// multiplication and division in rate math. Interest rates are per-millisecond
// growth multipliers very close to one, so anything coarser drifts visibly
// when compounded over months.
const MaxPrecision int32 = 27

var (
	// Zero decimal
	Zero = decimal.New(0, 0)
	// One decimal
	One = decimal.New(1, 0)
	// Two decimal
	Two = decimal.New(2, 0)
)

// Decimal parses a decimal from string, ignoring errors.
func Decimal(v string) decimal.Decimal {
	d, _ := decimal.NewFromString(v)
	return d
}

// Mul multiplies and truncates to MaxPrecision.
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Truncate(MaxPrecision)
}

// Div divides with MaxPrecision fractional digits, truncating the remainder.
func Div(a, b decimal.Decimal) decimal.Decimal {
	return a.DivRound(b, MaxPrecision+1).Truncate(MaxPrecision)
}

// Pow raises d to the n-th power by square-and-multiply, truncating each
// intermediate product to MaxPrecision. Truncation always under-accrues, so
// repeated compounding never rounds in the borrower's favor.
func Pow(d decimal.Decimal, n uint64) decimal.Decimal {
	result := One
	base := d.Truncate(MaxPrecision)
	for n > 0 {
		if n&1 == 1 {
			result = Mul(result, base)
		}
		base = Mul(base, base)
		n >>= 1
	}
	return result
}

// FromRatio converts a ratio in basis points of MaxRatio (10000) to a decimal.
func FromRatio(ratio uint32) decimal.Decimal {
	return decimal.New(int64(ratio), -4)
}

// Ceil rounds up at the given precision.
func Ceil(d decimal.Decimal, precision int32) decimal.Decimal {
	return d.Shift(precision).Ceil().Shift(-precision)
}
