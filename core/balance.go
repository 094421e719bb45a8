package core

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// MaxRatio is the denominator of all basis-point ratios (reserve ratio,
// volatility ratio, target utilization).
const MaxRatio uint32 = 10000

// Balance is an unsigned token amount or share count. Internally it is a
// 256-bit integer, but every externally visible value fits 128 bits; the wide
// type only exists so intermediate products in share conversion never
// overflow. The JSON representation is a decimal string.
type Balance struct {
	uint256.Int
}

// NewBalance balance from uint64
func NewBalance(v uint64) Balance {
	var b Balance
	b.SetUint64(v)
	return b
}

// NewBalanceFromString parses a decimal string balance.
func NewBalanceFromString(s string) (Balance, error) {
	var b Balance
	if err := b.SetFromDecimal(s); err != nil {
		return Balance{}, fmt.Errorf("invalid balance %q: %w", s, err)
	}
	return b, nil
}

// MustBalance parses a decimal string balance, panicking on malformed input.
// Only for constants in configs and tests.
func MustBalance(s string) Balance {
	b, err := NewBalanceFromString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// Exp10 returns 10^n as a balance.
func Exp10(n uint8) Balance {
	var b Balance
	b.Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
	return b
}

// Add returns b + o.
func (b Balance) Add(o Balance) Balance {
	var r Balance
	r.Int.Add(&b.Int, &o.Int)
	return r
}

// Sub returns b - o; ok is false when the subtraction would underflow.
func (b Balance) Sub(o Balance) (Balance, bool) {
	var r Balance
	_, underflow := r.Int.SubOverflow(&b.Int, &o.Int)
	return r, !underflow
}

// Cmp compares b and o.
func (b Balance) Cmp(o Balance) int {
	return b.Int.Cmp(&o.Int)
}

// LessThan reports b < o.
func (b Balance) LessThan(o Balance) bool { return b.Cmp(o) < 0 }

// GreaterThan reports b > o.
func (b Balance) GreaterThan(o Balance) bool { return b.Cmp(o) > 0 }

// Min returns the smaller of b and o.
func (b Balance) Min(o Balance) Balance {
	if b.Cmp(o) <= 0 {
		return b
	}
	return o
}

// Decimal converts the balance to an exact decimal integer.
func (b Balance) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(b.ToBig(), 0)
}

// String renders the balance as a decimal string.
func (b Balance) String() string {
	return b.Dec()
}

// MarshalJSON encodes the balance as a decimal string.
func (b Balance) MarshalJSON() ([]byte, error) {
	return []byte(`"` + b.Dec() + `"`), nil
}

// UnmarshalJSON decodes a decimal string (or a bare JSON number).
func (b *Balance) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return b.SetFromDecimal(s)
}

// BalanceFromDecimal converts a non-negative decimal to a balance, dropping
// the fraction after rounding half away from zero.
func BalanceFromDecimal(d decimal.Decimal) (Balance, error) {
	if d.IsNegative() {
		return Balance{}, fmt.Errorf("negative balance %s", d)
	}
	var b Balance
	overflow := b.SetFromBig(new(big.Int).Set(d.Round(0).BigInt()))
	if overflow {
		return Balance{}, fmt.Errorf("balance overflow: %s", d)
	}
	return b, nil
}

// RoundMul multiplies the balance by a decimal factor, rounding the product
// half away from zero back to an integer balance.
func (b Balance) RoundMul(d decimal.Decimal) (Balance, error) {
	return BalanceFromDecimal(d.Mul(b.Decimal()))
}

// RatioOf returns amount * ratio / MaxRatio, truncated.
func RatioOf(amount Balance, ratio uint32) Balance {
	var num, r Balance
	num.Int.Mul(&amount.Int, uint256.NewInt(uint64(ratio)))
	r.Int.Div(&num.Int, uint256.NewInt(uint64(MaxRatio)))
	return r
}
