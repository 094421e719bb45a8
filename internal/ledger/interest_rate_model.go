package ledger

import (
	"github.com/shopspring/decimal"

	"lever/pkg/number"
)

// MsPerYear milliseconds in a 365-day year
const MsPerYear uint64 = 31536000000

// GetRate returns the per-millisecond growth multiplier for the given
// utilization. The curve is piecewise linear: 1 at zero utilization, rising
// to targetRate at targetUtilization (the kink), then to maxRate at full
// utilization. All three rate parameters are per-millisecond multipliers >= 1.
func GetRate(utilization, targetUtilization, targetRate, maxRate decimal.Decimal) decimal.Decimal {
	if utilization.LessThanOrEqual(number.Zero) {
		return number.One
	}
	if utilization.LessThanOrEqual(targetUtilization) {
		// 1 + u * (target_rate - 1) / target_utilization
		slope := number.Div(targetRate.Sub(number.One), targetUtilization)
		return number.One.Add(number.Mul(utilization, slope))
	}
	if utilization.GreaterThanOrEqual(number.One) {
		return maxRate
	}
	// target_rate + (u - target_utilization) * (max_rate - target_rate) / (1 - target_utilization)
	slope := number.Div(maxRate.Sub(targetRate), number.One.Sub(targetUtilization))
	return targetRate.Add(number.Mul(utilization.Sub(targetUtilization), slope))
}

// Utilization is borrowed / total, zero for an empty pool.
func Utilization(borrowed, total decimal.Decimal) decimal.Decimal {
	if total.LessThanOrEqual(number.Zero) {
		return number.Zero
	}
	return number.Div(borrowed, total)
}

// GetBorrowAPR annualizes a per-millisecond rate: rate^ms_per_year - 1.
func GetBorrowAPR(rate decimal.Decimal) decimal.Decimal {
	return number.Pow(rate, MsPerYear).Sub(number.One)
}
