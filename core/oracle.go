package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Price one oracle quote: token value = amount * Multiplier / 10^Decimals,
// where Decimals already includes the token's own precision.
type Price struct {
	Multiplier Balance `json:"multiplier"`
	Decimals   uint8   `json:"decimals"`
}

// Prices oracle snapshot passed into every risk-sensitive call. Staleness is
// validated by the glue layer before the snapshot reaches the ledger.
type Prices map[string]Price

// Get returns the price for a token; a referenced token without a price makes
// the whole call fail.
func (p Prices) Get(tokenID string) (Price, error) {
	price, ok := p[tokenID]
	if !ok {
		return Price{}, fmt.Errorf("%w: %s", ErrPriceMissing, tokenID)
	}
	return price, nil
}

// ValueOf converts a token amount to the common value unit.
func ValueOf(amount Balance, price Price, extraDecimals uint8) decimal.Decimal {
	shift := int32(price.Decimals) + int32(extraDecimals)
	return amount.Decimal().Mul(price.Multiplier.Decimal()).Shift(-shift)
}
