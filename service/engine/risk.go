package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"lever/core"
	"lever/pkg/number"
)

// nftCollateralUnit is the valuation amount of a single NFT. Oracle quotes for
// NFT contracts price one whole token at this precision.
var nftCollateralUnit = core.Exp10(24)

// computeMaxDiscount measures how far under water an account is: zero for a
// healthy account, otherwise half the relative shortfall of adjusted
// collateral against adjusted debt. Collateral positions read from
// collateralSide and debt positions from borrowedSide, so a borrow can be
// checked against pre-batch collateral while a withdrawal is checked against
// the final state.
//
// Collateral is rounded down and scaled by the volatility ratio; debt is
// rounded up and scaled by its inverse. Both adjustments shrink the margin, so
// the discount can only overstate risk, never hide it.
func (s *engineService) computeMaxDiscount(ctx context.Context, ec *execContext, collateralSide, borrowedSide *core.Account, prices core.Prices) (decimal.Decimal, error) {
	// no debt, no risk: skip valuation entirely so debt-free accounts never
	// need a price snapshot
	if len(borrowedSide.Borrowed) == 0 {
		return number.Zero, nil
	}

	collateralSum := number.Zero

	for tokenID, shares := range collateralSide.Supplied {
		asset, err := ec.cache.Unwrap(ctx, tokenID)
		if err != nil {
			return number.Zero, err
		}
		price, err := prices.Get(tokenID)
		if err != nil {
			return number.Zero, err
		}
		amount := asset.Supplied.SharesToAmount(shares, false)
		value := core.ValueOf(amount, price, asset.Config.ExtraDecimals)
		adjusted := number.Mul(value, number.FromRatio(asset.Config.VolatilityRatio))
		collateralSum = collateralSum.Add(adjusted)
	}

	for _, nft := range collateralSide.NFTSupplied {
		asset, err := ec.cache.Unwrap(ctx, nft.NFTContractID)
		if err != nil {
			return number.Zero, err
		}
		price, err := prices.Get(nft.NFTContractID)
		if err != nil {
			return number.Zero, err
		}
		value := core.ValueOf(nftCollateralUnit, price, asset.Config.ExtraDecimals)
		adjusted := number.Mul(value, number.FromRatio(asset.Config.VolatilityRatio))
		collateralSum = collateralSum.Add(adjusted)
	}

	borrowedSum := number.Zero
	for tokenID, shares := range borrowedSide.Borrowed {
		asset, err := ec.cache.Unwrap(ctx, tokenID)
		if err != nil {
			return number.Zero, err
		}
		price, err := prices.Get(tokenID)
		if err != nil {
			return number.Zero, err
		}
		amount := asset.Borrowed.SharesToAmount(shares, true)
		value := core.ValueOf(amount, price, asset.Config.ExtraDecimals)
		adjusted := number.Div(value, number.FromRatio(asset.Config.VolatilityRatio))
		borrowedSum = borrowedSum.Add(adjusted)
	}

	if borrowedSum.IsZero() || !collateralSum.LessThan(borrowedSum) {
		return number.Zero, nil
	}
	shortfall := borrowedSum.Sub(collateralSum)
	return number.Div(shortfall, borrowedSum).Div(number.Two), nil
}
