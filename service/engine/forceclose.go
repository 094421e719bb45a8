package engine

import (
	"context"
	"fmt"

	"lever/core"
	"lever/pkg/number"
)

// forceClose writes a bad-debt account off against the asset reserves. Unlike
// the at-risk check, bad debt compares raw values with no volatility
// adjustment: the account's collateral must actually be worth less than its
// debt. The supplied side drains into the reserves and the reserves absorb the
// remaining debt; NFT collateral is left in place for manual recovery.
func (s *engineService) forceClose(ctx context.Context, ec *execContext, prices core.Prices, targetID string) error {
	if !s.config.Ledger.ForceClosingEnabled {
		return fmt.Errorf("%w: force closing is not enabled", core.ErrOperationForbidden)
	}

	target, err := ec.loadAccount(ctx, s, targetID)
	if err != nil {
		return err
	}

	collateralSum := number.Zero
	for tokenID, shares := range target.Supplied {
		asset, err := ec.cache.Unwrap(ctx, tokenID)
		if err != nil {
			return err
		}
		price, err := prices.Get(tokenID)
		if err != nil {
			return err
		}
		amount := asset.Supplied.SharesToAmount(shares, false)
		collateralSum = collateralSum.Add(core.ValueOf(amount, price, asset.Config.ExtraDecimals))
	}

	borrowedSum := number.Zero
	for tokenID, shares := range target.Borrowed {
		asset, err := ec.cache.Unwrap(ctx, tokenID)
		if err != nil {
			return err
		}
		price, err := prices.Get(tokenID)
		if err != nil {
			return err
		}
		amount := asset.Borrowed.SharesToAmount(shares, true)
		borrowedSum = borrowedSum.Add(core.ValueOf(amount, price, asset.Config.ExtraDecimals))
	}

	if !borrowedSum.GreaterThan(collateralSum) {
		return core.ErrNotBadDebt
	}

	for tokenID, shares := range target.Supplied {
		asset, err := ec.cache.Unwrap(ctx, tokenID)
		if err != nil {
			return err
		}
		amount := asset.Supplied.SharesToAmount(shares, false)
		if err := asset.Supplied.Withdraw(shares, amount); err != nil {
			return err
		}
		asset.Reserved = asset.Reserved.Add(amount)
		if err := ec.cache.Set(asset); err != nil {
			return err
		}
		target.AddAffectedFarm(core.FarmID{Kind: core.FarmSupplied, TokenID: tokenID})
		if err := target.DecreaseSupplied(tokenID, shares); err != nil {
			return err
		}
	}

	for tokenID, shares := range target.Borrowed {
		asset, err := ec.cache.Unwrap(ctx, tokenID)
		if err != nil {
			return err
		}
		amount := asset.Borrowed.SharesToAmount(shares, true)
		reserved, ok := asset.Reserved.Sub(amount)
		if !ok {
			return fmt.Errorf("%w: %s short of %s", core.ErrNotEnoughReserve, tokenID, amount)
		}
		asset.Reserved = reserved
		if err := asset.Borrowed.Withdraw(shares, amount); err != nil {
			return err
		}
		if err := ec.cache.Set(asset); err != nil {
			return err
		}
		target.AddAffectedFarm(core.FarmID{Kind: core.FarmBorrowed, TokenID: tokenID})
		if err := target.DecreaseBorrowed(tokenID, shares); err != nil {
			return err
		}
	}
	return nil
}
