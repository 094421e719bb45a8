package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"lever/core"
	"lever/pkg/number"
)

// collateralLeg seizes the out side of a liquidation from the target to the
// liquidator and returns the raw value taken. Fungible and NFT liquidation
// differ only in this leg.
type collateralLeg func(ctx context.Context, ec *execContext, liquidator, target *core.Account) (decimal.Decimal, error)

// liquidate repays part of a risky account's debt from the liquidator's
// supplied balance and seizes collateral in exchange. The discount the
// liquidator earns is capped by how far under water the target is, and the
// batch only passes if the target ends up strictly healthier yet still at
// risk; a liquidation can never flip an account all the way back to healthy.
func (s *engineService) liquidate(ctx context.Context, ec *execContext, liquidator *core.Account, prices core.Prices, targetID string, inAssets []core.AssetAmount, leg collateralLeg) error {
	target, err := ec.loadAccount(ctx, s, targetID)
	if err != nil {
		return err
	}

	maxDiscount, err := s.computeMaxDiscount(ctx, ec, target, target, prices)
	if err != nil {
		return err
	}
	if maxDiscount.IsZero() {
		return core.ErrAccountNotAtRisk
	}

	repaidSum := number.Zero
	for i := range inAssets {
		aa := inAssets[i]
		liquidator.AddAffectedFarm(core.FarmID{Kind: core.FarmSupplied, TokenID: aa.TokenID})
		target.AddAffectedFarm(core.FarmID{Kind: core.FarmBorrowed, TokenID: aa.TokenID})

		amount, err := s.repay(ctx, ec, liquidator, target, &aa)
		if err != nil {
			return err
		}
		asset, err := ec.cache.Unwrap(ctx, aa.TokenID)
		if err != nil {
			return err
		}
		price, err := prices.Get(aa.TokenID)
		if err != nil {
			return err
		}
		repaidSum = repaidSum.Add(core.ValueOf(amount, price, asset.Config.ExtraDecimals))
	}

	takenSum, err := leg(ctx, ec, liquidator, target)
	if err != nil {
		return err
	}

	discountedTaken := number.Mul(takenSum, number.One.Sub(maxDiscount))
	if discountedTaken.GreaterThan(repaidSum) {
		return core.ErrRepaidTooLittle
	}

	newDiscount, err := s.computeMaxDiscount(ctx, ec, target, target, prices)
	if err != nil {
		return err
	}
	if newDiscount.IsZero() {
		return core.ErrLiquidationTooLarge
	}
	if !newDiscount.LessThan(maxDiscount) {
		return core.ErrHealthNotImproved
	}
	return nil
}

// fungibleOutLeg seizes supplied shares token by token. Shares move between
// accounts without touching the pool, so the exchange rate is unaffected.
func (s *engineService) fungibleOutLeg(outAssets []core.AssetAmount, prices core.Prices) collateralLeg {
	return func(ctx context.Context, ec *execContext, liquidator, target *core.Account) (decimal.Decimal, error) {
		sum := number.Zero
		for i := range outAssets {
			aa := outAssets[i]
			liquidator.AddAffectedFarm(core.FarmID{Kind: core.FarmSupplied, TokenID: aa.TokenID})
			target.AddAffectedFarm(core.FarmID{Kind: core.FarmSupplied, TokenID: aa.TokenID})

			amount, err := s.seizeSupplied(ctx, ec, liquidator, target, &aa)
			if err != nil {
				return number.Zero, err
			}
			asset, err := ec.cache.Unwrap(ctx, aa.TokenID)
			if err != nil {
				return number.Zero, err
			}
			price, err := prices.Get(aa.TokenID)
			if err != nil {
				return number.Zero, err
			}
			sum = sum.Add(core.ValueOf(amount, price, asset.Config.ExtraDecimals))
		}
		return sum, nil
	}
}

// nftOutLeg transfers NFT collateral to the liquidator, each NFT valued at
// one fixed unit. The NFT stays inside the protocol as the liquidator's
// collateral; only ownership changes, with the original deposit time kept.
func (s *engineService) nftOutLeg(outNFTAssets []core.NFTAsset, prices core.Prices) collateralLeg {
	return func(ctx context.Context, ec *execContext, liquidator, target *core.Account) (decimal.Decimal, error) {
		sum := number.Zero
		for _, nft := range outNFTAssets {
			liquidator.AddAffectedFarm(core.FarmID{Kind: core.FarmSuppliedNFT, TokenID: nft.NFTContractID})
			target.AddAffectedFarm(core.FarmID{Kind: core.FarmSuppliedNFT, TokenID: nft.NFTContractID})

			asset, err := ec.cache.Unwrap(ctx, nft.NFTContractID)
			if err != nil {
				return number.Zero, err
			}
			owner, ok := asset.GetNFTOwner(nft.NFTTokenID)
			if !ok {
				return number.Zero, core.ErrNFTNotFound
			}
			if owner != target.AccountID {
				return number.Zero, core.ErrNotOwner
			}
			entry, ok := target.GetNFT(nft.NFTContractID, nft.NFTTokenID)
			if !ok {
				return number.Zero, core.ErrNFTNotFound
			}

			target.RemoveNFT(nft.NFTContractID, nft.NFTTokenID)
			liquidator.SetNFT(&core.AccountNFTAsset{
				NFTContractID: nft.NFTContractID,
				NFTTokenID:    nft.NFTTokenID,
				DepositTime:   entry.DepositTime,
			})
			asset.SetNFT(liquidator.AccountID, nft.NFTTokenID, s.clock())
			if err := ec.cache.Set(asset); err != nil {
				return number.Zero, err
			}

			price, err := prices.Get(nft.NFTContractID)
			if err != nil {
				return number.Zero, err
			}
			sum = sum.Add(core.ValueOf(nftCollateralUnit, price, asset.Config.ExtraDecimals))
		}
		return sum, nil
	}
}
