package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/fox-one/pkg/logger"

	"lever/core"
	"lever/pkg/id"
)

type engineService struct {
	config   *core.Config
	assets   core.IAssetStore
	accounts core.IAccountStore
	farms    core.IFarmService
	clock    func() time.Time
}

// New new ledger engine
func New(
	cfg *core.Config,
	assetStore core.IAssetStore,
	accountStore core.IAccountStore,
	farmService core.IFarmService,
) core.IEngine {
	return &engineService{
		config:   cfg,
		assets:   assetStore,
		accounts: accountStore,
		farms:    farmService,
		clock:    time.Now,
	}
}

// NewWithClock builds an engine with a custom clock for deterministic tests.
func NewWithClock(
	cfg *core.Config,
	assetStore core.IAssetStore,
	accountStore core.IAccountStore,
	farmService core.IFarmService,
	clock func() time.Time,
) core.IEngine {
	return &engineService{
		config:   cfg,
		assets:   assetStore,
		accounts: accountStore,
		farms:    farmService,
		clock:    clock,
	}
}

func (s *engineService) Execute(ctx context.Context, accountID string, actions []core.Action, prices core.Prices) ([]*core.Transfer, error) {
	if len(actions) == 0 {
		return nil, core.ErrEmptyActions
	}

	log := logger.FromContext(ctx).WithField("service", "engine")

	ec := s.newExecContext()
	account, err := ec.loadAccount(ctx, s, accountID)
	if err != nil {
		return nil, err
	}
	pre := account.Clone()

	var needRiskCheck, needRiskCheckBorrow, needNumberCheck bool

	for idx, action := range actions {
		if err := action.Validate(); err != nil {
			return nil, err
		}

		switch {
		case action.Withdraw != nil:
			needRiskCheck = true
			aa := action.Withdraw
			account.AddAffectedFarm(core.FarmID{Kind: core.FarmSupplied, TokenID: aa.TokenID})
			amount, err := s.withdraw(ctx, ec, account, aa)
			if err != nil {
				return nil, err
			}
			ec.addTransfer(&core.Transfer{
				TraceID:   id.UUIDFromString(fmt.Sprintf("withdraw-%s-%s-%d", accountID, aa.TokenID, idx)),
				AccountID: accountID,
				TokenID:   aa.TokenID,
				Amount:    amount,
			})

		case action.WithdrawNFT != nil:
			needRiskCheck = true
			nft := action.WithdrawNFT
			account.AddAffectedFarm(core.FarmID{Kind: core.FarmSuppliedNFT, TokenID: nft.NFTContractID})
			if err := s.withdrawNFT(ctx, ec, accountID, account, nft); err != nil {
				return nil, err
			}
			ec.addTransfer(&core.Transfer{
				TraceID:    id.UUIDFromString(fmt.Sprintf("withdraw-nft-%s-%s-%s-%d", accountID, nft.NFTContractID, nft.NFTTokenID, idx)),
				AccountID:  accountID,
				TokenID:    nft.NFTContractID,
				NFTTokenID: nft.NFTTokenID,
			})

		case action.Borrow != nil:
			needNumberCheck = true
			needRiskCheckBorrow = true
			aa := action.Borrow
			account.AddAffectedFarm(core.FarmID{Kind: core.FarmSupplied, TokenID: aa.TokenID})
			account.AddAffectedFarm(core.FarmID{Kind: core.FarmBorrowed, TokenID: aa.TokenID})
			if _, err := s.borrow(ctx, ec, account, aa); err != nil {
				return nil, err
			}

		case action.Repay != nil:
			aa := action.Repay
			account.AddAffectedFarm(core.FarmID{Kind: core.FarmSupplied, TokenID: aa.TokenID})
			account.AddAffectedFarm(core.FarmID{Kind: core.FarmBorrowed, TokenID: aa.TokenID})
			if _, err := s.repay(ctx, ec, account, account, aa); err != nil {
				return nil, err
			}

		case action.Liquidate != nil:
			call := action.Liquidate
			if call.AccountID == accountID {
				return nil, core.ErrSelfLiquidation
			}
			if len(call.InAssets) == 0 || len(call.OutAssets) == 0 {
				return nil, core.ErrEmptyLiquidation
			}
			leg := s.fungibleOutLeg(call.OutAssets, prices)
			if err := s.liquidate(ctx, ec, account, prices, call.AccountID, call.InAssets, leg); err != nil {
				return nil, err
			}

		case action.LiquidateNFT != nil:
			call := action.LiquidateNFT
			if call.AccountID == accountID {
				return nil, core.ErrSelfLiquidation
			}
			if len(call.InAssets) == 0 || len(call.OutNFTAssets) == 0 {
				return nil, core.ErrEmptyLiquidation
			}
			leg := s.nftOutLeg(call.OutNFTAssets, prices)
			if err := s.liquidate(ctx, ec, account, prices, call.AccountID, call.InAssets, leg); err != nil {
				return nil, err
			}

		case action.ForceClose != nil:
			call := action.ForceClose
			if call.AccountID == accountID {
				return nil, core.ErrSelfLiquidation
			}
			if err := s.forceClose(ctx, ec, prices, call.AccountID); err != nil {
				return nil, err
			}
		}
	}

	if needNumberCheck && account.NumPositions() > s.config.Ledger.MaxNumAssets {
		return nil, core.ErrTooManyAssets
	}
	if needRiskCheckBorrow {
		discount, err := s.computeMaxDiscount(ctx, ec, pre, account, prices)
		if err != nil {
			return nil, err
		}
		if !discount.IsZero() {
			return nil, core.ErrAccountUnhealthy
		}
	}
	if needRiskCheck {
		discount, err := s.computeMaxDiscount(ctx, ec, account, account, prices)
		if err != nil {
			return nil, err
		}
		if !discount.IsZero() {
			return nil, core.ErrAccountUnhealthy
		}
	}

	transfers, err := ec.commit(ctx, s)
	if err != nil {
		return nil, err
	}

	log.WithField("account", accountID).Debugln("executed", len(actions), "actions")
	return transfers, nil
}

// withdraw burns supplied shares and releases the amount for transfer out.
func (s *engineService) withdraw(ctx context.Context, ec *execContext, account *core.Account, aa *core.AssetAmount) (core.Balance, error) {
	asset, err := ec.cache.Unwrap(ctx, aa.TokenID)
	if err != nil {
		return core.Balance{}, err
	}
	if !asset.Config.CanWithdraw {
		return core.Balance{}, fmt.Errorf("%w: withdrawals for %s are not enabled", core.ErrOperationForbidden, aa.TokenID)
	}

	supplied, err := account.UnwrapSupplied(aa.TokenID)
	if err != nil {
		return core.Balance{}, err
	}
	shares, amount, err := assetAmountToShares(&asset.Supplied, supplied, aa, false)
	if err != nil {
		return core.Balance{}, err
	}

	available, err := asset.AvailableAmount()
	if err != nil {
		return core.Balance{}, err
	}
	if amount.GreaterThan(available) {
		return core.Balance{}, fmt.Errorf("%w: %s of %s", core.ErrExceededAvailable, available, aa.TokenID)
	}

	if err := account.DecreaseSupplied(aa.TokenID, shares); err != nil {
		return core.Balance{}, err
	}
	if err := asset.Supplied.Withdraw(shares, amount); err != nil {
		return core.Balance{}, err
	}
	if err := ec.cache.Set(asset); err != nil {
		return core.Balance{}, err
	}
	return amount, nil
}

// withdrawNFT releases an NFT back to its owner, removing it from both the
// account set and the contract asset's pool.
func (s *engineService) withdrawNFT(ctx context.Context, ec *execContext, accountID string, account *core.Account, nft *core.NFTAsset) error {
	asset, err := ec.cache.Unwrap(ctx, nft.NFTContractID)
	if err != nil {
		return err
	}
	if !asset.Config.CanWithdraw {
		return fmt.Errorf("%w: withdrawals for %s are not enabled", core.ErrOperationForbidden, nft.NFTContractID)
	}

	owner, ok := asset.GetNFTOwner(nft.NFTTokenID)
	if !ok {
		return core.ErrNFTNotFound
	}
	if owner != accountID {
		return fmt.Errorf("%w: only %s may withdraw this NFT", core.ErrNotOwner, owner)
	}

	account.RemoveNFT(nft.NFTContractID, nft.NFTTokenID)
	asset.RemoveNFT(nft.NFTTokenID)
	return ec.cache.Set(asset)
}

// borrow mints borrowed shares and re-deposits the borrowed amount into the
// supplied pool; funds stay in the protocol until explicitly withdrawn.
func (s *engineService) borrow(ctx context.Context, ec *execContext, account *core.Account, aa *core.AssetAmount) (core.Balance, error) {
	asset, err := ec.cache.Unwrap(ctx, aa.TokenID)
	if err != nil {
		return core.Balance{}, err
	}
	if !asset.Config.CanBorrow {
		return core.Balance{}, fmt.Errorf("%w: %s can't be borrowed", core.ErrOperationForbidden, aa.TokenID)
	}

	available, err := asset.AvailableAmount()
	if err != nil {
		return core.Balance{}, err
	}
	maxBorrowShares := asset.Borrowed.AmountToShares(available, false)

	borrowedShares, amount, err := assetAmountToShares(&asset.Borrowed, maxBorrowShares, aa, true)
	if err != nil {
		return core.Balance{}, err
	}
	if amount.GreaterThan(available) {
		return core.Balance{}, fmt.Errorf("%w: %s of %s", core.ErrExceededAvailable, available, aa.TokenID)
	}

	suppliedShares := asset.Supplied.AmountToShares(amount, false)

	asset.Borrowed.Deposit(borrowedShares, amount)
	asset.Supplied.Deposit(suppliedShares, amount)
	if err := ec.cache.Set(asset); err != nil {
		return core.Balance{}, err
	}

	account.IncreaseBorrowed(aa.TokenID, borrowedShares)
	account.IncreaseSupplied(aa.TokenID, suppliedShares)
	return amount, nil
}

// repay burns the payer's supplied shares against the borrower's debt. When
// the payer's supplied balance can't cover the requested repayment, the
// repayment clamps to what is affordable, with shares recomputed to match.
func (s *engineService) repay(ctx context.Context, ec *execContext, payer, borrower *core.Account, aa *core.AssetAmount) (core.Balance, error) {
	asset, err := ec.cache.Unwrap(ctx, aa.TokenID)
	if err != nil {
		return core.Balance{}, err
	}

	borrowedAvailable, err := borrower.UnwrapBorrowed(aa.TokenID)
	if err != nil {
		return core.Balance{}, err
	}
	borrowedShares, amount, err := assetAmountToShares(&asset.Borrowed, borrowedAvailable, aa, true)
	if err != nil {
		return core.Balance{}, err
	}

	payerShares, err := payer.UnwrapSupplied(aa.TokenID)
	if err != nil {
		return core.Balance{}, err
	}
	suppliedShares := asset.Supplied.AmountToShares(amount, true)
	if suppliedShares.GreaterThan(payerShares) {
		suppliedShares = payerShares
		amount = asset.Supplied.SharesToAmount(suppliedShares, false)
		if aa.Amount != nil && amount.LessThan(*aa.Amount) {
			return core.Balance{}, core.ErrNotEnoughSuppliedBalance
		}
		if amount.IsZero() {
			return core.Balance{}, core.ErrZeroAmount
		}
		borrowedShares = asset.Borrowed.AmountToShares(amount, false)
		if borrowedShares.IsZero() {
			return core.Balance{}, core.ErrZeroShares
		}
		if borrowedShares.GreaterThan(borrowedAvailable) {
			return core.Balance{}, core.ErrNotEnoughBorrowedBalance
		}
	}

	if err := asset.Supplied.Withdraw(suppliedShares, amount); err != nil {
		return core.Balance{}, err
	}
	if err := asset.Borrowed.Withdraw(borrowedShares, amount); err != nil {
		return core.Balance{}, err
	}
	if err := ec.cache.Set(asset); err != nil {
		return core.Balance{}, err
	}

	if err := borrower.DecreaseBorrowed(aa.TokenID, borrowedShares); err != nil {
		return core.Balance{}, err
	}
	if err := payer.DecreaseSupplied(aa.TokenID, suppliedShares); err != nil {
		return core.Balance{}, err
	}
	return amount, nil
}

// seizeSupplied moves supplied shares from the liquidated account to the
// liquidator without touching the pool; only ownership changes.
func (s *engineService) seizeSupplied(ctx context.Context, ec *execContext, liquidator, target *core.Account, aa *core.AssetAmount) (core.Balance, error) {
	asset, err := ec.cache.Unwrap(ctx, aa.TokenID)
	if err != nil {
		return core.Balance{}, err
	}

	targetShares, err := target.UnwrapSupplied(aa.TokenID)
	if err != nil {
		return core.Balance{}, err
	}
	shares, amount, err := assetAmountToShares(&asset.Supplied, targetShares, aa, false)
	if err != nil {
		return core.Balance{}, err
	}

	if err := target.DecreaseSupplied(aa.TokenID, shares); err != nil {
		return core.Balance{}, err
	}
	liquidator.IncreaseSupplied(aa.TokenID, shares)
	return amount, nil
}

func (s *engineService) Deposit(ctx context.Context, accountID, tokenID string, amount core.Balance) ([]*core.Transfer, error) {
	if amount.IsZero() {
		return nil, core.ErrZeroAmount
	}

	ec := s.newExecContext()
	account, err := ec.loadOrCreateAccount(ctx, s, accountID)
	if err != nil {
		return nil, err
	}
	asset, err := ec.cache.Unwrap(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if !asset.Config.CanDeposit {
		return nil, fmt.Errorf("%w: deposits for %s are not enabled", core.ErrOperationForbidden, tokenID)
	}

	shares := asset.Supplied.AmountToShares(amount, false)
	if shares.IsZero() {
		return nil, core.ErrZeroShares
	}

	account.IncreaseSupplied(tokenID, shares)
	account.AddAffectedFarm(core.FarmID{Kind: core.FarmSupplied, TokenID: tokenID})

	asset.Supplied.Deposit(shares, amount)
	if err := ec.cache.Set(asset); err != nil {
		return nil, err
	}
	return ec.commit(ctx, s)
}

func (s *engineService) DepositNFT(ctx context.Context, accountID, nftContractID, nftTokenID string) error {
	ec := s.newExecContext()
	account, err := ec.loadOrCreateAccount(ctx, s, accountID)
	if err != nil {
		return err
	}
	asset, err := ec.cache.Unwrap(ctx, nftContractID)
	if err != nil {
		return err
	}
	if !asset.Config.CanDeposit {
		return fmt.Errorf("%w: deposits for %s are not enabled", core.ErrOperationForbidden, nftContractID)
	}

	now := s.clock()
	account.SetNFT(&core.AccountNFTAsset{
		NFTContractID: nftContractID,
		NFTTokenID:    nftTokenID,
		DepositTime:   now.UnixMilli(),
	})
	account.AddAffectedFarm(core.FarmID{Kind: core.FarmSuppliedNFT, TokenID: nftContractID})

	asset.SetNFT(accountID, nftTokenID, now)
	if err := ec.cache.Set(asset); err != nil {
		return err
	}
	_, err = ec.commit(ctx, s)
	return err
}

func (s *engineService) ClaimFarms(ctx context.Context, accountID string) ([]*core.Transfer, error) {
	ec := s.newExecContext()
	account, err := ec.loadAccount(ctx, s, accountID)
	if err != nil {
		return nil, err
	}
	for _, farmID := range account.GetAllPotentialFarms() {
		account.AddAffectedFarm(farmID)
	}
	return ec.commit(ctx, s)
}

func (s *engineService) AddAsset(ctx context.Context, callerID, tokenID string, config core.AssetConfig) error {
	if !s.config.IsAdmin(callerID) {
		return core.ErrNotOwner
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if _, err := s.assets.Find(ctx, tokenID); err == nil {
		return core.ErrAssetExists
	}
	return s.assets.Save(ctx, core.NewAsset(tokenID, s.clock(), config))
}

func (s *engineService) UpdateAsset(ctx context.Context, callerID, tokenID string, config core.AssetConfig) error {
	if !s.config.IsAdmin(callerID) {
		return core.ErrNotOwner
	}
	if err := config.Validate(); err != nil {
		return err
	}
	asset, err := s.assets.Find(ctx, tokenID)
	if err != nil {
		return err
	}
	asset = asset.Clone()
	if err := asset.Update(s.clock()); err != nil {
		return err
	}
	asset.Config = config
	if err := asset.Normalize(); err != nil {
		return err
	}
	return s.assets.Save(ctx, asset)
}

// assetAmountToShares resolves an asset-amount request against a pool and a
// shares ceiling. With Amount set the exact amount converts to shares; with
// MaxAmount the lesser of the ceiling and the converted maximum is used and
// converted back, capped again by MaxAmount; with neither, the full ceiling.
// Rounding runs against the requester on whichever side the pool would lose.
func assetAmountToShares(pool *core.Pool, availableShares core.Balance, aa *core.AssetAmount, inverseRound bool) (core.Balance, core.Balance, error) {
	var shares, amount core.Balance
	switch {
	case aa.Amount != nil:
		amount = *aa.Amount
		shares = pool.AmountToShares(amount, !inverseRound)
	case aa.MaxAmount != nil:
		shares = availableShares.Min(pool.AmountToShares(*aa.MaxAmount, !inverseRound))
		amount = pool.SharesToAmount(shares, inverseRound).Min(*aa.MaxAmount)
	default:
		shares = availableShares
		amount = pool.SharesToAmount(availableShares, inverseRound)
	}
	if shares.IsZero() {
		return core.Balance{}, core.Balance{}, core.ErrZeroShares
	}
	if amount.IsZero() {
		return core.Balance{}, core.Balance{}, core.ErrZeroAmount
	}
	return shares, amount, nil
}
