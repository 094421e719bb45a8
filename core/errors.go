package core

import "errors"

// Errors returned by the ledger. Everything here aborts the whole call: a
// batch of actions is applied in full or not at all, so there is no local
// recovery, only rejection.
var (
	// input errors
	ErrAssetNotFound      = errors.New("asset not found")
	ErrAssetExists        = errors.New("asset already registered")
	ErrAccountNotFound    = errors.New("account is not registered")
	ErrBorrowedNotFound   = errors.New("borrowed asset not found")
	ErrSuppliedNotFound   = errors.New("supplied asset not found")
	ErrNFTNotFound        = errors.New("nft not found in the pool")
	ErrPriceMissing       = errors.New("no price for token")
	ErrZeroShares         = errors.New("shares can't be 0")
	ErrZeroAmount         = errors.New("amount can't be 0")
	ErrEmptyActions       = errors.New("empty action")
	ErrSelfLiquidation    = errors.New("can't liquidate yourself")
	ErrEmptyLiquidation   = errors.New("liquidation asset lists can't be empty")
	ErrInvalidAssetConfig = errors.New("invalid asset config")

	// invariant violations: these indicate a bug, not bad input
	ErrPoolInvariant     = errors.New("pool invariant broken: shares without amount")
	ErrBorrowedInvariant = errors.New("borrowed invariant broken")
	ErrNegativeAvailable = errors.New("available amount below zero")

	// balance errors
	ErrNotEnoughShares          = errors.New("not enough shares")
	ErrNotEnoughBalance         = errors.New("not enough balance")
	ErrNotEnoughSuppliedBalance = errors.New("not enough supplied balance")
	ErrNotEnoughBorrowedBalance = errors.New("not enough borrowed balance")
	ErrNotEnoughReserve         = errors.New("not enough reserve")
	ErrExceededAvailable        = errors.New("exceeded available amount")

	// risk-policy rejections
	ErrAccountUnhealthy    = errors.New("the action leaves the account at risk")
	ErrAccountNotAtRisk    = errors.New("the liquidation account is not at risk")
	ErrLiquidationTooLarge = errors.New("the liquidation is too large: the account must stay in risk")
	ErrHealthNotImproved   = errors.New("the health factor of the liquidation account can't decrease")
	ErrRepaidTooLittle     = errors.New("not enough balances repaid")
	ErrNotBadDebt          = errors.New("total borrowed is not greater than total collateral")
	ErrTooManyAssets       = errors.New("too many assets held")

	// authorization errors
	ErrOperationForbidden = errors.New("operation forbidden")
	ErrNotOwner           = errors.New("not an owner")
)
