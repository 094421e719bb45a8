package core

import (
	"context"
)

// IEngine is the ledger's single mutation surface. Each call is atomic: the
// whole batch validates and commits, or nothing is persisted. Returned
// transfers are staged outgoing movements for the wallet glue to execute.
type IEngine interface {
	// Execute applies a batch of actions on behalf of accountID. Later
	// actions observe the effects of earlier ones; risk and asset-count
	// checks run once at the end of the batch.
	Execute(ctx context.Context, accountID string, actions []Action, prices Prices) ([]*Transfer, error)

	// Deposit credits tokens already received by the wallet glue,
	// registering the account on first use. Settling farms on the way may
	// produce reward payouts.
	Deposit(ctx context.Context, accountID, tokenID string, amount Balance) ([]*Transfer, error)

	// DepositNFT records an NFT received as collateral.
	DepositNFT(ctx context.Context, accountID, nftContractID, nftTokenID string) error

	// ClaimFarms settles every farm the account's positions qualify for.
	ClaimFarms(ctx context.Context, accountID string) ([]*Transfer, error)

	// AddAsset registers a new asset ledger (admins only).
	AddAsset(ctx context.Context, callerID, tokenID string, config AssetConfig) error

	// UpdateAsset replaces an asset's config (admins only).
	UpdateAsset(ctx context.Context, callerID, tokenID string, config AssetConfig) error
}
