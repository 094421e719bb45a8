package views

import (
	"time"

	"lever/core"
)

// Asset read model of one asset market with its current rates.
type Asset struct {
	TokenID         string           `json:"token_id"`
	Supplied        core.Pool        `json:"supplied"`
	Borrowed        core.Pool        `json:"borrowed"`
	Reserved        core.Balance     `json:"reserved"`
	LastUpdateTime  int64            `json:"last_update_time"`
	Config          core.AssetConfig `json:"config"`
	SupplyAPR       string           `json:"supply_apr"`
	BorrowAPR       string           `json:"borrow_apr"`
	UtilizationRate string           `json:"utilization_rate"`
	NFTCount        int              `json:"nft_count"`
}

// NewAsset builds the asset view after accruing interest to now, so reported
// balances and rates are current even if no transaction touched the asset
// recently.
func NewAsset(asset *core.Asset, now time.Time) (*Asset, error) {
	asset = asset.Clone()
	if err := asset.Update(now); err != nil {
		return nil, err
	}
	return &Asset{
		TokenID:         asset.TokenID,
		Supplied:        asset.Supplied,
		Borrowed:        asset.Borrowed,
		Reserved:        asset.Reserved,
		LastUpdateTime:  asset.LastUpdateTime,
		Config:          asset.Config,
		SupplyAPR:       asset.GetSupplyAPR().String(),
		BorrowAPR:       asset.GetBorrowAPR().String(),
		UtilizationRate: asset.GetRate().String(),
		NFTCount:        len(asset.NFTSupplied),
	}, nil
}

// APR rates of one asset.
type APR struct {
	TokenID   string `json:"token_id"`
	SupplyAPR string `json:"supply_apr"`
	BorrowAPR string `json:"borrow_apr"`
}

// NFTEntry one NFT collateral entry of an asset.
type NFTEntry struct {
	OwnerID     string `json:"owner_id"`
	NFTTokenID  string `json:"nft_token_id"`
	DepositTime int64  `json:"deposit_time"`
}

// Pagination common page envelope.
type Pagination struct {
	Total  int         `json:"total"`
	Offset int         `json:"offset"`
	Limit  int         `json:"limit"`
	Items  interface{} `json:"items"`
}

// Account read model of one account's positions.
type Account struct {
	AccountID string                  `json:"account_id"`
	Supplied  []Position              `json:"supplied"`
	Borrowed  []Position              `json:"borrowed"`
	NFTs      []*core.AccountNFTAsset `json:"nfts,omitempty"`
}

// Position one token position with shares and the current redeemable amount.
type Position struct {
	TokenID string       `json:"token_id"`
	Shares  core.Balance `json:"shares"`
	Amount  core.Balance `json:"amount"`
}
