package core

// AssetAmount requests an amount of one token for an action leg. With Amount
// set, exactly that many tokens are used. With only MaxAmount set, up to that
// many. With neither, everything available. Resolving to zero shares or zero
// amount rejects the action.
type AssetAmount struct {
	TokenID   string   `json:"token_id"`
	Amount    *Balance `json:"amount,omitempty"`
	MaxAmount *Balance `json:"max_amount,omitempty"`
}

// NFTAsset identifies one NFT for an action leg.
type NFTAsset struct {
	NFTContractID string `json:"nft_contract_id"`
	NFTTokenID    string `json:"nft_token_id"`
}

// LiquidationCall repays debt of a risky account in exchange for discounted
// fungible collateral.
type LiquidationCall struct {
	AccountID string        `json:"account_id"`
	InAssets  []AssetAmount `json:"in_assets"`
	OutAssets []AssetAmount `json:"out_assets"`
}

// NFTLiquidationCall repays debt of a risky account in exchange for NFT
// collateral, each valued at one fixed unit.
type NFTLiquidationCall struct {
	AccountID    string        `json:"account_id"`
	InAssets     []AssetAmount `json:"in_assets"`
	OutNFTAssets []NFTAsset    `json:"out_nft_assets"`
}

// ForceCloseCall writes a bad-debt account off against asset reserves.
type ForceCloseCall struct {
	AccountID string `json:"account_id"`
}

// Action is a closed one-of: exactly one field is set. The engine dispatches
// on the populated variant.
type Action struct {
	Withdraw     *AssetAmount        `json:"withdraw,omitempty"`
	WithdrawNFT  *NFTAsset           `json:"withdraw_nft,omitempty"`
	Borrow       *AssetAmount        `json:"borrow,omitempty"`
	Repay        *AssetAmount        `json:"repay,omitempty"`
	Liquidate    *LiquidationCall    `json:"liquidate,omitempty"`
	LiquidateNFT *NFTLiquidationCall `json:"liquidate_nft,omitempty"`
	ForceClose   *ForceCloseCall     `json:"force_close,omitempty"`
}

// Validate ensures exactly one variant is populated.
func (a Action) Validate() error {
	n := 0
	if a.Withdraw != nil {
		n++
	}
	if a.WithdrawNFT != nil {
		n++
	}
	if a.Borrow != nil {
		n++
	}
	if a.Repay != nil {
		n++
	}
	if a.Liquidate != nil {
		n++
	}
	if a.LiquidateNFT != nil {
		n++
	}
	if a.ForceClose != nil {
		n++
	}
	if n != 1 {
		return ErrEmptyActions
	}
	return nil
}
