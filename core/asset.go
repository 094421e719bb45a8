package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"lever/internal/ledger"
	"lever/pkg/number"
)

// NFTPoolEntry records one NFT held as collateral by an account, kept on the
// NFT-contract asset so ownership can be verified without loading accounts.
type NFTPoolEntry struct {
	OwnerID     string `json:"owner_id"`
	NFTTokenID  string `json:"nft_token_id"`
	DepositTime int64  `json:"deposit_time"`
}

// AssetConfig static per-asset parameters
type AssetConfig struct {
	CanDeposit         bool `json:"can_deposit"`
	CanWithdraw        bool `json:"can_withdraw"`
	CanBorrow          bool `json:"can_borrow"`
	CanUseAsCollateral bool `json:"can_use_as_collateral"`
	// ReserveRatio is the share of accrued interest kept for stability,
	// in basis points of MaxRatio.
	ReserveRatio uint32 `json:"reserve_ratio"`
	// VolatilityRatio discounts collateral value and inflates borrowed value
	// in risk checks, in basis points of MaxRatio.
	VolatilityRatio uint32 `json:"volatility_ratio"`
	// ExtraDecimals lifts the token's on-chain decimals to the common
	// valuation precision.
	ExtraDecimals uint8 `json:"extra_decimals"`
	// TargetUtilization is the kink position of the rate curve, in basis
	// points of MaxRatio.
	TargetUtilization uint32 `json:"target_utilization"`
	// TargetUtilizationRate and MaxUtilizationRate are per-millisecond
	// growth multipliers at the kink and at 100% utilization.
	TargetUtilizationRate decimal.Decimal `json:"target_utilization_rate"`
	MaxUtilizationRate    decimal.Decimal `json:"max_utilization_rate"`
}

// Validate checks ratio bounds and rate-curve ordering.
func (c AssetConfig) Validate() error {
	if c.ReserveRatio > MaxRatio || c.VolatilityRatio > MaxRatio || c.TargetUtilization > MaxRatio {
		return ErrInvalidAssetConfig
	}
	if c.TargetUtilization == 0 {
		return ErrInvalidAssetConfig
	}
	one := number.One
	if c.TargetUtilizationRate.LessThan(one) || c.MaxUtilizationRate.LessThan(c.TargetUtilizationRate) {
		return ErrInvalidAssetConfig
	}
	return nil
}

// GetRate per-millisecond growth multiplier for the given pool balances.
func (c AssetConfig) GetRate(borrowed, total Balance) decimal.Decimal {
	util := ledger.Utilization(borrowed.Decimal(), total.Decimal())
	return ledger.GetRate(util, number.FromRatio(c.TargetUtilization), c.TargetUtilizationRate, c.MaxUtilizationRate)
}

// Asset aggregates both sides of one token's market: the interest-bearing
// supplied pool (collateral included), the borrowed pool, the NFT collateral
// pool (for NFT-contract assets), and the reserve.
type Asset struct {
	TokenID  string `json:"token_id"`
	Supplied Pool   `json:"supplied"`
	Borrowed Pool   `json:"borrowed"`
	// NFTSupplied lists NFTs deposited under this contract asset.
	NFTSupplied []*NFTPoolEntry `json:"nft_supplied,omitempty"`
	// Reserved can be borrowed and affects the borrow rate, but belongs to
	// the protocol.
	Reserved Balance `json:"reserved"`
	// LastUpdateTime is the unix millisecond of the last interest accrual.
	LastUpdateTime int64       `json:"last_update_time"`
	Config         AssetConfig `json:"config"`
}

// NewAsset empty asset ledger
func NewAsset(tokenID string, now time.Time, config AssetConfig) *Asset {
	return &Asset{
		TokenID:        tokenID,
		Supplied:       NewPool(),
		Borrowed:       NewPool(),
		Reserved:       Balance{},
		LastUpdateTime: now.UnixMilli(),
		Config:         config,
	}
}

// Clone deep-copies the asset for per-call staging.
func (a *Asset) Clone() *Asset {
	dup := *a
	if a.NFTSupplied != nil {
		dup.NFTSupplied = make([]*NFTPoolEntry, len(a.NFTSupplied))
		for i, e := range a.NFTSupplied {
			entry := *e
			dup.NFTSupplied[i] = &entry
		}
	}
	return &dup
}

// GetRate current per-millisecond growth multiplier.
func (a *Asset) GetRate() decimal.Decimal {
	return a.Config.GetRate(a.Borrowed.Amount, a.Supplied.Amount.Add(a.Reserved))
}

// GetBorrowAPR annual growth of a borrowed position at the current rate.
func (a *Asset) GetBorrowAPR() decimal.Decimal {
	return ledger.GetBorrowAPR(a.GetRate())
}

// GetSupplyAPR annual growth of a supplied position: the borrow interest
// scaled down by the reserve cut and spread over the supplied balance.
func (a *Asset) GetSupplyAPR() decimal.Decimal {
	if a.Supplied.Amount.IsZero() || a.Borrowed.Amount.IsZero() {
		return number.Zero
	}
	borrowAPR := a.GetBorrowAPR()
	if borrowAPR.IsZero() {
		return borrowAPR
	}
	interest, err := a.Borrowed.Amount.RoundMul(borrowAPR)
	if err != nil {
		return number.Zero
	}
	supplyInterest := RatioOf(interest, MaxRatio-a.Config.ReserveRatio)
	return number.Div(supplyInterest.Decimal(), a.Supplied.Amount.Decimal())
}

// compound accrues interest for the elapsed milliseconds: the borrowed pool
// grows by rate^elapsed, the reserve takes its cut and suppliers the rest.
// With no supply shares outstanding there is no one to credit, so the whole
// interest goes to the reserve.
func (a *Asset) compound(elapsedMs uint64) error {
	rate := a.GetRate()
	grown, err := a.Borrowed.Amount.RoundMul(number.Pow(rate, elapsedMs))
	if err != nil {
		return err
	}
	interest, ok := grown.Sub(a.Borrowed.Amount)
	if !ok {
		interest = Balance{}
	}
	reserved := RatioOf(interest, a.Config.ReserveRatio)
	if !a.Supplied.Shares.IsZero() {
		supplied, _ := interest.Sub(reserved)
		a.Supplied.Amount = a.Supplied.Amount.Add(supplied)
		a.Reserved = a.Reserved.Add(reserved)
	} else {
		a.Reserved = a.Reserved.Add(interest)
	}
	a.Borrowed.Amount = a.Borrowed.Amount.Add(interest)
	return nil
}

// Update lazily accrues interest since the last update. The timestamp only
// advances by whole elapsed milliseconds, so sub-millisecond remainders carry
// forward instead of being lost.
func (a *Asset) Update(now time.Time) error {
	elapsed := now.UnixMilli() - a.LastUpdateTime
	if elapsed <= 0 {
		return nil
	}
	if err := a.compound(uint64(elapsed)); err != nil {
		return err
	}
	a.LastUpdateTime += elapsed
	return nil
}

// AvailableAmount is the liquidity left for withdrawals and borrows. Going
// negative is an accounting bug somewhere upstream, never a valid state.
func (a *Asset) AvailableAmount() (Balance, error) {
	avail, ok := a.Supplied.Amount.Add(a.Reserved).Sub(a.Borrowed.Amount)
	if !ok {
		return Balance{}, ErrNegativeAvailable
	}
	return avail, nil
}

// GetNFTOwner looks an NFT up in the pool, returning its owner account id.
func (a *Asset) GetNFTOwner(nftTokenID string) (string, bool) {
	for _, e := range a.NFTSupplied {
		if e.NFTTokenID == nftTokenID {
			return e.OwnerID, true
		}
	}
	return "", false
}

// SetNFT inserts or re-owns an NFT pool entry, keeping the original deposit
// time across ownership transfers.
func (a *Asset) SetNFT(ownerID, nftTokenID string, now time.Time) {
	depositTime := now.UnixMilli()
	for i, e := range a.NFTSupplied {
		if e.NFTTokenID == nftTokenID {
			depositTime = e.DepositTime
			a.NFTSupplied = append(a.NFTSupplied[:i], a.NFTSupplied[i+1:]...)
			break
		}
	}
	a.NFTSupplied = append(a.NFTSupplied, &NFTPoolEntry{
		OwnerID:     ownerID,
		NFTTokenID:  nftTokenID,
		DepositTime: depositTime,
	})
}

// RemoveNFT drops an NFT pool entry.
func (a *Asset) RemoveNFT(nftTokenID string) {
	for i, e := range a.NFTSupplied {
		if e.NFTTokenID == nftTokenID {
			a.NFTSupplied = append(a.NFTSupplied[:i], a.NFTSupplied[i+1:]...)
			return
		}
	}
}

// Normalize is run before every persist: residual supplied amount with no
// shares left is swept into the reserve, then both pool invariants and the
// borrowed-side zero-shares/zero-amount invariant are enforced.
func (a *Asset) Normalize() error {
	if a.Supplied.Shares.IsZero() && !a.Supplied.Amount.IsZero() {
		a.Reserved = a.Reserved.Add(a.Supplied.Amount)
		a.Supplied.Amount = Balance{}
	}
	if a.Borrowed.Shares.IsZero() && !a.Borrowed.Amount.IsZero() {
		return ErrBorrowedInvariant
	}
	if err := a.Supplied.AssertInvariant(); err != nil {
		return err
	}
	return a.Borrowed.AssertInvariant()
}

// IAssetStore asset persistence boundary. The engine never touches it
// directly; all reads and writes go through the per-call cache.
type IAssetStore interface {
	Save(ctx context.Context, asset *Asset) error
	Find(ctx context.Context, tokenID string) (*Asset, error)
	All(ctx context.Context) ([]*Asset, error)
}
