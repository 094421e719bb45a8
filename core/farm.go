package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FarmKind side of a position a farm rewards.
type FarmKind string

const (
	// FarmSupplied rewards supplying a token
	FarmSupplied FarmKind = "supplied"
	// FarmBorrowed rewards borrowing a token
	FarmBorrowed FarmKind = "borrowed"
	// FarmSuppliedNFT rewards NFT collateral from a contract
	FarmSuppliedNFT FarmKind = "supplied_nft"
)

// FarmID identifies one reward stream: a position kind on one token (or NFT
// contract).
type FarmID struct {
	Kind    FarmKind
	TokenID string
}

func (f FarmID) String() string {
	return string(f.Kind) + NFTDelimiter + f.TokenID
}

// MarshalText lets FarmID act as a JSON map key.
func (f FarmID) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText parses "kind:token_id".
func (f *FarmID) UnmarshalText(data []byte) error {
	kind, tokenID, ok := strings.Cut(string(data), NFTDelimiter)
	if !ok {
		return fmt.Errorf("invalid farm id %q", data)
	}
	switch FarmKind(kind) {
	case FarmSupplied, FarmBorrowed, FarmSuppliedNFT:
	default:
		return fmt.Errorf("invalid farm kind %q", kind)
	}
	f.Kind = FarmKind(kind)
	f.TokenID = tokenID
	return nil
}

// AccountFarmReward per reward-token state of an account's enrollment.
type AccountFarmReward struct {
	BoostedShares      Balance         `json:"boosted_shares"`
	LastRewardPerShare decimal.Decimal `json:"last_reward_per_share"`
}

// AccountFarm tracks one account's enrollment in one farm.
type AccountFarm struct {
	UpdatedAt int64                         `json:"updated_at"`
	Rewards   map[string]*AccountFarmReward `json:"rewards"`
}

// NewAccountFarm empty enrollment
func NewAccountFarm() *AccountFarm {
	return &AccountFarm{Rewards: make(map[string]*AccountFarmReward)}
}

// Clone deep copy
func (f *AccountFarm) Clone() *AccountFarm {
	dup := &AccountFarm{
		UpdatedAt: f.UpdatedAt,
		Rewards:   make(map[string]*AccountFarmReward, len(f.Rewards)),
	}
	for k, v := range f.Rewards {
		r := *v
		dup.Rewards[k] = &r
	}
	return dup
}

// AssetFarmReward pool-wide state of one reward token in a farm.
type AssetFarmReward struct {
	// RewardPerShare accumulates rewards distributed per boosted share.
	RewardPerShare decimal.Decimal `json:"reward_per_share"`
	// BoostedShares total boosted shares enrolled.
	BoostedShares Balance `json:"boosted_shares"`
	// RemainingRewards still to be distributed.
	RemainingRewards Balance `json:"remaining_rewards"`
}

// AssetFarm pool-wide state of one farm.
type AssetFarm struct {
	FarmID  FarmID                      `json:"farm_id"`
	Rewards map[string]*AssetFarmReward `json:"rewards"`
}

// IFarmStore farm persistence boundary. Find returns nil without error for a
// farm that was never configured.
type IFarmStore interface {
	Save(ctx context.Context, farm *AssetFarm) error
	Find(ctx context.Context, id FarmID) (*AssetFarm, error)
}

// IFarmService settles reward farming when positions change. The engine calls
// Settle exactly once per successful batch, after all actions are applied, so
// new reward weights are derived from the final share balances.
type IFarmService interface {
	Settle(ctx context.Context, account *Account, farmIDs []FarmID) ([]*Transfer, error)
}
