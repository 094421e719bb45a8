package farm

import (
	"context"
	"fmt"
	"time"

	"lever/core"
	"lever/pkg/id"
)

type farmService struct {
	farms core.IFarmStore
	clock func() time.Time
}

// New farm settlement service
func New(farmStore core.IFarmStore) core.IFarmService {
	return &farmService{farms: farmStore, clock: time.Now}
}

// NewWithClock builds a farm service with a custom clock for deterministic
// tests.
func NewWithClock(farmStore core.IFarmStore, clock func() time.Time) core.IFarmService {
	return &farmService{farms: farmStore, clock: clock}
}

// Settle claims accrued rewards for the given farms and re-enrolls the account
// with its current position shares. Rewards follow the reward-per-share model:
// an account earns shares * (reward_per_share - last_reward_per_share) since
// its last settlement, so settling exactly when shares change keeps the
// distribution exact without per-account timers.
func (s *farmService) Settle(ctx context.Context, account *core.Account, farmIDs []core.FarmID) ([]*core.Transfer, error) {
	if len(farmIDs) == 0 {
		return nil, nil
	}

	now := s.clock().UnixMilli()
	var payouts []*core.Transfer

	for _, farmID := range farmIDs {
		farm, err := s.farms.Find(ctx, farmID)
		if err != nil {
			return nil, err
		}
		if farm == nil {
			continue
		}

		enrollment := account.Farms[farmID]
		if enrollment == nil {
			enrollment = core.NewAccountFarm()
		}

		shares := positionShares(account, farmID)

		for rewardToken, pool := range farm.Rewards {
			r := enrollment.Rewards[rewardToken]
			if r == nil {
				r = &core.AccountFarmReward{LastRewardPerShare: pool.RewardPerShare}
				enrollment.Rewards[rewardToken] = r
			}

			claimedDec := pool.RewardPerShare.Sub(r.LastRewardPerShare).Mul(r.BoostedShares.Decimal()).Truncate(0)
			claimed, err := core.BalanceFromDecimal(claimedDec)
			if err != nil {
				return nil, err
			}
			claimed = claimed.Min(pool.RemainingRewards)
			if !claimed.IsZero() {
				pool.RemainingRewards, _ = pool.RemainingRewards.Sub(claimed)
				payouts = append(payouts, &core.Transfer{
					TraceID:   id.UUIDFromString(fmt.Sprintf("farm-%s-%s-%s-%d", account.AccountID, farmID, rewardToken, now)),
					AccountID: account.AccountID,
					TokenID:   rewardToken,
					Amount:    claimed,
				})
			}
			r.LastRewardPerShare = pool.RewardPerShare

			// re-enroll with the current position shares
			remaining, ok := pool.BoostedShares.Sub(r.BoostedShares)
			if !ok {
				return nil, fmt.Errorf("farm %s: enrolled %s shares exceed the pool total %s", farmID, r.BoostedShares, pool.BoostedShares)
			}
			pool.BoostedShares = remaining.Add(shares)
			r.BoostedShares = shares
		}

		enrollment.UpdatedAt = now
		if shares.IsZero() {
			delete(account.Farms, farmID)
		} else {
			account.Farms[farmID] = enrollment
		}

		if err := s.farms.Save(ctx, farm); err != nil {
			return nil, err
		}
	}
	return payouts, nil
}

// positionShares raw farm shares of the account's current position: pool
// shares for fungible farms, the NFT count for NFT farms.
func positionShares(account *core.Account, farmID core.FarmID) core.Balance {
	switch farmID.Kind {
	case core.FarmSupplied:
		return account.GetSuppliedShares(farmID.TokenID)
	case core.FarmBorrowed:
		return account.GetBorrowedShares(farmID.TokenID)
	case core.FarmSuppliedNFT:
		return core.NewBalance(account.CountNFTSupplied(farmID.TokenID))
	}
	return core.Balance{}
}
