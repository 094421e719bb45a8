package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lever/core"
)

// assetCache gives one top-level call a single consistent view of every asset
// it touches: the first read loads and accrues interest, later reads observe
// earlier mutations, and each dirty asset is persisted exactly once at commit.
// A cache never outlives its call.
type assetCache struct {
	store  core.IAssetStore
	now    time.Time
	assets map[string]*core.Asset
	dirty  map[string]bool
	order  []string
}

func newAssetCache(store core.IAssetStore, now time.Time) *assetCache {
	return &assetCache{
		store:  store,
		now:    now,
		assets: make(map[string]*core.Asset),
		dirty:  make(map[string]bool),
	}
}

// Unwrap returns the staged asset for a token, loading and updating it on
// first access.
func (c *assetCache) Unwrap(ctx context.Context, tokenID string) (*core.Asset, error) {
	if asset, ok := c.assets[tokenID]; ok {
		return asset, nil
	}
	asset, err := c.store.Find(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	asset = asset.Clone()
	if err := asset.Update(c.now); err != nil {
		return nil, err
	}
	c.assets[tokenID] = asset
	c.order = append(c.order, tokenID)
	return asset, nil
}

// Set validates the mutated asset and marks it for persistence.
func (c *assetCache) Set(asset *core.Asset) error {
	if err := asset.Normalize(); err != nil {
		return fmt.Errorf("asset %s: %w", asset.TokenID, err)
	}
	if _, ok := c.assets[asset.TokenID]; !ok {
		c.order = append(c.order, asset.TokenID)
	}
	c.assets[asset.TokenID] = asset
	c.dirty[asset.TokenID] = true
	return nil
}

// Flush writes every dirty asset back, in first-touch order.
func (c *assetCache) Flush(ctx context.Context) error {
	for _, tokenID := range c.order {
		if !c.dirty[tokenID] {
			continue
		}
		if err := c.store.Save(ctx, c.assets[tokenID]); err != nil {
			return err
		}
	}
	return nil
}

// execContext is the staging area of one top-level call: the asset cache, the
// accounts loaded so far, and the outgoing transfers produced. Nothing in it
// is persisted until commit; dropping the context on error discards every
// staged mutation.
type execContext struct {
	cache     *assetCache
	accounts  map[string]*core.Account
	order     []*core.Account
	transfers []*core.Transfer
}

func (s *engineService) newExecContext() *execContext {
	return &execContext{
		cache:    newAssetCache(s.assets, s.clock()),
		accounts: make(map[string]*core.Account),
	}
}

// loadAccount stages a deep copy of the account so a failed batch leaves the
// stored record untouched.
func (ec *execContext) loadAccount(ctx context.Context, s *engineService, accountID string) (*core.Account, error) {
	if account, ok := ec.accounts[accountID]; ok {
		return account, nil
	}
	account, err := s.accounts.Find(ctx, accountID)
	if err != nil {
		return nil, err
	}
	account = account.Clone()
	ec.accounts[accountID] = account
	ec.order = append(ec.order, account)
	return account, nil
}

// loadOrCreateAccount registers the account on first deposit.
func (ec *execContext) loadOrCreateAccount(ctx context.Context, s *engineService, accountID string) (*core.Account, error) {
	account, err := ec.loadAccount(ctx, s, accountID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, core.ErrAccountNotFound) {
		return nil, err
	}
	account = core.NewAccount(accountID)
	ec.accounts[accountID] = account
	ec.order = append(ec.order, account)
	return account, nil
}

func (ec *execContext) addTransfer(t *core.Transfer) {
	ec.transfers = append(ec.transfers, t)
}

// commit settles farms against the final balances of every staged account,
// flushes the asset cache and saves the accounts. Any error before the first
// write aborts the whole call with nothing persisted.
func (ec *execContext) commit(ctx context.Context, s *engineService) ([]*core.Transfer, error) {
	for _, account := range ec.order {
		payouts, err := s.farms.Settle(ctx, account, account.AffectedFarms())
		if err != nil {
			return nil, err
		}
		ec.transfers = append(ec.transfers, payouts...)
		account.ResetAffectedFarms()
	}
	if err := ec.cache.Flush(ctx); err != nil {
		return nil, err
	}
	for _, account := range ec.order {
		if err := s.accounts.Save(ctx, account); err != nil {
			return nil, err
		}
	}
	return ec.transfers, nil
}
