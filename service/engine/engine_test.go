package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lever/core"
	"lever/pkg/number"
)

type memAssetStore struct {
	assets map[string]*core.Asset
}

func newMemAssetStore() *memAssetStore {
	return &memAssetStore{assets: make(map[string]*core.Asset)}
}

func (s *memAssetStore) Save(ctx context.Context, asset *core.Asset) error {
	s.assets[asset.TokenID] = asset.Clone()
	return nil
}

func (s *memAssetStore) Find(ctx context.Context, tokenID string) (*core.Asset, error) {
	asset, ok := s.assets[tokenID]
	if !ok {
		return nil, core.ErrAssetNotFound
	}
	return asset.Clone(), nil
}

func (s *memAssetStore) All(ctx context.Context) ([]*core.Asset, error) {
	assets := make([]*core.Asset, 0, len(s.assets))
	for _, asset := range s.assets {
		assets = append(assets, asset.Clone())
	}
	return assets, nil
}

type memAccountStore struct {
	accounts map[string]*core.Account
}

func newMemAccountStore() *memAccountStore {
	return &memAccountStore{accounts: make(map[string]*core.Account)}
}

func (s *memAccountStore) Save(ctx context.Context, account *core.Account) error {
	s.accounts[account.AccountID] = account.Clone()
	return nil
}

func (s *memAccountStore) Find(ctx context.Context, accountID string) (*core.Account, error) {
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, core.ErrAccountNotFound
	}
	return account.Clone(), nil
}

func (s *memAccountStore) List(ctx context.Context, offset, limit int) ([]*core.Account, error) {
	return nil, nil
}

type nopFarmService struct{}

func (nopFarmService) Settle(ctx context.Context, account *core.Account, farmIDs []core.FarmID) ([]*core.Transfer, error) {
	return nil, nil
}

var testNow = time.UnixMilli(1700000000000)

func fungibleConfig(volatilityRatio uint32) core.AssetConfig {
	return core.AssetConfig{
		CanDeposit:            true,
		CanWithdraw:           true,
		CanBorrow:             true,
		CanUseAsCollateral:    true,
		ReserveRatio:          2500,
		VolatilityRatio:       volatilityRatio,
		TargetUtilization:     8000,
		TargetUtilizationRate: number.Decimal("1.000000000002440418608258400"),
		MaxUtilizationRate:    number.Decimal("1.000000000039724853136740579"),
	}
}

func testEngine(t *testing.T) (core.IEngine, *memAssetStore, *memAccountStore) {
	t.Helper()

	assets := newMemAssetStore()
	accounts := newMemAccountStore()
	cfg := &core.Config{
		Ledger: core.Ledger{
			MaxNumAssets:        4,
			ForceClosingEnabled: true,
		},
	}
	eng := NewWithClock(cfg, assets, accounts, nopFarmService{}, func() time.Time { return testNow })
	return eng, assets, accounts
}

func usdPrice() core.Prices {
	return core.Prices{
		"usd": {Multiplier: core.NewBalance(1), Decimals: 0},
	}
}

func addUSD(t *testing.T, assets *memAssetStore) {
	t.Helper()
	require.NoError(t, assets.Save(context.Background(), core.NewAsset("usd", testNow, fungibleConfig(9500))))
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	eng, assets, accounts := testEngine(t)
	addUSD(t, assets)

	_, err := eng.Deposit(ctx, "alice", "usd", core.NewBalance(1000))
	require.NoError(t, err)

	account, err := accounts.Find(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1000", account.GetSuppliedShares("usd").String())

	asset, err := assets.Find(ctx, "usd")
	require.NoError(t, err)
	assert.Equal(t, "1000", asset.Supplied.Amount.String())
	assert.Equal(t, "1000", asset.Supplied.Shares.String())

	t.Run("zero amount", func(t *testing.T) {
		_, err := eng.Deposit(ctx, "alice", "usd", core.Balance{})
		assert.ErrorIs(t, err, core.ErrZeroAmount)
	})

	t.Run("unknown asset", func(t *testing.T) {
		_, err := eng.Deposit(ctx, "alice", "btc", core.NewBalance(1))
		assert.ErrorIs(t, err, core.ErrAssetNotFound)
	})

	t.Run("deposits disabled", func(t *testing.T) {
		cfg := fungibleConfig(9500)
		cfg.CanDeposit = false
		require.NoError(t, assets.Save(ctx, core.NewAsset("locked", testNow, cfg)))

		_, err := eng.Deposit(ctx, "alice", "locked", core.NewBalance(1))
		assert.ErrorIs(t, err, core.ErrOperationForbidden)
	})
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	eng, assets, accounts := testEngine(t)
	addUSD(t, assets)

	_, err := eng.Deposit(ctx, "alice", "usd", core.NewBalance(1000))
	require.NoError(t, err)

	amount := core.NewBalance(400)
	transfers, err := eng.Execute(ctx, "alice", []core.Action{
		{Withdraw: &core.AssetAmount{TokenID: "usd", Amount: &amount}},
	}, usdPrice())
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "400", transfers[0].Amount.String())
	assert.Equal(t, "usd", transfers[0].TokenID)
	assert.NotEmpty(t, transfers[0].TraceID)

	account, err := accounts.Find(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "600", account.GetSuppliedShares("usd").String())

	t.Run("withdraw everything", func(t *testing.T) {
		transfers, err := eng.Execute(ctx, "alice", []core.Action{
			{Withdraw: &core.AssetAmount{TokenID: "usd"}},
		}, usdPrice())
		require.NoError(t, err)
		require.Len(t, transfers, 1)
		assert.Equal(t, "600", transfers[0].Amount.String())

		account, err := accounts.Find(ctx, "alice")
		require.NoError(t, err)
		_, err = account.UnwrapSupplied("usd")
		assert.ErrorIs(t, err, core.ErrSuppliedNotFound)
	})
}

func TestWithdrawWithoutDebtNeedsNoPrices(t *testing.T) {
	ctx := context.Background()
	eng, assets, accounts := testEngine(t)
	addUSD(t, assets)

	_, err := eng.Deposit(ctx, "alice", "usd", core.NewBalance(1000))
	require.NoError(t, err)

	// a debt-free account passes the risk check with an empty price snapshot
	amount := core.NewBalance(100)
	transfers, err := eng.Execute(ctx, "alice", []core.Action{
		{Withdraw: &core.AssetAmount{TokenID: "usd", Amount: &amount}},
	}, core.Prices{})
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "100", transfers[0].Amount.String())

	account, err := accounts.Find(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "900", account.GetSuppliedShares("usd").String())
}

func TestWithdrawExceedsLiquidity(t *testing.T) {
	ctx := context.Background()
	eng, assets, _ := testEngine(t)
	addUSD(t, assets)

	_, err := eng.Deposit(ctx, "alice", "usd", core.NewBalance(1000))
	require.NoError(t, err)

	amount := core.NewBalance(1500)
	_, err = eng.Execute(ctx, "alice", []core.Action{
		{Withdraw: &core.AssetAmount{TokenID: "usd", Amount: &amount}},
	}, usdPrice())
	assert.ErrorIs(t, err, core.ErrExceededAvailable)
}

func TestExecuteAtomicity(t *testing.T) {
	ctx := context.Background()
	eng, assets, accounts := testEngine(t)
	addUSD(t, assets)

	_, err := eng.Deposit(ctx, "alice", "usd", core.NewBalance(1000))
	require.NoError(t, err)

	// the first action would succeed; the second fails, so nothing may stick
	amount := core.NewBalance(400)
	_, err = eng.Execute(ctx, "alice", []core.Action{
		{Withdraw: &core.AssetAmount{TokenID: "usd", Amount: &amount}},
		{Borrow: &core.AssetAmount{TokenID: "nope", Amount: &amount}},
	}, usdPrice())
	require.Error(t, err)

	account, err := accounts.Find(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1000", account.GetSuppliedShares("usd").String())

	asset, err := assets.Find(ctx, "usd")
	require.NoError(t, err)
	assert.Equal(t, "1000", asset.Supplied.Amount.String())
}

func TestBorrow(t *testing.T) {
	ctx := context.Background()
	eng, assets, accounts := testEngine(t)
	addUSD(t, assets)

	_, err := eng.Deposit(ctx, "alice", "usd", core.NewBalance(10000))
	require.NoError(t, err)
	_, err = eng.Deposit(ctx, "bob", "usd", core.NewBalance(10000))
	require.NoError(t, err)

	amount := core.NewBalance(1000)
	_, err = eng.Execute(ctx, "bob", []core.Action{
		{Borrow: &core.AssetAmount{TokenID: "usd", Amount: &amount}},
	}, usdPrice())
	require.NoError(t, err)

	account, err := accounts.Find(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "1000", account.GetBorrowedShares("usd").String())
	// borrowed funds stay inside the protocol as new supplied shares
	assert.Equal(t, "11000", account.GetSuppliedShares("usd").String())

	asset, err := assets.Find(ctx, "usd")
	require.NoError(t, err)
	assert.Equal(t, "1000", asset.Borrowed.Amount.String())
	assert.Equal(t, "21000", asset.Supplied.Amount.String())
}

func TestBorrowUnhealthy(t *testing.T) {
	ctx := context.Background()
	eng, assets, _ := testEngine(t)
	addUSD(t, assets)

	_, err := eng.Deposit(ctx, "alice", "usd", core.NewBalance(10000))
	require.NoError(t, err)
	_, err = eng.Deposit(ctx, "bob", "usd", core.NewBalance(1000))
	require.NoError(t, err)

	// collateral 1000 * 0.95 can't cover 5000 / 0.95 of debt
	amount := core.NewBalance(5000)
	_, err = eng.Execute(ctx, "bob", []core.Action{
		{Borrow: &core.AssetAmount{TokenID: "usd", Amount: &amount}},
	}, usdPrice())
	assert.ErrorIs(t, err, core.ErrAccountUnhealthy)
}

func TestBorrowTooManyAssets(t *testing.T) {
	ctx := context.Background()
	eng, assets, accounts := testEngine(t)
	addUSD(t, assets)

	_, err := eng.Deposit(ctx, "bob", "usd", core.NewBalance(10000))
	require.NoError(t, err)

	// with the cap at one position a borrow always pushes past it
	cfg := &core.Config{Ledger: core.Ledger{MaxNumAssets: 1}}
	strict := NewWithClock(cfg, assets, accounts, nopFarmService{}, func() time.Time { return testNow })

	amount := core.NewBalance(100)
	_, err = strict.Execute(ctx, "bob", []core.Action{
		{Borrow: &core.AssetAmount{TokenID: "usd", Amount: &amount}},
	}, usdPrice())
	assert.ErrorIs(t, err, core.ErrTooManyAssets)
}

func TestRepay(t *testing.T) {
	ctx := context.Background()
	eng, assets, accounts := testEngine(t)
	addUSD(t, assets)

	_, err := eng.Deposit(ctx, "alice", "usd", core.NewBalance(10000))
	require.NoError(t, err)
	_, err = eng.Deposit(ctx, "bob", "usd", core.NewBalance(10000))
	require.NoError(t, err)

	borrow := core.NewBalance(1000)
	_, err = eng.Execute(ctx, "bob", []core.Action{
		{Borrow: &core.AssetAmount{TokenID: "usd", Amount: &borrow}},
	}, usdPrice())
	require.NoError(t, err)

	repay := core.NewBalance(400)
	_, err = eng.Execute(ctx, "bob", []core.Action{
		{Repay: &core.AssetAmount{TokenID: "usd", Amount: &repay}},
	}, usdPrice())
	require.NoError(t, err)

	account, err := accounts.Find(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "600", account.GetBorrowedShares("usd").String())
	assert.Equal(t, "10600", account.GetSuppliedShares("usd").String())

	t.Run("repay everything", func(t *testing.T) {
		_, err := eng.Execute(ctx, "bob", []core.Action{
			{Repay: &core.AssetAmount{TokenID: "usd"}},
		}, usdPrice())
		require.NoError(t, err)

		account, err := accounts.Find(ctx, "bob")
		require.NoError(t, err)
		_, err = account.UnwrapBorrowed("usd")
		assert.ErrorIs(t, err, core.ErrBorrowedNotFound)
	})

	t.Run("nothing to repay", func(t *testing.T) {
		_, err := eng.Execute(ctx, "alice", []core.Action{
			{Repay: &core.AssetAmount{TokenID: "usd"}},
		}, usdPrice())
		assert.ErrorIs(t, err, core.ErrBorrowedNotFound)
	})
}

func TestRepayClamp(t *testing.T) {
	ctx := context.Background()
	eng, assets, accounts := testEngine(t)
	addUSD(t, assets)

	// bob owes more than his supplied balance can cover
	asset, err := assets.Find(ctx, "usd")
	require.NoError(t, err)
	asset.Supplied.Deposit(core.NewBalance(300), core.NewBalance(300))
	asset.Borrowed.Deposit(core.NewBalance(1000), core.NewBalance(1000))
	asset.Reserved = core.NewBalance(2000)
	require.NoError(t, assets.Save(ctx, asset))

	bob := core.NewAccount("bob")
	bob.IncreaseSupplied("usd", core.NewBalance(300))
	bob.IncreaseBorrowed("usd", core.NewBalance(1000))
	require.NoError(t, accounts.Save(ctx, bob))

	t.Run("repay all clamps to supplied", func(t *testing.T) {
		_, err := eng.Execute(ctx, "bob", []core.Action{
			{Repay: &core.AssetAmount{TokenID: "usd"}},
		}, usdPrice())
		require.NoError(t, err)

		account, err := accounts.Find(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, "700", account.GetBorrowedShares("usd").String())
		_, err = account.UnwrapSupplied("usd")
		assert.ErrorIs(t, err, core.ErrSuppliedNotFound)
	})
}

func TestRepayExplicitUnaffordable(t *testing.T) {
	ctx := context.Background()
	eng, assets, accounts := testEngine(t)
	addUSD(t, assets)

	asset, err := assets.Find(ctx, "usd")
	require.NoError(t, err)
	asset.Supplied.Deposit(core.NewBalance(300), core.NewBalance(300))
	asset.Borrowed.Deposit(core.NewBalance(1000), core.NewBalance(1000))
	asset.Reserved = core.NewBalance(2000)
	require.NoError(t, assets.Save(ctx, asset))

	bob := core.NewAccount("bob")
	bob.IncreaseSupplied("usd", core.NewBalance(300))
	bob.IncreaseBorrowed("usd", core.NewBalance(1000))
	require.NoError(t, accounts.Save(ctx, bob))

	// an explicit amount beyond the supplied balance must fail, not clamp
	amount := core.NewBalance(1000)
	_, err = eng.Execute(ctx, "bob", []core.Action{
		{Repay: &core.AssetAmount{TokenID: "usd", Amount: &amount}},
	}, usdPrice())
	assert.ErrorIs(t, err, core.ErrNotEnoughSuppliedBalance)
}

// seedRiskyTarget stores a usd market where bob is under water: 100 supplied
// against 95 borrowed, which the volatility haircut pushes below break-even.
func seedRiskyTarget(t *testing.T, assets *memAssetStore, accounts *memAccountStore) {
	t.Helper()
	ctx := context.Background()

	asset, err := assets.Find(ctx, "usd")
	require.NoError(t, err)
	asset.Supplied.Deposit(core.NewBalance(150), core.NewBalance(150))
	asset.Borrowed.Deposit(core.NewBalance(95), core.NewBalance(95))
	asset.Reserved = core.NewBalance(1000)
	require.NoError(t, assets.Save(ctx, asset))

	bob := core.NewAccount("bob")
	bob.IncreaseSupplied("usd", core.NewBalance(100))
	bob.IncreaseBorrowed("usd", core.NewBalance(95))
	require.NoError(t, accounts.Save(ctx, bob))

	carol := core.NewAccount("carol")
	carol.IncreaseSupplied("usd", core.NewBalance(50))
	require.NoError(t, accounts.Save(ctx, carol))
}

func TestLiquidate(t *testing.T) {
	ctx := context.Background()
	eng, assets, accounts := testEngine(t)
	addUSD(t, assets)
	seedRiskyTarget(t, assets, accounts)

	in := core.NewBalance(10)
	out := core.NewBalance(10)
	_, err := eng.Execute(ctx, "carol", []core.Action{
		{Liquidate: &core.LiquidationCall{
			AccountID: "bob",
			InAssets:  []core.AssetAmount{{TokenID: "usd", Amount: &in}},
			OutAssets: []core.AssetAmount{{TokenID: "usd", Amount: &out}},
		}},
	}, usdPrice())
	require.NoError(t, err)

	bob, err := accounts.Find(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "85", bob.GetBorrowedShares("usd").String())
	assert.Equal(t, "90", bob.GetSuppliedShares("usd").String())

	carol, err := accounts.Find(ctx, "carol")
	require.NoError(t, err)
	// 10 supplied shares burned on repay, 10 seized from bob
	assert.Equal(t, "50", carol.GetSuppliedShares("usd").String())
}

func TestLiquidateRejections(t *testing.T) {
	ctx := context.Background()
	eng, assets, accounts := testEngine(t)
	addUSD(t, assets)
	seedRiskyTarget(t, assets, accounts)

	in := core.NewBalance(10)
	call := func(target string, in, out core.Balance) []core.Action {
		return []core.Action{
			{Liquidate: &core.LiquidationCall{
				AccountID: target,
				InAssets:  []core.AssetAmount{{TokenID: "usd", Amount: &in}},
				OutAssets: []core.AssetAmount{{TokenID: "usd", Amount: &out}},
			}},
		}
	}

	t.Run("self liquidation", func(t *testing.T) {
		_, err := eng.Execute(ctx, "carol", call("carol", in, in), usdPrice())
		assert.ErrorIs(t, err, core.ErrSelfLiquidation)
	})

	t.Run("empty lists", func(t *testing.T) {
		_, err := eng.Execute(ctx, "carol", []core.Action{
			{Liquidate: &core.LiquidationCall{AccountID: "bob"}},
		}, usdPrice())
		assert.ErrorIs(t, err, core.ErrEmptyLiquidation)
	})

	t.Run("healthy target", func(t *testing.T) {
		_, err := eng.Execute(ctx, "bob", call("carol", in, in), usdPrice())
		assert.ErrorIs(t, err, core.ErrAccountNotAtRisk)
	})

	t.Run("taking more than repaid", func(t *testing.T) {
		_, err := eng.Execute(ctx, "carol", call("bob", core.NewBalance(10), core.NewBalance(11)), usdPrice())
		assert.ErrorIs(t, err, core.ErrRepaidTooLittle)
	})

	t.Run("over liquidation", func(t *testing.T) {
		// wiping the whole debt would leave the target fully healthy
		_, err := eng.Execute(ctx, "carol", call("bob", core.NewBalance(50), core.NewBalance(45)), usdPrice())
		assert.ErrorIs(t, err, core.ErrLiquidationTooLarge)
	})
}

func TestForceClose(t *testing.T) {
	ctx := context.Background()
	eng, assets, accounts := testEngine(t)
	addUSD(t, assets)

	// bob's collateral is worth less than his debt at face value
	asset, err := assets.Find(ctx, "usd")
	require.NoError(t, err)
	asset.Supplied.Deposit(core.NewBalance(50), core.NewBalance(50))
	asset.Borrowed.Deposit(core.NewBalance(95), core.NewBalance(95))
	asset.Reserved = core.NewBalance(200)
	require.NoError(t, assets.Save(ctx, asset))

	bob := core.NewAccount("bob")
	bob.IncreaseSupplied("usd", core.NewBalance(50))
	bob.IncreaseBorrowed("usd", core.NewBalance(95))
	require.NoError(t, accounts.Save(ctx, bob))

	admin := core.NewAccount("admin")
	require.NoError(t, accounts.Save(ctx, admin))

	_, err = eng.Execute(ctx, "admin", []core.Action{
		{ForceClose: &core.ForceCloseCall{AccountID: "bob"}},
	}, usdPrice())
	require.NoError(t, err)

	bob, err = accounts.Find(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, bob.NumPositions())

	asset, err = assets.Find(ctx, "usd")
	require.NoError(t, err)
	assert.True(t, asset.Supplied.Amount.IsZero())
	assert.True(t, asset.Borrowed.Amount.IsZero())
	// reserve gains the collateral and pays the debt: 200 + 50 - 95
	assert.Equal(t, "155", asset.Reserved.String())
}

func TestForceCloseRejections(t *testing.T) {
	ctx := context.Background()
	eng, assets, accounts := testEngine(t)
	addUSD(t, assets)
	seedRiskyTarget(t, assets, accounts)

	t.Run("not bad debt", func(t *testing.T) {
		// bob is at risk but his raw collateral still covers the debt
		_, err := eng.Execute(ctx, "carol", []core.Action{
			{ForceClose: &core.ForceCloseCall{AccountID: "bob"}},
		}, usdPrice())
		assert.ErrorIs(t, err, core.ErrNotBadDebt)
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := &core.Config{Ledger: core.Ledger{MaxNumAssets: 4}}
		disabled := NewWithClock(cfg, assets, accounts, nopFarmService{}, func() time.Time { return testNow })

		_, err := disabled.Execute(ctx, "carol", []core.Action{
			{ForceClose: &core.ForceCloseCall{AccountID: "bob"}},
		}, usdPrice())
		assert.ErrorIs(t, err, core.ErrOperationForbidden)
	})
}

func TestAddAndUpdateAsset(t *testing.T) {
	ctx := context.Background()
	assets := newMemAssetStore()
	accounts := newMemAccountStore()
	cfg := &core.Config{
		Ledger: core.Ledger{
			MaxNumAssets: 4,
			Admins:       []string{"admin"},
		},
	}
	eng := NewWithClock(cfg, assets, accounts, nopFarmService{}, func() time.Time { return testNow })

	require.NoError(t, eng.AddAsset(ctx, "admin", "usd", fungibleConfig(9500)))

	t.Run("not admin", func(t *testing.T) {
		assert.ErrorIs(t, eng.AddAsset(ctx, "mallory", "btc", fungibleConfig(9500)), core.ErrNotOwner)
		assert.ErrorIs(t, eng.UpdateAsset(ctx, "mallory", "usd", fungibleConfig(9500)), core.ErrNotOwner)
	})

	t.Run("duplicate", func(t *testing.T) {
		assert.ErrorIs(t, eng.AddAsset(ctx, "admin", "usd", fungibleConfig(9500)), core.ErrAssetExists)
	})

	t.Run("invalid config", func(t *testing.T) {
		bad := fungibleConfig(9500)
		bad.TargetUtilization = 0
		assert.ErrorIs(t, eng.AddAsset(ctx, "admin", "btc", bad), core.ErrInvalidAssetConfig)
	})

	t.Run("update", func(t *testing.T) {
		updated := fungibleConfig(9000)
		updated.CanBorrow = false
		require.NoError(t, eng.UpdateAsset(ctx, "admin", "usd", updated))

		asset, err := assets.Find(ctx, "usd")
		require.NoError(t, err)
		assert.False(t, asset.Config.CanBorrow)
		assert.Equal(t, uint32(9000), asset.Config.VolatilityRatio)
	})

	t.Run("update unknown", func(t *testing.T) {
		assert.ErrorIs(t, eng.UpdateAsset(ctx, "admin", "eth", fungibleConfig(9500)), core.ErrAssetNotFound)
	})
}
