package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lever/pkg/number"
)

// eightPercentRate compounds to roughly 8% APR per millisecond.
var eightPercentRate = number.Decimal("1.000000000002440418608258400")

func testAssetConfig() AssetConfig {
	return AssetConfig{
		CanDeposit:            true,
		CanWithdraw:           true,
		CanBorrow:             true,
		CanUseAsCollateral:    true,
		ReserveRatio:          2500,
		VolatilityRatio:       9500,
		ExtraDecimals:         0,
		TargetUtilization:     8000,
		TargetUtilizationRate: eightPercentRate,
		MaxUtilizationRate:    number.Decimal("1.000000000039724853136740579"),
	}
}

func scale(n uint64) Balance {
	b, unit := NewBalance(n), Exp10(18)
	var r Balance
	r.Int.Mul(&b.Int, &unit.Int)
	return r
}

func TestAssetConfigValidate(t *testing.T) {
	cfg := testAssetConfig()
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.ReserveRatio = MaxRatio + 1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidAssetConfig)

	bad = cfg
	bad.TargetUtilization = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidAssetConfig)

	bad = cfg
	bad.MaxUtilizationRate = number.One
	assert.ErrorIs(t, bad.Validate(), ErrInvalidAssetConfig)
}

func TestAssetCompoundOneYear(t *testing.T) {
	begin := time.UnixMilli(1700000000000)
	asset := NewAsset("usd", begin, testAssetConfig())

	// 10,000 supplied, 8,000 borrowed: utilization sits exactly on the kink
	asset.Supplied = Pool{Amount: scale(10000), Shares: scale(10000)}
	asset.Borrowed = Pool{Amount: scale(8000), Shares: scale(8000)}

	oneYear := begin.Add(365 * 24 * time.Hour)
	require.NoError(t, asset.Update(oneYear))

	interest, ok := asset.Borrowed.Amount.Sub(scale(8000))
	require.True(t, ok)

	// ~8% of 8,000 = ~640
	assert.True(t, interest.GreaterThan(scale(632)), "interest %s", interest)
	assert.True(t, interest.LessThan(scale(648)), "interest %s", interest)

	// the reserve takes 25% of the interest, suppliers the rest
	expectedReserve := RatioOf(interest, 2500)
	assert.Zero(t, asset.Reserved.Cmp(expectedReserve))

	suppliedGain, ok := asset.Supplied.Amount.Sub(scale(10000))
	require.True(t, ok)
	total := suppliedGain.Add(asset.Reserved)
	assert.Zero(t, total.Cmp(interest), "interest must split exactly between suppliers and reserve")

	// share counts never change during accrual
	assert.Zero(t, asset.Supplied.Shares.Cmp(scale(10000)))
	assert.Zero(t, asset.Borrowed.Shares.Cmp(scale(8000)))

	assert.Equal(t, oneYear.UnixMilli(), asset.LastUpdateTime)
}

func TestAssetCompoundNoSuppliers(t *testing.T) {
	begin := time.UnixMilli(1700000000000)
	asset := NewAsset("usd", begin, testAssetConfig())

	// borrowed against reserve only, no supply shares outstanding
	asset.Reserved = scale(10000)
	asset.Borrowed = Pool{Amount: scale(8000), Shares: scale(8000)}

	require.NoError(t, asset.Update(begin.Add(30*24*time.Hour)))

	interest, ok := asset.Borrowed.Amount.Sub(scale(8000))
	require.True(t, ok)
	assert.False(t, interest.IsZero())

	// nobody to credit: the whole interest goes to the reserve
	reserveGain, ok := asset.Reserved.Sub(scale(10000))
	require.True(t, ok)
	assert.Zero(t, reserveGain.Cmp(interest))
	assert.True(t, asset.Supplied.Amount.IsZero())
}

func TestAssetUpdateIdempotent(t *testing.T) {
	begin := time.UnixMilli(1700000000000)
	asset := NewAsset("usd", begin, testAssetConfig())
	asset.Supplied = Pool{Amount: scale(100), Shares: scale(100)}
	asset.Borrowed = Pool{Amount: scale(50), Shares: scale(50)}

	now := begin.Add(time.Hour)
	require.NoError(t, asset.Update(now))
	snapshot := asset.Borrowed.Amount

	// a second update at the same instant accrues nothing
	require.NoError(t, asset.Update(now))
	assert.Zero(t, asset.Borrowed.Amount.Cmp(snapshot))

	// time never runs backwards for the ledger
	require.NoError(t, asset.Update(begin))
	assert.Zero(t, asset.Borrowed.Amount.Cmp(snapshot))
	assert.Equal(t, now.UnixMilli(), asset.LastUpdateTime)
}

func TestAssetInterestMonotone(t *testing.T) {
	begin := time.UnixMilli(1700000000000)
	prev := Balance{}
	for _, days := range []int{1, 7, 30, 180, 365} {
		asset := NewAsset("usd", begin, testAssetConfig())
		asset.Supplied = Pool{Amount: scale(10000), Shares: scale(10000)}
		asset.Borrowed = Pool{Amount: scale(8000), Shares: scale(8000)}

		require.NoError(t, asset.Update(begin.Add(time.Duration(days)*24*time.Hour)))
		assert.True(t, asset.Borrowed.Amount.GreaterThan(prev), "interest must grow with time")
		prev = asset.Borrowed.Amount
	}
}

func TestAssetAvailableAmount(t *testing.T) {
	asset := NewAsset("usd", time.UnixMilli(0), testAssetConfig())
	asset.Supplied = Pool{Amount: NewBalance(100), Shares: NewBalance(100)}
	asset.Reserved = NewBalance(20)
	asset.Borrowed = Pool{Amount: NewBalance(30), Shares: NewBalance(30)}

	avail, err := asset.AvailableAmount()
	require.NoError(t, err)
	assert.Equal(t, "90", avail.String())

	asset.Borrowed.Amount = NewBalance(121)
	_, err = asset.AvailableAmount()
	assert.ErrorIs(t, err, ErrNegativeAvailable)
}

func TestAssetNFTPool(t *testing.T) {
	asset := NewAsset("punks", time.UnixMilli(0), testAssetConfig())
	t0 := time.UnixMilli(1000)

	asset.SetNFT("alice", "7", t0)
	owner, ok := asset.GetNFTOwner("7")
	require.True(t, ok)
	assert.Equal(t, "alice", owner)

	// re-owning keeps the original deposit time
	asset.SetNFT("bob", "7", time.UnixMilli(9000))
	owner, ok = asset.GetNFTOwner("7")
	require.True(t, ok)
	assert.Equal(t, "bob", owner)
	require.Len(t, asset.NFTSupplied, 1)
	assert.Equal(t, int64(1000), asset.NFTSupplied[0].DepositTime)

	asset.RemoveNFT("7")
	_, ok = asset.GetNFTOwner("7")
	assert.False(t, ok)
}

func TestAssetNormalize(t *testing.T) {
	asset := NewAsset("usd", time.UnixMilli(0), testAssetConfig())

	// residual amount with no shares sweeps into the reserve
	asset.Supplied = Pool{Amount: NewBalance(5)}
	require.NoError(t, asset.Normalize())
	assert.True(t, asset.Supplied.Amount.IsZero())
	assert.Equal(t, "5", asset.Reserved.String())

	asset.Borrowed = Pool{Amount: NewBalance(1)}
	assert.ErrorIs(t, asset.Normalize(), ErrBorrowedInvariant)
}

func TestAssetClone(t *testing.T) {
	asset := NewAsset("usd", time.UnixMilli(0), testAssetConfig())
	asset.SetNFT("alice", "1", time.UnixMilli(1))

	dup := asset.Clone()
	dup.Supplied.Amount = NewBalance(99)
	dup.NFTSupplied[0].OwnerID = "mallory"

	assert.True(t, asset.Supplied.Amount.IsZero())
	assert.Equal(t, "alice", asset.NFTSupplied[0].OwnerID)
}
