package core

import (
	"context"
	"strings"
)

// NFTDelimiter separates contract id and token id in account NFT keys.
const NFTDelimiter = ":"

// NFTKey account-side key of one NFT collateral entry.
func NFTKey(nftContractID, nftTokenID string) string {
	return nftContractID + NFTDelimiter + nftTokenID
}

// AccountNFTAsset one NFT held as collateral by the account.
type AccountNFTAsset struct {
	NFTContractID string `json:"nft_contract_id"`
	NFTTokenID    string `json:"nft_token_id"`
	DepositTime   int64  `json:"deposit_time"`
}

// BoosterStaking carries the booster-token stake attached to an account. The
// staking mechanics live outside this ledger; the record is kept so farm
// settlement can read the staked amounts.
type BoosterStaking struct {
	StakedBoosterAmount Balance `json:"staked_booster_amount"`
	XBoosterAmount      Balance `json:"x_booster_amount"`
	UnlockTime          int64   `json:"unlock_time"`
}

// Account per-user position ledger: share balances per token on both sides,
// NFT collateral, and farm-reward bookkeeping.
type Account struct {
	AccountID string `json:"account_id"`
	// Supplied and Borrowed map token id to pool shares. A token never
	// appears with zero shares; the entry is removed when drained.
	Supplied    map[string]Balance          `json:"supplied"`
	Borrowed    map[string]Balance          `json:"borrowed"`
	NFTSupplied map[string]*AccountNFTAsset `json:"nft_supplied,omitempty"`
	Farms       map[FarmID]*AccountFarm     `json:"farms,omitempty"`
	Booster     *BoosterStaking             `json:"booster_staking,omitempty"`

	// affectedFarms accumulates farms touched during the current batch; it
	// is transient and reset by settlement.
	affectedFarms map[FarmID]bool
}

// NewAccount registers an empty account.
func NewAccount(accountID string) *Account {
	return &Account{
		AccountID:   accountID,
		Supplied:    make(map[string]Balance),
		Borrowed:    make(map[string]Balance),
		NFTSupplied: make(map[string]*AccountNFTAsset),
		Farms:       make(map[FarmID]*AccountFarm),
	}
}

// Clone deep-copies the account, including the affected-farm set.
func (a *Account) Clone() *Account {
	dup := NewAccount(a.AccountID)
	for k, v := range a.Supplied {
		dup.Supplied[k] = v
	}
	for k, v := range a.Borrowed {
		dup.Borrowed[k] = v
	}
	for k, v := range a.NFTSupplied {
		nft := *v
		dup.NFTSupplied[k] = &nft
	}
	for k, v := range a.Farms {
		dup.Farms[k] = v.Clone()
	}
	if a.Booster != nil {
		b := *a.Booster
		dup.Booster = &b
	}
	if a.affectedFarms != nil {
		dup.affectedFarms = make(map[FarmID]bool, len(a.affectedFarms))
		for k := range a.affectedFarms {
			dup.affectedFarms[k] = true
		}
	}
	return dup
}

// GetSuppliedShares shares of the supplied pool held for a token.
func (a *Account) GetSuppliedShares(tokenID string) Balance {
	return a.Supplied[tokenID]
}

// GetBorrowedShares shares of the borrowed pool owed for a token.
func (a *Account) GetBorrowedShares(tokenID string) Balance {
	return a.Borrowed[tokenID]
}

// IncreaseSupplied adds supplied shares for a token.
func (a *Account) IncreaseSupplied(tokenID string, shares Balance) {
	a.Supplied[tokenID] = a.Supplied[tokenID].Add(shares)
}

// DecreaseSupplied removes supplied shares, dropping the entry when drained.
func (a *Account) DecreaseSupplied(tokenID string, shares Balance) error {
	current, ok := a.Supplied[tokenID]
	if !ok {
		return ErrSuppliedNotFound
	}
	rest, ok := current.Sub(shares)
	if !ok {
		return ErrNotEnoughSuppliedBalance
	}
	if rest.IsZero() {
		delete(a.Supplied, tokenID)
	} else {
		a.Supplied[tokenID] = rest
	}
	return nil
}

// IncreaseBorrowed adds borrowed shares for a token.
func (a *Account) IncreaseBorrowed(tokenID string, shares Balance) {
	a.Borrowed[tokenID] = a.Borrowed[tokenID].Add(shares)
}

// DecreaseBorrowed removes borrowed shares, dropping the entry when drained.
func (a *Account) DecreaseBorrowed(tokenID string, shares Balance) error {
	current, ok := a.Borrowed[tokenID]
	if !ok {
		return ErrBorrowedNotFound
	}
	rest, ok := current.Sub(shares)
	if !ok {
		return ErrNotEnoughBorrowedBalance
	}
	if rest.IsZero() {
		delete(a.Borrowed, tokenID)
	} else {
		a.Borrowed[tokenID] = rest
	}
	return nil
}

// UnwrapBorrowed returns the borrowed shares for a token, erroring when the
// account has no debt in it.
func (a *Account) UnwrapBorrowed(tokenID string) (Balance, error) {
	shares, ok := a.Borrowed[tokenID]
	if !ok {
		return Balance{}, ErrBorrowedNotFound
	}
	return shares, nil
}

// UnwrapSupplied returns the supplied shares for a token, erroring when the
// account holds none.
func (a *Account) UnwrapSupplied(tokenID string) (Balance, error) {
	shares, ok := a.Supplied[tokenID]
	if !ok {
		return Balance{}, ErrSuppliedNotFound
	}
	return shares, nil
}

// SetNFT records an NFT collateral entry.
func (a *Account) SetNFT(nft *AccountNFTAsset) {
	if a.NFTSupplied == nil {
		a.NFTSupplied = make(map[string]*AccountNFTAsset)
	}
	a.NFTSupplied[NFTKey(nft.NFTContractID, nft.NFTTokenID)] = nft
}

// GetNFT looks an NFT collateral entry up by contract and token id.
func (a *Account) GetNFT(nftContractID, nftTokenID string) (*AccountNFTAsset, bool) {
	nft, ok := a.NFTSupplied[NFTKey(nftContractID, nftTokenID)]
	return nft, ok
}

// RemoveNFT drops an NFT collateral entry.
func (a *Account) RemoveNFT(nftContractID, nftTokenID string) {
	delete(a.NFTSupplied, NFTKey(nftContractID, nftTokenID))
}

// CountNFTSupplied number of NFTs held under one contract, used as the raw
// farm shares of a SuppliedNFT farm.
func (a *Account) CountNFTSupplied(nftContractID string) uint64 {
	var n uint64
	for key := range a.NFTSupplied {
		if strings.HasPrefix(key, nftContractID+NFTDelimiter) {
			n++
		}
	}
	return n
}

// AddAffectedFarm marks a farm for settlement at the end of the batch.
// Returns false when the farm was already marked.
func (a *Account) AddAffectedFarm(id FarmID) bool {
	if a.affectedFarms == nil {
		a.affectedFarms = make(map[FarmID]bool)
	}
	if a.affectedFarms[id] {
		return false
	}
	a.affectedFarms[id] = true
	return true
}

// AffectedFarms snapshot of the farms touched so far.
func (a *Account) AffectedFarms() []FarmID {
	ids := make([]FarmID, 0, len(a.affectedFarms))
	for id := range a.affectedFarms {
		ids = append(ids, id)
	}
	return ids
}

// ResetAffectedFarms clears the affected set after settlement.
func (a *Account) ResetAffectedFarms() {
	a.affectedFarms = nil
}

// GetAllPotentialFarms every farm the account's current positions could be
// enrolled in, whether or not it is tracked yet.
func (a *Account) GetAllPotentialFarms() []FarmID {
	seen := make(map[FarmID]bool)
	ids := make([]FarmID, 0, len(a.Supplied)+len(a.Borrowed))
	add := func(id FarmID) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for tokenID := range a.Supplied {
		add(FarmID{Kind: FarmSupplied, TokenID: tokenID})
	}
	for tokenID := range a.Borrowed {
		add(FarmID{Kind: FarmBorrowed, TokenID: tokenID})
	}
	for _, nft := range a.NFTSupplied {
		add(FarmID{Kind: FarmSuppliedNFT, TokenID: nft.NFTContractID})
	}
	return ids
}

// NumPositions distinct tokens held across both sides, checked against the
// configured asset cap after a borrow.
func (a *Account) NumPositions() int {
	return len(a.Supplied) + len(a.Borrowed)
}

// IAccountStore account persistence boundary.
type IAccountStore interface {
	Save(ctx context.Context, account *Account) error
	Find(ctx context.Context, accountID string) (*Account, error)
	List(ctx context.Context, offset, limit int) ([]*Account, error)
}
