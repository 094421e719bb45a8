package core

import (
	"github.com/holiman/uint256"
)

// Pool is the share/amount exchange-rate ledger for one side (supply or
// borrow) of an asset. Share counts are stable across interest accrual; the
// amount grows, so the amount/shares rate is the value of one share.
type Pool struct {
	Amount Balance `json:"amount"`
	Shares Balance `json:"shares"`
}

// NewPool empty pool
func NewPool() Pool {
	return Pool{}
}

// mulDiv computes a * b / d with the product held in 256 bits. Rounds down,
// or up when roundUp is set and the division is inexact.
func mulDiv(a, b, d Balance, roundUp bool) Balance {
	var num, q, rem uint256.Int
	num.Mul(&a.Int, &b.Int)
	q.DivMod(&num, &d.Int, &rem)
	if roundUp && !rem.IsZero() {
		q.AddUint64(&q, 1)
	}
	return Balance{q}
}

// AmountToShares converts a token amount to pool shares at the current
// exchange rate. An empty pool converts 1:1. Rounding up mints more shares
// for the same amount, so the round direction must always be chosen against
// the requester.
func (p *Pool) AmountToShares(amount Balance, roundUp bool) Balance {
	if p.Shares.IsZero() {
		return amount
	}
	return mulDiv(p.Shares, amount, p.Amount, roundUp)
}

// SharesToAmount converts pool shares to a token amount at the current
// exchange rate. An empty pool converts 1:1.
func (p *Pool) SharesToAmount(shares Balance, roundUp bool) Balance {
	if p.Shares.IsZero() {
		return shares
	}
	return mulDiv(p.Amount, shares, p.Shares, roundUp)
}

// Deposit adds shares and amount to the pool.
func (p *Pool) Deposit(shares, amount Balance) {
	p.Shares = p.Shares.Add(shares)
	p.Amount = p.Amount.Add(amount)
}

// Withdraw removes shares and amount from the pool. Underflow on either side
// means the caller's accounting is broken, never a user error.
func (p *Pool) Withdraw(shares, amount Balance) error {
	s, ok := p.Shares.Sub(shares)
	if !ok {
		return ErrNotEnoughShares
	}
	a, ok := p.Amount.Sub(amount)
	if !ok {
		return ErrNotEnoughBalance
	}
	p.Shares, p.Amount = s, a
	return nil
}

// AssertInvariant reports a broken pool: outstanding shares backed by zero
// amount would make the exchange rate zero and every holder worthless.
func (p *Pool) AssertInvariant() error {
	if !p.Shares.IsZero() && p.Amount.IsZero() {
		return ErrPoolInvariant
	}
	return nil
}
