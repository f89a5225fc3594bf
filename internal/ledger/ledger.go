// Package ledger tracks per-address collateral balances and pending
// creator rewards.
//
// Each address gets its own lock so balance and reward mutations for one
// address are atomic with respect to each other, while different addresses
// proceed fully in parallel. Entries are created lazily on first credit
// and persist indefinitely — zero is a valid state, not a deleted one.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/meme-clash/market-engine/internal/model"
)

var (
	// ErrInvalidAmount is returned for non-positive deposit/withdraw amounts.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")

	// ErrInsufficientBalance is returned when a withdrawal exceeds the
	// address's balance. No mutation occurs.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
)

// account holds one address's funds behind its own lock.
type account struct {
	mu      sync.Mutex
	balance decimal.Decimal
	reward  decimal.Decimal
}

// Ledger is the per-address balance and pending-reward store.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account
	notify   func(model.Account)
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{accounts: make(map[string]*account)}
}

// OnCommit registers a hook invoked with the account snapshot after every
// successful mutation, while the account lock is still held. Hook calls
// for one address therefore arrive in commit order. Set once at startup,
// before the ledger is shared.
func (l *Ledger) OnCommit(fn func(model.Account)) {
	l.notify = fn
}

// committed snapshots the account and fires the hook. Caller holds a.mu.
func (l *Ledger) committed(address string, a *account) {
	if l.notify != nil {
		l.notify(model.Account{Address: address, Balance: a.balance, Reward: a.reward})
	}
}

// get returns the account for an address, creating it lazily.
func (l *Ledger) get(address string) *account {
	l.mu.RLock()
	a, ok := l.accounts[address]
	l.mu.RUnlock()
	if ok {
		return a
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok = l.accounts[address]; ok {
		return a
	}
	a = &account{}
	l.accounts[address] = a
	return a
}

// BalanceOf returns the current balance, zero for unknown addresses.
func (l *Ledger) BalanceOf(address string) decimal.Decimal {
	l.mu.RLock()
	a, ok := l.accounts[address]
	l.mu.RUnlock()
	if !ok {
		return decimal.Zero
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// PendingReward returns the unclaimed creator reward, zero for unknown
// addresses.
func (l *Ledger) PendingReward(address string) decimal.Decimal {
	l.mu.RLock()
	a, ok := l.accounts[address]
	l.mu.RUnlock()
	if !ok {
		return decimal.Zero
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reward
}

// Deposit credits amount to the address's balance.
func (l *Ledger) Deposit(address string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	a := l.get(address)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance = a.balance.Add(amount)
	l.committed(address, a)
	return nil
}

// Withdraw debits exactly amount from the address's balance, or fails with
// ErrInsufficientBalance leaving the balance unchanged.
func (l *Ledger) Withdraw(address string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	a := l.get(address)
	a.mu.Lock()
	defer a.mu.Unlock()
	if amount.GreaterThan(a.balance) {
		return ErrInsufficientBalance
	}
	a.balance = a.balance.Sub(amount)
	l.committed(address, a)
	return nil
}

// CreditReward adds a creator rebate to the address's pending rewards.
// Called only by the trade pipeline, after the fee split.
func (l *Ledger) CreditReward(address string, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	a := l.get(address)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reward = a.reward.Add(amount)
	l.committed(address, a)
}

// ClaimRewards atomically zeroes the pending reward and credits the same
// amount to the balance, returning the claimed amount. A claim with
// nothing pending returns zero and changes nothing. The account lock makes
// the claim atomic with respect to concurrent CreditReward calls: a reward
// added mid-claim is never lost or double-counted.
func (l *Ledger) ClaimRewards(address string) decimal.Decimal {
	l.mu.RLock()
	a, ok := l.accounts[address]
	l.mu.RUnlock()
	if !ok {
		return decimal.Zero
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.reward.IsPositive() {
		return decimal.Zero
	}
	claimed := a.reward
	a.reward = decimal.Zero
	a.balance = a.balance.Add(claimed)
	l.committed(address, a)
	return claimed
}

// Restore seeds an account from a persisted snapshot. Used only at startup
// before the ledger is shared.
func (l *Ledger) Restore(acct model.Account) {
	a := l.get(acct.Address)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance = acct.Balance
	a.reward = acct.Reward
}

// Snapshot returns the persisted view of one address.
func (l *Ledger) Snapshot(address string) model.Account {
	l.mu.RLock()
	a, ok := l.accounts[address]
	l.mu.RUnlock()
	if !ok {
		return model.Account{Address: address, Balance: decimal.Zero, Reward: decimal.Zero}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return model.Account{Address: address, Balance: a.balance, Reward: a.reward}
}
