// Package cpmm implements the constant-product market maker (CPMM) used to
// price binary outcome markets.
//
// A market holds two share reserves (YES, NO). A bet adds the net amount to
// the opposite reserve and takes shares from the chosen reserve such that
// the product of the reserves is preserved net of fee:
//
//	k = poolKeep × poolSwap
//	newPoolSwap = poolSwap + netAmount
//	newPoolKeep = k / newPoolSwap
//	sharesOut   = poolKeep − newPoolKeep
//
// The implied YES price is always noShares / (yesShares + noShares), so
// yesPrice + noPrice = 1 holds at every observation point.
//
// All monetary values use shopspring/decimal — never float64 for money.
package cpmm

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/meme-clash/market-engine/internal/model"
)

var (
	// ErrInvalidAmount is returned when a quote is requested for a
	// non-positive gross amount.
	ErrInvalidAmount = errors.New("cpmm: bet amount must be positive")

	// ErrInsufficientLiquidity is returned when a quote would deplete or
	// invert a pool side. The naive formula only approaches zero
	// asymptotically, but decimal division precision makes an explicit
	// lower-bound check mandatory.
	ErrInsufficientLiquidity = errors.New("cpmm: trade would deplete pool reserve")

	// ErrInvalidFeeRate is returned when the fee rate is outside [0, 1).
	ErrInvalidFeeRate = errors.New("cpmm: fee rate must be in [0, 1)")
)

// PriceScale is the number of decimal places for displayed prices.
var PriceScale int32 = 8

// Quote is the full result of pricing one bet. The caller commits it to
// the market under the market's lock; the engine itself never mutates
// shared state.
type Quote struct {
	Fee         decimal.Decimal
	NetAmount   decimal.Decimal
	SharesOut   decimal.Decimal
	NewYes      decimal.Decimal
	NewNo       decimal.Decimal
	NewYesPrice decimal.Decimal
}

// Engine prices bets against a constant-product pool. It is stateless —
// pool reserves are passed as arguments, not stored.
type Engine struct {
	feeRate decimal.Decimal
}

// New creates a pricing engine charging the given protocol fee rate on
// every bet's gross amount.
func New(feeRate decimal.Decimal) (*Engine, error) {
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, ErrInvalidFeeRate
	}
	return &Engine{feeRate: feeRate}, nil
}

// FeeRate returns the protocol fee rate.
func (e *Engine) FeeRate() decimal.Decimal {
	return e.feeRate
}

// Quote prices a bet of grossAmount on the given side of a (yes, no) pool.
// It rejects non-positive amounts and any trade that would empty a
// reserve; on success the returned reserves keep yes × no constant net of
// the fee.
func (e *Engine) Quote(yesShares, noShares decimal.Decimal, side model.Side, grossAmount decimal.Decimal) (Quote, error) {
	if !grossAmount.IsPositive() {
		return Quote{}, ErrInvalidAmount
	}

	fee := grossAmount.Mul(e.feeRate)
	netAmount := grossAmount.Sub(fee)

	// poolKeep is the reserve of the side being bought, poolSwap the
	// opposite reserve receiving the net amount.
	poolKeep, poolSwap := yesShares, noShares
	if side == model.No {
		poolKeep, poolSwap = noShares, yesShares
	}

	k := poolKeep.Mul(poolSwap)
	newPoolSwap := poolSwap.Add(netAmount)
	newPoolKeep := k.Div(newPoolSwap)
	sharesOut := poolKeep.Sub(newPoolKeep)

	if !newPoolKeep.IsPositive() || sharesOut.GreaterThanOrEqual(poolKeep) {
		return Quote{}, ErrInsufficientLiquidity
	}

	// Recompute both reserves first, then derive the price from them.
	newYes, newNo := newPoolKeep, newPoolSwap
	if side == model.No {
		newYes, newNo = newPoolSwap, newPoolKeep
	}

	return Quote{
		Fee:         fee,
		NetAmount:   netAmount,
		SharesOut:   sharesOut,
		NewYes:      newYes,
		NewNo:       newNo,
		NewYesPrice: YesPrice(newYes, newNo),
	}, nil
}

// YesPrice returns the implied YES price for a (yes, no) pool:
// noShares / (yesShares + noShares), rounded to PriceScale.
func YesPrice(yesShares, noShares decimal.Decimal) decimal.Decimal {
	total := yesShares.Add(noShares)
	if !total.IsPositive() {
		return decimal.NewFromFloat(0.5)
	}
	return noShares.Div(total).Round(PriceScale)
}
