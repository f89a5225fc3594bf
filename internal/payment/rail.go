// Package payment adapts the external payment rail to the ledger: once the
// rail confirms a base-currency transfer from an address, the engine
// credits that address with the transfer converted at a configured rate.
package payment

import (
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"
)

// ErrInvalidTransfer is returned for non-positive transfer amounts.
var ErrInvalidTransfer = errors.New("payment: transfer amount must be positive")

// DefaultConversionRate credits 100 ledger units per base-currency unit.
var DefaultConversionRate = decimal.NewFromInt(100)

// Depositor is the ledger-facing half of the rail.
type Depositor interface {
	Deposit(address string, amount decimal.Decimal) error
}

// Rail converts confirmed base-currency transfers into ledger credits.
// The exchange rate is fixed at construction and pluggable via config.
type Rail struct {
	dep  Depositor
	rate decimal.Decimal
}

// NewRail creates a rail crediting at the given rate. A non-positive rate
// selects DefaultConversionRate.
func NewRail(dep Depositor, rate decimal.Decimal) *Rail {
	if !rate.IsPositive() {
		rate = DefaultConversionRate
	}
	return &Rail{dep: dep, rate: rate}
}

// Rate returns the configured conversion rate.
func (r *Rail) Rate() decimal.Decimal { return r.rate }

// ConfirmTransfer credits baseAmount × rate to the address and returns the
// credited ledger amount.
func (r *Rail) ConfirmTransfer(address string, baseAmount decimal.Decimal) (decimal.Decimal, error) {
	if !baseAmount.IsPositive() {
		return decimal.Zero, ErrInvalidTransfer
	}
	credit := baseAmount.Mul(r.rate)
	if err := r.dep.Deposit(address, credit); err != nil {
		return decimal.Zero, err
	}
	slog.Info("transfer credited",
		"address", address,
		"base_amount", baseAmount.String(),
		"credited", credit.String(),
	)
	return credit, nil
}
