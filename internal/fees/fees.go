// Package fees holds the protocol fee policy: the flat fee rate charged on
// every bet and the split that rebates half of it to the market's creator.
package fees

import "github.com/shopspring/decimal"

// DefaultRate is the protocol fee rate charged on each bet's gross amount.
var DefaultRate = decimal.NewFromFloat(0.02)

// Splitter computes the creator rebate for a collected fee.
type Splitter struct {
	creatorShare decimal.Decimal
}

// NewSplitter creates a splitter rebating half of each fee to the creator.
func NewSplitter() *Splitter {
	return &Splitter{creatorShare: decimal.NewFromFloat(0.5)}
}

// Split returns the creator rebate for a collected fee. Markets without a
// creator address rebate nothing; the platform keeps the whole fee and no
// ledger entry is produced.
func (s *Splitter) Split(fee decimal.Decimal, creatorAddress string) decimal.Decimal {
	if creatorAddress == "" {
		return decimal.Zero
	}
	return fee.Mul(s.creatorShare)
}
