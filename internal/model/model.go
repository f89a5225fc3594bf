// Package model defines the core domain types shared across the market engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the outcome side of a bet. It is a closed two-variant enum so
// side selection is exhaustive; the wire encoding stays "YES"/"NO".
type Side int

const (
	Yes Side = iota
	No
)

// String returns the wire representation of the side.
func (s Side) String() string {
	if s == Yes {
		return "YES"
	}
	return "NO"
}

// ParseSide converts a wire string into a Side.
func ParseSide(v string) (Side, error) {
	switch v {
	case "YES":
		return Yes, nil
	case "NO":
		return No, nil
	default:
		return Yes, fmt.Errorf("model: invalid side %q (expected YES or NO)", v)
	}
}

// MarshalJSON encodes the side as "YES"/"NO".
func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes "YES"/"NO" into a Side.
func (s *Side) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSide(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Market represents the state of one binary prediction market backed by a
// two-sided constant-product pool.
//
// Invariants: YesShares and NoShares stay strictly positive while the
// market is active; Volume and TotalLiquidity never decrease; once
// Resolved is set the market is terminal and the pool never moves again.
type Market struct {
	ID             string          `json:"id" db:"id"`
	Question       string          `json:"question" db:"question"`
	Description    string          `json:"description" db:"description"`
	Category       string          `json:"category" db:"category"`
	EndTime        time.Time       `json:"end_time" db:"end_time"`
	CreatorAddress string          `json:"creator_address,omitempty" db:"creator_address"`
	YesShares      decimal.Decimal `json:"yes_shares" db:"yes_shares"`
	NoShares       decimal.Decimal `json:"no_shares" db:"no_shares"`
	YesPrice       decimal.Decimal `json:"yes_price" db:"yes_price"`
	TotalLiquidity decimal.Decimal `json:"total_liquidity" db:"total_liquidity"`
	Volume         decimal.Decimal `json:"volume" db:"volume"`
	Resolved       bool            `json:"resolved" db:"resolved"`
	Outcome        *bool           `json:"outcome,omitempty" db:"outcome"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// NoPrice returns the derived NO price, always 1 - YesPrice.
func (m *Market) NoPrice() decimal.Decimal {
	return decimal.NewFromInt(1).Sub(m.YesPrice)
}

// Position is one address's accumulated outcome shares in one market.
type Position struct {
	Address   string          `json:"address" db:"address"`
	MarketID  string          `json:"market_id" db:"market_id"`
	YesShares decimal.Decimal `json:"yes_shares" db:"yes_shares"`
	NoShares  decimal.Decimal `json:"no_shares" db:"no_shares"`
	Invested  decimal.Decimal `json:"invested" db:"invested"` // gross collateral spent
	Claimed   bool            `json:"claimed" db:"claimed"`
}

// Account is the persisted ledger snapshot for one address.
type Account struct {
	Address string          `json:"address" db:"address"`
	Balance decimal.Decimal `json:"balance" db:"balance"`
	Reward  decimal.Decimal `json:"reward" db:"reward"` // pending creator rebates
}

// BetResult is what a successful bet returns to the caller.
type BetResult struct {
	MarketID  string          `json:"market_id"`
	Address   string          `json:"address"`
	Side      Side            `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	SharesOut decimal.Decimal `json:"shares_out"`
	NewPrice  decimal.Decimal `json:"new_price"` // YES price after the trade
}
