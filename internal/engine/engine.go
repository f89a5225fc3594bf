// Package engine composes the pricing engine, fee splitter, ledger, and
// market registry into the trade-execution pipeline.
//
// A bet is one short read-modify-write under the market's lock: read pool →
// quote → debit the bettor → credit the creator rebate → commit the new
// pool, counters, and position. Ledger locks are always taken while the
// market lock is held (market then address), so cross-entity commits are
// atomic and deadlock-free. Persistence is notified while the entity's
// lock is still held, so snapshots of one entity reach the persister in
// commit order.
package engine

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meme-clash/market-engine/internal/cpmm"
	"github.com/meme-clash/market-engine/internal/fees"
	"github.com/meme-clash/market-engine/internal/ledger"
	"github.com/meme-clash/market-engine/internal/market"
	"github.com/meme-clash/market-engine/internal/model"
)

var (
	// ErrMarketNotResolved is returned when winnings are claimed before
	// settlement.
	ErrMarketNotResolved = errors.New("engine: market is not resolved yet")

	// ErrNothingToClaim is returned when an address holds no winning
	// shares in the market, or already claimed them.
	ErrNothingToClaim = errors.New("engine: no winnings to claim")
)

// Persister receives committed snapshots for durable storage. Calls are
// made under the owning entity's lock, so they must return quickly;
// implementations write asynchronously but preserve, per entity, the
// order in which they are notified.
type Persister interface {
	MarketSaved(m model.Market)
	AccountSaved(a model.Account)
	PositionSaved(p model.Position)
}

// Engine is the service object owning all mutable market and ledger state.
// It is instantiated once at the process composition root; there is no
// ambient global state.
type Engine struct {
	registry *market.Registry
	ledger   *ledger.Ledger
	pricing  *cpmm.Engine
	splitter *fees.Splitter
	persist  Persister // optional; nil disables persistence
}

// New creates an engine. Pass nil for persist to run memory-only. The
// ledger notifies the persister itself, under the account lock, so account
// snapshots arrive in commit order.
func New(reg *market.Registry, led *ledger.Ledger, pricing *cpmm.Engine, splitter *fees.Splitter, persist Persister) *Engine {
	if persist != nil {
		led.OnCommit(persist.AccountSaved)
	}
	return &Engine{
		registry: reg,
		ledger:   led,
		pricing:  pricing,
		splitter: splitter,
		persist:  persist,
	}
}

// Registry exposes the market registry for read paths.
func (e *Engine) Registry() *market.Registry { return e.registry }

// Ledger exposes the ledger for read paths.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// CreateMarket validates and registers a new market.
func (e *Engine) CreateMarket(spec market.CreateSpec) (model.Market, error) {
	m, err := e.registry.Create(spec, time.Now())
	if err != nil {
		return model.Market{}, err
	}
	e.notifyMarket(m)
	return m, nil
}

// GetMarket returns a copy of the market.
func (e *Engine) GetMarket(id string) (model.Market, error) {
	return e.registry.Get(id)
}

// ListMarkets returns markets most recent first, optionally filtered by
// category.
func (e *Engine) ListMarkets(category string) []model.Market {
	return e.registry.List(category)
}

// PlaceBet executes a bet of grossAmount on one side of a market. The
// gross amount is debited from the bettor's balance; the protocol fee is
// split with the market's creator; the pool, volume, liquidity, and the
// bettor's position commit as one unit under the market's lock.
func (e *Engine) PlaceBet(marketID, address string, grossAmount decimal.Decimal, side model.Side) (model.BetResult, error) {
	var result model.BetResult

	err := e.registry.Update(marketID, func(m *model.Market, positions map[string]*model.Position) error {
		if m.Resolved {
			return market.ErrMarketResolved
		}

		quote, err := e.pricing.Quote(m.YesShares, m.NoShares, side, grossAmount)
		if err != nil {
			return err
		}

		// Collateral first: a failed debit leaves no partial state.
		if err := e.ledger.Withdraw(address, grossAmount); err != nil {
			return err
		}

		if rebate := e.splitter.Split(quote.Fee, m.CreatorAddress); rebate.IsPositive() {
			e.ledger.CreditReward(m.CreatorAddress, rebate)
		}

		m.YesShares = quote.NewYes
		m.NoShares = quote.NewNo
		m.YesPrice = quote.NewYesPrice
		m.Volume = m.Volume.Add(grossAmount)
		m.TotalLiquidity = m.TotalLiquidity.Add(quote.NetAmount)

		p, ok := positions[address]
		if !ok {
			p = &model.Position{
				Address:   address,
				MarketID:  m.ID,
				YesShares: decimal.Zero,
				NoShares:  decimal.Zero,
				Invested:  decimal.Zero,
			}
			positions[address] = p
		}
		if side == model.Yes {
			p.YesShares = p.YesShares.Add(quote.SharesOut)
		} else {
			p.NoShares = p.NoShares.Add(quote.SharesOut)
		}
		p.Invested = p.Invested.Add(grossAmount)

		result = model.BetResult{
			MarketID:  m.ID,
			Address:   address,
			Side:      side,
			Amount:    grossAmount,
			Fee:       quote.Fee,
			SharesOut: quote.SharesOut,
			NewPrice:  quote.NewYesPrice,
		}

		// Notify under the market lock so a concurrent bet cannot enqueue
		// its snapshots between this commit and its notification.
		e.notifyMarket(*m)
		e.notifyPosition(*p)
		return nil
	})
	if err != nil {
		return model.BetResult{}, err
	}
	return result, nil
}

// ResolveMarket settles a market to its final outcome. The transition is
// one-way; double resolution fails with market.ErrAlreadyResolved. The
// settlement commits and notifies under the market lock, so no concurrent
// bet's snapshot can be persisted after the resolved one.
func (e *Engine) ResolveMarket(marketID string, outcome bool) (model.Market, error) {
	var resolved model.Market
	err := e.registry.Update(marketID, func(m *model.Market, _ map[string]*model.Position) error {
		if m.Resolved {
			return market.ErrAlreadyResolved
		}
		m.Resolved = true
		m.Outcome = &outcome
		resolved = *m
		e.notifyMarket(*m)
		return nil
	})
	if err != nil {
		return model.Market{}, err
	}
	return resolved, nil
}

// ClaimWinnings pays out the caller's winning-side shares after
// settlement: the share count moves into the balance ledger and the
// position is zeroed to prevent double claims.
func (e *Engine) ClaimWinnings(marketID, address string) (decimal.Decimal, error) {
	var payout decimal.Decimal

	err := e.registry.Update(marketID, func(m *model.Market, positions map[string]*model.Position) error {
		if !m.Resolved || m.Outcome == nil {
			return ErrMarketNotResolved
		}
		p, ok := positions[address]
		if !ok || p.Claimed {
			return ErrNothingToClaim
		}
		if *m.Outcome {
			payout = p.YesShares
		} else {
			payout = p.NoShares
		}
		if !payout.IsPositive() {
			return ErrNothingToClaim
		}

		// Credit first so a failed deposit leaves the position intact.
		if err := e.ledger.Deposit(address, payout); err != nil {
			return err
		}
		p.YesShares = decimal.Zero
		p.NoShares = decimal.Zero
		p.Claimed = true
		e.notifyPosition(*p)
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return payout, nil
}

// Deposit credits collateral to an address.
func (e *Engine) Deposit(address string, amount decimal.Decimal) error {
	return e.ledger.Deposit(address, amount)
}

// Withdraw debits collateral from an address.
func (e *Engine) Withdraw(address string, amount decimal.Decimal) error {
	return e.ledger.Withdraw(address, amount)
}

// ClaimRewards moves an address's pending creator rewards into its
// balance and returns the claimed amount.
func (e *Engine) ClaimRewards(address string) decimal.Decimal {
	return e.ledger.ClaimRewards(address)
}

func (e *Engine) notifyMarket(m model.Market) {
	if e.persist != nil {
		e.persist.MarketSaved(m)
	}
}

func (e *Engine) notifyPosition(p model.Position) {
	if e.persist != nil {
		e.persist.PositionSaved(p)
	}
}
