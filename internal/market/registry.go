// Package market owns the lifecycle and storage of Market records: creation
// with validation, lookup/listing, per-market locking for trade commits,
// the per-market position book, and one-way settlement.
package market

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meme-clash/market-engine/internal/model"
)

var (
	// ErrInvalidInput is returned when a market spec fails validation.
	ErrInvalidInput = errors.New("market: invalid input")

	// ErrNotFound is returned when the target market does not exist.
	ErrNotFound = errors.New("market: not found")

	// ErrMarketResolved is returned when a trade targets a settled market.
	ErrMarketResolved = errors.New("market: market already resolved")

	// ErrAlreadyResolved is returned on a second resolution attempt.
	// Resolution is a strict one-way transition, never overwritten.
	ErrAlreadyResolved = errors.New("market: resolution already recorded")
)

// DefaultMaxDuration bounds how far in the future a market may end.
const DefaultMaxDuration = 720 * time.Hour

// InitialShares seeds both sides of a new market's pool, implying a 0.5
// starting price and preventing division by zero on the first trade.
var InitialShares = decimal.NewFromInt(1000)

// Categories is the set of accepted market categories.
var Categories = map[string]bool{
	"MEMES":    true,
	"CRYPTO":   true,
	"POLITICS": true,
	"SPORTS":   true,
	"OTHER":    true,
}

// CreateSpec is the validated input for creating a market.
type CreateSpec struct {
	Question       string
	Description    string
	Category       string
	EndTime        time.Time
	CreatorAddress string // optional; empty means no creator rebate
}

// entry pairs one market with its lock and position book. The lock
// serializes every read-modify-write of the pool state; the position book
// is mutated only under the same lock so a bet's pool shift and share
// grant commit together.
type entry struct {
	mu        sync.Mutex
	m         model.Market
	positions map[string]*model.Position
}

// Registry stores markets and serializes mutations per market id.
// Different markets proceed fully in parallel.
type Registry struct {
	maxDuration time.Duration

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string // insertion order; List walks it newest first
}

// NewRegistry creates an empty registry. maxDuration <= 0 selects
// DefaultMaxDuration.
func NewRegistry(maxDuration time.Duration) *Registry {
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}
	return &Registry{
		maxDuration: maxDuration,
		entries:     make(map[string]*entry),
	}
}

// Create validates the spec and registers a new market with the default
// pool, price 0.5, zero volume and liquidity.
func (r *Registry) Create(spec CreateSpec, now time.Time) (model.Market, error) {
	if strings.TrimSpace(spec.Question) == "" {
		return model.Market{}, fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	if !Categories[spec.Category] {
		return model.Market{}, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, spec.Category)
	}
	if !spec.EndTime.After(now) {
		return model.Market{}, fmt.Errorf("%w: end time must be in the future", ErrInvalidInput)
	}
	if spec.EndTime.Sub(now) > r.maxDuration {
		return model.Market{}, fmt.Errorf("%w: duration exceeds %s maximum", ErrInvalidInput, r.maxDuration)
	}

	m := model.Market{
		ID:             uuid.New().String(),
		Question:       spec.Question,
		Description:    spec.Description,
		Category:       spec.Category,
		EndTime:        spec.EndTime.UTC(),
		CreatorAddress: spec.CreatorAddress,
		YesShares:      InitialShares,
		NoShares:       InitialShares,
		YesPrice:       decimal.NewFromFloat(0.5),
		TotalLiquidity: decimal.Zero,
		Volume:         decimal.Zero,
		Resolved:       false,
		CreatedAt:      now.UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[m.ID] = &entry{m: m, positions: make(map[string]*model.Position)}
	r.order = append(r.order, m.ID)
	return m, nil
}

// Get returns a copy of the market, or ErrNotFound.
func (r *Registry) Get(id string) (model.Market, error) {
	e, err := r.lookup(id)
	if err != nil {
		return model.Market{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.m, nil
}

// List returns markets most recent first, optionally filtered by category.
// An empty category returns everything.
func (r *Registry) List(category string) []model.Market {
	r.mu.RLock()
	defer r.mu.RUnlock()

	markets := make([]model.Market, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		e := r.entries[r.order[i]]
		e.mu.Lock()
		m := e.m
		e.mu.Unlock()
		if category != "" && m.Category != category {
			continue
		}
		markets = append(markets, m)
	}
	return markets
}

// Update runs fn while holding the market's lock. fn receives the live
// market and position book; any mutation it makes commits as one unit.
// An error from fn rolls nothing forward — fn must not mutate before its
// last failure point.
func (r *Registry) Update(id string, fn func(m *model.Market, positions map[string]*model.Position) error) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(&e.m, e.positions)
}

// Resolve settles the market to a final outcome. The transition is
// terminal: a second call fails with ErrAlreadyResolved and after success
// no further pool mutation is permitted.
func (r *Registry) Resolve(id string, outcome bool) (model.Market, error) {
	e, err := r.lookup(id)
	if err != nil {
		return model.Market{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.m.Resolved {
		return model.Market{}, ErrAlreadyResolved
	}
	e.m.Resolved = true
	e.m.Outcome = &outcome
	return e.m, nil
}

// Position returns a copy of one address's position in one market.
func (r *Registry) Position(id, address string) (model.Position, error) {
	e, err := r.lookup(id)
	if err != nil {
		return model.Position{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.positions[address]
	if !ok {
		return model.Position{
			Address:   address,
			MarketID:  id,
			YesShares: decimal.Zero,
			NoShares:  decimal.Zero,
			Invested:  decimal.Zero,
		}, nil
	}
	return *p, nil
}

// PositionsFor returns every open position held by an address, newest
// market first.
func (r *Registry) PositionsFor(address string) []model.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Position
	for i := len(r.order) - 1; i >= 0; i-- {
		e := r.entries[r.order[i]]
		e.mu.Lock()
		if p, ok := e.positions[address]; ok {
			out = append(out, *p)
		}
		e.mu.Unlock()
	}
	return out
}

// Restore seeds a market and its positions from persisted snapshots. Used
// only at startup before the registry is shared.
func (r *Registry) Restore(m model.Market, positions []model.Position) {
	e := &entry{m: m, positions: make(map[string]*model.Position)}
	for _, p := range positions {
		cp := p
		e.positions[p.Address] = &cp
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[m.ID]; ok {
		return
	}
	r.entries[m.ID] = e
	r.order = append(r.order, m.ID)
}

// Len returns the number of registered markets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}
