package store

import (
	"context"
	"sort"
	"sync"

	"github.com/meme-clash/market-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	markets   map[string]model.Market
	accounts  map[string]model.Account
	positions map[string]map[string]model.Position // marketID → address → position
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:   make(map[string]model.Market),
		accounts:  make(map[string]model.Account),
		positions: make(map[string]map[string]model.Position),
	}
}

func (s *MemoryStore) SaveMarket(_ context.Context, m model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID] = m
	return nil
}

func (s *MemoryStore) SaveAccount(_ context.Context, a model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.Address] = a
	return nil
}

func (s *MemoryStore) SavePosition(_ context.Context, p model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byAddr, ok := s.positions[p.MarketID]
	if !ok {
		byAddr = make(map[string]model.Position)
		s.positions[p.MarketID] = byAddr
	}
	byAddr[p.Address] = p
	return nil
}

func (s *MemoryStore) LoadMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, m)
	}
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].CreatedAt.Before(markets[j].CreatedAt)
	})
	return markets, nil
}

func (s *MemoryStore) LoadAccounts(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, a)
	}
	return accounts, nil
}

func (s *MemoryStore) LoadPositions(_ context.Context) (map[string][]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]model.Position, len(s.positions))
	for marketID, byAddr := range s.positions {
		for _, p := range byAddr {
			out[marketID] = append(out[marketID], p)
		}
	}
	return out, nil
}
