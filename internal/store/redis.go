package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/meme-clash/market-engine/internal/model"
)

// RedisStore implements Store on Redis as a durable key/value store.
// Snapshots are JSON values (decimals encode as exact strings via
// shopspring/decimal, timestamps as ISO-8601); set members index the keys
// so startup can enumerate them.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) SaveMarket(ctx context.Context, m model.Market) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal market %s: %w", m.ID, err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, marketKey(m.ID), data, 0)
	pipe.SAdd(ctx, "markets", m.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save market %s: %w", m.ID, err)
	}
	return nil
}

func (s *RedisStore) SaveAccount(ctx context.Context, a model.Account) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal account %s: %w", a.Address, err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, accountKey(a.Address), data, 0)
	pipe.SAdd(ctx, "accounts", a.Address)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save account %s: %w", a.Address, err)
	}
	return nil
}

func (s *RedisStore) SavePosition(ctx context.Context, p model.Position) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal position %s/%s: %w", p.MarketID, p.Address, err)
	}
	if err := s.rdb.HSet(ctx, positionsKey(p.MarketID), p.Address, data).Err(); err != nil {
		return fmt.Errorf("save position %s/%s: %w", p.MarketID, p.Address, err)
	}
	return nil
}

func (s *RedisStore) LoadMarkets(ctx context.Context) ([]model.Market, error) {
	ids, err := s.rdb.SMembers(ctx, "markets").Result()
	if err != nil {
		return nil, err
	}

	var markets []model.Market
	for _, id := range ids {
		data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
		if err == redis.Nil {
			continue // index entry without a value; skip, don't fail startup
		}
		if err != nil {
			return nil, err
		}
		var m model.Market
		if err := json.Unmarshal(data, &m); err != nil {
			continue // corrupt record falls back to being absent
		}
		markets = append(markets, m)
	}
	sortMarketsByCreation(markets)
	return markets, nil
}

func (s *RedisStore) LoadAccounts(ctx context.Context) ([]model.Account, error) {
	addrs, err := s.rdb.SMembers(ctx, "accounts").Result()
	if err != nil {
		return nil, err
	}

	var accounts []model.Account
	for _, addr := range addrs {
		data, err := s.rdb.Get(ctx, accountKey(addr)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var a model.Account
		if err := json.Unmarshal(data, &a); err != nil {
			continue
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

func (s *RedisStore) LoadPositions(ctx context.Context) (map[string][]model.Position, error) {
	ids, err := s.rdb.SMembers(ctx, "markets").Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string][]model.Position)
	for _, id := range ids {
		entries, err := s.rdb.HGetAll(ctx, positionsKey(id)).Result()
		if err != nil {
			return nil, err
		}
		for _, raw := range entries {
			var p model.Position
			if err := json.Unmarshal([]byte(raw), &p); err != nil {
				continue
			}
			out[id] = append(out[id], p)
		}
	}
	return out, nil
}

func sortMarketsByCreation(markets []model.Market) {
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].CreatedAt.Before(markets[j].CreatedAt)
	})
}

func marketKey(id string) string          { return fmt.Sprintf("market:%s", id) }
func accountKey(addr string) string       { return fmt.Sprintf("account:%s", addr) }
func positionsKey(marketID string) string { return fmt.Sprintf("positions:%s", marketID) }
