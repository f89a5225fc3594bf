package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meme-clash/market-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL. All monetary values are
// stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) SaveMarket(ctx context.Context, m model.Market) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, question, description, category, end_time, creator_address,
		                      yes_shares, no_shares, yes_price, total_liquidity, volume,
		                      resolved, outcome, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6,
		         $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC,
		         $12, $13, $14)
		 ON CONFLICT (id) DO UPDATE SET
		     yes_shares = EXCLUDED.yes_shares,
		     no_shares = EXCLUDED.no_shares,
		     yes_price = EXCLUDED.yes_price,
		     total_liquidity = EXCLUDED.total_liquidity,
		     volume = EXCLUDED.volume,
		     resolved = EXCLUDED.resolved,
		     outcome = EXCLUDED.outcome`,
		m.ID, m.Question, m.Description, m.Category, m.EndTime, m.CreatorAddress,
		m.YesShares.String(), m.NoShares.String(), m.YesPrice.String(),
		m.TotalLiquidity.String(), m.Volume.String(),
		m.Resolved, m.Outcome, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save market %s: %w", m.ID, err)
	}
	return nil
}

func (s *PostgresStore) SaveAccount(ctx context.Context, a model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (address, balance, reward)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC)
		 ON CONFLICT (address) DO UPDATE SET
		     balance = EXCLUDED.balance,
		     reward = EXCLUDED.reward`,
		a.Address, a.Balance.String(), a.Reward.String(),
	)
	if err != nil {
		return fmt.Errorf("save account %s: %w", a.Address, err)
	}
	return nil
}

func (s *PostgresStore) SavePosition(ctx context.Context, p model.Position) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (market_id, address, yes_shares, no_shares, invested, claimed)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6)
		 ON CONFLICT (market_id, address) DO UPDATE SET
		     yes_shares = EXCLUDED.yes_shares,
		     no_shares = EXCLUDED.no_shares,
		     invested = EXCLUDED.invested,
		     claimed = EXCLUDED.claimed`,
		p.MarketID, p.Address,
		p.YesShares.String(), p.NoShares.String(), p.Invested.String(),
		p.Claimed,
	)
	if err != nil {
		return fmt.Errorf("save position %s/%s: %w", p.MarketID, p.Address, err)
	}
	return nil
}

func (s *PostgresStore) LoadMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, question, description, category, end_time, creator_address,
		        yes_shares::TEXT, no_shares::TEXT, yes_price::TEXT,
		        total_liquidity::TEXT, volume::TEXT,
		        resolved, outcome, created_at
		 FROM markets ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		var m model.Market
		var yesShares, noShares, yesPrice, liquidity, volume string
		if err := rows.Scan(&m.ID, &m.Question, &m.Description, &m.Category,
			&m.EndTime, &m.CreatorAddress,
			&yesShares, &noShares, &yesPrice,
			&liquidity, &volume,
			&m.Resolved, &m.Outcome, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.YesShares, _ = decimal.NewFromString(yesShares)
		m.NoShares, _ = decimal.NewFromString(noShares)
		m.YesPrice, _ = decimal.NewFromString(yesPrice)
		m.TotalLiquidity, _ = decimal.NewFromString(liquidity)
		m.Volume, _ = decimal.NewFromString(volume)
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) LoadAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address, balance::TEXT, reward::TEXT FROM accounts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		var balance, reward string
		if err := rows.Scan(&a.Address, &balance, &reward); err != nil {
			return nil, err
		}
		a.Balance, _ = decimal.NewFromString(balance)
		a.Reward, _ = decimal.NewFromString(reward)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) LoadPositions(ctx context.Context) (map[string][]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT market_id, address, yes_shares::TEXT, no_shares::TEXT, invested::TEXT, claimed
		 FROM positions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]model.Position)
	for rows.Next() {
		var p model.Position
		var yesShares, noShares, invested string
		if err := rows.Scan(&p.MarketID, &p.Address, &yesShares, &noShares, &invested, &p.Claimed); err != nil {
			return nil, err
		}
		p.YesShares, _ = decimal.NewFromString(yesShares)
		p.NoShares, _ = decimal.NewFromString(noShares)
		p.Invested, _ = decimal.NewFromString(invested)
		out[p.MarketID] = append(out[p.MarketID], p)
	}
	return out, rows.Err()
}
