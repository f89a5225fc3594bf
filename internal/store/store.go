// Package store defines the durable snapshot interface for the market
// engine. In-memory state is authoritative; the store holds the latest
// committed snapshot of each market, account, and position.
// Implementations include PostgreSQL, Redis, and in-memory (for testing).
package store

import (
	"context"

	"github.com/meme-clash/market-engine/internal/model"
)

// Store persists committed snapshots and reloads them at startup. Monetary
// values round-trip as exact decimal strings, timestamps as ISO-8601.
type Store interface {
	// SaveMarket upserts the latest market snapshot.
	SaveMarket(ctx context.Context, m model.Market) error

	// SaveAccount upserts the latest balance/reward snapshot for an address.
	SaveAccount(ctx context.Context, a model.Account) error

	// SavePosition upserts one address's position in one market.
	SavePosition(ctx context.Context, p model.Position) error

	// LoadMarkets returns all persisted markets, oldest first.
	LoadMarkets(ctx context.Context) ([]model.Market, error)

	// LoadAccounts returns all persisted ledger accounts.
	LoadAccounts(ctx context.Context) ([]model.Account, error)

	// LoadPositions returns all persisted positions grouped by market id.
	LoadPositions(ctx context.Context) (map[string][]model.Position, error)
}
