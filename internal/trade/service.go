// Package trade provides the HTTP handlers for creating markets, placing
// bets, settling, and managing ledger balances and rewards.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/meme-clash/market-engine/internal/cpmm"
	"github.com/meme-clash/market-engine/internal/engine"
	"github.com/meme-clash/market-engine/internal/ledger"
	"github.com/meme-clash/market-engine/internal/market"
	"github.com/meme-clash/market-engine/internal/metrics"
	"github.com/meme-clash/market-engine/internal/model"
	"github.com/meme-clash/market-engine/internal/payment"
)

// Service exposes the engine over HTTP. Pass nil for hub if WebSocket
// broadcasting is not needed.
type Service struct {
	eng   *engine.Engine
	rail  *payment.Rail
	wsHub *WSHub
}

// NewService creates a new trade service.
func NewService(eng *engine.Engine, rail *payment.Rail, hub *WSHub) *Service {
	return &Service{eng: eng, rail: rail, wsHub: hub}
}

// --- Request/Response types ---

// CreateMarketRequest is the JSON body for market creation.
type CreateMarketRequest struct {
	Question       string    `json:"question"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	EndTime        time.Time `json:"end_time"`
	CreatorAddress string    `json:"creator_address,omitempty"`
}

// BetRequest is the JSON body for POST /bets. Side is a pointer so an
// absent field is distinguishable from "YES" (the zero Side) and rejected.
type BetRequest struct {
	MarketID string          `json:"market_id"`
	Address  string          `json:"address"`
	Amount   decimal.Decimal `json:"amount"`
	Side     *model.Side     `json:"side"` // "YES" or "NO"
}

// ResolveRequest is the JSON body for POST /markets/{marketID}/resolve.
type ResolveRequest struct {
	Outcome bool `json:"outcome"`
}

// AddressRequest carries just an address (claims).
type AddressRequest struct {
	Address string `json:"address"`
}

// FundsRequest carries an address and an amount (deposit/withdraw).
type FundsRequest struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

// PaymentConfirmation is the payment-rail webhook body: a confirmed
// transfer of base-currency units from an address.
type PaymentConfirmation struct {
	Address    string          `json:"address"`
	BaseAmount decimal.Decimal `json:"base_amount"`
}

// AccountResponse is the JSON body for GET /accounts/{address}.
type AccountResponse struct {
	Address       string           `json:"address"`
	Balance       decimal.Decimal  `json:"balance"`
	PendingReward decimal.Decimal  `json:"pending_reward"`
	Positions     []model.Position `json:"positions"`
}

// --- Handlers ---

// CreateMarket handles POST /api/v1/markets.
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	m, err := s.eng.CreateMarket(market.CreateSpec{
		Question:       req.Question,
		Description:    req.Description,
		Category:       req.Category,
		EndTime:        req.EndTime,
		CreatorAddress: req.CreatorAddress,
	})
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	metrics.ActiveMarkets.Inc()
	slog.Info("market created",
		"id", m.ID,
		"category", m.Category,
		"end_time", m.EndTime,
		"creator", m.CreatorAddress,
	)

	writeJSON(w, http.StatusCreated, m)
}

// ListMarkets handles GET /api/v1/markets, optionally filtered by
// ?category=. Markets come back most recent first.
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.eng.ListMarkets(r.URL.Query().Get("category"))
	if markets == nil {
		markets = []model.Market{}
	}
	writeJSON(w, http.StatusOK, markets)
}

// GetMarket handles GET /api/v1/markets/{marketID}.
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.eng.GetMarket(chi.URLParam(r, "marketID"))
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetPrice handles GET /api/v1/markets/{marketID}/price.
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	m, err := s.eng.GetMarket(chi.URLParam(r, "marketID"))
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"yes": m.YesPrice,
		"no":  m.NoPrice(),
	})
}

// PlaceBet handles POST /api/v1/bets.
func (s *Service) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req BetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.MarketID == "" || req.Address == "" || req.Side == nil {
		writeError(w, "market_id, address, and side are required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	result, err := s.eng.PlaceBet(req.MarketID, req.Address, req.Amount, *req.Side)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	side := result.Side.String()
	metrics.BetsTotal.WithLabelValues(side).Inc()
	metrics.BetLatency.WithLabelValues(side).Observe(time.Since(start).Seconds())
	metrics.BetVolume.WithLabelValues(result.MarketID, side).Add(result.Amount.InexactFloat64())

	slog.Info("bet executed",
		"market", result.MarketID,
		"address", result.Address,
		"side", side,
		"amount", result.Amount.String(),
		"fee", result.Fee.String(),
		"shares_out", result.SharesOut.String(),
		"new_price_yes", result.NewPrice.String(),
	)

	if s.wsHub != nil {
		one := decimal.NewFromInt(1)
		s.wsHub.Broadcast(WSMessage{
			Type:     "bet_executed",
			MarketID: result.MarketID,
			PriceYes: result.NewPrice.String(),
			PriceNo:  one.Sub(result.NewPrice).String(),
			Side:     side,
			Amount:   result.Amount.String(),
		})
	}

	writeJSON(w, http.StatusOK, result)
}

// ResolveMarket handles POST /api/v1/markets/{marketID}/resolve.
func (s *Service) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	m, err := s.eng.ResolveMarket(chi.URLParam(r, "marketID"), req.Outcome)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	metrics.ActiveMarkets.Dec()
	metrics.MarketsResolved.Inc()
	slog.Info("market resolved", "id", m.ID, "outcome", req.Outcome)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "market_resolved",
			MarketID: m.ID,
			Outcome:  m.Outcome,
		})
	}

	writeJSON(w, http.StatusOK, m)
}

// ClaimWinnings handles POST /api/v1/markets/{marketID}/claim.
func (s *Service) ClaimWinnings(w http.ResponseWriter, r *http.Request) {
	var req AddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		writeError(w, "address is required", http.StatusBadRequest)
		return
	}

	payout, err := s.eng.ClaimWinnings(chi.URLParam(r, "marketID"), req.Address)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	slog.Info("winnings claimed", "address", req.Address, "payout", payout.String())
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"payout": payout})
}

// Deposit handles POST /api/v1/deposits.
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	var req FundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		writeError(w, "address and amount are required", http.StatusBadRequest)
		return
	}
	if err := s.eng.Deposit(req.Address, req.Amount); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"balance": s.eng.Ledger().BalanceOf(req.Address),
	})
}

// Withdraw handles POST /api/v1/withdrawals.
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req FundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		writeError(w, "address and amount are required", http.StatusBadRequest)
		return
	}
	if err := s.eng.Withdraw(req.Address, req.Amount); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"balance": s.eng.Ledger().BalanceOf(req.Address),
	})
}

// ConfirmPayment handles POST /api/v1/payments/confirm: the payment rail
// reports a confirmed base-currency transfer and the address is credited
// at the configured conversion rate.
func (s *Service) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentConfirmation
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		writeError(w, "address and base_amount are required", http.StatusBadRequest)
		return
	}
	credited, err := s.rail.ConfirmTransfer(req.Address, req.BaseAmount)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"credited": credited,
		"balance":  s.eng.Ledger().BalanceOf(req.Address),
	})
}

// ClaimRewards handles POST /api/v1/rewards/claim.
func (s *Service) ClaimRewards(w http.ResponseWriter, r *http.Request) {
	var req AddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		writeError(w, "address is required", http.StatusBadRequest)
		return
	}

	claimed := s.eng.ClaimRewards(req.Address)
	if claimed.IsPositive() {
		metrics.RewardsClaimed.Inc()
		slog.Info("rewards claimed", "address", req.Address, "amount", claimed.String())
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"claimed": claimed})
}

// GetAccount handles GET /api/v1/accounts/{address}.
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	positions := s.eng.Registry().PositionsFor(address)
	if positions == nil {
		positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, AccountResponse{
		Address:       address,
		Balance:       s.eng.Ledger().BalanceOf(address),
		PendingReward: s.eng.Ledger().PendingReward(address),
		Positions:     positions,
	})
}

// --- helpers ---

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, market.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, market.ErrInvalidInput),
		errors.Is(err, cpmm.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, payment.ErrInvalidTransfer):
		return http.StatusBadRequest
	case errors.Is(err, market.ErrMarketResolved),
		errors.Is(err, market.ErrAlreadyResolved),
		errors.Is(err, cpmm.ErrInsufficientLiquidity),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, engine.ErrMarketNotResolved),
		errors.Is(err, engine.ErrNothingToClaim):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
