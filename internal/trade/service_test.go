package trade

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/meme-clash/market-engine/internal/cpmm"
	"github.com/meme-clash/market-engine/internal/engine"
	"github.com/meme-clash/market-engine/internal/fees"
	"github.com/meme-clash/market-engine/internal/ledger"
	"github.com/meme-clash/market-engine/internal/market"
	"github.com/meme-clash/market-engine/internal/model"
	"github.com/meme-clash/market-engine/internal/payment"
)

func sideOf(s model.Side) *model.Side { return &s }

func newTestRouter(t *testing.T) (*chi.Mux, *engine.Engine) {
	t.Helper()

	pricing, err := cpmm.New(fees.DefaultRate)
	if err != nil {
		t.Fatalf("pricing engine: %v", err)
	}
	led := ledger.New()
	eng := engine.New(market.NewRegistry(0), led, pricing, fees.NewSplitter(), nil)
	svc := NewService(eng, payment.NewRail(led, payment.DefaultConversionRate), nil)

	r := chi.NewRouter()
	r.Get("/markets", svc.ListMarkets)
	r.Post("/markets", svc.CreateMarket)
	r.Get("/markets/{marketID}", svc.GetMarket)
	r.Get("/markets/{marketID}/price", svc.GetPrice)
	r.Post("/markets/{marketID}/resolve", svc.ResolveMarket)
	r.Post("/markets/{marketID}/claim", svc.ClaimWinnings)
	r.Post("/bets", svc.PlaceBet)
	r.Post("/deposits", svc.Deposit)
	r.Post("/withdrawals", svc.Withdraw)
	r.Post("/payments/confirm", svc.ConfirmPayment)
	r.Post("/rewards/claim", svc.ClaimRewards)
	r.Get("/accounts/{address}", svc.GetAccount)
	return r, eng
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v (body: %s)", err, rec.Body.String())
	}
	return v
}

func createTestMarket(t *testing.T, router http.Handler, creator string) model.Market {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/markets", CreateMarketRequest{
		Question:       "Will SHIB burn 1% of supply this month?",
		Description:    "Resolves YES on an on-chain burn of at least 1%.",
		Category:       "MEMES",
		EndTime:        time.Now().Add(48 * time.Hour),
		CreatorAddress: creator,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create market: status %d, body %s", rec.Code, rec.Body.String())
	}
	return decodeBody[model.Market](t, rec)
}

func fund(t *testing.T, router http.Handler, address string, amount int64) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/deposits", FundsRequest{
		Address: address,
		Amount:  decimal.NewFromInt(amount),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit: status %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestCreateMarket_AndGet(t *testing.T) {
	router, _ := newTestRouter(t)

	m := createTestMarket(t, router, "creator-1")
	if m.ID == "" {
		t.Fatal("expected a market id")
	}
	if !m.YesPrice.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("expected initial price 0.5, got %s", m.YesPrice)
	}

	rec := doJSON(t, router, http.MethodGet, "/markets/"+m.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get market: status %d", rec.Code)
	}
	got := decodeBody[model.Market](t, rec)
	if got.ID != m.ID || got.Question != m.Question {
		t.Errorf("get returned a different market: %+v", got)
	}
}

func TestCreateMarket_InvalidCategory(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/markets", CreateMarketRequest{
		Question: "Will it rain tomorrow?",
		Category: "WEATHER",
		EndTime:  time.Now().Add(time.Hour),
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestGetMarket_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/markets/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestListMarkets_EmptyIsArray(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/markets", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	markets := decodeBody[[]model.Market](t, rec)
	if markets == nil || len(markets) != 0 {
		t.Errorf("expected empty array, got %v", markets)
	}
}

func TestListMarkets_CategoryFilter(t *testing.T) {
	router, _ := newTestRouter(t)

	createTestMarket(t, router, "")
	rec := doJSON(t, router, http.MethodPost, "/markets", CreateMarketRequest{
		Question: "Will turnout beat 2024?",
		Category: "POLITICS",
		EndTime:  time.Now().Add(48 * time.Hour),
	})
	political := decodeBody[model.Market](t, rec)

	list := decodeBody[[]model.Market](t, doJSON(t, router, http.MethodGet, "/markets?category=POLITICS", nil))
	if len(list) != 1 || list[0].ID != political.ID {
		t.Errorf("expected only the POLITICS market, got %v", list)
	}
}

func TestPlaceBet_Flow(t *testing.T) {
	router, _ := newTestRouter(t)
	m := createTestMarket(t, router, "creator-1")
	fund(t, router, "alice", 1000)

	rec := doJSON(t, router, http.MethodPost, "/bets", BetRequest{
		MarketID: m.ID,
		Address:  "alice",
		Amount:   decimal.NewFromInt(100),
		Side:     sideOf(model.Yes),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("bet: status %d, body %s", rec.Code, rec.Body.String())
	}

	result := decodeBody[model.BetResult](t, rec)
	if !result.Fee.Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected fee 2, got %s", result.Fee)
	}
	if result.Side != model.Yes {
		t.Errorf("expected YES side echoed back, got %s", result.Side)
	}

	// Price endpoint reflects the trade and the two prices sum to 1.
	prices := decodeBody[map[string]decimal.Decimal](t, doJSON(t, router, http.MethodGet, "/markets/"+m.ID+"/price", nil))
	if prices["yes"].LessThanOrEqual(decimal.NewFromFloat(0.5)) {
		t.Errorf("expected YES price above 0.5, got %s", prices["yes"])
	}
	if !prices["yes"].Add(prices["no"]).Equal(decimal.NewFromInt(1)) {
		t.Errorf("prices should sum to 1: yes=%s no=%s", prices["yes"], prices["no"])
	}
}

func TestPlaceBet_UnknownMarket(t *testing.T) {
	router, _ := newTestRouter(t)
	fund(t, router, "alice", 100)

	rec := doJSON(t, router, http.MethodPost, "/bets", BetRequest{
		MarketID: "missing",
		Address:  "alice",
		Amount:   decimal.NewFromInt(10),
		Side:     sideOf(model.Yes),
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestPlaceBet_InsufficientBalance(t *testing.T) {
	router, _ := newTestRouter(t)
	m := createTestMarket(t, router, "")

	rec := doJSON(t, router, http.MethodPost, "/bets", BetRequest{
		MarketID: m.ID,
		Address:  "broke",
		Amount:   decimal.NewFromInt(10),
		Side:     sideOf(model.No),
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestPlaceBet_InvalidSide(t *testing.T) {
	router, _ := newTestRouter(t)
	m := createTestMarket(t, router, "")

	body := fmt.Sprintf(`{"market_id":%q,"address":"alice","amount":"10","side":"MAYBE"}`, m.ID)
	req := httptest.NewRequest(http.MethodPost, "/bets", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid side, got %d", rec.Code)
	}
}

func TestPlaceBet_MissingSide(t *testing.T) {
	router, _ := newTestRouter(t)
	m := createTestMarket(t, router, "")
	fund(t, router, "alice", 100)

	// An omitted side must not silently default to YES.
	body := fmt.Sprintf(`{"market_id":%q,"address":"alice","amount":"10"}`, m.ID)
	req := httptest.NewRequest(http.MethodPost, "/bets", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing side, got %d", rec.Code)
	}

	// And the pool must be untouched.
	got := decodeBody[model.Market](t, doJSON(t, router, http.MethodGet, "/markets/"+m.ID, nil))
	if !got.Volume.IsZero() {
		t.Errorf("expected zero volume after rejected bet, got %s", got.Volume)
	}
}

func TestResolve_ThenBetRejected(t *testing.T) {
	router, _ := newTestRouter(t)
	m := createTestMarket(t, router, "")
	fund(t, router, "alice", 100)

	rec := doJSON(t, router, http.MethodPost, "/markets/"+m.ID+"/resolve", ResolveRequest{Outcome: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve: status %d", rec.Code)
	}
	resolved := decodeBody[model.Market](t, rec)
	if !resolved.Resolved || resolved.Outcome == nil || !*resolved.Outcome {
		t.Error("expected market resolved to YES")
	}

	rec = doJSON(t, router, http.MethodPost, "/bets", BetRequest{
		MarketID: m.ID,
		Address:  "alice",
		Amount:   decimal.NewFromInt(10),
		Side:     sideOf(model.Yes),
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 betting on resolved market, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/markets/"+m.ID+"/resolve", ResolveRequest{Outcome: false})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on double resolve, got %d", rec.Code)
	}
}

func TestClaimWinnings_Flow(t *testing.T) {
	router, _ := newTestRouter(t)
	m := createTestMarket(t, router, "")
	fund(t, router, "alice", 1000)

	bet := decodeBody[model.BetResult](t, doJSON(t, router, http.MethodPost, "/bets", BetRequest{
		MarketID: m.ID,
		Address:  "alice",
		Amount:   decimal.NewFromInt(100),
		Side:     sideOf(model.Yes),
	}))

	// Before resolution the claim conflicts.
	rec := doJSON(t, router, http.MethodPost, "/markets/"+m.ID+"/claim", AddressRequest{Address: "alice"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 before resolution, got %d", rec.Code)
	}

	doJSON(t, router, http.MethodPost, "/markets/"+m.ID+"/resolve", ResolveRequest{Outcome: true})

	rec = doJSON(t, router, http.MethodPost, "/markets/"+m.ID+"/claim", AddressRequest{Address: "alice"})
	if rec.Code != http.StatusOK {
		t.Fatalf("claim: status %d, body %s", rec.Code, rec.Body.String())
	}
	payout := decodeBody[map[string]decimal.Decimal](t, rec)
	if !payout["payout"].Equal(bet.SharesOut) {
		t.Errorf("expected payout %s, got %s", bet.SharesOut, payout["payout"])
	}

	rec = doJSON(t, router, http.MethodPost, "/markets/"+m.ID+"/claim", AddressRequest{Address: "alice"})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on double claim, got %d", rec.Code)
	}
}

func TestDeposit_InvalidAmount(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/deposits", FundsRequest{
		Address: "alice",
		Amount:  decimal.Zero,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestWithdraw_Insufficient(t *testing.T) {
	router, _ := newTestRouter(t)
	fund(t, router, "alice", 10)

	rec := doJSON(t, router, http.MethodPost, "/withdrawals", FundsRequest{
		Address: "alice",
		Amount:  decimal.NewFromInt(11),
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestConfirmPayment_CreditsConvertedAmount(t *testing.T) {
	router, eng := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/payments/confirm", PaymentConfirmation{
		Address:    "alice",
		BaseAmount: decimal.NewFromInt(3),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: status %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody[map[string]decimal.Decimal](t, rec)
	if !body["credited"].Equal(decimal.NewFromInt(300)) {
		t.Errorf("expected 300 credited, got %s", body["credited"])
	}
	if !eng.Ledger().BalanceOf("alice").Equal(decimal.NewFromInt(300)) {
		t.Errorf("expected ledger balance 300, got %s", eng.Ledger().BalanceOf("alice"))
	}
}

func TestConfirmPayment_NonPositive(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/payments/confirm", PaymentConfirmation{
		Address:    "alice",
		BaseAmount: decimal.Zero,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestClaimRewards_AfterBet(t *testing.T) {
	router, _ := newTestRouter(t)
	m := createTestMarket(t, router, "creator-1")
	fund(t, router, "alice", 1000)

	doJSON(t, router, http.MethodPost, "/bets", BetRequest{
		MarketID: m.ID,
		Address:  "alice",
		Amount:   decimal.NewFromInt(100),
		Side:     sideOf(model.Yes),
	})

	rec := doJSON(t, router, http.MethodPost, "/rewards/claim", AddressRequest{Address: "creator-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("claim rewards: status %d", rec.Code)
	}
	body := decodeBody[map[string]decimal.Decimal](t, rec)
	if !body["claimed"].Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected claimed 1, got %s", body["claimed"])
	}
}

func TestGetAccount(t *testing.T) {
	router, _ := newTestRouter(t)
	m := createTestMarket(t, router, "")
	fund(t, router, "alice", 1000)

	doJSON(t, router, http.MethodPost, "/bets", BetRequest{
		MarketID: m.ID,
		Address:  "alice",
		Amount:   decimal.NewFromInt(100),
		Side:     sideOf(model.No),
	})

	rec := doJSON(t, router, http.MethodGet, "/accounts/alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get account: status %d", rec.Code)
	}
	acct := decodeBody[AccountResponse](t, rec)
	if !acct.Balance.Equal(decimal.NewFromInt(900)) {
		t.Errorf("expected balance 900, got %s", acct.Balance)
	}
	if len(acct.Positions) != 1 || acct.Positions[0].MarketID != m.ID {
		t.Errorf("expected one position in %s, got %v", m.ID, acct.Positions)
	}
	if !acct.Positions[0].NoShares.IsPositive() {
		t.Error("expected NO shares in the position")
	}
}

func TestGetAccount_UnknownAddress(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/accounts/nobody", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	acct := decodeBody[AccountResponse](t, rec)
	if !acct.Balance.IsZero() || len(acct.Positions) != 0 {
		t.Errorf("expected empty account, got %+v", acct)
	}
}
