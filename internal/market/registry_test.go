package market

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meme-clash/market-engine/internal/model"
)

func validSpec() CreateSpec {
	return CreateSpec{
		Question:       "Will BONK flip WIF market cap by Friday?",
		Description:    "Resolves YES if BONK market cap exceeds WIF on CoinGecko.",
		Category:       "MEMES",
		EndTime:        time.Now().Add(24 * time.Hour),
		CreatorAddress: "creator-1",
	}
}

func TestCreate_Defaults(t *testing.T) {
	r := NewRegistry(0)

	m, err := r.Create(validSpec(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.ID == "" {
		t.Error("expected a generated id")
	}
	if !m.YesShares.Equal(InitialShares) || !m.NoShares.Equal(InitialShares) {
		t.Errorf("expected pool (1000, 1000), got (%s, %s)", m.YesShares, m.NoShares)
	}
	if !m.YesPrice.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("expected initial price 0.5, got %s", m.YesPrice)
	}
	if !m.Volume.IsZero() || !m.TotalLiquidity.IsZero() {
		t.Error("expected zero volume and liquidity")
	}
	if m.Resolved || m.Outcome != nil {
		t.Error("new market must be unresolved")
	}
}

func TestCreate_EmptyQuestion(t *testing.T) {
	r := NewRegistry(0)
	spec := validSpec()
	spec.Question = "   "
	if _, err := r.Create(spec, time.Now()); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreate_UnknownCategory(t *testing.T) {
	r := NewRegistry(0)
	spec := validSpec()
	spec.Category = "WEATHER"
	if _, err := r.Create(spec, time.Now()); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreate_EndTimeInPast(t *testing.T) {
	r := NewRegistry(0)
	spec := validSpec()
	spec.EndTime = time.Now().Add(-time.Hour)
	if _, err := r.Create(spec, time.Now()); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreate_DurationBeyondMaximum(t *testing.T) {
	r := NewRegistry(0)
	spec := validSpec()
	spec.EndTime = time.Now().Add(DefaultMaxDuration + time.Hour)
	if _, err := r.Create(spec, time.Now()); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	r := NewRegistry(0)
	if _, err := r.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestList_MostRecentFirst(t *testing.T) {
	r := NewRegistry(0)

	first, _ := r.Create(validSpec(), time.Now())
	spec := validSpec()
	spec.Question = "Will PEPE hit $0.00005 this week?"
	second, _ := r.Create(spec, time.Now())

	markets := r.List("")
	if len(markets) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(markets))
	}
	if markets[0].ID != second.ID || markets[1].ID != first.ID {
		t.Error("expected most recent market first")
	}
}

func TestList_CategoryFilter(t *testing.T) {
	r := NewRegistry(0)

	r.Create(validSpec(), time.Now())
	spec := validSpec()
	spec.Category = "POLITICS"
	spec.Question = "Will the US Government sell its Silk Road Bitcoin stack?"
	political, _ := r.Create(spec, time.Now())

	markets := r.List("POLITICS")
	if len(markets) != 1 || markets[0].ID != political.ID {
		t.Fatalf("expected only the POLITICS market, got %d", len(markets))
	}
}

func TestResolve_OneWay(t *testing.T) {
	r := NewRegistry(0)
	m, _ := r.Create(validSpec(), time.Now())

	resolved, err := r.Resolve(m.ID, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resolved.Resolved || resolved.Outcome == nil || !*resolved.Outcome {
		t.Error("expected market resolved to YES")
	}

	if _, err := r.Resolve(m.ID, false); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved, got %v", err)
	}
	// The recorded outcome must not be overwritten.
	got, _ := r.Get(m.ID)
	if got.Outcome == nil || !*got.Outcome {
		t.Error("outcome was overwritten by the rejected resolution")
	}
}

func TestResolve_NotFound(t *testing.T) {
	r := NewRegistry(0)
	if _, err := r.Resolve("missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdate_CommitsMutation(t *testing.T) {
	r := NewRegistry(0)
	m, _ := r.Create(validSpec(), time.Now())

	err := r.Update(m.ID, func(m *model.Market, positions map[string]*model.Position) error {
		m.Volume = m.Volume.Add(decimal.NewFromInt(100))
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := r.Get(m.ID)
	if !got.Volume.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected volume 100, got %s", got.Volume)
	}
}

func TestRestore_PreservesState(t *testing.T) {
	r := NewRegistry(0)
	outcome := true
	m := model.Market{
		ID:        "restored-1",
		Question:  "restored?",
		Category:  "OTHER",
		YesShares: decimal.NewFromInt(900),
		NoShares:  decimal.NewFromInt(1100),
		YesPrice:  decimal.NewFromFloat(0.55),
		Resolved:  true,
		Outcome:   &outcome,
		CreatedAt: time.Now().UTC(),
	}
	r.Restore(m, []model.Position{{
		Address:   "alice",
		MarketID:  "restored-1",
		YesShares: decimal.NewFromInt(50),
		NoShares:  decimal.Zero,
		Invested:  decimal.NewFromInt(60),
	}})

	got, err := r.Get("restored-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Resolved || got.Outcome == nil || !*got.Outcome {
		t.Error("restored market lost its resolution")
	}

	p, _ := r.Position("restored-1", "alice")
	if !p.YesShares.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected restored position 50 YES shares, got %s", p.YesShares)
	}
}
