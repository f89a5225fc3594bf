package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/meme-clash/market-engine/internal/cpmm"
	"github.com/meme-clash/market-engine/internal/engine"
	"github.com/meme-clash/market-engine/internal/fees"
	"github.com/meme-clash/market-engine/internal/ledger"
	"github.com/meme-clash/market-engine/internal/market"
	"github.com/meme-clash/market-engine/internal/metrics"
	"github.com/meme-clash/market-engine/internal/payment"
	"github.com/meme-clash/market-engine/internal/store"
	"github.com/meme-clash/market-engine/internal/trade"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Durable snapshot store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")
	} else if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = store.NewRedisStore(rdb)
		slog.Info("connected to Redis")
	} else {
		slog.Warn("DATABASE_URL and REDIS_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Core services ---
	pricing, err := cpmm.New(fees.DefaultRate)
	if err != nil {
		slog.Error("invalid fee rate", "err", err)
		os.Exit(1)
	}

	maxDuration := market.DefaultMaxDuration
	if v := os.Getenv("MAX_MARKET_DURATION_HOURS"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours <= 0 {
			slog.Error("invalid MAX_MARKET_DURATION_HOURS", "value", v)
			os.Exit(1)
		}
		maxDuration = time.Duration(hours) * time.Hour
	}

	registry := market.NewRegistry(maxDuration)
	led := ledger.New()

	// Load the last committed snapshots. A missing or corrupt record falls
	// back to empty state rather than failing startup.
	restore(registry, led, st)

	writer := store.NewWriter(st, 0)
	go writer.Run()

	eng := engine.New(registry, led, pricing, fees.NewSplitter(), writer)

	rate := payment.DefaultConversionRate
	if v := os.Getenv("CONVERSION_RATE"); v != "" {
		parsed, err := decimal.NewFromString(v)
		if err != nil || !parsed.IsPositive() {
			slog.Error("invalid CONVERSION_RATE", "value", v)
			os.Exit(1)
		}
		rate = parsed
	}
	rail := payment.NewRail(led, rate)

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run()

	// --- Trade service ---
	svc := trade.NewService(eng, rail, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"market-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time price updates.
		r.Get("/ws", wsHub.HandleWS)

		// Market management.
		r.Get("/markets", svc.ListMarkets)
		r.Post("/markets", svc.CreateMarket)
		r.Get("/markets/{marketID}", svc.GetMarket)
		r.Get("/markets/{marketID}/price", svc.GetPrice)
		r.Post("/markets/{marketID}/resolve", svc.ResolveMarket)
		r.Post("/markets/{marketID}/claim", svc.ClaimWinnings)

		// Bets.
		r.Post("/bets", svc.PlaceBet)

		// Ledger.
		r.Post("/deposits", svc.Deposit)
		r.Post("/withdrawals", svc.Withdraw)
		r.Post("/payments/confirm", svc.ConfirmPayment)
		r.Post("/rewards/claim", svc.ClaimRewards)
		r.Get("/accounts/{address}", svc.GetAccount)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("market-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down market-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	writer.Close() // drain pending snapshots
	fmt.Println("market-engine stopped")
}

// restore seeds the registry and ledger from the last persisted snapshots.
func restore(registry *market.Registry, led *ledger.Ledger, st store.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	markets, err := st.LoadMarkets(ctx)
	if err != nil {
		slog.Warn("loading markets failed, starting empty", "err", err)
		markets = nil
	}
	positions, err := st.LoadPositions(ctx)
	if err != nil {
		slog.Warn("loading positions failed, starting empty", "err", err)
		positions = nil
	}
	active := 0
	for _, m := range markets {
		registry.Restore(m, positions[m.ID])
		if !m.Resolved {
			active++
		}
	}
	metrics.ActiveMarkets.Set(float64(active))

	accounts, err := st.LoadAccounts(ctx)
	if err != nil {
		slog.Warn("loading accounts failed, starting empty", "err", err)
		accounts = nil
	}
	for _, a := range accounts {
		led.Restore(a)
	}

	slog.Info("state restored",
		"markets", len(markets),
		"accounts", len(accounts),
	)
}
