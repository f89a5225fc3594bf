package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/meme-clash/market-engine/internal/metrics"
	"github.com/meme-clash/market-engine/internal/model"
)

type opKind int

const (
	opMarket opKind = iota
	opAccount
	opPosition
)

type op struct {
	kind     opKind
	market   model.Market
	account  model.Account
	position model.Position
}

// Writer drains committed snapshots to a Store on a single goroutine, so
// successive snapshots of the same entity are written in commit order.
// Write failures are logged and counted; the engine keeps running on its
// in-memory state (degraded, memory-only mode).
type Writer struct {
	st      Store
	timeout time.Duration
	ops     chan op
	done    chan struct{}
}

// NewWriter creates a writer with the given queue depth.
func NewWriter(st Store, buffer int) *Writer {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Writer{
		st:      st,
		timeout: 5 * time.Second,
		ops:     make(chan op, buffer),
		done:    make(chan struct{}),
	}
}

// Run consumes the op queue until Close. Must be called in a goroutine.
func (w *Writer) Run() {
	defer close(w.done)
	for o := range w.ops {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		var err error
		switch o.kind {
		case opMarket:
			err = w.st.SaveMarket(ctx, o.market)
		case opAccount:
			err = w.st.SaveAccount(ctx, o.account)
		case opPosition:
			err = w.st.SavePosition(ctx, o.position)
		}
		cancel()
		if err != nil {
			metrics.PersistenceErrors.Inc()
			slog.Warn("snapshot write failed, continuing memory-only", "err", err)
		}
	}
}

// Close stops accepting snapshots and blocks until the queue drains.
func (w *Writer) Close() {
	close(w.ops)
	<-w.done
}

// MarketSaved enqueues a market snapshot.
func (w *Writer) MarketSaved(m model.Market) { w.ops <- op{kind: opMarket, market: m} }

// AccountSaved enqueues an account snapshot.
func (w *Writer) AccountSaved(a model.Account) { w.ops <- op{kind: opAccount, account: a} }

// PositionSaved enqueues a position snapshot.
func (w *Writer) PositionSaved(p model.Position) { w.ops <- op{kind: opPosition, position: p} }
