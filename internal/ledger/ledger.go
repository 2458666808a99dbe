// Package ledger records trades and their confirmation through a
// storage.TradeStore, mirroring each step to an optional audit log.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// Options configures a Ledger.
type Options struct {
	Trades storage.TradeStore
	Events storage.TradeEventStore // optional
	Logger zerolog.Logger
}

// Ledger is the settlement ledger.
type Ledger struct {
	trades storage.TradeStore
	events storage.TradeEventStore
	log    zerolog.Logger
	now    func() time.Time
}

// New creates a ledger.
func New(opts Options) *Ledger {
	return &Ledger{
		trades: opts.Trades,
		events: opts.Events,
		log:    opts.Logger.With().Str("component", "ledger").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreatePendingTrade persists t as unconfirmed and returns its id.
// An id is assigned when t has none.
func (l *Ledger) CreatePendingTrade(ctx context.Context, t *domain.Trade) (string, error) {
	if t == nil || t.Mint == "" || t.Amount == 0 || !t.Side.Valid() {
		return "", domain.ErrInvalidInput
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = l.now()
	}
	t.Confirmed = false

	if err := l.trades.Insert(ctx, t); err != nil {
		return "", fmt.Errorf("create pending trade: %w", err)
	}

	l.Record(ctx, &domain.TradeEvent{
		TradeID: t.ID,
		TxID:    t.TxID,
		UserID:  t.UserID,
		Mint:    t.Mint,
		Side:    t.Side,
		Stage:   domain.StagePending,
	})

	return t.ID, nil
}

// MarkConfirmed flips the trade carrying txID to confirmed. A missing
// row is a no-op, as is a row that is already confirmed.
func (l *Ledger) MarkConfirmed(ctx context.Context, txID string) error {
	n, err := l.trades.MarkConfirmed(ctx, txID)
	if err != nil {
		return fmt.Errorf("mark confirmed: %w", err)
	}
	if n == 0 {
		l.log.Debug().Str("tx_id", txID).Msg("no unconfirmed trade for reference")
		return nil
	}

	l.RecordTx(ctx, txID, domain.StageConfirmed, "")
	return nil
}

// FindTrades returns a user's trades for mint, oldest first.
func (l *Ledger) FindTrades(ctx context.Context, userID int64, mint string) ([]*domain.Trade, error) {
	trades, err := l.trades.GetByUserMint(ctx, userID, mint)
	if err != nil {
		return nil, fmt.Errorf("find trades: %w", err)
	}
	return trades, nil
}

// Record appends e to the audit log. Audit failures are logged and never
// fail the caller.
func (l *Ledger) Record(ctx context.Context, e *domain.TradeEvent) {
	if l.events == nil || e == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = l.now()
	}
	if err := l.events.Append(ctx, e); err != nil {
		l.log.Warn().Err(err).
			Str("trade_id", e.TradeID).
			Str("stage", string(e.Stage)).
			Msg("append trade event")
	}
}

// RecordTx appends an event for the trade carrying txID.
func (l *Ledger) RecordTx(ctx context.Context, txID string, stage domain.TradeStage, detail string) {
	if l.events == nil {
		return
	}

	e := &domain.TradeEvent{TxID: txID, Stage: stage, Detail: detail}
	t, err := l.trades.GetByTxID(ctx, txID)
	switch {
	case err == nil:
		e.TradeID = t.ID
		e.UserID = t.UserID
		e.Mint = t.Mint
		e.Side = t.Side
	case !errors.Is(err, storage.ErrNotFound):
		l.log.Warn().Err(err).Str("tx_id", txID).Msg("look up trade for event")
	}

	l.Record(ctx, e)
}
