// Package engine runs one trade through the pipeline:
// assemble (quote, swap, fee) -> submit bundle -> poll -> schedule confirmation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/observability"
)

// Assembler builds signed transaction sets.
type Assembler interface {
	BuildBuy(ctx context.Context, userID int64, nativeAmount decimal.Decimal, mint string) (*domain.Assembly, error)
	BuildSell(ctx context.Context, userID int64, sellRatePercent decimal.Decimal, mint string) (*domain.Assembly, error)
}

// Bundler submits bundles and polls their inclusion.
type Bundler interface {
	Submit(ctx context.Context, set domain.SignedTransactionSet) (*domain.BundleResult, error)
	PollStatus(ctx context.Context, bundleID string) (*domain.BundleStatusResult, error)
}

// Scheduler accepts confirmation jobs.
type Scheduler interface {
	Enqueue(ctx context.Context, job domain.ConfirmationJob) error
}

// EventRecorder appends lifecycle events to the audit log.
type EventRecorder interface {
	Record(ctx context.Context, e *domain.TradeEvent)
}

// Options for creating an Engine.
type Options struct {
	Assembler Assembler
	Bundler   Bundler
	Scheduler Scheduler
	Events    EventRecorder // optional
	Logger    zerolog.Logger
}

// Engine executes trades. It is safe for concurrent use; trades share no
// state beyond the collaborators.
type Engine struct {
	assembler Assembler
	bundler   Bundler
	scheduler Scheduler
	events    EventRecorder
	log       zerolog.Logger
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Assembler == nil:
		return nil, errors.New("engine: assembler is required")
	case opts.Bundler == nil:
		return nil, errors.New("engine: bundler is required")
	case opts.Scheduler == nil:
		return nil, errors.New("engine: scheduler is required")
	}
	return &Engine{
		assembler: opts.Assembler,
		bundler:   opts.Bundler,
		scheduler: opts.Scheduler,
		events:    opts.Events,
		log:       opts.Logger.With().Str("component", "engine").Logger(),
	}, nil
}

// Request is one trade. Amount is SOL for a buy and a percentage of the
// current token balance for a sell.
type Request struct {
	UserID int64
	Mint   string
	Side   domain.Side
	Amount decimal.Decimal
}

// Result identifies a landed trade whose confirmation is scheduled.
type Result struct {
	BundleID       string
	TxID           string
	TradeID        string
	ReferralCredit uint64
}

// Trade runs req to the point where inclusion is known and confirmation
// is scheduled. It does not wait for confirmation.
func (e *Engine) Trade(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	res, err := e.trade(ctx, req)

	outcome := outcomeOf(err)
	observability.RecordTrade(string(req.Side), outcome, time.Since(start).Seconds())

	log := e.log.With().
		Int64("user_id", req.UserID).
		Str("mint", req.Mint).
		Str("side", string(req.Side)).
		Str("outcome", outcome).
		Dur("elapsed", time.Since(start)).
		Logger()
	if err != nil {
		log.Warn().Err(err).Msg("trade failed")
		return nil, err
	}
	log.Info().Str("bundle_id", res.BundleID).Str("tx_id", res.TxID).Msg("trade landed")
	return res, nil
}

func (e *Engine) trade(ctx context.Context, req Request) (*Result, error) {
	var (
		asm *domain.Assembly
		err error
	)
	switch req.Side {
	case domain.SideBuy:
		asm, err = e.assembler.BuildBuy(ctx, req.UserID, req.Amount, req.Mint)
	case domain.SideSell:
		asm, err = e.assembler.BuildSell(ctx, req.UserID, req.Amount, req.Mint)
	default:
		return nil, fmt.Errorf("side %q: %w", req.Side, domain.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Side, req.Mint, err)
	}

	trade := asm.Trade

	bundle, err := e.bundler.Submit(ctx, asm.Transactions)
	if err != nil {
		e.record(ctx, trade, "", domain.StageRejected, err.Error())
		return nil, fmt.Errorf("submit bundle for trade %s: %w", trade.ID, err)
	}
	e.record(ctx, trade, bundle.BundleID, domain.StageSubmitted, "")

	status, err := e.bundler.PollStatus(ctx, bundle.BundleID)
	if err != nil {
		e.record(ctx, trade, bundle.BundleID, domain.StageNotLanded, err.Error())
		return nil, fmt.Errorf("bundle %s for trade %s: %w", bundle.BundleID, trade.ID, err)
	}

	if ref := status.Reference(); ref != trade.TxID {
		e.log.Warn().
			Str("bundle_id", bundle.BundleID).
			Str("reported", ref).
			Str("tx_id", trade.TxID).
			Msg("relay reference differs from signed fee transaction")
	}
	e.record(ctx, trade, bundle.BundleID, domain.StageLanded, "")

	result := &Result{
		BundleID:       bundle.BundleID,
		TxID:           trade.TxID,
		TradeID:        trade.ID,
		ReferralCredit: asm.ReferralCredit,
	}

	// The trade landed; a scheduling failure leaves the row pending for
	// reconciliation and does not fail the trade.
	err = e.scheduler.Enqueue(ctx, domain.ConfirmationJob{
		TxID:           trade.TxID,
		UserID:         trade.UserID,
		ReferralCredit: asm.ReferralCredit,
	})
	if err != nil {
		e.log.Error().Err(err).Str("tx_id", trade.TxID).Msg("schedule confirmation")
	}

	return result, nil
}

func (e *Engine) record(ctx context.Context, t *domain.Trade, bundleID string, stage domain.TradeStage, detail string) {
	if e.events == nil {
		return
	}
	e.events.Record(ctx, &domain.TradeEvent{
		TradeID:  t.ID,
		TxID:     t.TxID,
		BundleID: bundleID,
		UserID:   t.UserID,
		Mint:     t.Mint,
		Side:     t.Side,
		Stage:    stage,
		Detail:   detail,
	})
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "landed"
	case domain.IsQuoteError(err):
		return "quote_error"
	case errors.Is(err, domain.ErrInsufficientBalance), errors.Is(err, domain.ErrAmountTooSmall):
		return "policy"
	case domain.IsRelayRejected(err):
		return "rejected"
	case errors.Is(err, domain.ErrNotLanded):
		return "not_landed"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
