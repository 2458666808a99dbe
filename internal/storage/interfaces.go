package storage

import (
	"context"
	"time"

	"solana-trade-engine/internal/domain"
)

// TradeStore provides access to trades storage.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Trade, error)

	// GetByTxID retrieves the trade carrying an on-chain reference.
	// Returns ErrNotFound if not exists.
	GetByTxID(ctx context.Context, txID string) (*domain.Trade, error)

	// MarkConfirmed sets confirmed=true on every trade with txID and reports
	// how many rows changed. Zero rows is not an error.
	MarkConfirmed(ctx context.Context, txID string) (int64, error)

	// GetByUserMint retrieves all trades for a user and mint, ordered by created_at ASC.
	GetByUserMint(ctx context.Context, userID int64, mint string) ([]*domain.Trade, error)
}

// TradeEventStore provides access to the append-only trade_events log.
type TradeEventStore interface {
	// Append adds a lifecycle event.
	Append(ctx context.Context, e *domain.TradeEvent) error

	// GetByTradeID retrieves all events for a trade, ordered by occurred_at ASC.
	GetByTradeID(ctx context.Context, tradeID string) ([]*domain.TradeEvent, error)
}

// JobStore persists confirmation jobs so they survive restarts.
type JobStore interface {
	// Save creates or replaces a job by ID.
	Save(ctx context.Context, job *domain.ConfirmationJob) error

	// Delete removes a job. Deleting a missing job is not an error.
	Delete(ctx context.Context, id string) error

	// Get retrieves a job by ID. Returns ErrNotFound once it was deleted.
	Get(ctx context.Context, id string) (*domain.ConfirmationJob, error)

	// List returns all stored jobs ordered by not_before ASC.
	List(ctx context.Context) ([]*domain.ConfirmationJob, error)
}

// JobClaimer is implemented by job stores that several schedulers share.
// A claimed job runs in exactly one scheduler until its lease elapses or
// the job is saved in a non-running state.
type JobClaimer interface {
	// Claim leases the job for lease. It reports false when another
	// scheduler holds an unexpired lease or the job no longer exists.
	Claim(ctx context.Context, id string, lease time.Duration) (bool, error)
}
