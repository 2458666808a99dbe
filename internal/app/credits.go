package app

import (
	"context"

	"github.com/rs/zerolog"

	"solana-trade-engine/internal/config"
	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/scheduler"
)

// LogCredits is a scheduler.CreditSink that only logs credits. Applying
// them to a balance belongs to the account service.
type LogCredits struct {
	Logger zerolog.Logger
}

var _ scheduler.CreditSink = (*LogCredits)(nil)

// Credit logs the referral credit.
func (c *LogCredits) Credit(_ context.Context, userID int64, lamports uint64) error {
	c.Logger.Info().
		Int64("user_id", userID).
		Uint64("lamports", lamports).
		Str("sol", domain.LamportsToSOL(lamports).String()).
		Msg("referral credit earned")
	return nil
}

func domainPolicy(cfg config.Scheduler) domain.RetryPolicy {
	return domain.RetryPolicy{
		Delay:       cfg.Delay,
		Backoff:     cfg.Backoff,
		MaxAttempts: cfg.MaxAttempts,
	}
}
