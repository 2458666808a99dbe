// Command trade executes one buy or sell and waits (bounded) for its
// confirmation job to finish.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"solana-trade-engine/internal/app"
	"solana-trade-engine/internal/config"
	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/engine"
	"solana-trade-engine/internal/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config")
	userID := flag.Int64("user", 0, "User id owning the wallet")
	mint := flag.String("mint", "", "Token mint address")
	side := flag.String("side", "buy", "Trade side: buy or sell")
	amount := flag.String("amount", "", "SOL to spend (buy) or percent of balance to sell (sell)")
	wait := flag.Duration("wait", time.Minute, "How long to wait for confirmation; 0 returns immediately")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.App.LogLevel, cfg.App.LogFormat).With().Str("cmd", "trade").Logger()

	if *mint == "" || *amount == "" {
		logger.Fatal().Msg("--mint and --amount are required")
	}
	qty, err := decimal.NewFromString(*amount)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid --amount")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build pipeline")
	}
	defer a.Close()

	runCtx, stopScheduler := context.WithCancel(ctx)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		a.Scheduler.Run(runCtx)
	}()

	res, err := a.Engine.Trade(ctx, engine.Request{
		UserID: *userID,
		Mint:   *mint,
		Side:   domain.Side(*side),
		Amount: qty,
	})
	if err != nil {
		stopScheduler()
		<-schedDone
		a.Close()
		logger.Error().Err(err).Msg("trade failed")
		os.Exit(exitCode(err))
	}

	fmt.Printf("bundle=%s tx=%s trade=%s referral_lamports=%d\n",
		res.BundleID, res.TxID, res.TradeID, res.ReferralCredit)

	if *wait > 0 {
		waitCtx, waitCancel := context.WithTimeout(ctx, *wait)
		if err := a.Scheduler.Drain(waitCtx); err != nil {
			logger.Warn().Err(err).Msg("confirmation still pending; it resumes on the next confirmer run")
		}
		waitCancel()
	}

	stopScheduler()
	<-schedDone
}

func exitCode(err error) int {
	switch {
	case domain.IsQuoteError(err):
		return 2
	case errors.Is(err, domain.ErrInsufficientBalance), errors.Is(err, domain.ErrAmountTooSmall):
		return 3
	case domain.IsRelayRejected(err):
		return 4
	case errors.Is(err, domain.ErrNotLanded):
		return 5
	default:
		return 1
	}
}
