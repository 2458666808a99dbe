// Command profit prints the reconstructed profit of a user on one mint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"solana-trade-engine/internal/app"
	"solana-trade-engine/internal/config"
	"solana-trade-engine/internal/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config")
	userID := flag.Int64("user", 0, "User id")
	mint := flag.String("mint", "", "Token mint address")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.App.LogLevel, cfg.App.LogFormat).With().Str("cmd", "profit").Logger()

	if *mint == "" {
		logger.Fatal().Msg("--mint is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build pipeline")
	}
	defer a.Close()

	b, err := a.Profit.Breakdown(ctx, *userID, *mint)
	if err != nil {
		logger.Error().Err(err).Msg("calculate profit")
		os.Exit(1)
	}

	total := b.Lamports().Round(2)
	fmt.Printf("spent=%d received=%d balance=%d position=%d\n", b.SolSpent, b.SolReceived, b.Balance, b.PositionSol)
	fmt.Printf("profit_lamports=%s profit_sol=%s\n", total, total.Shift(-9).String())
}
