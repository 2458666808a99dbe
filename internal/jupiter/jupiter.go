// Package jupiter resolves swap routes and builds swap transactions through
// the Jupiter v6 HTTP API.
package jupiter

import (
	"context"

	"solana-trade-engine/internal/domain"
)

// Router is the route service contract used by the trade pipeline.
type Router interface {
	// GetQuote fetches the best route for amount base units of inputMint.
	// Failures are reported as *domain.QuoteError and never retried.
	GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*domain.Quote, error)

	// GetSwapTransaction exchanges a quote for unsigned transaction bytes
	// paying userPublicKey, with tipLamports as the relay tip.
	GetSwapTransaction(ctx context.Context, quote *domain.Quote, userPublicKey string, tipLamports uint64) ([]byte, error)
}
