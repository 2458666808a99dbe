// Package profit reconstructs a user's realized and unrealized profit on
// one mint from the ledger and live chain state.
package profit

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"solana-trade-engine/internal/chain"
	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/jupiter"
	"solana-trade-engine/internal/wallet"
)

// DefaultQuoteSlippageBps is the slippage used to price the open position.
const DefaultQuoteSlippageBps = 50

// TradeFinder lists a user's trades for a mint.
type TradeFinder interface {
	FindTrades(ctx context.Context, userID int64, mint string) ([]*domain.Trade, error)
}

// Options configures a Calculator.
type Options struct {
	Ledger      TradeFinder
	Chain       chain.Reader
	Router      jupiter.Router
	Wallets     wallet.Provider
	SlippageBps int // zero selects DefaultQuoteSlippageBps
}

// Calculator computes profit. It never writes.
type Calculator struct {
	ledger      TradeFinder
	chain       chain.Reader
	router      jupiter.Router
	wallets     wallet.Provider
	slippageBps int
}

// New creates a Calculator.
func New(opts Options) (*Calculator, error) {
	if opts.Ledger == nil || opts.Chain == nil || opts.Router == nil || opts.Wallets == nil {
		return nil, errors.New("profit: ledger, chain, router and wallets are required")
	}
	bps := opts.SlippageBps
	if bps <= 0 {
		bps = DefaultQuoteSlippageBps
	}
	return &Calculator{
		ledger:      opts.Ledger,
		chain:       opts.Chain,
		router:      opts.Router,
		wallets:     opts.Wallets,
		slippageBps: bps,
	}, nil
}

// Breakdown holds the components of a profit figure, in lamports.
type Breakdown struct {
	SolSpent    uint64 // sum of buy sol amounts
	SolReceived uint64 // sum of sell sol amounts
	Balance     uint64 // live token balance
	PositionSol uint64 // balance quoted back to SOL
}

// Lamports returns received - spent + position, unrounded.
func (b Breakdown) Lamports() decimal.Decimal {
	return decimal.NewFromUint64(b.SolReceived).
		Sub(decimal.NewFromUint64(b.SolSpent)).
		Add(decimal.NewFromUint64(b.PositionSol))
}

// CalculateProfit returns round(received - spent + position, 2) in lamports.
// Confirmed and pending rows both count.
func (c *Calculator) CalculateProfit(ctx context.Context, userID int64, mint string) (decimal.Decimal, error) {
	b, err := c.Breakdown(ctx, userID, mint)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Lamports().Round(2), nil
}

// Breakdown gathers the inputs of CalculateProfit.
func (c *Calculator) Breakdown(ctx context.Context, userID int64, mint string) (*Breakdown, error) {
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, fmt.Errorf("mint %q: %w", mint, domain.ErrInvalidInput)
	}

	signer, err := c.wallets.Wallet(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve wallet: %w", err)
	}

	var (
		trades []*domain.Trade
		b      Breakdown
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		trades, err = c.ledger.FindTrades(gctx, userID, mintKey.String())
		return err
	})
	g.Go(func() error {
		var err error
		b.Balance, err = c.chain.GetTokenBalance(gctx, signer.PublicKey(), mintKey)
		if err != nil {
			return fmt.Errorf("token balance: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, t := range trades {
		if t.IsBuy() {
			b.SolSpent += t.SolAmount
		} else {
			b.SolReceived += t.SolAmount
		}
	}

	if b.Balance > 0 {
		quote, err := c.router.GetQuote(ctx, mintKey.String(), domain.NativeMint, b.Balance, c.slippageBps)
		if err != nil {
			return nil, fmt.Errorf("price open position: %w", err)
		}
		b.PositionSol = quote.OutAmount
	}

	return &b, nil
}
