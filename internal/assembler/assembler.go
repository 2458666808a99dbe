// Package assembler builds the signed transaction set for one buy or sell:
// the routed swap plus a System Program transfer carrying the 1% platform fee.
package assembler

import (
	"context"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"solana-trade-engine/internal/chain"
	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/jupiter"
	"solana-trade-engine/internal/policy"
	"solana-trade-engine/internal/wallet"
)

// TradeRecorder persists the pending ledger row for an assembled trade.
type TradeRecorder interface {
	CreatePendingTrade(ctx context.Context, t *domain.Trade) (string, error)
}

// Options configures an Assembler. All fields except Logger are required.
type Options struct {
	Router       jupiter.Router
	Chain        chain.Reader
	Wallets      wallet.Provider
	Policy       policy.Provider
	Ledger       TradeRecorder
	FeeRecipient solana.PublicKey
	Logger       zerolog.Logger
}

// Assembler builds signed buy and sell transaction sets.
type Assembler struct {
	router       jupiter.Router
	chain        chain.Reader
	wallets      wallet.Provider
	policy       policy.Provider
	ledger       TradeRecorder
	feeRecipient solana.PublicKey
	log          zerolog.Logger
}

// New creates an Assembler.
func New(opts Options) (*Assembler, error) {
	switch {
	case opts.Router == nil:
		return nil, errors.New("assembler: router is required")
	case opts.Chain == nil:
		return nil, errors.New("assembler: chain reader is required")
	case opts.Wallets == nil:
		return nil, errors.New("assembler: wallet provider is required")
	case opts.Policy == nil:
		return nil, errors.New("assembler: policy provider is required")
	case opts.Ledger == nil:
		return nil, errors.New("assembler: ledger is required")
	case opts.FeeRecipient.IsZero():
		return nil, errors.New("assembler: fee recipient is required")
	}

	return &Assembler{
		router:       opts.Router,
		chain:        opts.Chain,
		wallets:      opts.Wallets,
		policy:       opts.Policy,
		ledger:       opts.Ledger,
		feeRecipient: opts.FeeRecipient,
		log:          opts.Logger.With().Str("component", "assembler").Logger(),
	}, nil
}

// BuildBuy spends nativeAmount SOL on mint.
func (a *Assembler) BuildBuy(ctx context.Context, userID int64, nativeAmount decimal.Decimal, mint string) (*domain.Assembly, error) {
	mintKey, err := parseMint(mint)
	if err != nil {
		return nil, err
	}
	if !nativeAmount.IsPositive() {
		return nil, fmt.Errorf("native amount must be positive: %w", domain.ErrInvalidInput)
	}

	lamports := domain.ToLamports(nativeAmount)
	if lamports == 0 {
		return nil, domain.ErrAmountTooSmall
	}

	signer, err := a.wallets.Wallet(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve wallet: %w", err)
	}

	var (
		quote     *domain.Quote
		blockhash solana.Hash
		tip       uint64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bps, err := a.policy.SlippageBps(gctx, userID)
		if err != nil {
			return fmt.Errorf("slippage policy: %w", err)
		}
		quote, err = a.router.GetQuote(gctx, domain.NativeMint, mintKey.String(), lamports, bps)
		return err
	})
	g.Go(func() error {
		var err error
		blockhash, err = a.chain.GetLatestBlockhash(gctx)
		if err != nil {
			return fmt.Errorf("latest blockhash: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		tip, err = a.policy.TipLamports(gctx, userID)
		if err != nil {
			return fmt.Errorf("tip policy: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fee := domain.PlatformFee(lamports)
	txs, err := a.sign(ctx, signer, quote, tip, fee, blockhash)
	if err != nil {
		return nil, err
	}

	trade, err := domain.NewTrade(userID, mintKey.String(), quote.OutAmount, quote.InAmount, domain.SideBuy)
	if err != nil {
		return nil, err
	}

	return a.finish(ctx, domain.SideBuy, txs, fee, trade)
}

// BuildSell sells sellRatePercent of the user's live mint balance for SOL.
func (a *Assembler) BuildSell(ctx context.Context, userID int64, sellRatePercent decimal.Decimal, mint string) (*domain.Assembly, error) {
	mintKey, err := parseMint(mint)
	if err != nil {
		return nil, err
	}
	if !sellRatePercent.IsPositive() || sellRatePercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("sell rate must be within (0, 100]: %w", domain.ErrInvalidInput)
	}

	signer, err := a.wallets.Wallet(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve wallet: %w", err)
	}

	var (
		balance   uint64
		bps       int
		tip       uint64
		blockhash solana.Hash
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balance, err = a.chain.GetTokenBalance(gctx, signer.PublicKey(), mintKey)
		if err != nil {
			return fmt.Errorf("token balance: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		bps, err = a.policy.SlippageBps(gctx, userID)
		if err != nil {
			return fmt.Errorf("slippage policy: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		tip, err = a.policy.TipLamports(gctx, userID)
		if err != nil {
			return fmt.Errorf("tip policy: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		blockhash, err = a.chain.GetLatestBlockhash(gctx)
		if err != nil {
			return fmt.Errorf("latest blockhash: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if balance == 0 {
		return nil, domain.ErrInsufficientBalance
	}
	sellAmount := domain.PortionOf(balance, sellRatePercent)
	if sellAmount == 0 {
		return nil, domain.ErrAmountTooSmall
	}

	quote, err := a.router.GetQuote(ctx, mintKey.String(), domain.NativeMint, sellAmount, bps)
	if err != nil {
		return nil, err
	}

	fee := domain.PlatformFee(quote.OutAmount)
	txs, err := a.sign(ctx, signer, quote, tip, fee, blockhash)
	if err != nil {
		return nil, err
	}

	trade, err := domain.NewTrade(userID, mintKey.String(), sellAmount, quote.OutAmount, domain.SideSell)
	if err != nil {
		return nil, err
	}

	return a.finish(ctx, domain.SideSell, txs, fee, trade)
}

// sign returns the signed [swap, fee] pair.
func (a *Assembler) sign(ctx context.Context, signer wallet.Signer, quote *domain.Quote, tip, fee uint64, blockhash solana.Hash) (domain.SignedTransactionSet, error) {
	raw, err := a.router.GetSwapTransaction(ctx, quote, signer.PublicKey().String(), tip)
	if err != nil {
		return nil, err
	}

	swapTx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("decode swap transaction: %w", err)
	}

	feeTx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(fee, signer.PublicKey(), a.feeRecipient).Build(),
		},
		blockhash,
		solana.TransactionPayer(signer.PublicKey()),
	)
	if err != nil {
		return nil, fmt.Errorf("build fee transaction: %w", err)
	}

	set := make(domain.SignedTransactionSet, 0, 2)
	for _, tx := range []*solana.Transaction{swapTx, feeTx} {
		signed, err := signTransaction(tx, signer)
		if err != nil {
			return nil, err
		}
		set = append(set, signed)
	}
	return set, nil
}

func (a *Assembler) finish(ctx context.Context, side domain.Side, txs domain.SignedTransactionSet, fee uint64, trade *domain.Trade) (*domain.Assembly, error) {
	trade.TxID = txs.Reference()

	if _, err := a.ledger.CreatePendingTrade(ctx, trade); err != nil {
		return nil, err
	}

	a.log.Info().
		Str("side", string(side)).
		Int64("user_id", trade.UserID).
		Str("mint", trade.Mint).
		Uint64("amount", trade.Amount).
		Uint64("sol_amount", trade.SolAmount).
		Uint64("fee", fee).
		Str("tx_id", trade.TxID).
		Msg("trade assembled")

	return &domain.Assembly{
		Side:           side,
		Transactions:   txs,
		ReferralCredit: domain.ReferralCredit(fee),
		Fee:            fee,
		Trade:          trade,
	}, nil
}

// signTransaction fills the wallet's signature slot and encodes tx.
func signTransaction(tx *solana.Transaction, signer wallet.Signer) (domain.SignedTransaction, error) {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return domain.SignedTransaction{}, fmt.Errorf("encode message: %w", err)
	}

	signers := tx.Message.Signers()
	idx := -1
	for i, key := range signers {
		if key.Equals(signer.PublicKey()) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.SignedTransaction{}, fmt.Errorf("wallet %s is not a signer of the transaction", signer.PublicKey())
	}

	if len(tx.Signatures) != len(signers) {
		sigs := make([]solana.Signature, len(signers))
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}

	sig, err := signer.Sign(msg)
	if err != nil {
		return domain.SignedTransaction{}, fmt.Errorf("sign transaction: %w", err)
	}
	tx.Signatures[idx] = sig

	raw, err := tx.MarshalBinary()
	if err != nil {
		return domain.SignedTransaction{}, fmt.Errorf("encode transaction: %w", err)
	}

	return domain.SignedTransaction{Signature: tx.Signatures[0].String(), Raw: raw}, nil
}

func parseMint(mint string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("mint %q: %w", mint, domain.ErrInvalidInput)
	}
	return key, nil
}
