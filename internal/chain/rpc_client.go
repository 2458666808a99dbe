package chain

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"

	"solana-trade-engine/internal/jsonrpc"
	"solana-trade-engine/internal/observability"
)

// HTTPClient implements Reader using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint   string
	rpc        *jsonrpc.Client
	commitment string
}

// NewHTTPClient creates a new Solana RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...jsonrpc.Option) *HTTPClient {
	return &HTTPClient{
		endpoint:   endpoint,
		rpc:        jsonrpc.New(opts...),
		commitment: CommitmentConfirmed,
	}
}

// WithCommitment sets the commitment used for reads.
func (c *HTTPClient) WithCommitment(commitment string) *HTTPClient {
	if commitment != "" {
		c.commitment = commitment
	}
	return c
}

// Compile-time interface check.
var _ Reader = (*HTTPClient)(nil)

func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	start := time.Now()
	err := c.rpc.Call(ctx, c.endpoint, method, params, result)
	observability.RecordRPCLatency(method, time.Since(start).Seconds())
	return err
}

// GetTokenBalance retrieves the owner's associated token account balance.
func (c *HTTPClient) GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, fmt.Errorf("derive associated token account: %w", err)
	}

	exists, err := c.accountExists(ctx, ata.String())
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	params := []interface{}{
		ata.String(),
		map[string]interface{}{"commitment": c.commitment},
	}

	var result getTokenAccountBalanceResult
	if err := c.call(ctx, "getTokenAccountBalance", params, &result); err != nil {
		return 0, err
	}
	if result.Value == nil {
		return 0, nil
	}

	amount, err := strconv.ParseUint(result.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse token amount %q: %w", result.Value.Amount, err)
	}
	return amount, nil
}

type getTokenAccountBalanceResult struct {
	Value *struct {
		Amount   string `json:"amount"`
		Decimals uint8  `json:"decimals"`
	} `json:"value"`
}

// accountExists checks whether an account is allocated.
func (c *HTTPClient) accountExists(ctx context.Context, pubkey string) (bool, error) {
	params := []interface{}{
		pubkey,
		map[string]interface{}{
			"encoding":   "base64",
			"commitment": c.commitment,
		},
	}

	var result getAccountInfoResult
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return false, err
	}
	return result.Value != nil, nil
}

type getAccountInfoResult struct {
	Value *struct {
		Lamports uint64 `json:"lamports"`
		Owner    string `json:"owner"`
	} `json:"value"`
}

// GetLatestBlockhash retrieves a recent blockhash.
func (c *HTTPClient) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	params := []interface{}{
		map[string]interface{}{"commitment": c.commitment},
	}

	var result getLatestBlockhashResult
	if err := c.call(ctx, "getLatestBlockhash", params, &result); err != nil {
		return solana.Hash{}, err
	}

	hash, err := solana.HashFromBase58(result.Value.Blockhash)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("parse blockhash: %w", err)
	}
	return hash, nil
}

type getLatestBlockhashResult struct {
	Value struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	} `json:"value"`
}

// GetSignatureStatuses retrieves statuses, searching transaction history.
func (c *HTTPClient) GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error) {
	if len(signatures) == 0 {
		return nil, nil
	}

	params := []interface{}{
		signatures,
		map[string]interface{}{"searchTransactionHistory": true},
	}

	var result getSignatureStatusesResult
	if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return nil, err
	}

	statuses := make([]*SignatureStatus, len(signatures))
	for i := range signatures {
		if i >= len(result.Value) || result.Value[i] == nil {
			continue
		}
		v := result.Value[i]
		statuses[i] = &SignatureStatus{
			Slot:               v.Slot,
			Confirmations:      v.Confirmations,
			Err:                v.Err,
			ConfirmationStatus: v.ConfirmationStatus,
		}
	}
	return statuses, nil
}

type getSignatureStatusesResult struct {
	Value []*getSignatureStatusValue `json:"value"`
}

type getSignatureStatusValue struct {
	Slot               uint64      `json:"slot"`
	Confirmations      *uint64     `json:"confirmations"`
	Err                interface{} `json:"err"`
	ConfirmationStatus string      `json:"confirmationStatus"`
}
