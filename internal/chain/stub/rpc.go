package stub

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"

	"solana-trade-engine/internal/chain"
)

// Reader implements chain.Reader for testing.
type Reader struct {
	mu sync.Mutex

	Balances  map[string]uint64 // keyed by owner|mint
	Blockhash solana.Hash
	Statuses  map[string]*chain.SignatureStatus

	// Injected failures, returned when non-nil.
	BalanceErr   error
	BlockhashErr error
	StatusErr    error

	balanceCalls int
	statusCalls  int
}

// NewReader creates a new stub chain reader.
func NewReader() *Reader {
	return &Reader{
		Balances:  make(map[string]uint64),
		Blockhash: solana.Hash{9, 9, 9},
		Statuses:  make(map[string]*chain.SignatureStatus),
	}
}

var _ chain.Reader = (*Reader)(nil)

func balanceKey(owner, mint solana.PublicKey) string {
	return owner.String() + "|" + mint.String()
}

// SetBalance sets the owner's balance of mint.
func (r *Reader) SetBalance(owner, mint solana.PublicKey, amount uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Balances[balanceKey(owner, mint)] = amount
}

// SetStatus sets the status reported for signature.
func (r *Reader) SetStatus(signature string, status *chain.SignatureStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Statuses[signature] = status
}

// GetTokenBalance returns the stored balance, 0 when unset.
func (r *Reader) GetTokenBalance(_ context.Context, owner, mint solana.PublicKey) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balanceCalls++
	if r.BalanceErr != nil {
		return 0, r.BalanceErr
	}
	return r.Balances[balanceKey(owner, mint)], nil
}

// GetLatestBlockhash returns the configured blockhash.
func (r *Reader) GetLatestBlockhash(_ context.Context) (solana.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.BlockhashErr != nil {
		return solana.Hash{}, r.BlockhashErr
	}
	return r.Blockhash, nil
}

// GetSignatureStatuses returns stored statuses, nil for unknown signatures.
func (r *Reader) GetSignatureStatuses(_ context.Context, signatures ...string) ([]*chain.SignatureStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusCalls++
	if r.StatusErr != nil {
		return nil, r.StatusErr
	}
	out := make([]*chain.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		if st, ok := r.Statuses[sig]; ok {
			cp := *st
			out[i] = &cp
		}
	}
	return out, nil
}

// BalanceCalls returns how many balance lookups were made.
func (r *Reader) BalanceCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balanceCalls
}

// StatusCalls returns how many status lookups were made.
func (r *Reader) StatusCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusCalls
}
