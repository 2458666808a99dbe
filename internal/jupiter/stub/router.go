package stub

import (
	"context"
	"encoding/json"
	"sync"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/jupiter"
)

// Router implements jupiter.Router for testing.
// Quotes are looked up by input|output mint.
type Router struct {
	mu sync.Mutex

	Quotes   map[string]*domain.Quote
	SwapTx   []byte
	QuoteErr error
	SwapErr  error

	quoteCalls []QuoteCall
	swapCalls  int
}

// QuoteCall records one GetQuote invocation.
type QuoteCall struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
}

// NewRouter creates a new stub router.
func NewRouter() *Router {
	return &Router{Quotes: make(map[string]*domain.Quote)}
}

var _ jupiter.Router = (*Router)(nil)

// SetQuote sets the quote answered for a mint pair.
func (r *Router) SetQuote(inputMint, outputMint string, inAmount, outAmount uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Quotes[inputMint+"|"+outputMint] = &domain.Quote{
		InputMint:  inputMint,
		OutputMint: outputMint,
		InAmount:   inAmount,
		OutAmount:  outAmount,
		Route:      json.RawMessage(`{}`),
	}
}

// GetQuote returns the stored quote for the pair. The input amount is
// echoed back so callers observe what they asked for.
func (r *Router) GetQuote(_ context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*domain.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quoteCalls = append(r.quoteCalls, QuoteCall{inputMint, outputMint, amount, slippageBps})

	if r.QuoteErr != nil {
		return nil, r.QuoteErr
	}
	q, ok := r.Quotes[inputMint+"|"+outputMint]
	if !ok {
		return nil, &domain.QuoteError{Reason: "no route"}
	}
	cp := *q
	if cp.InAmount == 0 {
		cp.InAmount = amount
	}
	cp.SlippageBps = slippageBps
	return &cp, nil
}

// GetSwapTransaction returns SwapTx.
func (r *Router) GetSwapTransaction(_ context.Context, _ *domain.Quote, _ string, _ uint64) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.swapCalls++
	if r.SwapErr != nil {
		return nil, r.SwapErr
	}
	return append([]byte(nil), r.SwapTx...), nil
}

// QuoteCalls returns the recorded GetQuote invocations.
func (r *Router) QuoteCalls() []QuoteCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]QuoteCall(nil), r.quoteCalls...)
}

// SwapCalls returns how many swap transactions were built.
func (r *Router) SwapCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.swapCalls
}
