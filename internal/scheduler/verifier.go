package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-trade-engine/internal/chain"
)

// Verdict is the outcome of one confirmation lookup.
type Verdict int

const (
	// VerdictPending means the transaction is not yet visible at the
	// required commitment. Retried.
	VerdictPending Verdict = iota
	// VerdictConfirmed means the transaction landed without error.
	VerdictConfirmed
	// VerdictFailed means the transaction executed with an error. Terminal.
	VerdictFailed
)

func (v Verdict) String() string {
	switch v {
	case VerdictConfirmed:
		return "confirmed"
	case VerdictFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Verifier checks whether a transaction landed. A returned error is
// treated as a transient lookup failure.
type Verifier interface {
	Verify(ctx context.Context, txID string) (Verdict, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, txID string) (Verdict, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, txID string) (Verdict, error) {
	return f(ctx, txID)
}

// RPCVerifier checks getSignatureStatuses.
type RPCVerifier struct {
	Chain chain.Reader
}

// Verify looks up txID's status.
func (v *RPCVerifier) Verify(ctx context.Context, txID string) (Verdict, error) {
	statuses, err := v.Chain.GetSignatureStatuses(ctx, txID)
	if err != nil {
		return VerdictPending, fmt.Errorf("signature status: %w", err)
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return VerdictPending, nil
	}

	st := statuses[0]
	switch {
	case st.Failed():
		return VerdictFailed, nil
	case st.Confirmed():
		return VerdictConfirmed, nil
	default:
		return VerdictPending, nil
	}
}

// DefaultWatchTimeout bounds a single websocket wait.
const DefaultWatchTimeout = 10 * time.Second

// WSVerifier waits for a signatureSubscribe notification. When no
// notification arrives within Timeout the Fallback, if any, decides.
type WSVerifier struct {
	Subscriber chain.SignatureSubscriber
	Timeout    time.Duration
	Fallback   Verifier
}

// Verify subscribes to txID and waits for its notification.
func (v *WSVerifier) Verify(ctx context.Context, txID string) (Verdict, error) {
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = DefaultWatchTimeout
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch, err := v.Subscriber.SubscribeSignature(wctx, txID)
	if err != nil {
		if v.Fallback != nil {
			return v.Fallback.Verify(ctx, txID)
		}
		return VerdictPending, fmt.Errorf("subscribe signature: %w", err)
	}

	select {
	case n, ok := <-ch:
		if !ok {
			return v.fallback(ctx, txID, errors.New("subscription closed"))
		}
		if n.Err != nil {
			return VerdictFailed, nil
		}
		return VerdictConfirmed, nil
	case <-wctx.Done():
		if ctx.Err() != nil {
			return VerdictPending, ctx.Err()
		}
		return v.fallback(ctx, txID, nil)
	}
}

func (v *WSVerifier) fallback(ctx context.Context, txID string, cause error) (Verdict, error) {
	if v.Fallback != nil {
		return v.Fallback.Verify(ctx, txID)
	}
	return VerdictPending, cause
}
