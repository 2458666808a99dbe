package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-trade-engine/internal/chain"
	chainstub "solana-trade-engine/internal/chain/stub"
)

func TestRPCVerifier(t *testing.T) {
	tests := []struct {
		name   string
		status *chain.SignatureStatus
		want   Verdict
	}{
		{"unknown", nil, VerdictPending},
		{"processed", &chain.SignatureStatus{ConfirmationStatus: chain.CommitmentProcessed}, VerdictPending},
		{"confirmed", &chain.SignatureStatus{ConfirmationStatus: chain.CommitmentConfirmed}, VerdictConfirmed},
		{"finalized", &chain.SignatureStatus{ConfirmationStatus: chain.CommitmentFinalized}, VerdictConfirmed},
		{"failed", &chain.SignatureStatus{ConfirmationStatus: chain.CommitmentConfirmed, Err: "boom"}, VerdictFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := chainstub.NewReader()
			if tt.status != nil {
				reader.SetStatus("sig", tt.status)
			}
			got, err := (&RPCVerifier{Chain: reader}).Verify(context.Background(), "sig")
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestRPCVerifier_Error(t *testing.T) {
	reader := chainstub.NewReader()
	reader.StatusErr = errors.New("unavailable")

	if _, err := (&RPCVerifier{Chain: reader}).Verify(context.Background(), "sig"); err == nil {
		t.Error("expected lookup error")
	}
}

// fakeSubscriber delivers notif for every subscription, or nothing when nil.
type fakeSubscriber struct {
	notif *chain.SignatureNotification
	err   error
}

func (f *fakeSubscriber) SubscribeSignature(_ context.Context, signature string) (<-chan chain.SignatureNotification, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan chain.SignatureNotification, 1)
	if f.notif != nil {
		n := *f.notif
		n.Signature = signature
		ch <- n
		close(ch)
	}
	return ch, nil
}

func (f *fakeSubscriber) Close() error { return nil }

func TestWSVerifier(t *testing.T) {
	confirmed := VerifierFunc(func(context.Context, string) (Verdict, error) { return VerdictConfirmed, nil })

	tests := []struct {
		name     string
		sub      *fakeSubscriber
		fallback Verifier
		want     Verdict
		wantErr  bool
	}{
		{"notified", &fakeSubscriber{notif: &chain.SignatureNotification{Slot: 1}}, nil, VerdictConfirmed, false},
		{"execution error", &fakeSubscriber{notif: &chain.SignatureNotification{Err: "fail"}}, nil, VerdictFailed, false},
		{"timeout without fallback", &fakeSubscriber{}, nil, VerdictPending, false},
		{"timeout with fallback", &fakeSubscriber{}, confirmed, VerdictConfirmed, false},
		{"subscribe error", &fakeSubscriber{err: errors.New("closed")}, nil, VerdictPending, true},
		{"subscribe error with fallback", &fakeSubscriber{err: errors.New("closed")}, confirmed, VerdictConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &WSVerifier{Subscriber: tt.sub, Timeout: 20 * time.Millisecond, Fallback: tt.fallback}
			got, err := v.Verify(context.Background(), "sig")
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
