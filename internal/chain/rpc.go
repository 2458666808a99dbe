// Package chain reads live Solana state over JSON-RPC and websocket.
package chain

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// Reader defines the chain reads the trade pipeline depends on.
type Reader interface {
	// GetTokenBalance returns the owner's balance of mint in base units.
	// A missing associated token account yields 0.
	GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error)

	// GetLatestBlockhash returns a recent blockhash for new transactions.
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)

	// GetSignatureStatuses returns one entry per signature, nil when unknown.
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error)
}

// Commitment levels reported in confirmationStatus.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// SignatureStatus is one getSignatureStatuses entry.
type SignatureStatus struct {
	Slot               uint64
	Confirmations      *uint64 // nil once finalized
	Err                interface{}
	ConfirmationStatus string
}

// Confirmed reports whether the transaction reached at least confirmed commitment.
func (s *SignatureStatus) Confirmed() bool {
	return s.ConfirmationStatus == CommitmentConfirmed || s.ConfirmationStatus == CommitmentFinalized
}

// Failed reports whether the transaction executed with an error.
func (s *SignatureStatus) Failed() bool {
	return s.Err != nil
}
