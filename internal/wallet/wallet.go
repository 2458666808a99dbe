// Package wallet resolves a user's signing wallet.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ErrWalletNotFound is returned when a user has no registered wallet.
var ErrWalletNotFound = errors.New("wallet not found")

// Signer is the capability to sign arbitrary transaction message bytes.
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(message []byte) (solana.Signature, error)
}

// Provider returns the signing wallet for a user.
type Provider interface {
	Wallet(ctx context.Context, userID int64) (Signer, error)
}

// keySigner signs with an in-process ed25519 key.
type keySigner struct {
	key solana.PrivateKey
}

// NewSigner wraps a private key as a Signer.
func NewSigner(key solana.PrivateKey) (Signer, error) {
	if len(key) != 64 {
		return nil, fmt.Errorf("private key must be 64 bytes, got %d", len(key))
	}
	return &keySigner{key: key}, nil
}

func (s *keySigner) PublicKey() solana.PublicKey {
	return s.key.PublicKey()
}

func (s *keySigner) Sign(message []byte) (solana.Signature, error) {
	return s.key.Sign(message)
}

// ParsePrivateKey decodes a base58 64-byte secret key.
func ParsePrivateKey(encoded string) (solana.PrivateKey, error) {
	key, err := solana.PrivateKeyFromBase58(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(key) != 64 {
		return nil, fmt.Errorf("private key must be 64 bytes, got %d", len(key))
	}
	return key, nil
}
