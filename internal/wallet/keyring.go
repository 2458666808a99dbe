package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Keyring is an in-memory Provider keyed by user id.
type Keyring struct {
	mu   sync.RWMutex
	keys map[int64]solana.PrivateKey
}

// NewKeyring creates an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[int64]solana.PrivateKey)}
}

var _ Provider = (*Keyring)(nil)

// Add registers a private key for userID, replacing any previous key.
func (k *Keyring) Add(userID int64, key solana.PrivateKey) error {
	if len(key) != 64 {
		return fmt.Errorf("private key must be 64 bytes, got %d", len(key))
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[userID] = append(solana.PrivateKey(nil), key...)
	return nil
}

// AddBase58 registers a base58-encoded private key for userID.
func (k *Keyring) AddBase58(userID int64, encoded string) error {
	key, err := ParsePrivateKey(encoded)
	if err != nil {
		return err
	}
	return k.Add(userID, key)
}

// Wallet returns the signer registered for userID.
func (k *Keyring) Wallet(_ context.Context, userID int64) (Signer, error) {
	k.mu.RLock()
	key, ok := k.keys[userID]
	k.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("user %d: %w", userID, ErrWalletNotFound)
	}
	return NewSigner(key)
}
