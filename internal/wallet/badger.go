package wallet

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/gagliardetto/solana-go"
)

const keyPrefix = "wallet/"

// Store is a Provider persisted in Badger. Encryption at rest is provided
// by Badger when an encryption key is set.
type Store struct {
	db *badger.DB
}

// OpenOptions configures Open.
type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 16, 24 or 32 bytes; nil opens unencrypted
	ReadOnly      bool
	InMemory      bool
}

// Open opens or creates the key store.
func Open(opts OpenOptions) (*Store, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("wallet store: path is required")
	}

	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if opts.InMemory {
		bopts = bopts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	if len(opts.EncryptionKey) > 0 {
		// Badger requires an index cache for encrypted workloads.
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open wallet store: %w", err)
	}
	return &Store{db: db}, nil
}

var _ Provider = (*Store)(nil)

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func walletKey(userID int64) []byte {
	return []byte(keyPrefix + strconv.FormatInt(userID, 10))
}

// Put stores key for userID.
func (s *Store) Put(userID int64, key solana.PrivateKey) error {
	if len(key) != 64 {
		return fmt.Errorf("private key must be 64 bytes, got %d", len(key))
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(walletKey(userID), []byte(key))
	})
}

// Wallet loads the signer for userID.
func (s *Store) Wallet(_ context.Context, userID int64) (Signer, error) {
	var key solana.PrivateKey
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(walletKey(userID))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		key = solana.PrivateKey(val)
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("user %d: %w", userID, ErrWalletNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	return NewSigner(key)
}

// ParseEncryptionKey accepts 32 bytes as hex or base64. Empty input yields nil.
func ParseEncryptionKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x")); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("key must be base64(32 bytes) or hex(32 bytes)")
}
