package memory

import (
	"context"
	"sort"
	"sync"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Trade // keyed by id
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.Trade),
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if id exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.ID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	s.data[t.ID] = &copy
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(_ context.Context, id string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *t
	return &copy, nil
}

// GetByTxID retrieves the oldest trade with txID. Returns ErrNotFound if none.
func (s *TradeStore) GetByTxID(_ context.Context, txID string) (*domain.Trade, error) {
	if txID == "" {
		return nil, storage.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.Trade
	for _, t := range s.data {
		if t.TxID != txID {
			continue
		}
		if found == nil || t.CreatedAt.Before(found.CreatedAt) {
			found = t
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}

	copy := *found
	return &copy, nil
}

// MarkConfirmed flips confirmed on every unconfirmed trade with txID.
func (s *TradeStore) MarkConfirmed(_ context.Context, txID string) (int64, error) {
	if txID == "" {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, t := range s.data {
		if t.TxID == txID && !t.Confirmed {
			t.Confirmed = true
			n++
		}
	}
	return n, nil
}

// GetByUserMint retrieves all trades for a user and mint, ordered by created_at ASC.
func (s *TradeStore) GetByUserMint(_ context.Context, userID int64, mint string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.UserID == userID && t.Mint == mint {
			copy := *t
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

var _ storage.TradeStore = (*TradeStore)(nil)
