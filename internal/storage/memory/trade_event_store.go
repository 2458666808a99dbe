package memory

import (
	"context"
	"sort"
	"sync"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// TradeEventStore is an in-memory implementation of storage.TradeEventStore.
type TradeEventStore struct {
	mu     sync.RWMutex
	events []*domain.TradeEvent
}

// NewTradeEventStore creates a new in-memory trade event store.
func NewTradeEventStore() *TradeEventStore {
	return &TradeEventStore{}
}

// Append adds a lifecycle event.
func (s *TradeEventStore) Append(_ context.Context, e *domain.TradeEvent) error {
	if e == nil || e.Stage == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *e
	s.events = append(s.events, &copy)
	return nil
}

// GetByTradeID retrieves all events for a trade, ordered by occurred_at ASC.
func (s *TradeEventStore) GetByTradeID(_ context.Context, tradeID string) ([]*domain.TradeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeEvent
	for _, e := range s.events {
		if e.TradeID == tradeID {
			copy := *e
			result = append(result, &copy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OccurredAt.Before(result[j].OccurredAt)
	})

	return result, nil
}

var _ storage.TradeEventStore = (*TradeEventStore)(nil)
