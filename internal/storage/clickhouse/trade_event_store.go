package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/storage"
)

// TradeEventStore implements storage.TradeEventStore using ClickHouse.
type TradeEventStore struct {
	conn *Conn
}

// NewTradeEventStore creates a new TradeEventStore.
func NewTradeEventStore(conn *Conn) *TradeEventStore {
	return &TradeEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeEventStore = (*TradeEventStore)(nil)

// Append adds a lifecycle event.
func (s *TradeEventStore) Append(ctx context.Context, e *domain.TradeEvent) (err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("clickhouse", "append_trade_event", time.Since(start).Seconds(), err) }()

	if e == nil || e.Stage == "" {
		return storage.ErrInvalidInput
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_events (
			trade_id, tx_id, bundle_id, user_id, mint, side, stage, detail, occurred_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		e.TradeID, e.TxID, e.BundleID, e.UserID, e.Mint,
		string(e.Side), string(e.Stage), e.Detail, e.OccurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTradeID retrieves all events for a trade, ordered by occurred_at ASC.
func (s *TradeEventStore) GetByTradeID(ctx context.Context, tradeID string) ([]*domain.TradeEvent, error) {
	query := `
		SELECT trade_id, tx_id, bundle_id, user_id, mint, side, stage, detail, occurred_at
		FROM trade_events
		WHERE trade_id = ?
		ORDER BY occurred_at ASC
	`

	rows, err := s.conn.Query(ctx, query, tradeID)
	if err != nil {
		return nil, fmt.Errorf("query by trade id: %w", err)
	}
	defer rows.Close()

	return scanTradeEvents(rows)
}

func scanTradeEvents(rows driver.Rows) ([]*domain.TradeEvent, error) {
	var events []*domain.TradeEvent

	for rows.Next() {
		var (
			e     domain.TradeEvent
			side  string
			stage string
		)
		if err := rows.Scan(
			&e.TradeID, &e.TxID, &e.BundleID, &e.UserID, &e.Mint,
			&side, &stage, &e.Detail, &e.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan trade event row: %w", err)
		}
		e.Side = domain.Side(side)
		e.Stage = domain.TradeStage(stage)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade event rows: %w", err)
	}

	return events, nil
}
