package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/storage"
)

// tradeRow is the gorm model for the trades table.
type tradeRow struct {
	ID        string          `gorm:"primaryKey;type:varchar(36);not null"`
	UserID    int64           `gorm:"index:idx_trades_user_mint,priority:1;not null"`
	TokenMint string          `gorm:"index:idx_trades_user_mint,priority:2;type:varchar(44);not null"`
	Amount    uint64          `gorm:"type:bigint unsigned;not null"`
	SolAmount uint64          `gorm:"type:bigint unsigned;not null"`
	Price     decimal.Decimal `gorm:"type:decimal(40,20);not null"`
	IsBuy     bool            `gorm:"not null"`
	TxID      *string         `gorm:"column:txid;index;type:varchar(88)"`
	Confirmed bool            `gorm:"not null;default:false"`
	CreatedAt time.Time       `gorm:"index:idx_trades_user_mint,priority:3;type:datetime(6);not null"`
}

func (tradeRow) TableName() string {
	return "trades"
}

func toRow(t *domain.Trade) *tradeRow {
	row := &tradeRow{
		ID:        t.ID,
		UserID:    t.UserID,
		TokenMint: t.Mint,
		Amount:    t.Amount,
		SolAmount: t.SolAmount,
		Price:     t.Price,
		IsBuy:     t.IsBuy(),
		Confirmed: t.Confirmed,
		CreatedAt: t.CreatedAt,
	}
	if t.TxID != "" {
		txID := t.TxID
		row.TxID = &txID
	}
	return row
}

func (r *tradeRow) toDomain() *domain.Trade {
	t := &domain.Trade{
		ID:        r.ID,
		UserID:    r.UserID,
		Mint:      r.TokenMint,
		Amount:    r.Amount,
		SolAmount: r.SolAmount,
		Price:     r.Price,
		Side:      domain.SideSell,
		Confirmed: r.Confirmed,
		CreatedAt: r.CreatedAt.UTC(),
	}
	if r.IsBuy {
		t.Side = domain.SideBuy
	}
	if r.TxID != nil {
		t.TxID = *r.TxID
	}
	return t
}

// TradeStore implements storage.TradeStore using gorm.
type TradeStore struct {
	db *DB
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(db *DB) *TradeStore {
	return &TradeStore{db: db}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// Insert adds a new trade. Returns ErrDuplicateKey if id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) (err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("mysql", "insert_trade", time.Since(start).Seconds(), err) }()

	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	if err := s.db.WithContext(ctx).Create(toRow(t)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, id string) (*domain.Trade, error) {
	var row tradeRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	return row.toDomain(), nil
}

// GetByTxID retrieves the oldest trade with txID. Returns ErrNotFound if none.
func (s *TradeStore) GetByTxID(ctx context.Context, txID string) (*domain.Trade, error) {
	var row tradeRow
	err := s.db.WithContext(ctx).
		Where("txid = ?", txID).
		Order("created_at ASC, id ASC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by txid: %w", err)
	}
	return row.toDomain(), nil
}

// MarkConfirmed flips confirmed on every unconfirmed trade with txID.
func (s *TradeStore) MarkConfirmed(ctx context.Context, txID string) (n int64, err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("mysql", "confirm_trade", time.Since(start).Seconds(), err) }()

	res := s.db.WithContext(ctx).
		Model(&tradeRow{}).
		Where("txid = ? AND confirmed = ?", txID, false).
		Update("confirmed", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark trade confirmed: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// GetByUserMint retrieves all trades for a user and mint, ordered by created_at ASC.
func (s *TradeStore) GetByUserMint(ctx context.Context, userID int64, mint string) ([]*domain.Trade, error) {
	rows := make([]*tradeRow, 0)
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND token_mint = ?", userID, mint).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get trades by user/mint: %w", err)
	}

	trades := make([]*domain.Trade, len(rows))
	for i, r := range rows {
		trades[i] = r.toDomain()
	}
	return trades, nil
}
