package postgres

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `id, user_id, token_mint, amount, sol_amount, price::text, is_buy, COALESCE(txid, ''), confirmed, created_at`

// toBigint guards the signed BIGINT columns against uint64 overflow.
func toBigint(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("amount %d overflows bigint: %w", v, storage.ErrInvalidInput)
	}
	return int64(v), nil
}

// Insert adds a new trade. Returns ErrDuplicateKey if id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) (err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("postgres", "insert_trade", time.Since(start).Seconds(), err) }()

	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}
	amount, err := toBigint(t.Amount)
	if err != nil {
		return err
	}
	solAmount, err := toBigint(t.SolAmount)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO trades (
			id, user_id, token_mint, amount, sol_amount,
			price, is_buy, txid, confirmed, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::numeric, $7, NULLIF($8, ''), $9, $10
		)
	`

	_, err = s.pool.Exec(ctx, query,
		t.ID, t.UserID, t.Mint, amount, solAmount,
		t.Price.String(), t.IsBuy(), t.TxID, t.Confirmed, t.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, id string) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = $1`

	t, err := scanTrade(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	return t, nil
}

// GetByTxID retrieves the oldest trade with txID. Returns ErrNotFound if none.
func (s *TradeStore) GetByTxID(ctx context.Context, txID string) (*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE txid = $1
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`

	t, err := scanTrade(s.pool.QueryRow(ctx, query, txID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by txid: %w", err)
	}
	return t, nil
}

// MarkConfirmed flips confirmed on every unconfirmed trade with txID.
func (s *TradeStore) MarkConfirmed(ctx context.Context, txID string) (n int64, err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("postgres", "confirm_trade", time.Since(start).Seconds(), err) }()

	query := `UPDATE trades SET confirmed = TRUE WHERE txid = $1 AND confirmed = FALSE`

	tag, err := s.pool.Exec(ctx, query, txID)
	if err != nil {
		return 0, fmt.Errorf("mark trade confirmed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetByUserMint retrieves all trades for a user and mint, ordered by created_at ASC.
func (s *TradeStore) GetByUserMint(ctx context.Context, userID int64, mint string) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE user_id = $1 AND token_mint = $2
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, userID, mint)
	if err != nil {
		return nil, fmt.Errorf("get trades by user/mint: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// scanTrade scans a single row into a Trade.
func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var (
		t         domain.Trade
		amount    int64
		solAmount int64
		price     string
		isBuy     bool
	)

	err := row.Scan(
		&t.ID, &t.UserID, &t.Mint, &amount, &solAmount,
		&price, &isBuy, &t.TxID, &t.Confirmed, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Amount = uint64(amount)
	t.SolAmount = uint64(solAmount)
	t.Side = domain.SideSell
	if isBuy {
		t.Side = domain.SideBuy
	}
	t.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", price, err)
	}
	t.CreatedAt = t.CreatedAt.UTC()

	return &t, nil
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
