package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// NativeMint is the wrapped SOL mint used as the native side of every swap.
const NativeMint = "So11111111111111111111111111111111111111112"

// LamportsPerSOL is the number of base units in one SOL.
const LamportsPerSOL = 1_000_000_000

// Side is the direction of a trade relative to the native asset.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// IsBuy reports whether s is SideBuy.
func (s Side) IsBuy() bool {
	return s == SideBuy
}

// Trade is a ledger row for one executed (or attempted) swap.
// Corresponds to the trades table.
//
// A trade is immutable after creation except for Confirmed, which moves
// from false to true exactly once.
type Trade struct {
	ID        string          // assigned by the store on create
	UserID    int64           // owning user
	Mint      string          // token mint
	Amount    uint64          // token base units bought or sold
	SolAmount uint64          // paired lamports spent (buy) or received (sell)
	Price     decimal.Decimal // SolAmount / Amount at creation
	Side      Side
	TxID      string // on-chain reference, empty until known
	Confirmed bool
	CreatedAt time.Time
}

// NewTrade builds a pending trade and derives its unit price.
// Amount must be non-zero.
func NewTrade(userID int64, mint string, amount, solAmount uint64, side Side) (*Trade, error) {
	if mint == "" || amount == 0 || !side.Valid() {
		return nil, ErrInvalidInput
	}
	return &Trade{
		UserID:    userID,
		Mint:      mint,
		Amount:    amount,
		SolAmount: solAmount,
		Price:     UnitPrice(solAmount, amount),
		Side:      side,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// UnitPrice returns solAmount / amount without rounding.
// Division precision follows decimal.DivisionPrecision (16 digits).
func UnitPrice(solAmount, amount uint64) decimal.Decimal {
	if amount == 0 {
		return decimal.Zero
	}
	return decimal.NewFromUint64(solAmount).Div(decimal.NewFromUint64(amount))
}

// IsBuy reports whether the trade bought tokens with the native asset.
func (t *Trade) IsBuy() bool {
	return t.Side == SideBuy
}
