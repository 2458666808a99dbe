package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage/memory"
)

func newTestLedger() (*Ledger, *memory.TradeStore, *memory.TradeEventStore) {
	trades := memory.NewTradeStore()
	events := memory.NewTradeEventStore()
	return New(Options{Trades: trades, Events: events, Logger: zerolog.Nop()}), trades, events
}

func TestLedger_PendingThenConfirmed(t *testing.T) {
	l, _, events := newTestLedger()
	ctx := context.Background()

	trade, err := domain.NewTrade(1, "mintA", 500_000, 10_000, domain.SideSell)
	require.NoError(t, err)
	trade.TxID = "feeSig"

	id, err := l.CreatePendingTrade(ctx, trade)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	before, err := l.FindTrades(ctx, 1, "mintA")
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.False(t, before[0].Confirmed)

	require.NoError(t, l.MarkConfirmed(ctx, "feeSig"))

	after, err := l.FindTrades(ctx, 1, "mintA")
	require.NoError(t, err)
	require.Len(t, after, 1)

	got := after[0]
	assert.True(t, got.Confirmed)

	// Every other field is unchanged by confirmation.
	got.Confirmed = false
	assert.Equal(t, before[0], got)

	evs, err := events.GetByTradeID(ctx, id)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, domain.StagePending, evs[0].Stage)
	assert.Equal(t, domain.StageConfirmed, evs[1].Stage)
}

func TestLedger_MarkConfirmedMissingIsNoop(t *testing.T) {
	l, _, events := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.MarkConfirmed(ctx, "unknown"))

	evs, _ := events.GetByTradeID(ctx, "")
	assert.Empty(t, evs)
}

func TestLedger_NeverUnconfirms(t *testing.T) {
	l, _, _ := newTestLedger()
	ctx := context.Background()

	trade, _ := domain.NewTrade(1, "mintA", 100, 10, domain.SideBuy)
	trade.TxID = "sig"
	_, err := l.CreatePendingTrade(ctx, trade)
	require.NoError(t, err)

	require.NoError(t, l.MarkConfirmed(ctx, "sig"))
	require.NoError(t, l.MarkConfirmed(ctx, "sig"))

	trades, _ := l.FindTrades(ctx, 1, "mintA")
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Confirmed)
}

func TestLedger_CreateRejectsInvalid(t *testing.T) {
	l, _, _ := newTestLedger()

	_, err := l.CreatePendingTrade(context.Background(), &domain.Trade{Mint: "mintA", Side: domain.SideBuy})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestLedger_WithoutEventStore(t *testing.T) {
	l := New(Options{Trades: memory.NewTradeStore(), Logger: zerolog.Nop()})
	ctx := context.Background()

	trade, _ := domain.NewTrade(2, "mintB", 100, 10, domain.SideBuy)
	trade.TxID = "sig"
	_, err := l.CreatePendingTrade(ctx, trade)
	require.NoError(t, err)
	require.NoError(t, l.MarkConfirmed(ctx, "sig"))
}
