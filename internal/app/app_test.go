package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-engine/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Fees.Recipient = solana.NewWallet().PublicKey().String()
	cfg.Wallets.Keys = map[int64]string{1: solana.NewWallet().PrivateKey.String()}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBuild_Memory(t *testing.T) {
	cfg := testConfig(t)

	a, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Engine)
	assert.NotNil(t, a.Scheduler)
	assert.NotNil(t, a.Profit)
	assert.NotNil(t, a.Ledger)
	assert.NotNil(t, a.Chain)
}

func TestBuild_BadgerStores(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	cfg.Storage.JobsPath = filepath.Join(dir, "jobs")
	cfg.Wallets.StorePath = filepath.Join(dir, "wallets")

	a, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	a.Close()

	// The key store is reusable after close.
	a, err = Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	a.Close()
}

func TestBuildConfirmer_BesideTradePipeline(t *testing.T) {
	cfg := testConfig(t)
	cfg.Wallets.StorePath = filepath.Join(t.TempDir(), "wallets")
	ctx := context.Background()

	trade, err := Build(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer trade.Close()

	confirmer, err := BuildConfirmer(ctx, cfg, zerolog.Nop())
	require.NoError(t, err, "the confirmer does not open the wallet store")
	defer confirmer.Close()

	assert.NotNil(t, confirmer.Scheduler)
	assert.NotNil(t, confirmer.Ledger)
	assert.Nil(t, confirmer.Engine)
	assert.Nil(t, confirmer.Profit)

	_, err = Build(ctx, cfg, zerolog.Nop())
	assert.Error(t, err, "a second pipeline cannot open the held key store")
}

func TestBuildConfirmer_BadgerJobsAreSingleProcess(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.JobsPath = filepath.Join(t.TempDir(), "jobs")
	ctx := context.Background()

	first, err := BuildConfirmer(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)

	_, err = BuildConfirmer(ctx, cfg, zerolog.Nop())
	require.Error(t, err, "badger admits one opener")

	first.Close()
	second, err := BuildConfirmer(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	second.Close()
}

func TestBuild_InvalidWalletKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Wallets.Keys[2] = "not-a-key"

	_, err := Build(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestBuildPolicy(t *testing.T) {
	pol, err := buildPolicy(config.Policy{
		UserPolicy: config.UserPolicy{SlippagePercent: "0.5", TipLamports: 100},
		Users:      map[int64]config.UserPolicy{9: {SlippagePercent: "3", TipLamports: 7}},
	})
	require.NoError(t, err)

	ctx := context.Background()
	bps, _ := pol.SlippageBps(ctx, 1)
	assert.Equal(t, 50, bps)
	bps, _ = pol.SlippageBps(ctx, 9)
	assert.Equal(t, 300, bps)
	tip, _ := pol.TipLamports(ctx, 9)
	assert.Equal(t, uint64(7), tip)
}

func TestLogCredits(t *testing.T) {
	assert.NoError(t, (&LogCredits{Logger: zerolog.Nop()}).Credit(context.Background(), 1, 25))
}
