// Package app wires configured components into a runnable trade pipeline.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"solana-trade-engine/internal/assembler"
	"solana-trade-engine/internal/chain"
	"solana-trade-engine/internal/config"
	"solana-trade-engine/internal/engine"
	"solana-trade-engine/internal/jito"
	"solana-trade-engine/internal/jupiter"
	"solana-trade-engine/internal/ledger"
	"solana-trade-engine/internal/policy"
	"solana-trade-engine/internal/profit"
	"solana-trade-engine/internal/scheduler"
	"solana-trade-engine/internal/storage"
	badgerstore "solana-trade-engine/internal/storage/badger"
	chstore "solana-trade-engine/internal/storage/clickhouse"
	"solana-trade-engine/internal/storage/memory"
	"solana-trade-engine/internal/storage/migrations"
	mysqlstore "solana-trade-engine/internal/storage/mysql"
	pgstore "solana-trade-engine/internal/storage/postgres"
	"solana-trade-engine/internal/wallet"
)

// App holds every wired component.
type App struct {
	Ledger    *ledger.Ledger
	Engine    *engine.Engine
	Scheduler *scheduler.Scheduler
	Profit    *profit.Calculator
	Chain     chain.Reader

	closers []func() error
	log     zerolog.Logger
	pg      *pgstore.Pool
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("close")
		}
	}
	a.closers = nil
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Build constructs the pipeline from cfg. On error every resource acquired
// so far is released.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *App, err error) {
	a := &App{log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	trades, events, err := a.openLedgerStores(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.Ledger = ledger.New(ledger.Options{Trades: trades, Events: events, Logger: log})

	jobs, err := a.openJobStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	wallets, err := a.openWallets(cfg.Wallets)
	if err != nil {
		return nil, err
	}

	pol, err := buildPolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}

	rpc := chain.NewHTTPClient(cfg.Solana.RPCEndpoint).WithCommitment(cfg.Solana.Commitment)
	a.Chain = rpc

	routerOpts := []jupiter.Option{jupiter.WithTimeout(cfg.Jupiter.Timeout)}
	if cfg.Jupiter.APIKey != "" {
		routerOpts = append(routerOpts, jupiter.WithHeader("x-api-key", cfg.Jupiter.APIKey))
	}
	router := jupiter.NewClient(cfg.Jupiter.BaseURL, routerOpts...)

	relay, err := jito.NewClient(cfg.Jito.Endpoints)
	if err != nil {
		return nil, err
	}
	submitter, err := jito.NewSubmitter(jito.SubmitterOptions{
		Relay:       relay,
		SettleDelay: cfg.Jito.SettleDelay,
		PollCeiling: cfg.Jito.PollCeiling,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	// The trade pipeline confirms only what it enqueues; rescanning a
	// shared store is the confirmer's job.
	a.Scheduler, err = a.buildScheduler(ctx, cfg, jobs, rpc, 0)
	if err != nil {
		return nil, err
	}

	recipient, err := solana.PublicKeyFromBase58(cfg.Fees.Recipient)
	if err != nil {
		return nil, fmt.Errorf("fee recipient: %w", err)
	}

	asm, err := assembler.New(assembler.Options{
		Router:       router,
		Chain:        rpc,
		Wallets:      wallets,
		Policy:       pol,
		Ledger:       a.Ledger,
		FeeRecipient: recipient,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}

	a.Engine, err = engine.New(engine.Options{
		Assembler: asm,
		Bundler:   submitter,
		Scheduler: a.Scheduler,
		Events:    a.Ledger,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}

	a.Profit, err = profit.New(profit.Options{
		Ledger:  a.Ledger,
		Chain:   rpc,
		Router:  router,
		Wallets: wallets,
	})
	if err != nil {
		return nil, err
	}

	return a, nil
}

// BuildConfirmer constructs only what the confirmation worker needs: the
// ledger, the job store, chain access and the scheduler. Engine and Profit
// stay nil and the wallet store is never opened, so cmd/trade may hold it
// meanwhile.
func BuildConfirmer(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *App, err error) {
	a := &App{log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	trades, events, err := a.openLedgerStores(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.Ledger = ledger.New(ledger.Options{Trades: trades, Events: events, Logger: log})

	jobs, err := a.openJobStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	rpc := chain.NewHTTPClient(cfg.Solana.RPCEndpoint).WithCommitment(cfg.Solana.Commitment)
	a.Chain = rpc

	a.Scheduler, err = a.buildScheduler(ctx, cfg, jobs, rpc, cfg.Scheduler.RescanInterval)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) buildScheduler(ctx context.Context, cfg *config.Config, jobs storage.JobStore, rpc chain.Reader, rescan time.Duration) (*scheduler.Scheduler, error) {
	verifier, err := a.buildVerifier(ctx, cfg, rpc)
	if err != nil {
		return nil, err
	}
	return scheduler.New(scheduler.Options{
		Store:          jobs,
		Verifier:       verifier,
		Ledger:         a.Ledger,
		Credits:        &LogCredits{Logger: a.log},
		Workers:        cfg.Scheduler.Workers,
		Policy:         domainPolicy(cfg.Scheduler),
		Logger:         a.log,
		RescanInterval: rescan,
	})
}

// postgres returns the process's migrated pool, connecting on first use.
func (a *App) postgres(ctx context.Context, dsn string) (*pgstore.Pool, error) {
	if a.pg != nil {
		return a.pg, nil
	}
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.onClose(func() error { pool.Close(); return nil })

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}
	a.pg = pool
	return pool, nil
}

func (a *App) openLedgerStores(ctx context.Context, cfg config.Storage) (storage.TradeStore, storage.TradeEventStore, error) {
	var (
		trades storage.TradeStore
		events storage.TradeEventStore
	)

	switch cfg.Ledger {
	case "postgres":
		pool, err := a.postgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		trades = pgstore.NewTradeStore(pool)
	case "mysql":
		db, err := mysqlstore.Open(cfg.MySQLDSN, false)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to mysql: %w", err)
		}
		a.onClose(db.Close)
		trades = mysqlstore.NewTradeStore(db)
	default:
		trades = memory.NewTradeStore()
		events = memory.NewTradeEventStore()
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse: %w", err)
		}
		a.onClose(conn.Close)
		events = chstore.NewTradeEventStore(conn)
	}

	return trades, events, nil
}

// openJobStore opens the configured job store. A Badger directory admits
// one process at a time; postgres can be shared.
func (a *App) openJobStore(ctx context.Context, cfg config.Storage) (storage.JobStore, error) {
	switch cfg.JobsBackend() {
	case "postgres":
		pool, err := a.postgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return pgstore.NewJobStore(pool), nil
	case "badger":
		store, err := badgerstore.Open(badgerstore.Options{Path: cfg.JobsPath})
		if err != nil {
			return nil, err
		}
		a.onClose(store.Close)
		return store, nil
	default:
		return memory.NewJobStore(), nil
	}
}

// openWallets returns the Badger key store when configured, seeded with
// any keys from the config, or an in-memory keyring otherwise.
func (a *App) openWallets(cfg config.Wallets) (wallet.Provider, error) {
	keys := make(map[int64]solana.PrivateKey, len(cfg.Keys))
	for id, encoded := range cfg.Keys {
		key, err := wallet.ParsePrivateKey(encoded)
		if err != nil {
			return nil, fmt.Errorf("wallets.keys[%d]: %w", id, err)
		}
		keys[id] = key
	}

	if cfg.StorePath == "" {
		ring := wallet.NewKeyring()
		for id, key := range keys {
			if err := ring.Add(id, key); err != nil {
				return nil, err
			}
		}
		return ring, nil
	}

	var encKey []byte
	if cfg.EncryptionKey != "" {
		var err error
		if encKey, err = wallet.ParseEncryptionKey(cfg.EncryptionKey); err != nil {
			return nil, err
		}
	}
	store, err := wallet.Open(wallet.OpenOptions{Path: cfg.StorePath, EncryptionKey: encKey})
	if err != nil {
		return nil, err
	}
	a.onClose(store.Close)

	for id, key := range keys {
		if err := store.Put(id, key); err != nil {
			return nil, fmt.Errorf("store wallet %d: %w", id, err)
		}
	}
	return store, nil
}

func (a *App) buildVerifier(ctx context.Context, cfg *config.Config, rpc chain.Reader) (scheduler.Verifier, error) {
	rpcVerifier := &scheduler.RPCVerifier{Chain: rpc}
	if cfg.Scheduler.Verifier != "ws" {
		return rpcVerifier, nil
	}

	wsCfg := chain.DefaultWSConfig()
	if cfg.Solana.Commitment != "" {
		wsCfg.Commitment = cfg.Solana.Commitment
	}
	ws, err := chain.NewWSClient(ctx, cfg.Solana.WSEndpoint, &wsCfg, a.log)
	if err != nil {
		return nil, fmt.Errorf("connect websocket: %w", err)
	}
	a.onClose(ws.Close)

	return &scheduler.WSVerifier{Subscriber: ws, Fallback: rpcVerifier}, nil
}

func buildPolicy(cfg config.Policy) (*policy.Static, error) {
	toSettings := func(p config.UserPolicy) (policy.Settings, error) {
		slip, err := p.Slippage()
		if err != nil {
			return policy.Settings{}, err
		}
		return policy.Settings{SlippagePercent: slip, TipLamports: p.TipLamports}, nil
	}

	defaults, err := toSettings(cfg.UserPolicy)
	if err != nil {
		return nil, err
	}
	pol, err := policy.NewStatic(defaults)
	if err != nil {
		return nil, err
	}
	for id, p := range cfg.Users {
		s, err := toSettings(p)
		if err != nil {
			return nil, fmt.Errorf("policy for user %d: %w", id, err)
		}
		if err := pol.Set(id, s); err != nil {
			return nil, err
		}
	}
	return pol, nil
}
