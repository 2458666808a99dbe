// Package config exposes the typed process configuration loaded from YAML,
// a .env file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings.
type App struct {
	Name        string `yaml:"name"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json or console
	MetricsAddr string `yaml:"metrics_addr"`
}

// Solana configures chain access.
type Solana struct {
	RPCEndpoint string `yaml:"rpc_endpoint"`
	WSEndpoint  string `yaml:"ws_endpoint"`
	Commitment  string `yaml:"commitment"`
}

// Jupiter configures the route service.
type Jupiter struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// Jito configures the bundle relay.
type Jito struct {
	Endpoints   []string      `yaml:"endpoints"`
	SettleDelay time.Duration `yaml:"settle_delay"`
	PollCeiling time.Duration `yaml:"poll_ceiling"`
}

// Fees configures where platform fees go.
type Fees struct {
	Recipient string `yaml:"recipient"`
}

// Storage selects the persistence backends.
type Storage struct {
	Ledger        string `yaml:"ledger"` // memory, postgres or mysql
	PostgresDSN   string `yaml:"postgres_dsn"`
	MySQLDSN      string `yaml:"mysql_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"` // optional trade-event log
	Jobs          string `yaml:"jobs"`           // memory, badger or postgres; empty picks from jobs_path
	JobsPath      string `yaml:"jobs_path"`      // badger dir
}

// JobsBackend resolves Jobs, defaulting to badger when JobsPath is set.
// Only the postgres backend can be shared by several processes.
func (s Storage) JobsBackend() string {
	switch {
	case s.Jobs != "":
		return s.Jobs
	case s.JobsPath != "":
		return "badger"
	default:
		return "memory"
	}
}

// Scheduler configures confirmation jobs.
type Scheduler struct {
	Workers     int           `yaml:"workers"`
	Delay       time.Duration `yaml:"delay"`
	Backoff     time.Duration `yaml:"backoff"`
	MaxAttempts int           `yaml:"max_attempts"`
	Verifier    string        `yaml:"verifier"` // rpc or ws

	// RescanInterval is how often the confirmer re-lists the job store for
	// jobs enqueued by other processes.
	RescanInterval time.Duration `yaml:"rescan_interval"`
}

// UserPolicy is one user's trade settings.
type UserPolicy struct {
	SlippagePercent string `yaml:"slippage_percent"`
	TipLamports     uint64 `yaml:"tip_lamports"`
}

// Policy holds default and per-user trade settings.
type Policy struct {
	UserPolicy `yaml:",inline"`
	Users      map[int64]UserPolicy `yaml:"users"`
}

// Wallets configures signing keys.
type Wallets struct {
	Keys          map[int64]string `yaml:"keys"`           // base58 secret keys by user id
	StorePath     string           `yaml:"store_path"`     // badger key store
	EncryptionKey string           `yaml:"encryption_key"` // hex or base64, 32 bytes
}

// Config collects every configuration leaf.
type Config struct {
	App       App       `yaml:"app"`
	Solana    Solana    `yaml:"solana"`
	Jupiter   Jupiter   `yaml:"jupiter"`
	Jito      Jito      `yaml:"jito"`
	Fees      Fees      `yaml:"fees"`
	Storage   Storage   `yaml:"storage"`
	Scheduler Scheduler `yaml:"scheduler"`
	Policy    Policy    `yaml:"policy"`
	Wallets   Wallets   `yaml:"wallets"`
}

// Defaults returns a Config with every optional value filled.
func Defaults() *Config {
	return &Config{
		App: App{
			Name:        "solana-trade-engine",
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsAddr: ":9090",
		},
		Solana: Solana{
			RPCEndpoint: "https://api.mainnet-beta.solana.com",
			Commitment:  "confirmed",
		},
		Jupiter: Jupiter{
			BaseURL: "https://quote-api.jup.ag",
			Timeout: 15 * time.Second,
		},
		Jito: Jito{
			Endpoints:   []string{"https://mainnet.block-engine.jito.wtf"},
			SettleDelay: 5 * time.Second,
			PollCeiling: 30 * time.Second,
		},
		Storage: Storage{
			Ledger: "memory",
		},
		Scheduler: Scheduler{
			Workers:     4,
			Delay:       2 * time.Second,
			Backoff:     2 * time.Second,
			MaxAttempts: 10,
			Verifier:    "rpc",

			RescanInterval: 5 * time.Second,
		},
		Policy: Policy{
			UserPolicy: UserPolicy{SlippagePercent: "1", TipLamports: 10_000},
		},
	}
}

// Load reads .env (when present), then path (when non-empty) over
// Defaults, then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides endpoints and secrets from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set("LOG_LEVEL", &c.App.LogLevel)
	set("METRICS_ADDR", &c.App.MetricsAddr)
	set("SOLANA_RPC_ENDPOINT", &c.Solana.RPCEndpoint)
	set("SOLANA_WS_ENDPOINT", &c.Solana.WSEndpoint)
	set("JUPITER_BASE_URL", &c.Jupiter.BaseURL)
	set("JUPITER_API_KEY", &c.Jupiter.APIKey)
	set("FEE_RECIPIENT_ADDRESS", &c.Fees.Recipient)
	set("LEDGER_BACKEND", &c.Storage.Ledger)
	set("POSTGRES_DSN", &c.Storage.PostgresDSN)
	set("MYSQL_DSN", &c.Storage.MySQLDSN)
	set("CLICKHOUSE_DSN", &c.Storage.ClickHouseDSN)
	set("JOBS_BACKEND", &c.Storage.Jobs)
	set("JOBS_PATH", &c.Storage.JobsPath)
	set("WALLET_STORE_PATH", &c.Wallets.StorePath)
	set("WALLET_ENCRYPTION_KEY", &c.Wallets.EncryptionKey)

	if v, ok := lookup("JITO_ENDPOINTS"); ok && v != "" {
		var endpoints []string
		for _, e := range strings.Split(v, ",") {
			if e = strings.TrimSpace(e); e != "" {
				endpoints = append(endpoints, e)
			}
		}
		c.Jito.Endpoints = endpoints
	}
}

// Relay settle delay bounds.
const (
	minSettleDelay = 2 * time.Second
	maxSettleDelay = 5 * time.Second
)

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Solana.RPCEndpoint == "" {
		return errors.New("solana.rpc_endpoint is required")
	}
	if len(c.Jito.Endpoints) == 0 {
		return errors.New("jito.endpoints must list at least one endpoint")
	}
	if c.Jito.SettleDelay < 0 || c.Jito.PollCeiling < 0 {
		return errors.New("jito delays must not be negative")
	}
	if d := c.Jito.SettleDelay; d != 0 && (d < minSettleDelay || d > maxSettleDelay) {
		return fmt.Errorf("jito.settle_delay %s must be within [%s, %s]", d, minSettleDelay, maxSettleDelay)
	}
	if c.Jito.PollCeiling > 0 && c.Jito.SettleDelay > c.Jito.PollCeiling {
		return fmt.Errorf("jito.settle_delay %s exceeds poll_ceiling %s", c.Jito.SettleDelay, c.Jito.PollCeiling)
	}
	if _, err := solana.PublicKeyFromBase58(c.Fees.Recipient); err != nil {
		return fmt.Errorf("fees.recipient %q: %w", c.Fees.Recipient, err)
	}

	switch c.Storage.Ledger {
	case "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres ledger")
		}
	case "mysql":
		if c.Storage.MySQLDSN == "" {
			return errors.New("storage.mysql_dsn is required for the mysql ledger")
		}
	default:
		return fmt.Errorf("storage.ledger %q: want memory, postgres or mysql", c.Storage.Ledger)
	}

	switch c.Storage.JobsBackend() {
	case "memory":
	case "badger":
		if c.Storage.JobsPath == "" {
			return errors.New("storage.jobs_path is required for the badger job store")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres job store")
		}
	default:
		return fmt.Errorf("storage.jobs %q: want memory, badger or postgres", c.Storage.Jobs)
	}

	switch c.Scheduler.Verifier {
	case "rpc":
	case "ws":
		if c.Solana.WSEndpoint == "" {
			return errors.New("solana.ws_endpoint is required for the ws verifier")
		}
	default:
		return fmt.Errorf("scheduler.verifier %q: want rpc or ws", c.Scheduler.Verifier)
	}
	if c.Scheduler.MaxAttempts < 1 {
		return errors.New("scheduler.max_attempts must be at least 1")
	}
	if c.Scheduler.RescanInterval < 0 {
		return errors.New("scheduler.rescan_interval must not be negative")
	}

	if _, err := c.Policy.UserPolicy.Slippage(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	for id, p := range c.Policy.Users {
		if _, err := p.Slippage(); err != nil {
			return fmt.Errorf("policy.users[%d]: %w", id, err)
		}
	}
	return nil
}

// Slippage parses SlippagePercent. An empty value is zero.
func (p UserPolicy) Slippage() (decimal.Decimal, error) {
	if p.SlippagePercent == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(p.SlippagePercent)
	if err != nil {
		return decimal.Zero, fmt.Errorf("slippage_percent %q: %w", p.SlippagePercent, err)
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("slippage_percent %s must be within [0, 100]", d)
	}
	return d, nil
}
