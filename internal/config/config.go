package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const lamportsPerSOL = 1_000_000_000

// Config holds all application configuration.
type Config struct {
	Env         string `mapstructure:"env"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	PidFile     string `mapstructure:"pid_file"`

	RPC       RPCConfig
	Filters   FilterConfig
	Execution ExecutionConfig
	Wallets   WalletConfig
	Dedup     DedupConfig
	Source    SourceConfig
	DB        DBConfig
}

// RPCConfig holds Solana node connectivity settings.
type RPCConfig struct {
	HTTPURL           string        `mapstructure:"http_url"`
	WSURL             string        `mapstructure:"ws_url"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnectDelay time.Duration `mapstructure:"max_reconnect_delay"`
}

// FilterConfig holds the opportunity acceptance thresholds.
type FilterConfig struct {
	MinQuoteSOL float64       `mapstructure:"min_quote_sol"`
	MaxPairAge  time.Duration `mapstructure:"max_pair_age"`
	Allowlist   []string      `mapstructure:"allowlist"`
	Denylist    []string      `mapstructure:"denylist"`
}

// MinQuoteLamports converts the liquidity floor to lamports.
func (f FilterConfig) MinQuoteLamports() uint64 {
	return uint64(f.MinQuoteSOL * lamportsPerSOL)
}

// ExecutionConfig bounds how a single opportunity is executed.
type ExecutionConfig struct {
	MaxSOLPerTrade    float64       `mapstructure:"max_sol_per_trade"`
	SlippageTolerance float64       `mapstructure:"slippage_tolerance"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	AttemptTimeout    time.Duration `mapstructure:"attempt_timeout"`
	ExecutionWindow   time.Duration `mapstructure:"execution_window"`
	ShutdownGrace     time.Duration `mapstructure:"shutdown_grace"`
}

// MaxSpendLamports converts the per-trade cap to lamports.
func (e ExecutionConfig) MaxSpendLamports() uint64 {
	return uint64(e.MaxSOLPerTrade * lamportsPerSOL)
}

// WalletConfig holds wallet pool settings.
type WalletConfig struct {
	Dir             string        `mapstructure:"dir"`
	MinSOLBalance   float64       `mapstructure:"min_sol_balance"`
	LeaseWait       time.Duration `mapstructure:"lease_wait"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// MinBalanceLamports converts the minimum operable balance to lamports.
func (w WalletConfig) MinBalanceLamports() uint64 {
	return uint64(w.MinSOLBalance * lamportsPerSOL)
}

// DedupConfig bounds the seen-set retention.
type DedupConfig struct {
	Window  time.Duration `mapstructure:"window"`
	Buckets int           `mapstructure:"buckets"`
}

// SourceConfig holds event source settings.
type SourceConfig struct {
	BufferSize int           `mapstructure:"buffer_size"`
	MaxOutage  time.Duration `mapstructure:"max_outage"`
}

// DBConfig holds optional storage backends. Empty DSNs fall back to the
// file keystore and in-memory stores.
type DBConfig struct {
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"`
}

// Load reads sniper.yaml if present, then environment variables
// prefixed with SNIPER_.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SNIPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("sniper")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	// Defaults
	v.SetDefault("env", "development")
	v.SetDefault("metrics_addr", ":9100")
	v.SetDefault("pid_file", "sniper.pid")

	v.SetDefault("rpc.http_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("rpc.ws_url", "wss://api.mainnet-beta.solana.com")
	v.SetDefault("rpc.reconnect_delay", "500ms")
	v.SetDefault("rpc.max_reconnect_delay", "30s")

	v.SetDefault("filters.min_quote_sol", 5.0)
	v.SetDefault("filters.max_pair_age", "30s")

	v.SetDefault("execution.max_sol_per_trade", 0.05)
	v.SetDefault("execution.slippage_tolerance", 0.10)
	v.SetDefault("execution.max_retries", 3)
	v.SetDefault("execution.retry_delay", "200ms")
	v.SetDefault("execution.attempt_timeout", "15s")
	v.SetDefault("execution.execution_window", "10s")
	v.SetDefault("execution.shutdown_grace", "10s")

	v.SetDefault("wallets.dir", "wallets")
	v.SetDefault("wallets.min_sol_balance", 0.10)
	v.SetDefault("wallets.lease_wait", "0s")
	v.SetDefault("wallets.refresh_interval", "30s")

	v.SetDefault("dedup.window", "1h")
	v.SetDefault("dedup.buckets", 8)

	v.SetDefault("source.buffer_size", 256)
	v.SetDefault("source.max_outage", "2m")

	cfg := &Config{}

	cfg.Env = v.GetString("env")
	cfg.MetricsAddr = v.GetString("metrics_addr")
	cfg.PidFile = v.GetString("pid_file")

	cfg.RPC = RPCConfig{
		HTTPURL:           v.GetString("rpc.http_url"),
		WSURL:             v.GetString("rpc.ws_url"),
		ReconnectDelay:    v.GetDuration("rpc.reconnect_delay"),
		MaxReconnectDelay: v.GetDuration("rpc.max_reconnect_delay"),
	}

	cfg.Filters = FilterConfig{
		MinQuoteSOL: v.GetFloat64("filters.min_quote_sol"),
		MaxPairAge:  v.GetDuration("filters.max_pair_age"),
		Allowlist:   v.GetStringSlice("filters.allowlist"),
		Denylist:    v.GetStringSlice("filters.denylist"),
	}

	cfg.Execution = ExecutionConfig{
		MaxSOLPerTrade:    v.GetFloat64("execution.max_sol_per_trade"),
		SlippageTolerance: v.GetFloat64("execution.slippage_tolerance"),
		MaxRetries:        v.GetInt("execution.max_retries"),
		RetryDelay:        v.GetDuration("execution.retry_delay"),
		AttemptTimeout:    v.GetDuration("execution.attempt_timeout"),
		ExecutionWindow:   v.GetDuration("execution.execution_window"),
		ShutdownGrace:     v.GetDuration("execution.shutdown_grace"),
	}

	cfg.Wallets = WalletConfig{
		Dir:             v.GetString("wallets.dir"),
		MinSOLBalance:   v.GetFloat64("wallets.min_sol_balance"),
		LeaseWait:       v.GetDuration("wallets.lease_wait"),
		RefreshInterval: v.GetDuration("wallets.refresh_interval"),
	}

	cfg.Dedup = DedupConfig{
		Window:  v.GetDuration("dedup.window"),
		Buckets: v.GetInt("dedup.buckets"),
	}

	cfg.Source = SourceConfig{
		BufferSize: v.GetInt("source.buffer_size"),
		MaxOutage:  v.GetDuration("source.max_outage"),
	}

	cfg.DB = DBConfig{
		PostgresDSN:   v.GetString("db.postgres_dsn"),
		ClickhouseDSN: v.GetString("db.clickhouse_dsn"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would misbehave at runtime
// rather than fail fast.
func (c *Config) Validate() error {
	if c.RPC.HTTPURL == "" || c.RPC.WSURL == "" {
		return fmt.Errorf("rpc.http_url and rpc.ws_url must be set")
	}
	if c.Filters.MinQuoteSOL < 0 {
		return fmt.Errorf("filters.min_quote_sol must not be negative")
	}
	if c.Filters.MaxPairAge <= 0 {
		return fmt.Errorf("filters.max_pair_age must be positive")
	}
	if c.Execution.MaxSOLPerTrade <= 0 {
		return fmt.Errorf("execution.max_sol_per_trade must be positive")
	}
	if c.Execution.SlippageTolerance < 0 || c.Execution.SlippageTolerance >= 1 {
		return fmt.Errorf("execution.slippage_tolerance must be in [0, 1), got %v", c.Execution.SlippageTolerance)
	}
	if c.Execution.MaxRetries < 1 {
		return fmt.Errorf("execution.max_retries must be at least 1")
	}
	if c.Execution.ExecutionWindow <= 0 {
		return fmt.Errorf("execution.execution_window must be positive")
	}
	if c.Wallets.MinSOLBalance < 0 {
		return fmt.Errorf("wallets.min_sol_balance must not be negative")
	}
	if c.Dedup.Window <= 0 || c.Dedup.Buckets < 1 {
		return fmt.Errorf("dedup.window must be positive and dedup.buckets at least 1")
	}
	if c.Source.BufferSize < 1 {
		return fmt.Errorf("source.buffer_size must be at least 1")
	}
	if c.Source.MaxOutage <= 0 {
		return fmt.Errorf("source.max_outage must be positive")
	}
	return nil
}
