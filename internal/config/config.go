// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Pools     []PoolConfig    `mapstructure:"pools"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Arbitrage ArbitrageConfig `mapstructure:"arbitrage"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Nonce     NonceConfig     `mapstructure:"nonce"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	UI          string `mapstructure:"ui"` // "console" or "tui"
}

// EthereumConfig holds Ethereum node configuration.
type EthereumConfig struct {
	WebSocketURL   string        `mapstructure:"websocket_url"`
	HTTPURL        string        `mapstructure:"http_url"`
	ChainID        uint64        `mapstructure:"chain_id"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec"`
}

// TokenConfig identifies one side of a pool.
type TokenConfig struct {
	Address  string `mapstructure:"address"`
	Symbol   string `mapstructure:"symbol"`
	Decimals uint8  `mapstructure:"decimals"`
}

// AddressHex returns the token address as common.Address.
func (t *TokenConfig) AddressHex() common.Address {
	return common.HexToAddress(t.Address)
}

// PoolConfig describes one monitored liquidity pool.
type PoolConfig struct {
	Name    string      `mapstructure:"name"`
	Dex     string      `mapstructure:"dex"`
	Address string      `mapstructure:"address"`
	Token0  TokenConfig `mapstructure:"token0"`
	Token1  TokenConfig `mapstructure:"token1"`
	FeeTier int         `mapstructure:"fee_tier"` // Uniswap V3 fee tier in hundredths of a bip
	BinStep int         `mapstructure:"bin_step"` // Trader Joe LB bin step in bps
}

// AddressHex returns the pool address as common.Address.
func (p *PoolConfig) AddressHex() common.Address {
	return common.HexToAddress(p.Address)
}

// MonitorConfig holds price monitoring settings.
type MonitorConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	DeltaThresholdBps float64       `mapstructure:"delta_threshold_bps"`
	StaleThreshold    int           `mapstructure:"stale_threshold"`
	EventBuffer       int           `mapstructure:"event_buffer"`
}

// DeltaThresholdDecimal returns the delta threshold as a fraction.
func (c *MonitorConfig) DeltaThresholdDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.DeltaThresholdBps).Div(decimal.NewFromInt(10000))
}

// ProviderConfig describes one flash loan provider.
type ProviderConfig struct {
	Name    string  `mapstructure:"name"`
	Address string  `mapstructure:"address"`
	FeeBps  float64 `mapstructure:"fee_bps"`
}

// AddressHex returns the provider address as common.Address.
func (p *ProviderConfig) AddressHex() common.Address {
	return common.HexToAddress(p.Address)
}

// FeeDecimal returns the provider fee as a fraction.
func (p *ProviderConfig) FeeDecimal() decimal.Decimal {
	return decimal.NewFromFloat(p.FeeBps).Div(decimal.NewFromInt(10000))
}

// ArbitrageConfig holds opportunity analysis settings.
type ArbitrageConfig struct {
	InputAmount     float64          `mapstructure:"input_amount"`
	MinNetProfit    float64          `mapstructure:"min_net_profit"`
	MaxSlippageBps  float64          `mapstructure:"max_slippage_bps"`
	BaseGas         uint64           `mapstructure:"base_gas"`
	PerSwapGas      uint64           `mapstructure:"per_swap_gas"`
	GasPriceGwei    float64          `mapstructure:"gas_price_gwei"`
	NativePriceBase float64          `mapstructure:"native_price_base"`
	Triangular      bool             `mapstructure:"triangular"`
	Providers       []ProviderConfig `mapstructure:"providers"`
}

// InputAmountDecimal returns the probe trade size as decimal.
func (c *ArbitrageConfig) InputAmountDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.InputAmount)
}

// MinNetProfitDecimal returns the profit floor as decimal.
func (c *ArbitrageConfig) MinNetProfitDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinNetProfit)
}

// MaxSlippageDecimal returns max slippage as a fraction.
func (c *ArbitrageConfig) MaxSlippageDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxSlippageBps).Div(decimal.NewFromInt(10000))
}

// GasPriceGweiDecimal returns the static gas price assumption as decimal gwei.
func (c *ArbitrageConfig) GasPriceGweiDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.GasPriceGwei)
}

// NativePriceBaseDecimal returns the native token price in base token units.
func (c *ArbitrageConfig) NativePriceBaseDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.NativePriceBase)
}

// ExecutionConfig holds transaction build and submission settings.
type ExecutionConfig struct {
	ExecutorAddress        string            `mapstructure:"executor_address"`
	Adapters               map[string]string `mapstructure:"adapters"` // dex name -> adapter address
	SenderAddress          string            `mapstructure:"sender_address"`
	PrivateKey             string            `mapstructure:"private_key"`
	RelayURL               string            `mapstructure:"relay_url"`
	DryRun                 bool              `mapstructure:"dry_run"`
	GasLimitMarginBps      int64             `mapstructure:"gas_limit_margin_bps"`
	ConfirmationTimeout    time.Duration     `mapstructure:"confirmation_timeout"`
	ReplacementBumpBps     int64             `mapstructure:"replacement_bump_bps"`
	MaxConsecutiveFailures int               `mapstructure:"max_consecutive_failures"`
}

// ExecutorAddressHex returns the executor contract address.
func (c *ExecutionConfig) ExecutorAddressHex() common.Address {
	return common.HexToAddress(c.ExecutorAddress)
}

// SenderAddressHex returns the sender address.
func (c *ExecutionConfig) SenderAddressHex() common.Address {
	return common.HexToAddress(c.SenderAddress)
}

// NonceConfig holds nonce persistence settings.
type NonceConfig struct {
	Store       string        `mapstructure:"store"` // "file" or "redis"
	FilePath    string        `mapstructure:"file_path"`
	RedisAddr   string        `mapstructure:"redis_addr"`
	RedisDB     int           `mapstructure:"redis_db"`
	DropTimeout time.Duration `mapstructure:"drop_timeout"`
}

// LedgerConfig holds execution ledger settings.
type LedgerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
	HealthPort     int    `mapstructure:"health_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("FLASH")
	v.AutomaticEnv()

	// Bind env vars to config keys
	bindEnvVars(v)

	// Set defaults
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "FLASH_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "FLASH_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "FLASH_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("app.ui", "FLASH_UI")

	// Ethereum
	v.BindEnv("ethereum.websocket_url", "FLASH_ETH_WS_URL", "ETH_WS_URL")
	v.BindEnv("ethereum.http_url", "FLASH_ETH_HTTP_URL", "ETH_HTTP_URL")
	v.BindEnv("ethereum.chain_id", "FLASH_ETH_CHAIN_ID", "ETH_CHAIN_ID")

	// Arbitrage
	v.BindEnv("arbitrage.input_amount", "FLASH_INPUT_AMOUNT")
	v.BindEnv("arbitrage.min_net_profit", "FLASH_MIN_NET_PROFIT")
	v.BindEnv("arbitrage.max_slippage_bps", "FLASH_MAX_SLIPPAGE_BPS")

	// Execution
	v.BindEnv("execution.executor_address", "FLASH_EXECUTOR_ADDRESS")
	v.BindEnv("execution.sender_address", "FLASH_SENDER_ADDRESS")
	v.BindEnv("execution.private_key", "FLASH_PRIVATE_KEY", "PRIVATE_KEY")
	v.BindEnv("execution.relay_url", "FLASH_RELAY_URL")
	v.BindEnv("execution.dry_run", "FLASH_DRY_RUN")

	// Nonce
	v.BindEnv("nonce.store", "FLASH_NONCE_STORE")
	v.BindEnv("nonce.redis_addr", "FLASH_REDIS_ADDR", "REDIS_ADDR")

	// Telemetry
	v.BindEnv("telemetry.enabled", "FLASH_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "FLASH_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "FLASH_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "flashloaner")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.ui", "console")

	// Ethereum defaults
	v.SetDefault("ethereum.chain_id", 1)
	v.SetDefault("ethereum.max_reconnects", 0) // infinite
	v.SetDefault("ethereum.initial_backoff", "1s")
	v.SetDefault("ethereum.max_backoff", "30s")
	v.SetDefault("ethereum.requests_per_sec", 25)

	// Monitor defaults
	v.SetDefault("monitor.poll_interval", "3s")
	v.SetDefault("monitor.delta_threshold_bps", 30)
	v.SetDefault("monitor.stale_threshold", 3)
	v.SetDefault("monitor.event_buffer", 256)

	// Arbitrage defaults
	v.SetDefault("arbitrage.input_amount", 10)
	v.SetDefault("arbitrage.min_net_profit", 0.01)
	v.SetDefault("arbitrage.max_slippage_bps", 50)
	v.SetDefault("arbitrage.base_gas", 150000)
	v.SetDefault("arbitrage.per_swap_gas", 120000)
	v.SetDefault("arbitrage.gas_price_gwei", 20)
	v.SetDefault("arbitrage.native_price_base", 1)
	v.SetDefault("arbitrage.triangular", false)

	// Execution defaults
	v.SetDefault("execution.dry_run", true)
	v.SetDefault("execution.gas_limit_margin_bps", 2000)
	v.SetDefault("execution.confirmation_timeout", "90s")
	v.SetDefault("execution.replacement_bump_bps", 11500)
	v.SetDefault("execution.max_consecutive_failures", 3)

	// Nonce defaults
	v.SetDefault("nonce.store", "file")
	v.SetDefault("nonce.file_path", "nonce_state.json")
	v.SetDefault("nonce.redis_addr", "localhost:6379")
	v.SetDefault("nonce.redis_db", 0)
	v.SetDefault("nonce.drop_timeout", "5m")

	// Ledger defaults
	v.SetDefault("ledger.enabled", false)
	v.SetDefault("ledger.path", "flashloaner.db")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "flashloaner")
	v.SetDefault("telemetry.prometheus_port", 9090)
	v.SetDefault("telemetry.health_port", 8081)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Ethereum.HTTPURL == "" {
		return fmt.Errorf("ethereum.http_url is required")
	}
	for i, p := range c.Pools {
		if !common.IsHexAddress(p.Address) {
			return fmt.Errorf("invalid pools[%d].address: %s", i, p.Address)
		}
		if !common.IsHexAddress(p.Token0.Address) || !common.IsHexAddress(p.Token1.Address) {
			return fmt.Errorf("invalid token address in pools[%d] (%s)", i, p.Name)
		}
	}
	for i, p := range c.Arbitrage.Providers {
		if !common.IsHexAddress(p.Address) {
			return fmt.Errorf("invalid arbitrage.providers[%d].address: %s", i, p.Address)
		}
		if p.FeeBps < 0 {
			return fmt.Errorf("arbitrage.providers[%d].fee_bps cannot be negative", i)
		}
	}
	if c.Execution.ExecutorAddress != "" && !common.IsHexAddress(c.Execution.ExecutorAddress) {
		return fmt.Errorf("invalid execution.executor_address: %s", c.Execution.ExecutorAddress)
	}
	for dex, addr := range c.Execution.Adapters {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid execution.adapters[%s]: %s", dex, addr)
		}
	}
	if c.Execution.ReplacementBumpBps <= 10000 {
		return fmt.Errorf("execution.replacement_bump_bps must exceed 10000")
	}
	if c.Nonce.Store != "file" && c.Nonce.Store != "redis" {
		return fmt.Errorf("nonce.store must be file or redis, got %q", c.Nonce.Store)
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	return nil
}
