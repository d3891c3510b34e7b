// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Chains    []ChainConfig   `mapstructure:"chains"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Optimizer OptimizerConfig `mapstructure:"optimizer"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	PriceFeed PriceFeedConfig `mapstructure:"price_feed"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// ChainConfig holds per-chain connectivity and wallet settings.
type ChainConfig struct {
	Name          string `mapstructure:"name"`   // e.g. "ethereum"
	Family        string `mapstructure:"family"` // "evm" or "solana"
	ChainID       uint64 `mapstructure:"chain_id"`
	WebSocketURL  string `mapstructure:"websocket_url"`
	HTTPURL       string `mapstructure:"http_url"`
	RelayURL      string `mapstructure:"relay_url"`
	WalletAddress string `mapstructure:"wallet_address"`
	// PrivateKeyEnv names the environment variable carrying the signing key.
	// The key itself never lives in config files.
	PrivateKeyEnv string `mapstructure:"private_key_env"`
	// RelayKeyEnv names the environment variable carrying the relay identity
	// key. Falls back to PrivateKeyEnv when empty.
	RelayKeyEnv string `mapstructure:"relay_key_env"`

	// Routers lists the DEX router addresses watched for victim swaps. The
	// first entry is also the router both attack legs trade through.
	Routers []string `mapstructure:"routers"`
	// FactoryAddress is the AMM factory used for pair lookups (EVM only).
	FactoryAddress string `mapstructure:"factory_address"`
	// WrappedNative is the wrapped native token address (EVM only).
	WrappedNative string `mapstructure:"wrapped_native"`
	// SwapPrograms lists AMM program IDs watched for swaps (Solana only).
	SwapPrograms []string `mapstructure:"swap_programs"`
}

// DetectorConfig holds opportunity detection thresholds.
type DetectorConfig struct {
	// MinPriceImpactBps is the minimum victim price impact, in basis points,
	// required to emit an opportunity. Default 50 (0.5%).
	MinPriceImpactBps int64 `mapstructure:"min_price_impact_bps"`
	// MinLiquidityNative is the minimum pool reserve on the native side, in
	// whole native units, below which candidates are rejected.
	MinLiquidityNative float64 `mapstructure:"min_liquidity_native"`
	// MaxPoolAge is the reserve cache age beyond which confidence is
	// downgraded (emission still happens).
	MaxPoolAge time.Duration `mapstructure:"max_pool_age"`
	// OpportunityTTL is the staleness window after which an unconsumed
	// opportunity expires.
	OpportunityTTL time.Duration `mapstructure:"opportunity_ttl"`
	// TokenBlacklist lists token addresses that never pass the quality gate.
	TokenBlacklist []string `mapstructure:"token_blacklist"`
	// BufferSize is the opportunity channel buffer per chain.
	BufferSize int `mapstructure:"buffer_size"`
}

// OptimizerConfig holds position sizing and profitability thresholds.
type OptimizerConfig struct {
	// MaxPositionBps caps the front-run size as basis points of the pool's
	// input-side reserve. Default 3000 (30%).
	MaxPositionBps int64 `mapstructure:"max_position_bps"`
	// SearchIterations caps the ternary search. Default 20.
	SearchIterations int `mapstructure:"search_iterations"`
	// EpsilonBps terminates the search when successive improvement falls
	// below this fraction of candidate profit. Default 10 (0.1%).
	EpsilonBps int64 `mapstructure:"epsilon_bps"`
	// MinNetProfitUSD is the risk-adjusted floor below which no estimate is
	// reported.
	MinNetProfitUSD float64 `mapstructure:"min_net_profit_usd"`
	// FrontRunGasLimit and BackRunGasLimit feed the gas cost model.
	FrontRunGasLimit uint64 `mapstructure:"front_run_gas_limit"`
	BackRunGasLimit  uint64 `mapstructure:"back_run_gas_limit"`
	// GasPremiumBps inflates the gas estimate to stay conservative under
	// fee volatility. Default 1000 (10%).
	GasPremiumBps int64 `mapstructure:"gas_premium_bps"`
	// StableTokens lists token addresses valued at one dollar per whole unit
	// when converting profit to USD.
	StableTokens []string `mapstructure:"stable_tokens"`
}

// ExecutorConfig holds bundle construction and submission settings.
type ExecutorConfig struct {
	// ReserveDriftBps aborts execution when reserves moved more than this
	// since detection. Default 500 (5%).
	ReserveDriftBps int64 `mapstructure:"reserve_drift_bps"`
	// SimDivergenceBps aborts before submission when simulated profit
	// diverges from the estimate by more than this. Default 1000 (10%).
	SimDivergenceBps int64 `mapstructure:"sim_divergence_bps"`
	// TipRatio is the fraction of net profit bid to the builder.
	TipRatio float64 `mapstructure:"tip_ratio"`
	// MaxTipNative caps the tip in whole native units.
	MaxTipNative float64 `mapstructure:"max_tip_native"`
	// MaxSubmitRetries bounds submission retries (transport failures only).
	MaxSubmitRetries int           `mapstructure:"max_submit_retries"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
	MaxRetryBackoff  time.Duration `mapstructure:"max_retry_backoff"`
	// InclusionPollInterval and InclusionPollAttempts bound the monitoring
	// window; exhaustion transitions the bundle to Expired.
	InclusionPollInterval time.Duration `mapstructure:"inclusion_poll_interval"`
	InclusionPollAttempts int           `mapstructure:"inclusion_poll_attempts"`
	// MaxInFlightPerWallet bounds concurrent executions per (chain, wallet).
	MaxInFlightPerWallet int `mapstructure:"max_in_flight_per_wallet"`
	// TargetBlockOffset is how many blocks ahead bundles target.
	TargetBlockOffset uint64 `mapstructure:"target_block_offset"`
	// SubmitRatePerMinute rate limits relay submissions.
	SubmitRatePerMinute int `mapstructure:"submit_rate_per_minute"`
}

// PriceFeedConfig holds the native-asset USD feed settings.
type PriceFeedConfig struct {
	WebSocketURL string        `mapstructure:"websocket_url"`
	RESTURL      string        `mapstructure:"rest_url"`
	Symbols      []string      `mapstructure:"symbols"` // e.g. ETHUSDT, SOLUSDT
	StaleTimeout time.Duration `mapstructure:"stale_timeout"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ServiceName    string        `mapstructure:"service_name"`
	OTLPEndpoint   string        `mapstructure:"otlp_endpoint"`
	PrometheusPort int           `mapstructure:"prometheus_port"`
	HealthPort     int           `mapstructure:"health_port"`
	StatsInterval  time.Duration `mapstructure:"stats_interval"`
}

// WalletAddressHex returns the wallet address as common.Address.
func (c *ChainConfig) WalletAddressHex() common.Address {
	return common.HexToAddress(c.WalletAddress)
}

// MinLiquidityBase returns the liquidity floor in base units for a native
// asset with the given decimals.
func (c *DetectorConfig) MinLiquidityBase(decimals int32) *big.Int {
	return decimal.NewFromFloat(c.MinLiquidityNative).Shift(decimals).Truncate(0).BigInt()
}

// MaxTipBase returns the tip cap in base units for a native asset with the
// given decimals.
func (c *ExecutorConfig) MaxTipBase(decimals int32) *big.Int {
	return decimal.NewFromFloat(c.MaxTipNative).Shift(decimals).Truncate(0).BigInt()
}

// TipRatioDecimal returns the tip ratio as decimal.Decimal.
func (c *ExecutorConfig) TipRatioDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.TipRatio)
}

// MinNetProfitUSDDecimal returns the profit floor as decimal.Decimal.
func (c *OptimizerConfig) MinNetProfitUSDDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinNetProfitUSD)
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("SANDWICH")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

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
	v.BindEnv("app.name", "SANDWICH_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "SANDWICH_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "SANDWICH_LOG_LEVEL", "LOG_LEVEL")

	// Detector
	v.BindEnv("detector.min_price_impact_bps", "SANDWICH_MIN_PRICE_IMPACT_BPS")
	v.BindEnv("detector.min_liquidity_native", "SANDWICH_MIN_LIQUIDITY_NATIVE")

	// Optimizer
	v.BindEnv("optimizer.max_position_bps", "SANDWICH_MAX_POSITION_BPS")
	v.BindEnv("optimizer.min_net_profit_usd", "SANDWICH_MIN_NET_PROFIT_USD")

	// Executor
	v.BindEnv("executor.tip_ratio", "SANDWICH_TIP_RATIO")
	v.BindEnv("executor.max_tip_native", "SANDWICH_MAX_TIP_NATIVE")

	// Price feed
	v.BindEnv("price_feed.websocket_url", "SANDWICH_PRICE_WS_URL")
	v.BindEnv("price_feed.rest_url", "SANDWICH_PRICE_REST_URL")

	// Telemetry
	v.BindEnv("telemetry.enabled", "SANDWICH_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "SANDWICH_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "SANDWICH_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "sandwich-bot")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Detector defaults
	v.SetDefault("detector.min_price_impact_bps", 50) // 0.5%
	v.SetDefault("detector.min_liquidity_native", 10.0)
	v.SetDefault("detector.max_pool_age", "30s")
	v.SetDefault("detector.opportunity_ttl", "12s") // ~1 block
	v.SetDefault("detector.buffer_size", 64)

	// Optimizer defaults
	v.SetDefault("optimizer.max_position_bps", 3000) // 30% of reserve
	v.SetDefault("optimizer.search_iterations", 20)
	v.SetDefault("optimizer.epsilon_bps", 10) // 0.1% of candidate profit
	v.SetDefault("optimizer.min_net_profit_usd", 25.0)
	v.SetDefault("optimizer.front_run_gas_limit", 180_000)
	v.SetDefault("optimizer.back_run_gas_limit", 180_000)
	v.SetDefault("optimizer.gas_premium_bps", 1000) // 10%

	// Executor defaults
	v.SetDefault("executor.reserve_drift_bps", 500)   // 5%
	v.SetDefault("executor.sim_divergence_bps", 1000) // 10%
	v.SetDefault("executor.tip_ratio", 0.5)
	v.SetDefault("executor.max_tip_native", 0.05)
	v.SetDefault("executor.max_submit_retries", 3)
	v.SetDefault("executor.retry_backoff", "500ms")
	v.SetDefault("executor.max_retry_backoff", "5s")
	v.SetDefault("executor.inclusion_poll_interval", "2s")
	v.SetDefault("executor.inclusion_poll_attempts", 15)
	v.SetDefault("executor.max_in_flight_per_wallet", 3)
	v.SetDefault("executor.target_block_offset", 1)
	v.SetDefault("executor.submit_rate_per_minute", 60)

	// Price feed defaults
	v.SetDefault("price_feed.websocket_url", "wss://stream.binance.com:9443")
	v.SetDefault("price_feed.rest_url", "https://api.binance.com")
	v.SetDefault("price_feed.symbols", []string{"ETHUSDT"})
	v.SetDefault("price_feed.stale_timeout", "5s")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "sandwich-bot")
	v.SetDefault("telemetry.prometheus_port", 9090)
	v.SetDefault("telemetry.health_port", 8081)
	v.SetDefault("telemetry.stats_interval", "30s")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}
	for i, chain := range c.Chains {
		if chain.Name == "" {
			return fmt.Errorf("chains[%d].name is required", i)
		}
		if chain.Family != "evm" && chain.Family != "solana" {
			return fmt.Errorf("chains[%d].family must be evm or solana, got %q", i, chain.Family)
		}
		if chain.Family == "evm" {
			if chain.HTTPURL == "" {
				return fmt.Errorf("chains[%d].http_url is required", i)
			}
			if chain.WalletAddress != "" && !common.IsHexAddress(chain.WalletAddress) {
				return fmt.Errorf("chains[%d].wallet_address is not a hex address", i)
			}
			if len(chain.Routers) == 0 {
				return fmt.Errorf("chains[%d].routers must list at least one router", i)
			}
			for j, router := range chain.Routers {
				if !common.IsHexAddress(router) {
					return fmt.Errorf("chains[%d].routers[%d] is not a hex address", i, j)
				}
			}
			if chain.FactoryAddress == "" {
				return fmt.Errorf("chains[%d].factory_address is required", i)
			}
		}
		if chain.Family == "solana" && len(chain.SwapPrograms) == 0 {
			return fmt.Errorf("chains[%d].swap_programs must list at least one program", i)
		}
	}

	if c.Detector.MinPriceImpactBps <= 0 {
		return fmt.Errorf("detector.min_price_impact_bps must be positive")
	}
	if c.Optimizer.MaxPositionBps <= 0 || c.Optimizer.MaxPositionBps > 10_000 {
		return fmt.Errorf("optimizer.max_position_bps must be in (0, 10000]")
	}
	if c.Optimizer.SearchIterations <= 0 {
		return fmt.Errorf("optimizer.search_iterations must be positive")
	}
	if c.Executor.TipRatio < 0 || c.Executor.TipRatio > 1 {
		return fmt.Errorf("executor.tip_ratio must be in [0, 1]")
	}
	if c.Executor.InclusionPollAttempts <= 0 {
		return fmt.Errorf("executor.inclusion_poll_attempts must be positive")
	}
	return nil
}
