// Package config handles configuration management with validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration tree: one process runs any number
// of accounts, each hosting any number of grid strategies, plus the
// orchestrator's own periodic-task intervals.
type Config struct {
	Accounts     map[string]AccountConfig `yaml:"accounts" validate:"required,min=1"`
	Strategies   []StrategyConfig         `yaml:"strategies" validate:"required,min=1"`
	Orchestrator OrchestratorConfig       `yaml:"orchestrator"`
	System       SystemConfig             `yaml:"system"`
	Telemetry    TelemetryConfig          `yaml:"telemetry"`
}

// AccountConfig holds one exchange account's credentials.
type AccountConfig struct {
	APIKey    Secret `yaml:"api_key" validate:"required"`
	APISecret Secret `yaml:"api_secret" validate:"required"`
	Testnet   bool   `yaml:"testnet"`
}

// AmountSpec controls per-level order sizing. The orchestrator sizes orders
// from Fixed only; PercentOfEquity is parsed but not read, so it does not
// make position size track account equity.
type AmountSpec struct {
	Fixed           decimal.Decimal `yaml:"fixed"`
	PercentOfEquity decimal.Decimal `yaml:"percent_of_equity"`
}

// RiskConfigYAML mirrors core.RiskConfig with YAML tags; LoadConfig converts
// it via ToCore.
type RiskConfigYAML struct {
	MinLiqRatio                     decimal.Decimal `yaml:"min_liq_ratio" validate:"required"`
	MaxLiqRatio                     decimal.Decimal `yaml:"max_liq_ratio" validate:"required"`
	MaxMargin                       decimal.Decimal `yaml:"max_margin" validate:"required"`
	MinTotalMargin                  decimal.Decimal `yaml:"min_total_margin" validate:"required"`
	IncreaseSamePositionOnLowMargin bool            `yaml:"increase_same_position_on_low_margin"`
	LongKoef                        decimal.Decimal `yaml:"long_koef"`
}

// StrategyConfig describes one grid strategy instance bound to one account
// and symbol.
type StrategyConfig struct {
	StratID            string          `yaml:"strat_id" validate:"required"`
	Account            string          `yaml:"account" validate:"required"`
	Symbol             string          `yaml:"symbol" validate:"required"`
	TickSize           decimal.Decimal `yaml:"tick_size" validate:"required"`
	GridCount          int             `yaml:"grid_count" validate:"required,min=2"`
	GridStep           decimal.Decimal `yaml:"grid_step" validate:"required"`
	RebalanceThreshold decimal.Decimal `yaml:"rebalance_threshold"`
	Direction          string          `yaml:"direction" validate:"oneof=long short"`
	ShadowMode         bool            `yaml:"shadow_mode"`
	Amount             AmountSpec      `yaml:"amount"`
	Risk               RiskConfigYAML  `yaml:"risk_config"`
}

// OrchestratorConfig holds the orchestrator's periodic-task intervals, in
// seconds. PositionCheckInterval must be positive; OrderSyncInterval <= 0
// disables the order-sync task; WalletCacheInterval <= 0 disables
// wallet-balance caching.
type OrchestratorConfig struct {
	PositionCheckInterval int `yaml:"position_check_interval" validate:"required,min=1"`
	OrderSyncInterval     int `yaml:"order_sync_interval"`
	WalletCacheInterval   int `yaml:"wallet_cache_interval"`
}

// SystemConfig contains process-level settings.
type SystemConfig struct {
	LogLevel      string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
	CancelOnExit  bool   `yaml:"cancel_on_exit"`
	AnchorDBPath  string `yaml:"anchor_db_path" validate:"required"`
	RiskCachePath string `yaml:"risk_cache_path" validate:"required"`
}

// TelemetryConfig controls the ambient Prometheus endpoint.
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment
// variable expansion.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateAccounts(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateStrategies(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateOrchestrator(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateSystem(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func (c *Config) validateAccounts() error {
	if len(c.Accounts) == 0 {
		return ValidationError{Field: "accounts", Message: "at least one account must be configured"}
	}
	for name, acc := range c.Accounts {
		if acc.APIKey == "" {
			return ValidationError{Field: fmt.Sprintf("accounts.%s.api_key", name), Message: "api key is required"}
		}
		if acc.APISecret == "" {
			return ValidationError{Field: fmt.Sprintf("accounts.%s.api_secret", name), Message: "api secret is required"}
		}
	}
	return nil
}

func (c *Config) validateStrategies() error {
	if len(c.Strategies) == 0 {
		return ValidationError{Field: "strategies", Message: "at least one strategy must be configured"}
	}
	seen := make(map[string]bool, len(c.Strategies))
	for _, s := range c.Strategies {
		if s.StratID == "" {
			return ValidationError{Field: "strategies[].strat_id", Message: "strat_id is required"}
		}
		if seen[s.StratID] {
			return ValidationError{Field: "strategies[].strat_id", Value: s.StratID, Message: "strat_id must be unique"}
		}
		seen[s.StratID] = true

		if _, ok := c.Accounts[s.Account]; !ok {
			return ValidationError{Field: fmt.Sprintf("strategies.%s.account", s.StratID), Value: s.Account, Message: "account not found in accounts section"}
		}
		if s.GridCount%2 != 0 {
			return ValidationError{Field: fmt.Sprintf("strategies.%s.grid_count", s.StratID), Value: s.GridCount, Message: "grid_count must be even"}
		}
		if s.GridStep.LessThanOrEqual(decimal.Zero) {
			return ValidationError{Field: fmt.Sprintf("strategies.%s.grid_step", s.StratID), Value: s.GridStep.String(), Message: "grid_step must be positive"}
		}
		if s.Risk.MinLiqRatio.GreaterThan(s.Risk.MaxLiqRatio) {
			return ValidationError{Field: fmt.Sprintf("strategies.%s.risk_config", s.StratID), Message: "min_liq_ratio must not exceed max_liq_ratio"}
		}
		if s.Direction != "" && s.Direction != "long" && s.Direction != "short" {
			return ValidationError{Field: fmt.Sprintf("strategies.%s.direction", s.StratID), Value: s.Direction, Message: "must be long or short"}
		}
	}
	return nil
}

func (c *Config) validateOrchestrator() error {
	if c.Orchestrator.PositionCheckInterval <= 0 {
		return ValidationError{Field: "orchestrator.position_check_interval", Value: c.Orchestrator.PositionCheckInterval, Message: "must be positive"}
	}
	return nil
}

func (c *Config) validateSystem() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{Field: "system.log_level", Value: c.System.LogLevel, Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", "))}
	}
	if c.System.AnchorDBPath == "" {
		return ValidationError{Field: "system.anchor_db_path", Message: "anchor_db_path is required"}
	}
	if c.System.RiskCachePath == "" {
		return ValidationError{Field: "system.risk_cache_path", Message: "risk_cache_path is required"}
	}
	return nil
}

// String returns a string representation of the configuration with
// credentials masked via Secret's own marshaling.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		value := os.Getenv(key)
		if value == "" && isCriticalEnvVar(key) {
			return ""
		}
		return value
	})
}

// isCriticalEnvVar checks if an environment variable is critical for
// operation; unset critical vars are expanded to empty rather than left as
// literal `${VAR}` text, so downstream validation fails loudly instead of
// embedding a placeholder in a credential field.
func isCriticalEnvVar(key string) bool {
	criticalVars := []string{
		"BYBIT_API_KEY", "BYBIT_API_SECRET",
	}
	return contains(criticalVars, key)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for tests.
func DefaultConfig() *Config {
	return &Config{
		Accounts: map[string]AccountConfig{
			"main": {APIKey: "test_api_key", APISecret: "test_api_secret", Testnet: true},
		},
		Strategies: []StrategyConfig{
			{
				StratID:    "btcusdt-grid-1",
				Account:    "main",
				Symbol:     "BTCUSDT",
				TickSize:   decimal.NewFromFloat(0.1),
				GridCount:  50,
				GridStep:   decimal.NewFromFloat(0.2),
				ShadowMode: true,
				Amount:     AmountSpec{Fixed: decimal.NewFromInt(1)},
				Risk: RiskConfigYAML{
					MinLiqRatio:    decimal.NewFromFloat(0.2),
					MaxLiqRatio:    decimal.NewFromFloat(0.8),
					MaxMargin:      decimal.NewFromInt(10000),
					MinTotalMargin: decimal.NewFromInt(1000),
					LongKoef:       decimal.NewFromFloat(1.5),
				},
			},
		},
		Orchestrator: OrchestratorConfig{
			PositionCheckInterval: 5,
			OrderSyncInterval:     60,
			WalletCacheInterval:   30,
		},
		System: SystemConfig{
			LogLevel:      "INFO",
			CancelOnExit:  true,
			AnchorDBPath:  "./data/anchors.db",
			RiskCachePath: "./data/risk_limits.json",
		},
	}
}
