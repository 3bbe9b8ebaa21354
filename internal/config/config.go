// Package config builds run configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianquant/meridian/internal/backtest"
)

// StrategyConfig holds default strategy parameters.
type StrategyConfig struct {
	FastMAPeriod int
	SlowMAPeriod int

	TenkanPeriod  int
	KijunPeriod   int
	SenkouBPeriod int
	Displacement  int

	Quantity decimal.Decimal
}

// AppConfig holds application-wide configuration.
type AppConfig struct {
	Symbols  []string
	Interval string

	Backtest backtest.Config
	Strategy StrategyConfig

	SweepWorkers  int
	TelemetryAddr string
	DatabasePath  string
	DataDir       string
}

// Load builds the application configuration from the environment.
// Unset or unparsable variables keep their defaults.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		Symbols:       []string{"BTC-USD"},
		Interval:      "1h",
		Backtest:      backtest.DefaultConfig(),
		SweepWorkers:  4,
		TelemetryAddr: "",
		DatabasePath:  "candles.db",
		DataDir:       "data",
	}

	cfg.Strategy = StrategyConfig{
		FastMAPeriod:  9,
		SlowMAPeriod:  21,
		TenkanPeriod:  9,
		KijunPeriod:   26,
		SenkouBPeriod: 52,
		Displacement:  26,
		Quantity:      decimal.NewFromFloat(0.1),
	}

	if symbols := os.Getenv("BACKTEST_SYMBOLS"); symbols != "" {
		var parsed []string
		for _, s := range strings.Split(symbols, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				parsed = append(parsed, s)
			}
		}
		if len(parsed) > 0 {
			cfg.Symbols = parsed
		}
	}
	if interval := os.Getenv("BACKTEST_INTERVAL"); interval != "" {
		cfg.Interval = interval
	}

	if value := os.Getenv("BACKTEST_INITIAL_CAPITAL"); value != "" {
		if parsed, err := decimal.NewFromString(value); err == nil && parsed.IsPositive() {
			cfg.Backtest.InitialCapital = parsed
		}
	}
	if value := os.Getenv("BACKTEST_COMMISSION"); value != "" {
		if parsed, err := decimal.NewFromString(value); err == nil && !parsed.IsNegative() {
			cfg.Backtest.Commission = parsed
		}
	}
	if value := os.Getenv("BACKTEST_SLIPPAGE"); value != "" {
		if parsed, err := decimal.NewFromString(value); err == nil && !parsed.IsNegative() {
			cfg.Backtest.Slippage = parsed
		}
	}
	if value := os.Getenv("BACKTEST_LEVERAGE"); value != "" {
		if parsed, err := decimal.NewFromString(value); err == nil && parsed.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			cfg.Backtest.Leverage = parsed
		}
	}
	if value := os.Getenv("BACKTEST_START"); value != "" {
		if parsed, err := time.Parse(time.RFC3339, value); err == nil {
			cfg.Backtest.Start = parsed
		}
	}
	if value := os.Getenv("BACKTEST_END"); value != "" {
		if parsed, err := time.Parse(time.RFC3339, value); err == nil {
			cfg.Backtest.End = parsed
		}
	}

	if val := parseIntEnv("STRATEGY_FAST_MA", cfg.Strategy.FastMAPeriod); val > 0 {
		cfg.Strategy.FastMAPeriod = val
	}
	if val := parseIntEnv("STRATEGY_SLOW_MA", cfg.Strategy.SlowMAPeriod); val > 0 {
		cfg.Strategy.SlowMAPeriod = val
	}
	if val := parseIntEnv("STRATEGY_TENKAN", cfg.Strategy.TenkanPeriod); val > 0 {
		cfg.Strategy.TenkanPeriod = val
	}
	if val := parseIntEnv("STRATEGY_KIJUN", cfg.Strategy.KijunPeriod); val > 0 {
		cfg.Strategy.KijunPeriod = val
	}
	if val := parseIntEnv("STRATEGY_SENKOU_B", cfg.Strategy.SenkouBPeriod); val > 0 {
		cfg.Strategy.SenkouBPeriod = val
	}
	if val := parseIntEnv("STRATEGY_DISPLACEMENT", cfg.Strategy.Displacement); val > 0 {
		cfg.Strategy.Displacement = val
	}
	if value := os.Getenv("STRATEGY_QUANTITY"); value != "" {
		if parsed, err := decimal.NewFromString(value); err == nil && parsed.IsPositive() {
			cfg.Strategy.Quantity = parsed
		}
	}

	if val := parseIntEnv("SWEEP_WORKERS", cfg.SweepWorkers); val > 0 {
		cfg.SweepWorkers = val
	}
	if addr := os.Getenv("TELEMETRY_ADDR"); addr != "" {
		cfg.TelemetryAddr = addr
	}
	if path := os.Getenv("DATABASE_PATH"); path != "" {
		cfg.DatabasePath = path
	}
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}

	return cfg, nil
}

// parseIntEnv parses an integer environment variable.
func parseIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
