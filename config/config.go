package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"paperMarginBot/internal/adapters/logger" // Import the logger package for LogLevel
)

// PyramidingConfig controls adding to an existing winning position.
type PyramidingConfig struct {
	Enabled       bool
	MinConfidence float64 // Minimum signal confidence to allow an add
	MinProfitPct  float64 // Position must be at least this % in profit
	MaxAdds       int     // Maximum number of adds per position
	AddPercentage float64 // Fraction of the current total quantity per add
}

// TrailingConfig controls incremental partial closes of a winning position.
type TrailingConfig struct {
	Enabled          bool
	MaxCount         int     // Maximum number of partial closes per position
	ExitPercentage   float64 // Fraction of the remaining quantity per close
	MinProfitPct     float64 // Profit % at which trailing becomes eligible
	ActivationPct    float64 // Unrealized profit % that arms the trailing stop
	StopOffsetPct    float64 // Trailing stop distance behind the price
	TightenOffsetPct float64 // Stop distance used when tightening on high risk
}

// RiskTier holds the thresholds that trip one risk level.
type RiskTier struct {
	MarginPct float64 // Margin usage % above which the tier trips
	LossPct   float64 // Loss % (positive number) below which the tier trips
	Hours     float64 // Holding time beyond which the tier trips
}

// Config holds all application configuration.
type Config struct {
	// Account
	AccountID        string
	InitialBalance   float64
	DailyTradesLimit int

	// Trading Parameters
	Symbols           []string
	DefaultLeverage   float64
	MaxLeverage       float64
	TradingFeePct     float64
	ExitFeeMultiplier float64
	StopLossPct       float64 // e.g. 0.01 for 1%
	TargetPct         float64 // e.g. 0.03 for 3%
	MinConfidence     float64
	MaxHoldingHours   float64
	MinTradeSize      float64

	// Position sizing / admission control
	BalancePerTradePct     float64 // Normal tier fraction of balance per trade
	SafeBalancePerTradePct float64 // Fraction used when the balance is small
	SafeBalanceThreshold   float64 // Balance at or below which safe mode is used
	LiquidationBufferPct   float64 // Discount applied to the computed quantity
	MaxPositionsOpen       int

	// Extensions
	Pyramiding PyramidingConfig
	Trailing   TrailingConfig

	// Per-position risk tiers
	MediumRisk    RiskTier
	HighRisk      RiskTier
	CriticalRisk  RiskTier
	EmergencyRisk RiskTier

	// Portfolio risk
	MaxPortfolioRiskPct        float64 // Anti-overtrade ceiling on margin usage
	PortfolioHighRiskMarginPct float64
	PortfolioCriticalMarginPct float64
	PortfolioHighRiskLossPct   float64
	PortfolioCriticalLossPct   float64
	PortfolioMediumMarginPct   float64
	PortfolioMediumLossPct     float64

	// Risk engine behavior
	WarningCooldown       time.Duration
	RiskCheckInterval     time.Duration
	EmergencyLiqDistance  float64 // Liquidation distance % forcing an emergency close
	WarningLiqDistance    float64 // Liquidation distance % that emits a warning
	ProfitProtectPct      float64 // Profit % that activates trailing outright
	PersistInterval       time.Duration
	PortfolioInterval     time.Duration

	// Price feed
	FeedKind      string // "sim" or "ws"
	FeedURL       string
	FeedTickEvery time.Duration

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter
	LogJSON  bool            // Use the zap adapter instead of the std logger
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Account
	cfg.AccountID = getEnv("ACCOUNT_ID", "main")
	cfg.InitialBalance, err = getEnvAsFloatRequired("INITIAL_BALANCE", 10000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_BALANCE: %v", err))
	} else if cfg.InitialBalance <= 0 {
		errs = append(errs, "INITIAL_BALANCE must be positive")
	}

	cfg.DailyTradesLimit, err = getEnvAsIntRequired("DAILY_TRADES_LIMIT", 50)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DAILY_TRADES_LIMIT: %v", err))
	} else if cfg.DailyTradesLimit <= 0 {
		errs = append(errs, "DAILY_TRADES_LIMIT must be positive")
	}

	// Trading Parameters
	symbols := getEnv("SYMBOLS", "BTCUSD,ETHUSD")
	for _, s := range strings.Split(symbols, ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.Symbols = append(cfg.Symbols, s)
		}
	}
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must list at least one symbol")
	}

	cfg.DefaultLeverage = getEnvAsFloat("DEFAULT_LEVERAGE", 10.0)
	cfg.MaxLeverage = getEnvAsFloat("MAX_LEVERAGE", 50.0)
	if cfg.DefaultLeverage <= 0 || cfg.MaxLeverage <= 0 {
		errs = append(errs, "DEFAULT_LEVERAGE and MAX_LEVERAGE must be positive")
	}
	if cfg.DefaultLeverage > cfg.MaxLeverage {
		errs = append(errs, "DEFAULT_LEVERAGE must not exceed MAX_LEVERAGE")
	}

	cfg.TradingFeePct = getEnvAsFloat("TRADING_FEE_PCT", 0.001)
	if cfg.TradingFeePct < 0 || cfg.TradingFeePct >= 1 {
		errs = append(errs, "TRADING_FEE_PCT must be in [0, 1)")
	}
	cfg.ExitFeeMultiplier = getEnvAsFloat("EXIT_FEE_MULTIPLIER", 0.5)
	if cfg.ExitFeeMultiplier < 0 {
		errs = append(errs, "EXIT_FEE_MULTIPLIER cannot be negative")
	}

	cfg.StopLossPct, err = getEnvAsFloatRequired("STOP_LOSS_PCT", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS_PCT: %v", err))
	} else if cfg.StopLossPct <= 0 || cfg.StopLossPct >= 1.0 {
		errs = append(errs, "STOP_LOSS_PCT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.TargetPct, err = getEnvAsFloatRequired("TARGET_PCT", 0.03)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TARGET_PCT: %v", err))
	} else if cfg.TargetPct <= 0 {
		errs = append(errs, "TARGET_PCT must be positive")
	}

	cfg.MinConfidence = getEnvAsFloat("MIN_CONFIDENCE", 50.0)
	cfg.MaxHoldingHours = getEnvAsFloat("MAX_HOLDING_HOURS", 48.0)
	cfg.MinTradeSize = getEnvAsFloat("MIN_TRADE_SIZE", 0.001)

	// Position sizing
	cfg.BalancePerTradePct = getEnvAsFloat("BALANCE_PER_TRADE_PCT", 0.20)
	cfg.SafeBalancePerTradePct = getEnvAsFloat("SAFE_BALANCE_PER_TRADE_PCT", 0.05)
	cfg.SafeBalanceThreshold = getEnvAsFloat("SAFE_BALANCE_THRESHOLD", 1000.0)
	cfg.LiquidationBufferPct = getEnvAsFloat("LIQUIDATION_BUFFER_PCT", 0.10)
	if cfg.BalancePerTradePct <= 0 || cfg.BalancePerTradePct > 1 {
		errs = append(errs, "BALANCE_PER_TRADE_PCT must be in (0, 1]")
	}
	if cfg.SafeBalancePerTradePct <= 0 || cfg.SafeBalancePerTradePct > 1 {
		errs = append(errs, "SAFE_BALANCE_PER_TRADE_PCT must be in (0, 1]")
	}
	if cfg.LiquidationBufferPct < 0 || cfg.LiquidationBufferPct >= 1 {
		errs = append(errs, "LIQUIDATION_BUFFER_PCT must be in [0, 1)")
	}
	cfg.MaxPositionsOpen = getEnvAsInt("MAX_POSITIONS_OPEN", 2)
	if cfg.MaxPositionsOpen <= 0 {
		errs = append(errs, "MAX_POSITIONS_OPEN must be positive")
	}

	// Pyramiding
	cfg.Pyramiding = PyramidingConfig{
		Enabled:       getEnvAsBool("PYRAMIDING_ENABLED", true),
		MinConfidence: getEnvAsFloat("PYRAMIDING_MIN_CONFIDENCE", 70.0),
		MinProfitPct:  getEnvAsFloat("PYRAMIDING_MIN_PROFIT_PCT", 2.0),
		MaxAdds:       getEnvAsInt("PYRAMIDING_MAX_ADDS", 3),
		AddPercentage: getEnvAsFloat("PYRAMIDING_ADD_PCT", 0.5),
	}
	if cfg.Pyramiding.AddPercentage <= 0 || cfg.Pyramiding.AddPercentage > 1 {
		errs = append(errs, "PYRAMIDING_ADD_PCT must be in (0, 1]")
	}

	// Trailing
	cfg.Trailing = TrailingConfig{
		Enabled:          getEnvAsBool("TRAILING_ENABLED", true),
		MaxCount:         getEnvAsInt("TRAILING_MAX_COUNT", 3),
		ExitPercentage:   getEnvAsFloat("TRAILING_EXIT_PCT", 0.25),
		MinProfitPct:     getEnvAsFloat("TRAILING_MIN_PROFIT_PCT", 3.0),
		ActivationPct:    getEnvAsFloat("TRAILING_ACTIVATION_PCT", 5.0),
		StopOffsetPct:    getEnvAsFloat("TRAILING_STOP_OFFSET_PCT", 0.03),
		TightenOffsetPct: getEnvAsFloat("TRAILING_TIGHTEN_OFFSET_PCT", 0.02),
	}
	if cfg.Trailing.ExitPercentage <= 0 || cfg.Trailing.ExitPercentage > 1 {
		errs = append(errs, "TRAILING_EXIT_PCT must be in (0, 1]")
	}
	if cfg.Trailing.StopOffsetPct <= 0 || cfg.Trailing.StopOffsetPct >= 1 {
		errs = append(errs, "TRAILING_STOP_OFFSET_PCT must be in (0, 1)")
	}

	// Per-position risk tiers
	cfg.MediumRisk = RiskTier{
		MarginPct: getEnvAsFloat("MEDIUM_RISK_MARGIN_PCT", 70.0),
		LossPct:   getEnvAsFloat("MEDIUM_RISK_LOSS_PCT", 5.0),
		Hours:     getEnvAsFloat("MEDIUM_RISK_TIME_HOURS", 12.0),
	}
	cfg.HighRisk = RiskTier{
		MarginPct: getEnvAsFloat("HIGH_RISK_MARGIN_PCT", 80.0),
		LossPct:   getEnvAsFloat("HIGH_RISK_LOSS_PCT", 8.0),
		Hours:     getEnvAsFloat("HIGH_RISK_TIME_HOURS", 24.0),
	}
	cfg.CriticalRisk = RiskTier{
		MarginPct: getEnvAsFloat("CRITICAL_RISK_MARGIN_PCT", 90.0),
		LossPct:   getEnvAsFloat("CRITICAL_RISK_LOSS_PCT", 12.0),
		Hours:     getEnvAsFloat("CRITICAL_RISK_TIME_HOURS", 36.0),
	}
	cfg.EmergencyRisk = RiskTier{
		MarginPct: getEnvAsFloat("EMERGENCY_CLOSE_MARGIN_PCT", 95.0),
		LossPct:   getEnvAsFloat("EMERGENCY_CLOSE_LOSS_PCT", 15.0),
		Hours:     getEnvAsFloat("EMERGENCY_CLOSE_TIME_HOURS", 48.0),
	}

	// Portfolio risk
	cfg.MaxPortfolioRiskPct = getEnvAsFloat("MAX_PORTFOLIO_RISK_PCT", 80.0)
	cfg.PortfolioHighRiskMarginPct = getEnvAsFloat("PORTFOLIO_HIGH_RISK_MARGIN_PCT", 85.0)
	cfg.PortfolioCriticalMarginPct = getEnvAsFloat("PORTFOLIO_CRITICAL_MARGIN_PCT", 92.0)
	cfg.PortfolioHighRiskLossPct = getEnvAsFloat("PORTFOLIO_HIGH_RISK_LOSS_PCT", 25.0)
	cfg.PortfolioCriticalLossPct = getEnvAsFloat("PORTFOLIO_CRITICAL_LOSS_PCT", 35.0)
	cfg.PortfolioMediumMarginPct = getEnvAsFloat("PORTFOLIO_MEDIUM_MARGIN_PCT", 70.0)
	cfg.PortfolioMediumLossPct = getEnvAsFloat("PORTFOLIO_MEDIUM_LOSS_PCT", 15.0)

	// Risk engine behavior
	cfg.WarningCooldown = time.Duration(getEnvAsInt("WARNING_COOLDOWN_SECONDS", 300)) * time.Second
	cfg.RiskCheckInterval = time.Duration(getEnvAsInt("RISK_CHECK_INTERVAL_SECONDS", 5)) * time.Second
	cfg.EmergencyLiqDistance = getEnvAsFloat("EMERGENCY_LIQ_DISTANCE_PCT", 5.0)
	cfg.WarningLiqDistance = getEnvAsFloat("WARNING_LIQ_DISTANCE_PCT", 15.0)
	cfg.ProfitProtectPct = getEnvAsFloat("PROFIT_PROTECT_PCT", 10.0)
	cfg.PersistInterval = time.Duration(getEnvAsInt("PERSIST_INTERVAL_SECONDS", 30)) * time.Second
	cfg.PortfolioInterval = time.Duration(getEnvAsInt("PORTFOLIO_INTERVAL_SECONDS", 60)) * time.Second
	if cfg.RiskCheckInterval <= 0 {
		errs = append(errs, "RISK_CHECK_INTERVAL_SECONDS must be positive")
	}

	// Price feed
	cfg.FeedKind = strings.ToLower(getEnv("PRICE_FEED", "sim"))
	if cfg.FeedKind != "sim" && cfg.FeedKind != "ws" {
		errs = append(errs, "PRICE_FEED must be 'sim' or 'ws'")
	}
	cfg.FeedURL = getEnv("PRICE_FEED_URL", "")
	if cfg.FeedKind == "ws" && cfg.FeedURL == "" {
		errs = append(errs, "PRICE_FEED_URL must be set when PRICE_FEED=ws")
	}
	cfg.FeedTickEvery = time.Duration(getEnvAsInt("PRICE_TICK_MS", 1000)) * time.Millisecond

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/paper_trading.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogJSON = getEnvAsBool("LOG_JSON", false)

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
