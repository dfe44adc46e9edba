// Package config loads marketwatch's environment-variable configuration,
// following soosho-bixor-engine's godotenv + getEnv helper pattern and
// rnts08-eth-watchtower's load-then-validate split.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every threshold and connection parameter spec.md §6 names.
type Config struct {
	BSCWSS string
	ETHWSS string

	MinLiqUSD          float64
	BuyVol1mUSD        float64
	BuyTxs1m           int
	VolumeMultiplier   float64
	FDVMultiplier      float64
	WhaleSingleBuyUSD  float64
	WhaleLiquidityRatio float64
	MaxActiveMarkets   int
	TrendingPollInterval time.Duration
	TrendingMinLiqUSD  float64
	TrendingTopK       int
	MaxTaxPct          float64

	MetricsAddr       string
	AggregatorBaseURL string
}

// Load reads .env (if present) then the process environment, applying the
// documented defaults from SPEC_FULL.md §6.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		BSCWSS: os.Getenv("BSC_WSS"),
		ETHWSS: os.Getenv("ETH_WSS"),

		MinLiqUSD:            getFloatEnv("MIN_LIQ_USD", 5000),
		BuyVol1mUSD:          getFloatEnv("BUY_VOL_1M_USD", 5000),
		BuyTxs1m:             getIntEnv("BUY_TXS_1M", 5),
		VolumeMultiplier:     getFloatEnv("VOLUME_MULTIPLIER", 5),
		FDVMultiplier:        getFloatEnv("FDV_MULTIPLIER", 3),
		WhaleSingleBuyUSD:    getFloatEnv("WHALE_SINGLE_BUY_USD", 5000),
		WhaleLiquidityRatio:  getFloatEnv("WHALE_LIQUIDITY_RATIO", 0.03),
		MaxActiveMarkets:     getIntEnv("MAX_ACTIVE_MARKETS", 200),
		TrendingPollInterval: getDurationMsEnv("TRENDING_POLL_INTERVAL_MS", 60_000),
		TrendingMinLiqUSD:    getFloatEnv("TRENDING_MIN_LIQ_USD", 10_000),
		TrendingTopK:         getIntEnv("TRENDING_TOP_K", 50),
		MaxTaxPct:            getFloatEnv("MAX_TAX_PCT", 0.20),

		MetricsAddr:       getEnv("METRICS_ADDR", ":2112"),
		AggregatorBaseURL: getEnv("AGGREGATOR_BASE_URL", "https://api.dexscreener.com"),
	}

	return cfg, nil
}

// Validate enforces the only fatal-at-startup requirement spec.md §7 names:
// missing required RPC endpoints.
func Validate(cfg *Config) error {
	if cfg.BSCWSS == "" {
		return fmt.Errorf("BSC_WSS is required")
	}
	if cfg.ETHWSS == "" {
		return fmt.Errorf("ETH_WSS is required")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDurationMsEnv(key string, defMs int) time.Duration {
	ms := getIntEnv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}
