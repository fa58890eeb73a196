package params

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/uhyunpark/hyperspot/pkg/app/core/market"
)

type Exchange struct {
	// Pairs lists the trading pairs registered at startup, in the
	// market.ParsePairs format: "BTC-USDT:BTC:USDT,ETH-USDT".
	Pairs string
	// StatsRetention is the number of epochs of market statistics kept
	// per pair. Zero selects the built-in default.
	StatsRetention int
	// EpochInterval is how often the node advances the statistics epoch.
	EpochInterval time.Duration
}

type Node struct {
	DataDir string
	APIAddr string
	LogFile string
	Verbose bool

	// CheckpointInterval is how often the books are written to storage.
	// The node always checkpoints once more on shutdown.
	CheckpointInterval time.Duration
	// TradeRetention bounds the stored trade history per pair; zero keeps
	// everything.
	TradeRetention int
}

type Config struct {
	Exchange Exchange
	Node     Node
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			Pairs:          "BTC-USDT:BTC:USDT,ETH-USDT:ETH:USDT",
			StatsRetention: 96,
			EpochInterval:  time.Minute,
		},
		Node: Node{
			DataDir:            "data",
			APIAddr:            ":8080",
			CheckpointInterval: 10 * time.Second,
			TradeRetention:     10000,
		},
	}
}

// PairList parses Exchange.Pairs.
func (c Config) PairList() ([]*market.Pair, error) {
	return market.ParsePairs(c.Exchange.Pairs)
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Exchange.Pairs = getEnv("EXCHANGE_PAIRS", cfg.Exchange.Pairs)
	cfg.Exchange.StatsRetention = getEnvInt("STATS_RETENTION", cfg.Exchange.StatsRetention)
	cfg.Exchange.EpochInterval = getEnvMillis("EPOCH_INTERVAL_MS", cfg.Exchange.EpochInterval)

	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.CheckpointInterval = getEnvMillis("CHECKPOINT_INTERVAL_MS", cfg.Node.CheckpointInterval)
	cfg.Node.TradeRetention = getEnvInt("TRADE_RETENTION", cfg.Node.TradeRetention)
	if verbose := os.Getenv("VERBOSE"); verbose != "" {
		cfg.Node.Verbose = verbose == "true" || verbose == "1"
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt ignores values that are not non-negative integers.
func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
