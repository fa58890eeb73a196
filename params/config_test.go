package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultPairs(t *testing.T) {
	pairs, err := Default().PairList()
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 2 || pairs[0].Symbol != "BTC-USDT" || pairs[1].QuoteAsset != "USDT" {
		t.Errorf("pairs = %+v", pairs)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("EXCHANGE_PAIRS", "SOL-USDC")
	t.Setenv("STATS_RETENTION", "10")
	t.Setenv("EPOCH_INTERVAL_MS", "250")
	t.Setenv("CHECKPOINT_INTERVAL_MS", "not-a-number")
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("VERBOSE", "true")

	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))

	if cfg.Exchange.Pairs != "SOL-USDC" {
		t.Errorf("pairs = %q", cfg.Exchange.Pairs)
	}
	if cfg.Exchange.StatsRetention != 10 {
		t.Errorf("retention = %d", cfg.Exchange.StatsRetention)
	}
	if cfg.Exchange.EpochInterval != 250*time.Millisecond {
		t.Errorf("epoch interval = %s", cfg.Exchange.EpochInterval)
	}
	if cfg.Node.CheckpointInterval != Default().Node.CheckpointInterval {
		t.Errorf("invalid checkpoint interval was applied: %s", cfg.Node.CheckpointInterval)
	}
	if cfg.Node.APIAddr != ":9000" || !cfg.Node.Verbose {
		t.Errorf("node = %+v", cfg.Node)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("DATA_DIR=/tmp/spot\nTRADE_RETENTION=5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// godotenv does not override variables that are already set.
	t.Setenv("DATA_DIR", "")
	os.Unsetenv("DATA_DIR")
	t.Setenv("TRADE_RETENTION", "")
	os.Unsetenv("TRADE_RETENTION")

	cfg := LoadFromEnv(path)
	if cfg.Node.DataDir != "/tmp/spot" || cfg.Node.TradeRetention != 5 {
		t.Errorf("node = %+v", cfg.Node)
	}
}
