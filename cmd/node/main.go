package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/uhyunpark/hyperspot/params"
	"github.com/uhyunpark/hyperspot/pkg/api"
	"github.com/uhyunpark/hyperspot/pkg/app/core/account"
	"github.com/uhyunpark/hyperspot/pkg/app/core/matching"
	"github.com/uhyunpark/hyperspot/pkg/storage"
	"github.com/uhyunpark/hyperspot/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (console, plus a file when LOG_FILE is set)
	logger, err := util.NewLogger(cfg.Node.Verbose)
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.Verbose)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "verbose", cfg.Node.Verbose)

	// ---- Ledger ----
	accounts, err := account.NewManager(filepath.Join(cfg.Node.DataDir, "accounts"), logger.Named("accounts"))
	if err != nil {
		sugar.Fatalw("account_store_open_failed", "err", err)
	}
	defer accounts.Close()

	// ---- Market state store ----
	store, err := storage.NewPebbleStore(filepath.Join(cfg.Node.DataDir, "market"))
	if err != nil {
		sugar.Fatalw("market_store_open_failed", "err", err)
	}
	defer store.Close()

	// ---- Exchange ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ex := matching.NewExchange(accounts, matching.Config{
		StatsRetention: cfg.Exchange.StatsRetention,
		Logger:         logger.Named("matching"),
		Metrics:        matching.NewMetrics(reg),
	})

	pairs, err := cfg.PairList()
	if err != nil {
		sugar.Fatalw("invalid_pairs", "pairs", cfg.Exchange.Pairs, "err", err)
	}
	for _, p := range pairs {
		if err := ex.AddPair(*p); err != nil {
			sugar.Fatalw("add_pair_failed", "pair", p.Symbol, "err", err)
		}
	}

	// TODO: commit books and balances in one pebble batch; today a crash between
	// checkpoints leaves the ledger ahead of the restored books.
	restored, err := ex.Restore(store)
	if err != nil {
		sugar.Fatalw("checkpoint_restore_failed", "err", err)
	}
	sugar.Infow("checkpoint_restore", "restored", restored, "epoch", ex.Epoch())

	ex.OnTrade = func(t matching.Trade) {
		if err := store.SaveTrade(t); err != nil {
			sugar.Errorw("trade_persist_failed", "trade", t.String(), "err", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Epoch & checkpoint loops ----
	clock := util.RealClock{}
	go util.Every(ctx, clock, cfg.Exchange.EpochInterval, func(time.Time) {
		epoch := ex.AdvanceEpoch()
		sugar.Debugw("epoch_advanced", "epoch", epoch)
	})

	checkpoint := func() {
		if err := ex.Checkpoint(store); err != nil {
			sugar.Errorw("checkpoint_failed", "err", err)
			return
		}
		if cfg.Node.TradeRetention > 0 {
			for _, p := range ex.Pairs() {
				n, err := store.PruneTrades(p.Symbol, cfg.Node.TradeRetention)
				if err != nil {
					sugar.Errorw("trade_prune_failed", "pair", p.Symbol, "err", err)
				} else if n > 0 {
					sugar.Debugw("trades_pruned", "pair", p.Symbol, "count", n)
				}
			}
		}
		sugar.Debugw("checkpoint_saved", "epoch", ex.Epoch())
	}
	go util.Every(ctx, clock, cfg.Node.CheckpointInterval, func(time.Time) { checkpoint() })

	sugar.Infow("node_starting",
		"pairs", len(pairs),
		"api_addr", cfg.Node.APIAddr,
		"data_dir", cfg.Node.DataDir,
		"epoch_interval_ms", cfg.Exchange.EpochInterval.Milliseconds(),
		"checkpoint_interval_ms", cfg.Node.CheckpointInterval.Milliseconds())

	// ---- API ----
	srv := api.NewServer(ex, accounts, api.Options{
		Trades:   store,
		Gatherer: reg,
		Logger:   logger.Named("api"),
	})
	if err := srv.Start(ctx, cfg.Node.APIAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		sugar.Errorw("api_server_failed", "err", err)
		stop()
	}

	<-ctx.Done()
	checkpoint()
	sugar.Infow("node_stopped", "epoch", ex.Epoch())
}
