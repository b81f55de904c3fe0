package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/darkpool-sh/darkpool/params"
	"github.com/darkpool-sh/darkpool/pkg/api"
	"github.com/darkpool-sh/darkpool/pkg/crypto"
	"github.com/darkpool-sh/darkpool/pkg/engine"
	"github.com/darkpool-sh/darkpool/pkg/storage"
	"github.com/darkpool-sh/darkpool/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.LogFile)

	// ---- Storage: orders, settlements, balances in one Pebble DB ----
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Storage.DataDir, "err", err)
	}
	defer store.Close()

	// ---- Keys: generated once if absent, never rotated while running ----
	keys, err := crypto.LoadOrGenerate(cfg.Storage.KeyFile)
	if err != nil {
		sugar.Fatalw("keystore_init_failed", "path", cfg.Storage.KeyFile, "err", err)
	}
	sugar.Infow("keystore_ready", "public_key", keys.PublicKeyBase64())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server: intake boundary ----
	apiServer := api.NewServer(store, keys, sugar, cfg.API.AllowedOrigins)
	go func() {
		if err := apiServer.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	// ---- Matching worker ----
	worker := engine.NewWorker(store, engine.NewDecryptor(keys), sugar, util.RealClock{}, cfg.Engine.MatchInterval)
	worker.OnSettlement = apiServer.BroadcastSettlement

	sugar.Infow("node_starting",
		"api_addr", cfg.API.Addr,
		"match_interval_ms", cfg.Engine.MatchInterval.Milliseconds())

	go worker.Run(ctx)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("api_shutdown_failed", "err", err)
	}
	sugar.Infow("node_stopped")
}
