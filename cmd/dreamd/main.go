package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/yonglehou/DReAM/internal/api"
	"github.com/yonglehou/DReAM/internal/config"
	"github.com/yonglehou/DReAM/internal/dispatch"
	"github.com/yonglehou/DReAM/internal/engine"
	"github.com/yonglehou/DReAM/internal/store"
)

const drainTimeout = 30 * time.Second

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("dreamd: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"pool_strategy", string(cfg.Dispatch.Strategy),
		"min_workers", cfg.Dispatch.MinWorkers,
		"max_workers", cfg.Dispatch.MaxWorkers,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	rt, err := dispatch.NewRuntime(cfg.Dispatch, logger)
	if err != nil {
		log.Fatalf("failed to build dispatch runtime: %v", err)
	}

	eng := engine.NewEngine(db, rt, logger)
	srv := api.NewServer(cfg.ListenAddr, db, rt, eng, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}

	// Let in-flight runs settle, then retire all workers.
	eng.Wait()
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := rt.Shutdown(ctx); err != nil {
		logger.Error("runtime shutdown", "error", err)
	}
}
