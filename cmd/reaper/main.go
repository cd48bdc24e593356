// Command reaper periodically reclaims jobs whose worker lease expired
// without being finished or renewed (§4.4). Adapted from the teacher's
// cmd/scheduler/main.go wiring shape, driving pkg/reaper.Reaper instead of
// the teacher's Cron-triggered Engine.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/plattargus/detalhar/pkg/config"
	"github.com/plattargus/detalhar/pkg/reaper"
	"github.com/plattargus/detalhar/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		sugar.Fatalw("connect store", "error", err)
	}
	defer db.Close()

	r, err := reaper.New(db, sugar, cfg.ReapCron)
	if err != nil {
		sugar.Fatalw("build reaper", "error", err)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		sugar.Info("shutting down reaper")
		cancel()
	}()

	r.Run(ctx)
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if err := zcfg.Level.UnmarshalText([]byte(level)); err != nil {
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zcfg.Build()
}
