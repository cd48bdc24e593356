// Command intake runs the HTTP admission API (§6): POST /enqueue, job and
// result lookup, cache probing, health/metrics, and the /ws live feed.
// Adapted from the teacher's cmd/server/main.go wiring shape, swapping its
// LLM-agent Server for pkg/httpapi's job-pipeline one.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/plattargus/detalhar/pkg/cache"
	"github.com/plattargus/detalhar/pkg/config"
	"github.com/plattargus/detalhar/pkg/httpapi"
	"github.com/plattargus/detalhar/pkg/intake"
	"github.com/plattargus/detalhar/pkg/metrics"
	"github.com/plattargus/detalhar/pkg/queue"
	"github.com/plattargus/detalhar/pkg/store"
)

// migrationsDir holds db/migrations relative to the binary's working
// directory; it is a fixed path, so the binary must run from the repository
// root (or a copy of its layout).
const migrationsDir = "db/migrations"

// runMigrations applies any pending goose migrations before intake starts
// serving, so a fresh deploy never admits jobs against a stale schema.
func runMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, migrationsDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

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

	if err := runMigrations(cfg.DatabaseURL); err != nil {
		sugar.Fatalw("run migrations", "error", err)
	}

	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		sugar.Fatalw("connect store", "error", err)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	defer redisClient.Close()

	q, err := queue.New(ctx, redisClient, queue.Config{
		StreamHi:      cfg.StreamHi,
		StreamLo:      cfg.StreamLo,
		ConsumerGroup: cfg.ConsumerGroup,
		ConsumerName:  cfg.ConsumerName,
	})
	if err != nil {
		sugar.Fatalw("connect queue", "error", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	in := intake.New(intake.Config{
		Store:    db,
		Queue:    q,
		Cache:    cache.New(redisClient, "detalhar:cache"),
		Dedup:    queue.NewDedupLock(redisClient),
		Metrics:  m,
		Logger:   sugar,
		CacheTTL: cfg.CacheTTL(),
	})

	events := queue.NewEventLog(redisClient)

	srv := httpapi.New(httpapi.Config{
		Intake:         in,
		Events:         events,
		APIKey:         cfg.APIKey,
		APIKeyHeader:   cfg.APIKeyHeader,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         sugar,
	})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		sugar.Info("shutting down intake server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			sugar.Warnw("graceful shutdown failed", "error", err)
		}
		cancel()
	}()

	fmt.Printf("intake server listening on %s\n", cfg.HTTPAddr)
	if err := srv.Start(cfg.HTTPAddr); err != nil {
		sugar.Infow("http server stopped", "error", err)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if err := zcfg.Level.UnmarshalText([]byte(level)); err != nil {
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zcfg.Build()
}
