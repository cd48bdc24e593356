// Command worker runs N concurrent claim/process loops against the job
// pipeline (§4.3/§5). Adapted from the teacher's cmd/worker/main.go: the
// flag/env-override style and signal-driven graceful shutdown are kept,
// its four generic job-handler registrations replaced by the single fixed
// extract/heuristic/curate/analyze/commit pipeline this domain runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/plattargus/detalhar/pkg/artifact"
	"github.com/plattargus/detalhar/pkg/config"
	"github.com/plattargus/detalhar/pkg/core"
	"github.com/plattargus/detalhar/pkg/extractor"
	"github.com/plattargus/detalhar/pkg/llm"
	"github.com/plattargus/detalhar/pkg/metrics"
	"github.com/plattargus/detalhar/pkg/pipeline"
	"github.com/plattargus/detalhar/pkg/queue"
	"github.com/plattargus/detalhar/pkg/store"
	"github.com/plattargus/detalhar/pkg/worker"
)

func main() {
	concurrency := flag.Int("concurrency", 5, "number of concurrent claim/process loops")
	flag.Parse()
	if env := os.Getenv("DETALHAR_WORKER_CONCURRENCY"); env != "" {
		fmt.Sscanf(env, "%d", concurrency)
	}

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

	// An operator who never set CONSUMER_NAME gets the config
	// package's static "worker-1" default, which collides across replicas
	// in the same consumer group. Disambiguate with a per-process suffix
	// so two default-configured workers don't fight over the same pending
	// entries list.
	consumerName := cfg.ConsumerName
	if consumerName == "worker-1" {
		consumerName = fmt.Sprintf("worker-%s", uuid.New().String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		ConsumerName:  consumerName,
	})
	if err != nil {
		sugar.Fatalw("connect queue", "error", err)
	}

	artifacts, err := artifact.New(cfg.ArtifactRoot)
	if err != nil {
		sugar.Fatalw("open artifact store", "error", err)
	}

	extr := extractor.New(extractor.Config{
		APIKey:         cfg.BrowserbaseAPIKey,
		ProjectID:      cfg.BrowserbaseProjID,
		BaseURL:        cfg.SEIBaseURL,
		Timeout:        cfg.ExtractorTimeout(),
		MaxConcurrency: cfg.MaxExtractConcurrency,
		Redis:          redisClient,
	})

	var curator core.Curator
	var analyst core.Analyst
	if cfg.UseLLM {
		curator = llm.NewCurator(cfg.OpenAIAPIKey)
		analyst = llm.NewAnalyst(cfg.OpenAIAPIKey)
	}

	pipe := pipeline.New(pipeline.Config{
		Artifacts: artifacts,
		Extractor: extr,
		Curator:   curator,
		Analyst:   analyst,
		UseLLM:    cfg.UseLLM,
	})

	services := &core.Services{
		Store:        db,
		Queue:        q,
		Extractor:    extr,
		Curator:      curator,
		Analyst:      analyst,
		Metrics:      metrics.New(prometheus.DefaultRegisterer),
		Logger:       sugar,
		CacheTTL:     cfg.CacheTTL(),
		LockDuration: cfg.LockDuration(),
		UseLLM:       cfg.UseLLM,
	}

	w := worker.New(worker.Config{
		Services: services,
		Pipeline: pipe,
		WorkerID: consumerName,
		// Credential storage is out of scope (§1); the extractor receives
		// only what the job row already carries.
		Credentials: func(ctx context.Context, job *core.Job) (core.Credentials, error) {
			return core.Credentials{ChatID: job.ChatID, UserID: job.Requester}, nil
		},
	})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		sugar.Info("shutting down worker")
		cancel()
	}()

	sugar.Infow("worker starting", "concurrency", *concurrency, "consumer_name", consumerName)
	w.Run(ctx, *concurrency)
	sugar.Info("worker stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if err := zcfg.Level.UnmarshalText([]byte(level)); err != nil {
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zcfg.Build()
}
