// Package worker implements the claim-process-finish loop driving jobs
// through pkg/pipeline (§4.3/§5). Adapted from the teacher's
// cmd/worker/main.go + pkg/queue.Worker shape (N concurrent goroutines
// pulling from a queue, signal-driven graceful shutdown) generalized from
// the teacher's generic job-handler dispatch onto this domain's single
// fixed pipeline, and from its Redis-list queue onto the Streams-based
// queue.StreamQueue.Claim/store.Store.Claim two-step protocol described by
// original_source/plattargus-detalhar/app/worker.py (pop a job id off the
// queue, then attempt the conditional SQL claim on that specific id).
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/plattargus/detalhar/pkg/core"
	"github.com/plattargus/detalhar/pkg/pipeline"
)

// CredentialsLookup resolves the SEI credentials for a job (by chat_id/
// requester), kept out of core.Job itself since credentials are secrets,
// not job state.
type CredentialsLookup func(ctx context.Context, job *core.Job) (core.Credentials, error)

// Worker runs N concurrent claim/process loops against a Services bundle.
type Worker struct {
	services    *core.Services
	pipeline    *pipeline.Pipeline
	credentials CredentialsLookup
	id          string
	log         *zap.SugaredLogger

	wg sync.WaitGroup
}

// Config constructs a Worker.
type Config struct {
	Services    *core.Services
	Pipeline    *pipeline.Pipeline
	Credentials CredentialsLookup
	WorkerID    string
}

// New builds a Worker.
func New(cfg Config) *Worker {
	log := cfg.Services.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Worker{
		services:    cfg.Services,
		pipeline:    cfg.Pipeline,
		credentials: cfg.Credentials,
		id:          cfg.WorkerID,
		log:         log.With("worker_id", cfg.WorkerID),
	}
}

// Run starts concurrency loops and blocks until ctx is cancelled, then waits
// for in-flight jobs to finish their current stage.
func (w *Worker) Run(ctx context.Context, concurrency int) {
	w.log.Infow("worker starting", "concurrency", concurrency)
	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.loop(ctx, i)
	}
	w.wg.Wait()
	w.log.Info("worker stopped")
}

func (w *Worker) loop(ctx context.Context, slot int) {
	defer w.wg.Done()
	log := w.log.With("slot", slot)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, ack, err := w.services.Queue.Claim(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Warnw("queue claim failed", "error", err)
			sleepContext(ctx, time.Second)
			continue
		}
		if jobID == "" {
			continue
		}

		w.processOne(ctx, log, jobID)
		if ackErr := ack(ctx); ackErr != nil {
			log.Warnw("ack failed", "job_id", jobID, "error", ackErr)
		}
	}
}

func (w *Worker) processOne(ctx context.Context, log *zap.SugaredLogger, jobID string) {
	job, err := w.services.Store.Claim(ctx, jobID, w.id, w.services.LockDuration)
	if err != nil {
		if errors.Is(err, core.ErrNoJobAvailable) {
			// Lost the race (reaper or another worker already claimed it);
			// this is expected under at-least-once delivery, not an error.
			return
		}
		log.Errorw("claim failed", "job_id", jobID, "error", err)
		return
	}

	log = log.With("job_id", job.ID, "nup", job.NUP)
	log.Infow("job claimed")

	creds, err := w.credentials(ctx, job)
	if err != nil {
		w.finishError(ctx, log, job, fmt.Errorf("%w: resolve credentials: %v", core.ErrUnauthorized, err))
		return
	}

	result, err := w.pipeline.Run(ctx, job, creds, w.saveStage())
	if err != nil {
		if errors.Is(err, core.ErrStaleLease) {
			log.Warnw("lease lost mid-run, abandoning silently")
			return
		}
		w.handleFailure(ctx, log, job, err)
		return
	}

	if err := w.services.Store.FinishDone(ctx, job.ID, result.ResultJSON, result.ResultPath); err != nil {
		log.Errorw("finish done failed", "error", err)
		return
	}
	if w.services.Metrics != nil {
		w.services.Metrics.JobCompleted(core.StatusDone, core.StageResumo, time.Since(job.CreatedAt))
	}
	log.Infow("job completed")
}

func (w *Worker) saveStage() pipeline.SaveStage {
	return func(ctx context.Context, jobID string, stage core.Stage, artifactKey, path string) error {
		return w.services.Store.SaveStage(ctx, jobID, stage, map[string]string{artifactKey: path})
	}
}

// handleFailure applies the retry/terminal error policy (§4.4/§6):
// authentication failures are terminal, schema violations are terminal once
// they have been retried once; everything else retries with backoff up to
// MaxAttempts. job.Attempts already counts the current attempt, since
// Store.Claim increments it.
func (w *Worker) handleFailure(ctx context.Context, log *zap.SugaredLogger, job *core.Job, err error) {
	terminal := (errors.Is(err, core.ErrSchemaViolation) && job.Attempts > 1) ||
		errors.Is(err, core.ErrUnauthorized) ||
		errors.Is(err, core.ErrBadRequest) ||
		errors.Is(err, core.ErrNoDocuments) ||
		job.Attempts >= job.MaxAttempts

	if terminal {
		log.Errorw("job failed terminally", "error", err, "attempts", job.Attempts)
		if ferr := w.services.Store.FinishError(ctx, job.ID, err.Error()); ferr != nil {
			log.Errorw("finish error failed", "error", ferr)
		}
		return
	}

	delay := backoff(job.Attempts)
	log.Warnw("job failed, retrying", "error", err, "attempt", job.Attempts, "delay", delay)
	if rerr := w.services.Store.FinishRetry(ctx, job.ID, err.Error(), time.Now().Add(delay)); rerr != nil {
		log.Errorw("finish retry failed", "error", rerr)
	}
}

func (w *Worker) finishError(ctx context.Context, log *zap.SugaredLogger, job *core.Job, err error) {
	log.Errorw("job rejected before pipeline run", "error", err)
	if ferr := w.services.Store.FinishError(ctx, job.ID, err.Error()); ferr != nil {
		log.Errorw("finish error failed", "error", ferr)
	}
}

// backoff mirrors internal/httpclient's exponential-backoff-with-cap shape
// (base * 2^attempt, capped), scaled to job retry cadence rather than HTTP
// retry cadence.
func backoff(attempt int) time.Duration {
	const base = 30 * time.Second
	const maxDelay = 30 * time.Minute
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > maxDelay {
		return maxDelay
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
