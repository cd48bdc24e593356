// Package intake implements §4.1: the synchronous admission path that
// validates an enqueue request, computes its dedup fingerprint, consults
// the cache and active-job indices, and either returns an existing job or
// inserts and dispatches a new one. Grounded on
// original_source/plattargus-detalhar/app/api.py's enqueue handler (the
// cache-then-active-then-insert decision order, and the user_click
// `max(current, requested, 9)` escalation rule) and structured the way the
// teacher's pkg/api/handlers.go separates request validation from the
// domain operation it drives.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/plattargus/detalhar/pkg/core"
	"github.com/plattargus/detalhar/pkg/queue"
)

// dedupLockTTL bounds how long the admission-time advisory lock is held;
// it only needs to cover one Enqueue's critical section.
const dedupLockTTL = 5 * time.Second

// EnqueueRequest is the validated input to Enqueue (§6 POST /enqueue body).
// Priority is a pointer so validate can tell an absent field (defaulted to
// 5) apart from an explicit "priority": 0 (a legitimate value in the 0-9
// range, not just "unset").
type EnqueueRequest struct {
	NUP         string      `json:"nup"`
	Scope       string      `json:"scope,omitempty"`
	ChatID      string      `json:"chat_id,omitempty"`
	UserID      string      `json:"user_id,omitempty"`
	Priority    *int        `json:"priority,omitempty"`
	MaxAttempts int         `json:"max_attempts,omitempty"`
	Source      core.Source `json:"source,omitempty"`
	Force       bool        `json:"force,omitempty"`
	Mode        core.Mode   `json:"mode,omitempty"`
}

// EnqueueResponse is Enqueue's result (§4.1).
type EnqueueResponse struct {
	JobID   string      `json:"job_id"`
	Status  core.Status `json:"status"`
	Dedup   bool        `json:"dedup"`
	Message string      `json:"message"`
}

// CacheLookupResponse is CacheLookup's result (§6 GET /nup/{nup}/cache).
type CacheLookupResponse struct {
	Hit        bool       `json:"hit"`
	JobID      string     `json:"job_id,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Intake implements the five operations of §4.1.
type Intake struct {
	store    core.Store
	queue    core.Queue
	cache    core.Cache
	dedup    *queue.DedupLock
	metrics  core.MetricsSink
	log      *zap.SugaredLogger
	cacheTTL time.Duration
}

// Config constructs an Intake.
type Config struct {
	Store    core.Store
	Queue    core.Queue
	Cache    core.Cache
	Dedup    *queue.DedupLock
	Metrics  core.MetricsSink
	Logger   *zap.SugaredLogger
	CacheTTL time.Duration
}

// New builds an Intake from cfg.
func New(cfg Config) *Intake {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Intake{
		store:    cfg.Store,
		queue:    cfg.Queue,
		cache:    cfg.Cache,
		dedup:    cfg.Dedup,
		metrics:  cfg.Metrics,
		log:      log,
		cacheTTL: cfg.CacheTTL,
	}
}

// cachedResult is the compact value stored under a dedup-keyed cache entry.
type cachedResult struct {
	JobID string `json:"job_id"`
}

func cacheKey(dedupKey string) string {
	return "done:" + dedupKey
}

// Enqueue runs the admission algorithm of §4.1 steps 1-5.
func (in *Intake) Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResponse, error) {
	if err := validate(&req); err != nil {
		return EnqueueResponse{}, fmt.Errorf("%w: %v", core.ErrBadRequest, err)
	}

	dedupKey := core.DedupKey(req.NUP, req.Scope, req.Mode)

	// Best-effort serialization of concurrent admissions on the same
	// fingerprint; the partial unique index on (dedup_key, active status)
	// is the actual correctness guarantee if the lock is unavailable or
	// contended (§4.1 tie-break).
	if in.dedup != nil {
		lock, err := in.dedup.Acquire(ctx, dedupKey, dedupLockTTL)
		if err != nil && !errors.Is(err, queue.ErrLockNotAcquired) {
			in.log.Warnw("dedup lock acquire failed, proceeding without it", "dedup_key", dedupKey, "error", err)
		}
		if lock != nil {
			defer lock.Release(ctx)
		}
	}

	if !req.Force {
		if resp, hit, err := in.checkCache(ctx, dedupKey); err != nil {
			return EnqueueResponse{}, err
		} else if hit {
			return resp, nil
		}

		existing, err := in.store.FindActiveDedup(ctx, dedupKey)
		if err != nil {
			return EnqueueResponse{}, fmt.Errorf("%w: find active dedup: %v", core.ErrInternal, err)
		}
		if existing != nil {
			return in.coalesce(ctx, existing, req)
		}
	}

	job := &core.Job{
		NUP:         req.NUP,
		Scope:       req.Scope,
		ChatID:      req.ChatID,
		Requester:   req.UserID,
		Priority:    *req.Priority,
		MaxAttempts: req.MaxAttempts,
		DedupKey:    dedupKey,
	}
	if err := in.store.InsertJob(ctx, job); err != nil {
		// A concurrent admission may have won the race between the
		// FindActiveDedup read above and this insert; the partial unique
		// index rejects ours, and the caller retries admission.
		return EnqueueResponse{}, fmt.Errorf("%w: insert job: %v", core.ErrConflict, err)
	}

	if err := in.dispatch(ctx, job.ID, req.Source); err != nil {
		return EnqueueResponse{}, err
	}
	if in.metrics != nil {
		in.metrics.JobEnqueued(job.Priority)
	}

	return EnqueueResponse{
		JobID:   job.ID,
		Status:  core.StatusQueued,
		Dedup:   false,
		Message: "job queued",
	}, nil
}

// checkCache probes the read-through cache, falling back to
// Store.FindDoneWithinTTL on a miss (§4.1 step 2).
func (in *Intake) checkCache(ctx context.Context, dedupKey string) (EnqueueResponse, bool, error) {
	if in.cache != nil {
		if data, ok, err := in.cache.Get(ctx, cacheKey(dedupKey)); err != nil {
			in.log.Warnw("cache get failed, falling back to store", "dedup_key", dedupKey, "error", err)
		} else if ok {
			var cached cachedResult
			if err := json.Unmarshal(data, &cached); err == nil {
				return EnqueueResponse{JobID: cached.JobID, Status: core.StatusDone, Dedup: true, Message: "cache hit"}, true, nil
			}
		}
	}

	job, err := in.store.FindDoneWithinTTL(ctx, dedupKey, in.cacheTTL)
	if err != nil {
		return EnqueueResponse{}, false, fmt.Errorf("%w: find done within ttl: %v", core.ErrInternal, err)
	}
	if job == nil {
		return EnqueueResponse{}, false, nil
	}

	// Expire the cache entry when the job leaves its TTL window, not a full
	// TTL from now, so the cache never answers for a job the store would not.
	ttl := in.cacheTTL
	if job.FinishedAt != nil {
		ttl -= time.Since(*job.FinishedAt)
	}
	if in.cache != nil && ttl > 0 {
		if data, err := json.Marshal(cachedResult{JobID: job.ID}); err == nil {
			if err := in.cache.Set(ctx, cacheKey(dedupKey), data, ttl); err != nil {
				in.log.Warnw("cache set failed", "dedup_key", dedupKey, "error", err)
			}
		}
	}
	return EnqueueResponse{JobID: job.ID, Status: core.StatusDone, Dedup: true, Message: "cache hit"}, true, nil
}

// coalesce handles the active-job hit path of §4.1 step 3, applying the
// user_click "jump the queue" escalation when requested.
func (in *Intake) coalesce(ctx context.Context, existing *core.Job, req EnqueueRequest) (EnqueueResponse, error) {
	if req.Source == core.SourceUserClick {
		priority := maxOf(existing.Priority, *req.Priority, core.EscalatedPriority)
		if err := in.store.BumpPriority(ctx, existing.ID, priority); err != nil {
			return EnqueueResponse{}, fmt.Errorf("%w: bump priority: %v", core.ErrInternal, err)
		}
		if err := in.queue.PushHi(ctx, existing.ID); err != nil {
			// Idempotent re-push (§4.2): the worker currently holding the
			// lease ignores the extra message, so a failed re-push only
			// costs the escalation, not correctness. Log and continue.
			in.log.Warnw("user_click re-push failed", "job_id", existing.ID, "error", err)
		}
		in.log.Infow("user_click escalation", "job_id", existing.ID, "priority", priority)
	}

	return EnqueueResponse{
		JobID:   existing.ID,
		Status:  existing.Status,
		Dedup:   true,
		Message: "active job exists",
	}, nil
}

// dispatch pushes jobID onto the hi stream for user_click sources, lo
// otherwise (§4.1 step 5).
func (in *Intake) dispatch(ctx context.Context, jobID string, source core.Source) error {
	var err error
	if source == core.SourceUserClick {
		err = in.queue.PushHi(ctx, jobID)
	} else {
		err = in.queue.PushLo(ctx, jobID)
	}
	if err != nil {
		return fmt.Errorf("%w: dispatch: %v", core.ErrInternal, err)
	}
	return nil
}

// GetJob returns the row projection for jobID (§6 GET /jobs/{job_id}).
func (in *Intake) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	job, err := in.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: get job: %v", core.ErrInternal, err)
	}
	return job, nil
}

// GetResult returns the compact result_json for a done job (§6 GET
// /jobs/{job_id}/result), or core.ErrNotFound unless status is done.
func (in *Intake) GetResult(ctx context.Context, jobID string) ([]byte, error) {
	job, err := in.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != core.StatusDone {
		return nil, core.ErrNotFound
	}
	return job.ResultJSON, nil
}

// GetResultFull returns the on-disk path of the full analyst artifact for a
// done job (§6 GET /jobs/{job_id}/result/full), or core.ErrNotFound unless
// status is done and the path is populated.
func (in *Intake) GetResultFull(ctx context.Context, jobID string) (string, error) {
	job, err := in.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Status != core.StatusDone || job.ResultPath == "" {
		return "", core.ErrNotFound
	}
	return job.ResultPath, nil
}

// CacheLookup reports whether a cached done job exists for (nup, scope)
// within the configured TTL (§6 GET /nup/{nup}/cache), without creating or
// touching any job.
func (in *Intake) CacheLookup(ctx context.Context, nup, scope string) (CacheLookupResponse, error) {
	dedupKey := core.DedupKey(nup, scope, core.DetalharMode)
	job, err := in.store.FindDoneWithinTTL(ctx, dedupKey, in.cacheTTL)
	if err != nil {
		return CacheLookupResponse{}, fmt.Errorf("%w: cache lookup: %v", core.ErrInternal, err)
	}
	if job == nil {
		return CacheLookupResponse{}, nil
	}
	return CacheLookupResponse{Hit: true, JobID: job.ID, FinishedAt: job.FinishedAt}, nil
}

// validate applies request defaults and rejects malformed input before any
// row is written (§4.1 failure semantics: bad_request never reaches the
// store).
func validate(req *EnqueueRequest) error {
	if req.NUP == "" {
		return fmt.Errorf("nup is required")
	}
	if req.Priority == nil {
		def := 5
		req.Priority = &def
	}
	if *req.Priority < 0 || *req.Priority > 9 {
		return fmt.Errorf("priority must be between 0 and 9, got %d", *req.Priority)
	}
	if req.MaxAttempts == 0 {
		req.MaxAttempts = 3
	}
	if req.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", req.MaxAttempts)
	}
	switch req.Source {
	case "":
		req.Source = core.SourceMonitor
	case core.SourceMonitor, core.SourceUserClick:
	default:
		return fmt.Errorf("unknown source %q", req.Source)
	}
	if req.Mode == "" {
		req.Mode = core.DetalharMode
	}
	if req.Mode != core.DetalharMode {
		return fmt.Errorf("unknown mode %q", req.Mode)
	}
	return nil
}

func maxOf(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
