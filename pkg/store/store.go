// Package store is the Postgres-backed implementation of core.Store. SQL
// statements are carried over verbatim in shape from
// original_source/plattargus-detalhar/app/models.py — the claim protocol in
// particular (conditional UPDATE … RETURNING) is the mechanism the whole
// at-least-once worker model depends on, so it is not reinterpreted, only
// ported.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plattargus/detalhar/pkg/core"
)

// PostgresStore implements core.Store over a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// New opens a pool against dsn and pings it.
func New(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() { s.pool.Close() }

const selectDedupActive = `
SELECT job_id, status
FROM detalhar_jobs
WHERE dedup_key = $1
  AND status IN ('queued','running','retry')
ORDER BY created_at DESC
LIMIT 1`

// FindActiveDedup returns the most recent active job for dedupKey, or
// (nil, nil) if none exists.
func (s *PostgresStore) FindActiveDedup(ctx context.Context, dedupKey string) (*core.Job, error) {
	row := s.pool.QueryRow(ctx, selectDedupActive, dedupKey)
	var j core.Job
	var status string
	if err := row.Scan(&j.ID, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find active dedup: %w", err)
	}
	j.Status = core.Status(status)
	j.DedupKey = dedupKey
	return &j, nil
}

const selectDedupDoneTTL = `
SELECT job_id, finished_at
FROM detalhar_jobs
WHERE dedup_key = $1
  AND status = 'done'
  AND finished_at >= (NOW() - ($2 * INTERVAL '1 second'))
ORDER BY finished_at DESC
LIMIT 1`

// FindDoneWithinTTL returns the most recent job that finished successfully
// for dedupKey within ttl, or (nil, nil) if none qualifies (§4.1 cache hit).
func (s *PostgresStore) FindDoneWithinTTL(ctx context.Context, dedupKey string, ttl time.Duration) (*core.Job, error) {
	row := s.pool.QueryRow(ctx, selectDedupDoneTTL, dedupKey, int(ttl.Seconds()))
	var j core.Job
	if err := row.Scan(&j.ID, &j.FinishedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find done within ttl: %w", err)
	}
	j.DedupKey = dedupKey
	j.Status = core.StatusDone
	return &j, nil
}

const insertJob = `
INSERT INTO detalhar_jobs (nup, sigla, chat_id, user_id, status, priority, max_attempts, dedup_key)
VALUES ($1, $2, $3, $4, 'queued', $5, $6, $7)
RETURNING job_id, created_at, updated_at, next_run_at`

// InsertJob creates a new queued job row. j.ID/CreatedAt/UpdatedAt/NextRunAt
// are populated from the server's RETURNING clause.
func (s *PostgresStore) InsertJob(ctx context.Context, j *core.Job) error {
	row := s.pool.QueryRow(ctx, insertJob, j.NUP, j.Scope, nullIfEmpty(j.ChatID), nullIfEmpty(j.Requester),
		j.Priority, j.MaxAttempts, j.DedupKey)
	if err := row.Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt, &j.NextRunAt); err != nil {
		return fmt.Errorf("store: insert job: %w", err)
	}
	j.Status = core.StatusQueued
	return nil
}

const bumpPriority = `
UPDATE detalhar_jobs
SET priority = GREATEST(priority, $2),
    updated_at = NOW()
WHERE job_id = $1`

// BumpPriority raises a job's priority to at least priority (§4.1 user-click
// escalation); it never lowers it.
func (s *PostgresStore) BumpPriority(ctx context.Context, id string, priority int) error {
	tag, err := s.pool.Exec(ctx, bumpPriority, id, priority)
	if err != nil {
		return fmt.Errorf("store: bump priority: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

const selectJob = `
SELECT job_id, nup, sigla, chat_id, user_id, status, status_stage, priority, attempts, max_attempts,
       created_at, started_at, finished_at, next_run_at, error, result_path, result_json
FROM detalhar_jobs
WHERE job_id = $1`

// GetJob fetches a job by ID.
func (s *PostgresStore) GetJob(ctx context.Context, id string) (*core.Job, error) {
	row := s.pool.QueryRow(ctx, selectJob, id)
	j := &core.Job{}
	var chatID, userID, stage, errStr, resultPath *string
	var status string
	var resultJSON []byte
	if err := row.Scan(&j.ID, &j.NUP, &j.Scope, &chatID, &userID, &status, &stage, &j.Priority, &j.Attempts,
		&j.MaxAttempts, &j.CreatedAt, &j.StartedAt, &j.FinishedAt, &j.NextRunAt, &errStr, &resultPath, &resultJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("store: get job: %w", err)
	}
	j.Status = core.Status(status)
	if stage != nil {
		j.StatusStage = core.Stage(*stage)
	}
	if errStr != nil {
		j.Error = *errStr
	}
	if resultPath != nil {
		j.ResultPath = *resultPath
	}
	j.ResultJSON = resultJSON
	if userID != nil {
		j.Requester = *userID
	}
	if chatID != nil {
		j.ChatID = *chatID
	}
	return j, nil
}

const claimJob = `
UPDATE detalhar_jobs
SET status='running',
    locked_by=$2,
    locked_until = NOW() + ($3 * INTERVAL '1 minute'),
    attempts = attempts + 1,
    started_at = COALESCE(started_at, NOW()),
    updated_at = NOW()
WHERE job_id = $1
  AND status IN ('queued','retry')
  AND next_run_at <= NOW()
  AND (locked_until IS NULL OR locked_until < NOW())
RETURNING job_id, nup, sigla, chat_id, user_id, attempts, max_attempts`

// Claim attempts to transition jobID into running state under workerID's
// lease. It returns core.ErrNoJobAvailable if another worker (or the
// reaper) already holds a live lease, or the job is not in a claimable
// status (§4.2/§4.3, §5 at-most-one-claim invariant).
func (s *PostgresStore) Claim(ctx context.Context, jobID, workerID string, leaseFor time.Duration) (*core.Job, error) {
	row := s.pool.QueryRow(ctx, claimJob, jobID, workerID, leaseFor.Minutes())
	j := &core.Job{ID: jobID, Status: core.StatusRunning}
	var chatID, userID *string
	if err := row.Scan(&j.ID, &j.NUP, &j.Scope, &chatID, &userID, &j.Attempts, &j.MaxAttempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNoJobAvailable
		}
		return nil, fmt.Errorf("store: claim job: %w", err)
	}
	if userID != nil {
		j.Requester = *userID
	}
	if chatID != nil {
		j.ChatID = *chatID
	}
	j.LockedBy = workerID
	return j, nil
}

const updateStage = `
UPDATE detalhar_jobs
SET status_stage = $2,
    result_path_raw = COALESCE(NULLIF($3, ''), result_path_raw),
    heur_path = COALESCE(NULLIF($4, ''), heur_path),
    case_path = COALESCE(NULLIF($5, ''), case_path),
    resumo_path = COALESCE(NULLIF($6, ''), resumo_path),
    updated_at = NOW()
WHERE job_id = $1`

// SaveStage records the furthest stage reached this attempt and the
// artifact path(s) it wrote, per the monotonic-stage-prefix invariant
// (§8 invariant 5).
func (s *PostgresStore) SaveStage(ctx context.Context, id string, stage core.Stage, paths map[string]string) error {
	tag, err := s.pool.Exec(ctx, updateStage, id, string(stage),
		paths["raw"], paths["heur"], paths["case"], paths["resumo"])
	if err != nil {
		return fmt.Errorf("store: save stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

const finishDone = `
UPDATE detalhar_jobs
SET status='done',
    result_json = $2::jsonb,
    result_path = $3,
    error=NULL,
    finished_at=NOW(),
    locked_by=NULL,
    locked_until=NULL,
    updated_at=NOW()
WHERE job_id=$1`

// FinishDone marks a job completed and stores its final result.
func (s *PostgresStore) FinishDone(ctx context.Context, id string, resultJSON []byte, resultPath string) error {
	tag, err := s.pool.Exec(ctx, finishDone, id, resultJSON, resultPath)
	if err != nil {
		return fmt.Errorf("store: finish done: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

const finishRetry = `
UPDATE detalhar_jobs
SET status='retry',
    error=$2,
    next_run_at = $3,
    locked_by=NULL,
    locked_until=NULL,
    updated_at=NOW()
WHERE job_id=$1`

// FinishRetry marks a job for retry with a backoff-computed nextRunAt
// (§4.3 transient failure handling, §7).
func (s *PostgresStore) FinishRetry(ctx context.Context, id string, reason string, nextRunAt time.Time) error {
	tag, err := s.pool.Exec(ctx, finishRetry, id, reason, nextRunAt)
	if err != nil {
		return fmt.Errorf("store: finish retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

const finishError = `
UPDATE detalhar_jobs
SET status='error',
    error=$2,
    finished_at=NOW(),
    locked_by=NULL,
    locked_until=NULL,
    updated_at=NOW()
WHERE job_id=$1`

// FinishError marks a job as terminally failed (§4.3/§7: validation,
// authentication, and exhausted-retry failures all land here).
func (s *PostgresStore) FinishError(ctx context.Context, id string, reason string) error {
	tag, err := s.pool.Exec(ctx, finishError, id, reason)
	if err != nil {
		return fmt.Errorf("store: finish error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

const requeueStale = `
UPDATE detalhar_jobs
SET status='retry',
    error = COALESCE(error,'') || E'\n[reaper] stale lock cleared',
    next_run_at = NOW() + (60 * INTERVAL '1 second'),
    locked_by=NULL,
    locked_until=NULL,
    updated_at=NOW()
WHERE status='running' AND locked_until IS NOT NULL AND locked_until < $1
RETURNING job_id`

// RequeueStale reclaims every running job whose lease expired before
// leaseExpiredBefore, returning the count reclaimed (§4.4 reaper sweep).
func (s *PostgresStore) RequeueStale(ctx context.Context, leaseExpiredBefore time.Time) (int, error) {
	rows, err := s.pool.Query(ctx, requeueStale, leaseExpiredBefore)
	if err != nil {
		return 0, fmt.Errorf("store: requeue stale: %w", err)
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
