package core

import "errors"

// Sentinel errors returned across package boundaries and matched with
// errors.Is/errors.As by callers (§7).
var (
	// ErrUnauthorized means the request's API key did not match (401).
	ErrUnauthorized = errors.New("core: unauthorized")
	// ErrBadRequest means the request failed validation before any row was
	// written; it is never enqueued and never retried.
	ErrBadRequest = errors.New("core: bad request")
	// ErrConflict means an active job already owns this dedup key.
	ErrConflict = errors.New("core: active job exists for dedup key")
	// ErrInternal wraps an unexpected failure (store/cache/queue error) that
	// admission cannot attribute to the caller; surfaces as 500 (§4.1, §6).
	ErrInternal = errors.New("core: internal error")
	// ErrNotFound means the job row does not exist.
	ErrNotFound = errors.New("core: job not found")
	// ErrStaleLease means a worker tried to finish a job it no longer holds
	// the lease for; the caller must abort silently (§5, §7).
	ErrStaleLease = errors.New("core: lease no longer held")
	// ErrNoJobAvailable means a claim attempt found nothing to run.
	ErrNoJobAvailable = errors.New("core: no job available")
	// ErrRetryable wraps a transient failure (extraction/LLM) that should
	// schedule a retry rather than a terminal error.
	ErrRetryable = errors.New("core: retryable failure")
	// ErrSchemaViolation means an LLM response failed to parse against its
	// target schema; the worker retries such a job once, then fails it
	// terminally.
	ErrSchemaViolation = errors.New("core: schema violation")
	// ErrNoDocuments means extraction succeeded but returned zero documents;
	// there is nothing for the heuristic/curator/analyst stages to run on,
	// so the job fails terminally rather than retrying or calling an LLM.
	ErrNoDocuments = errors.New("core: no documents")
)
