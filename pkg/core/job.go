// Package core defines the domain types shared by every layer of the
// detalhar pipeline: the job row, its status machine, and the Services
// bundle each binary wires up at startup.
package core

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Status is the job's lifecycle state.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusRetry   Status = "retry"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Active reports whether the status counts toward the one-active-job-per-
// dedup-key invariant (§3 invariant 3).
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusRunning || s == StatusRetry
}

// Stage is the furthest pipeline stage reached during the current attempt.
// Values form the monotonic prefix described in §8 invariant 5.
type Stage string

const (
	StageExtracted Stage = "extracted"
	StageHeur      Stage = "heur"
	StageCase      Stage = "case"
	StageResumo    Stage = "resumo"
)

// Source identifies who originated an enqueue request.
type Source string

const (
	SourceMonitor   Source = "monitor"
	SourceUserClick Source = "user_click"
)

// EscalatedPriority is the sentinel priority reserved for interactive
// user-click escalation (§9 open question 3).
const EscalatedPriority = 9

// Mode names the requested operation. Only "detalhar" is implemented; the
// type exists so additional modes (sign, send, assign, …) can be added as
// new tagged variants without reshaping the durable row machinery (§9).
type Mode string

const DetalharMode Mode = "detalhar"

// SchemaVersion is the trailing component of the dedup fingerprint. Bump it
// whenever the pipeline's output contract changes incompatibly.
const SchemaVersion = "v1"

// Job is the durable row described in spec §3.
type Job struct {
	ID          string `json:"job_id"`
	NUP         string `json:"nup"`
	Scope       string `json:"scope,omitempty"`
	ChatID      string `json:"chat_id,omitempty"`
	Requester   string `json:"requester,omitempty"`
	Status      Status `json:"status"`
	StatusStage Stage  `json:"status_stage,omitempty"`
	Priority    int    `json:"priority"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	DedupKey    string `json:"dedup_key,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	NextRunAt  time.Time  `json:"next_run_at,omitempty"`

	LockedBy    string     `json:"locked_by,omitempty"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`

	Error      string          `json:"error,omitempty"`
	ResultJSON json.RawMessage `json:"result_json,omitempty"`
	ResultPath string          `json:"result_path,omitempty"`

	ResultPathRaw string `json:"-"`
	HeurPath      string `json:"-"`
	CasePath      string `json:"-"`
	ResumoPath    string `json:"-"`
}

// DedupKey computes the 40-hex-digit fingerprint over (nup, scope, mode,
// schema_version) per §3/§6.
func DedupKey(nup, scope string, mode Mode) string {
	sum := sha1.Sum([]byte(nup + "|" + scope + "|" + string(mode) + "|" + SchemaVersion))
	return hex.EncodeToString(sum[:])
}
