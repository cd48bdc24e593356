package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Store is the durable job-row persistence boundary implemented by
// pkg/store. Interfaces live here, next to the types they operate on, so
// pkg/store can depend on pkg/core without creating an import cycle.
type Store interface {
	FindActiveDedup(ctx context.Context, dedupKey string) (*Job, error)
	FindDoneWithinTTL(ctx context.Context, dedupKey string, ttl time.Duration) (*Job, error)
	InsertJob(ctx context.Context, j *Job) error
	BumpPriority(ctx context.Context, id string, priority int) error
	GetJob(ctx context.Context, id string) (*Job, error)
	Claim(ctx context.Context, jobID, workerID string, leaseFor time.Duration) (*Job, error)
	SaveStage(ctx context.Context, id string, stage Stage, paths map[string]string) error
	FinishDone(ctx context.Context, id string, resultJSON []byte, resultPath string) error
	FinishRetry(ctx context.Context, id string, reason string, nextRunAt time.Time) error
	FinishError(ctx context.Context, id string, reason string) error
	RequeueStale(ctx context.Context, leaseExpiredBefore time.Time) (int, error)
}

// Queue is the priority dispatch boundary implemented by pkg/queue.
type Queue interface {
	PushHi(ctx context.Context, jobID string) error
	PushLo(ctx context.Context, jobID string) error
	Claim(ctx context.Context) (jobID string, ack func(context.Context) error, err error)
}

// Cache is the read-through TTL cache boundary implemented by pkg/cache,
// sitting in front of Store.FindDoneWithinTTL as a latency optimization.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// MetricsSink is the boundary implemented by pkg/metrics over
// prometheus/client_golang.
type MetricsSink interface {
	JobEnqueued(priority int)
	JobCompleted(status Status, stage Stage, duration time.Duration)
	QueueDepth(hi, lo int)
}

// Services bundles every dependency a binary wires up once in main() and
// threads explicitly through intake handlers, the worker loop and the
// reaper. No package reaches for a global — everything flows through this
// struct.
type Services struct {
	Store     Store
	Queue     Queue
	Cache     Cache
	Extractor Extractor
	Curator   Curator
	Analyst   Analyst
	Metrics   MetricsSink
	Logger    *zap.SugaredLogger

	CacheTTL     time.Duration
	LockDuration time.Duration
	UseLLM       bool
}
