package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plattargus/detalhar/pkg/artifact"
	"github.com/plattargus/detalhar/pkg/core"
	"github.com/plattargus/detalhar/pkg/pipeline"
)

type fakeExtractor struct {
	dump core.ProcessDump
	err  error
}

func (f *fakeExtractor) Extract(ctx context.Context, nup string, creds core.Credentials) (core.ProcessDump, error) {
	return f.dump, f.err
}

type fakeStore struct {
	job *core.Job

	finishedDone  bool
	finishedRetry bool
	finishedError bool
}

func (s *fakeStore) FindActiveDedup(ctx context.Context, dedupKey string) (*core.Job, error) { return nil, nil }
func (s *fakeStore) FindDoneWithinTTL(ctx context.Context, dedupKey string, ttl time.Duration) (*core.Job, error) {
	return nil, nil
}
func (s *fakeStore) InsertJob(ctx context.Context, j *core.Job) error           { return nil }
func (s *fakeStore) BumpPriority(ctx context.Context, id string, priority int) error { return nil }
func (s *fakeStore) GetJob(ctx context.Context, id string) (*core.Job, error)   { return s.job, nil }
// Claim increments attempts the way the store's claim UPDATE does.
func (s *fakeStore) Claim(ctx context.Context, jobID, workerID string, leaseFor time.Duration) (*core.Job, error) {
	s.job.Attempts++
	return s.job, nil
}
func (s *fakeStore) SaveStage(ctx context.Context, id string, stage core.Stage, paths map[string]string) error {
	return nil
}
func (s *fakeStore) FinishDone(ctx context.Context, id string, resultJSON []byte, resultPath string) error {
	s.finishedDone = true
	return nil
}
func (s *fakeStore) FinishRetry(ctx context.Context, id string, reason string, nextRunAt time.Time) error {
	s.finishedRetry = true
	return nil
}
func (s *fakeStore) FinishError(ctx context.Context, id string, reason string) error {
	s.finishedError = true
	return nil
}
func (s *fakeStore) RequeueStale(ctx context.Context, leaseExpiredBefore time.Time) (int, error) {
	return 0, nil
}

func newPipeline(t *testing.T, extr core.Extractor) *pipeline.Pipeline {
	t.Helper()
	store, err := artifact.New(t.TempDir())
	require.NoError(t, err)
	return pipeline.New(pipeline.Config{
		Artifacts: store,
		Extractor: extr,
		UseLLM:    false,
	})
}

func newTestWorker(t *testing.T, store *fakeStore, extr core.Extractor) *Worker {
	t.Helper()
	svc := &core.Services{Store: store, LockDuration: time.Minute}
	return New(Config{
		Services: svc,
		Pipeline: newPipeline(t, extr),
		WorkerID: "test-worker",
		Credentials: func(ctx context.Context, job *core.Job) (core.Credentials, error) {
			return core.Credentials{UserID: "u", Token: "t"}, nil
		},
	})
}

func TestProcessOneFinishesDoneOnSuccess(t *testing.T) {
	job := &core.Job{ID: "job-1", NUP: "123", Attempts: 0, MaxAttempts: 3}
	store := &fakeStore{job: job}
	extr := &fakeExtractor{dump: core.ProcessDump{NUP: "123", Documents: []core.Document{{Index: 1, Conteudo: "texto curto"}}}}

	w := newTestWorker(t, store, extr)
	w.processOne(context.Background(), w.log, job.ID)

	assert.True(t, store.finishedDone)
	assert.False(t, store.finishedRetry)
	assert.False(t, store.finishedError)
}

func TestProcessOneRetriesOnTransientFailure(t *testing.T) {
	job := &core.Job{ID: "job-2", NUP: "123", Attempts: 0, MaxAttempts: 3}
	store := &fakeStore{job: job}
	extr := &fakeExtractor{err: errors.New("wrap me")}

	w := newTestWorker(t, store, extr)
	w.processOne(context.Background(), w.log, job.ID)

	assert.False(t, store.finishedDone)
	assert.True(t, store.finishedRetry)
	assert.False(t, store.finishedError)
}

func TestProcessOneFailsTerminallyWhenAttemptsExhausted(t *testing.T) {
	job := &core.Job{ID: "job-3", NUP: "123", Attempts: 2, MaxAttempts: 3}
	store := &fakeStore{job: job}
	extr := &fakeExtractor{err: errors.New("wrap me")}

	w := newTestWorker(t, store, extr)
	w.processOne(context.Background(), w.log, job.ID)

	assert.False(t, store.finishedDone)
	assert.False(t, store.finishedRetry)
	assert.True(t, store.finishedError)
}
