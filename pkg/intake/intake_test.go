package intake_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/plattargus/detalhar/pkg/core"
	"github.com/plattargus/detalhar/pkg/intake"
)

type fakeStore struct {
	active    map[string]*core.Job
	done      map[string]*core.Job
	inserted  *core.Job
	bumped    map[string]int
	nextID    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{active: map[string]*core.Job{}, done: map[string]*core.Job{}, bumped: map[string]int{}}
}

func (s *fakeStore) FindActiveDedup(ctx context.Context, dedupKey string) (*core.Job, error) {
	return s.active[dedupKey], nil
}

func (s *fakeStore) FindDoneWithinTTL(ctx context.Context, dedupKey string, ttl time.Duration) (*core.Job, error) {
	return s.done[dedupKey], nil
}

func (s *fakeStore) InsertJob(ctx context.Context, j *core.Job) error {
	s.nextID++
	j.ID = fmt.Sprintf("job-%d", s.nextID)
	j.Status = core.StatusQueued
	j.CreatedAt = time.Now()
	s.inserted = j
	return nil
}

func (s *fakeStore) BumpPriority(ctx context.Context, id string, priority int) error {
	s.bumped[id] = priority
	for _, j := range s.active {
		if j.ID == id {
			j.Priority = priority
		}
	}
	return nil
}

func (s *fakeStore) GetJob(ctx context.Context, id string) (*core.Job, error) {
	return nil, core.ErrNotFound
}
func (s *fakeStore) Claim(ctx context.Context, jobID, workerID string, leaseFor time.Duration) (*core.Job, error) {
	return nil, core.ErrNoJobAvailable
}
func (s *fakeStore) SaveStage(ctx context.Context, id string, stage core.Stage, paths map[string]string) error {
	return nil
}
func (s *fakeStore) FinishDone(ctx context.Context, id string, resultJSON []byte, resultPath string) error {
	return nil
}
func (s *fakeStore) FinishRetry(ctx context.Context, id string, reason string, nextRunAt time.Time) error {
	return nil
}
func (s *fakeStore) FinishError(ctx context.Context, id string, reason string) error { return nil }
func (s *fakeStore) RequeueStale(ctx context.Context, leaseExpiredBefore time.Time) (int, error) {
	return 0, nil
}

type fakeQueue struct {
	hi []string
	lo []string
}

func (q *fakeQueue) PushHi(ctx context.Context, jobID string) error {
	q.hi = append(q.hi, jobID)
	return nil
}
func (q *fakeQueue) PushLo(ctx context.Context, jobID string) error {
	q.lo = append(q.lo, jobID)
	return nil
}
func (q *fakeQueue) Claim(ctx context.Context) (string, func(context.Context) error, error) {
	return "", nil, core.ErrNoJobAvailable
}

func newIntake(store *fakeStore, q *fakeQueue) *intake.Intake {
	return intake.New(intake.Config{
		Store:    store,
		Queue:    q,
		CacheTTL: time.Hour,
	})
}

func TestEnqueueFreshJobGoesToLo(t *testing.T) {
	store := newFakeStore()
	q := &fakeQueue{}
	in := newIntake(store, q)

	resp, err := in.Enqueue(context.Background(), intake.EnqueueRequest{NUP: "123", Source: core.SourceMonitor})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if resp.Dedup {
		t.Fatalf("fresh enqueue must not report dedup")
	}
	if len(q.lo) != 1 || len(q.hi) != 0 {
		t.Fatalf("expected one lo push, got hi=%v lo=%v", q.hi, q.lo)
	}
}

func TestEnqueueUserClickGoesToHi(t *testing.T) {
	store := newFakeStore()
	q := &fakeQueue{}
	in := newIntake(store, q)

	_, err := in.Enqueue(context.Background(), intake.EnqueueRequest{NUP: "123", Source: core.SourceUserClick})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if len(q.hi) != 1 || len(q.lo) != 0 {
		t.Fatalf("expected one hi push, got hi=%v lo=%v", q.hi, q.lo)
	}
}

func TestEnqueueRejectsBlankNUP(t *testing.T) {
	store := newFakeStore()
	q := &fakeQueue{}
	in := newIntake(store, q)

	_, err := in.Enqueue(context.Background(), intake.EnqueueRequest{Source: core.SourceMonitor})
	if err == nil {
		t.Fatalf("expected bad request error for blank nup")
	}
}

func TestEnqueueUserClickEscalatesActiveJob(t *testing.T) {
	store := newFakeStore()
	q := &fakeQueue{}
	in := newIntake(store, q)

	dedupKey := core.DedupKey("123", "", core.DetalharMode)
	store.active[dedupKey] = &core.Job{ID: "existing-job", Status: core.StatusQueued, Priority: 3}

	priority := 5
	resp, err := in.Enqueue(context.Background(), intake.EnqueueRequest{
		NUP: "123", Priority: &priority, Source: core.SourceUserClick,
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if !resp.Dedup || resp.JobID != "existing-job" {
		t.Fatalf("expected dedup=true existing job, got %+v", resp)
	}
	if got := store.bumped["existing-job"]; got != core.EscalatedPriority {
		t.Fatalf("expected priority bumped to %d, got %d", core.EscalatedPriority, got)
	}
	if len(q.hi) != 1 {
		t.Fatalf("expected re-push to hi, got hi=%v", q.hi)
	}
}

func TestEnqueueMonitorDoesNotEscalate(t *testing.T) {
	store := newFakeStore()
	q := &fakeQueue{}
	in := newIntake(store, q)

	dedupKey := core.DedupKey("123", "", core.DetalharMode)
	store.active[dedupKey] = &core.Job{ID: "existing-job", Status: core.StatusQueued, Priority: 3}

	resp, err := in.Enqueue(context.Background(), intake.EnqueueRequest{NUP: "123", Source: core.SourceMonitor})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if !resp.Dedup || resp.JobID != "existing-job" {
		t.Fatalf("expected dedup=true existing job, got %+v", resp)
	}
	if len(q.hi) != 0 {
		t.Fatalf("monitor source must not escalate to hi, got hi=%v", q.hi)
	}
}

func TestEnqueueCacheHitSkipsInsert(t *testing.T) {
	store := newFakeStore()
	q := &fakeQueue{}
	in := newIntake(store, q)

	dedupKey := core.DedupKey("123", "", core.DetalharMode)
	now := time.Now()
	store.done[dedupKey] = &core.Job{ID: "done-job", Status: core.StatusDone, FinishedAt: &now}

	resp, err := in.Enqueue(context.Background(), intake.EnqueueRequest{NUP: "123", Source: core.SourceMonitor})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if !resp.Dedup || resp.JobID != "done-job" || resp.Status != core.StatusDone {
		t.Fatalf("expected cache hit on done job, got %+v", resp)
	}
	if len(q.hi)+len(q.lo) != 0 {
		t.Fatalf("cache hit must not dispatch, got hi=%v lo=%v", q.hi, q.lo)
	}
}

func TestEnqueueForceSkipsCacheAndActive(t *testing.T) {
	store := newFakeStore()
	q := &fakeQueue{}
	in := newIntake(store, q)

	dedupKey := core.DedupKey("123", "", core.DetalharMode)
	now := time.Now()
	store.done[dedupKey] = &core.Job{ID: "done-job", Status: core.StatusDone, FinishedAt: &now}

	resp, err := in.Enqueue(context.Background(), intake.EnqueueRequest{NUP: "123", Source: core.SourceMonitor, Force: true})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if resp.Dedup {
		t.Fatalf("force=true must always insert a new job, got dedup=true")
	}
}

func TestEnqueueRequestDecodesSnakeCaseBody(t *testing.T) {
	body := []byte(`{"nup":"123","chat_id":"chat-1","user_id":"user-1","priority":0,"max_attempts":7,"source":"user_click"}`)

	var req intake.EnqueueRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if req.ChatID != "chat-1" || req.UserID != "user-1" {
		t.Fatalf("expected chat_id/user_id to decode, got %+v", req)
	}
	if req.MaxAttempts != 7 {
		t.Fatalf("expected max_attempts=7, got %d", req.MaxAttempts)
	}
	if req.Priority == nil || *req.Priority != 0 {
		t.Fatalf("expected an explicit priority=0 to decode as a non-nil zero, got %v", req.Priority)
	}
}

func TestEnqueueRequestOmittedPriorityDefaultsTo5(t *testing.T) {
	store := newFakeStore()
	q := &fakeQueue{}
	in := newIntake(store, q)

	var req intake.EnqueueRequest
	if err := json.Unmarshal([]byte(`{"nup":"123"}`), &req); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if req.Priority != nil {
		t.Fatalf("expected priority to be absent, got %v", *req.Priority)
	}

	if _, err := in.Enqueue(context.Background(), req); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if store.inserted.Priority != 5 {
		t.Fatalf("expected default priority 5, got %d", store.inserted.Priority)
	}
}

func TestEnqueueRequestExplicitZeroPriorityIsKept(t *testing.T) {
	store := newFakeStore()
	q := &fakeQueue{}
	in := newIntake(store, q)

	var req intake.EnqueueRequest
	if err := json.Unmarshal([]byte(`{"nup":"123","priority":0}`), &req); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if _, err := in.Enqueue(context.Background(), req); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if store.inserted.Priority != 0 {
		t.Fatalf("expected explicit priority 0 to be preserved, got %d", store.inserted.Priority)
	}
}

func TestCacheLookupMiss(t *testing.T) {
	store := newFakeStore()
	q := &fakeQueue{}
	in := newIntake(store, q)

	resp, err := in.CacheLookup(context.Background(), "999", "")
	if err != nil {
		t.Fatalf("cache lookup failed: %v", err)
	}
	if resp.Hit {
		t.Fatalf("expected miss, got %+v", resp)
	}
}
