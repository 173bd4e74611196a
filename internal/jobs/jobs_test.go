package jobs_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	dbfs "github.com/garnizeh/fixbuddy/db"
	"github.com/garnizeh/fixbuddy/internal/db"
	"github.com/garnizeh/fixbuddy/internal/jobs"
	"github.com/garnizeh/fixbuddy/internal/repository/sqlite"
	"github.com/garnizeh/fixbuddy/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var quiet = slog.New(slog.NewJSONHandler(io.Discard, nil))

func setup(t *testing.T) (*db.DB, *jobs.Repository) {
	t.Helper()
	ctx := context.Background()
	d, err := db.New(ctx, ":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return d, jobs.NewRepository(d)
}

type outcomes struct {
	mu  sync.Mutex
	got []string
}

func (o *outcomes) JobDone(jobType, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got = append(o.got, jobType+":"+outcome)
}

func (o *outcomes) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.got...)
}

func TestEnqueueAndProcess(t *testing.T) {
	ctx := context.Background()
	_, repo := setup(t)

	handled := make(chan struct{}, 1)
	handlers := map[string]jobs.Handler{
		"test": func(ctx context.Context, j *jobs.Job) error {
			handled <- struct{}{}
			return nil
		},
	}
	pool := jobs.NewWorkerPool(repo, handlers, quiet, jobs.Options{PollInterval: 10 * time.Millisecond})
	pool.Start(ctx)
	defer pool.Stop()

	if _, err := pool.Enqueue(ctx, "test", map[string]string{"foo": "bar"}, 10, 3); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-handled:
	case <-time.After(3 * time.Second):
		t.Fatalf("handler was not called")
	}
}

func TestClaimOrderAndStats(t *testing.T) {
	ctx := context.Background()
	_, repo := setup(t)

	for _, prio := range []int{50, 10, 50} {
		if _, err := repo.Enqueue(ctx, &jobs.Job{Type: "t", Payload: []byte(`{}`), Priority: prio}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := repo.Enqueue(ctx, &jobs.Job{Type: "later", ScheduledAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	j, err := repo.Claim(ctx)
	if err != nil || j == nil {
		t.Fatalf("Claim: %v %v", j, err)
	}
	if j.Priority != 10 || j.Status != jobs.StatusRunning || j.MaxAttempts != 5 {
		t.Fatalf("unexpected job %+v", j)
	}

	s, err := repo.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.Queued != 3 || s.Running != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}

	for range 2 {
		if j, _ := repo.Claim(ctx); j == nil || j.Type != "t" {
			t.Fatalf("expected a due job, got %+v", j)
		}
	}
	if j, err := repo.Claim(ctx); err != nil || j != nil {
		t.Fatalf("future job must not be claimed, got %+v %v", j, err)
	}

	n, err := repo.RequeueStale(ctx)
	if err != nil || n != 3 {
		t.Fatalf("RequeueStale: %d %v", n, err)
	}
}

func TestRetryThenDeadLetter(t *testing.T) {
	ctx := context.Background()
	_, repo := setup(t)

	rec := &outcomes{}
	calls := make(chan struct{}, 4)
	handlers := map[string]jobs.Handler{
		"flaky": func(ctx context.Context, j *jobs.Job) error {
			calls <- struct{}{}
			return errors.New("boom")
		},
	}
	if _, err := repo.Enqueue(ctx, &jobs.Job{Type: "flaky", Payload: []byte(`{}`), MaxAttempts: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Enqueue(ctx, &jobs.Job{Type: "orphan", Payload: []byte(`{}`)}); err != nil {
		t.Fatal(err)
	}

	pool := jobs.NewWorkerPool(repo, handlers, quiet, jobs.Options{PollInterval: 10 * time.Millisecond, Recorder: rec})
	pool.Start(ctx)
	defer pool.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for {
		s, err := repo.Stats(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if s.DeadLetter == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("jobs were not dead-lettered: %+v", s)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(calls) != 1 {
		t.Fatalf("expected one handler call, got %d", len(calls))
	}
}

func TestRetrySchedulesBackoff(t *testing.T) {
	ctx := context.Background()
	_, repo := setup(t)

	rec := &outcomes{}
	handlers := map[string]jobs.Handler{
		"flaky": func(ctx context.Context, j *jobs.Job) error { return errors.New("boom") },
	}
	if _, err := repo.Enqueue(ctx, &jobs.Job{Type: "flaky", Payload: []byte(`{}`), MaxAttempts: 3}); err != nil {
		t.Fatal(err)
	}

	pool := jobs.NewWorkerPool(repo, handlers, quiet, jobs.Options{PollInterval: 10 * time.Millisecond, Recorder: rec})
	pool.Start(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for len(rec.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("job never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}
	pool.Stop()
	pool.Stop()

	if got := rec.snapshot(); got[0] != "flaky:retry" {
		t.Fatalf("unexpected outcomes %v", got)
	}
	s, err := repo.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.Retry != 1 || s.DeadLetter != 0 {
		t.Fatalf("expected the job waiting for retry, got %+v", s)
	}
}

func TestBackoffDuration(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{9, 5 * time.Minute},
		{64, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := jobs.BackoffDuration(tt.attempt); got != tt.want {
			t.Fatalf("BackoffDuration(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPruneDiagnosesJob(t *testing.T) {
	ctx := context.Background()
	d, repo := setup(t)
	store := sqlite.New(d, nil)

	uid, err := store.CreateUser(ctx, &models.User{Username: "pat", PasswordHash: "h"})
	if err != nil {
		t.Fatal(err)
	}
	for i := range 4 {
		if _, err := store.CreateDiagnosis(ctx, &models.Diagnosis{UserID: uid, Created: int64(i + 1)}); err != nil {
			t.Fatal(err)
		}
	}

	rec := &outcomes{}
	var pruned atomic.Int64
	pool := jobs.NewWorkerPool(repo, map[string]jobs.Handler{
		jobs.TypePruneDiagnoses: jobs.PruneDiagnosesHandler(store, func(n int64) { pruned.Add(n) }),
	}, quiet, jobs.Options{PollInterval: 10 * time.Millisecond, Recorder: rec})
	pool.Start(ctx)
	defer pool.Stop()

	if err := pool.SchedulePrune(ctx, uid, 2); err != nil {
		t.Fatalf("SchedulePrune: %v", err)
	}
	if _, err := pool.Enqueue(ctx, jobs.TypePruneDiagnoses, jobs.PrunePayload{}, 100, 5); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for len(rec.snapshot()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("jobs not processed: %v", rec.snapshot())
		}
		time.Sleep(10 * time.Millisecond)
	}

	list, err := store.ListRecentDiagnoses(ctx, uid, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || pruned.Load() != 2 {
		t.Fatalf("expected 2 diagnoses left and 2 pruned, got %d and %d", len(list), pruned.Load())
	}
	got := rec.snapshot()
	if got[0] != "diagnoses.prune:done" || got[1] != "diagnoses.prune:failed" {
		t.Fatalf("invalid payload must be dead-lettered without retry, got %v", got)
	}
}
