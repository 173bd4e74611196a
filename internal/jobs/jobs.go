package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garnizeh/fixbuddy/pkg/repository"
)

// Job statuses as stored in the jobs table.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusRetry   = "retry"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// TypePruneDiagnoses evicts a user's oldest diagnoses beyond the keep count.
const TypePruneDiagnoses = "diagnoses.prune"

// Job represents a background job
type Job struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    int             `json:"priority"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	NextTryAt   *time.Time      `json:"next_try_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Created     time.Time       `json:"created"`
	Updated     time.Time       `json:"updated"`
}

// Handler is the function that processes a job
type Handler func(ctx context.Context, j *Job) error

// ErrBadPayload marks a payload that can never succeed; the job is not retried.
var ErrBadPayload = errors.New("bad job payload")

// BackoffDuration returns exponential backoff duration for attempt n
func BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	if attempt > 8 {
		return 5 * time.Minute
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if max := 5 * time.Minute; d > max {
		return max
	}
	return d
}

type PrunePayload struct {
	UserID int64 `json:"user_id"`
	Keep   int   `json:"keep"`
}

// PruneDiagnosesHandler returns the handler for TypePruneDiagnoses. onPruned,
// when set, receives the number of evicted rows.
func PruneDiagnosesHandler(repo repository.DiagnosisRepo, onPruned func(n int64)) Handler {
	return func(ctx context.Context, j *Job) error {
		var p PrunePayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		if p.UserID <= 0 || p.Keep <= 0 {
			return fmt.Errorf("%w: user_id and keep must be positive", ErrBadPayload)
		}
		n, err := repo.PruneDiagnoses(ctx, p.UserID, p.Keep)
		if err != nil {
			return err
		}
		if onPruned != nil {
			onPruned(n)
		}
		return nil
	}
}
