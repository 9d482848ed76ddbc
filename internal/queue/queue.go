// Package queue provides the delayed session-firing transport. Messages
// become visible only after their per-message delay elapses; delivery is
// at-least-once, with the job ledger providing the authority check that
// makes duplicates harmless.
package queue

import (
	"context"
	"time"

	"github.com/2003deepak/MarkMe-sub000/internal/domain"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, job domain.SessionJob, delay time.Duration, priority int) error
}

type DelayQueue interface {
	Enqueuer
	Receive(ctx context.Context) (domain.SessionJob, error)
}
