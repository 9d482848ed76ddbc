// Package consumer holds the two long-running loops: the session firing
// consumer draining the delay queue, and the aggregation consumer draining
// the attendance mutation feed.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/2003deepak/MarkMe-sub000/internal/domain"
	"github.com/2003deepak/MarkMe-sub000/internal/ledger"
	"github.com/2003deepak/MarkMe-sub000/internal/metrics"
	"github.com/2003deepak/MarkMe-sub000/internal/queue"
	"github.com/2003deepak/MarkMe-sub000/internal/scheduler"
)

const (
	DefaultTolerance  = 2 * time.Minute
	DefaultStaleAfter = 2 * time.Hour
)

type OverrideSource interface {
	GetLatestBySlotDate(ctx context.Context, slotID uuid.UUID, date time.Time) (domain.Override, bool, error)
}

type AttendanceCreator interface {
	CreateIfAbsent(ctx context.Context, att domain.Attendance) (bool, error)
}

type FiringConfig struct {
	Lead time.Duration
	// Tolerance absorbs clock skew when judging whether a message arrived
	// early.
	Tolerance time.Duration
	// StaleAfter is how long past session start a message is still
	// actionable. The payload carries no end time, so staleness is judged
	// from the start.
	StaleAfter time.Duration
	LedgerTTL  time.Duration
}

// FiringConsumer processes delayed firing messages. Every message walks
// the same path: authority check against the job ledger, timing check,
// late-override check, then the attendance insert. The ledger is the sole
// arbiter of which message may act; discards are the expected fate of
// superseded messages, not errors.
type FiringConsumer struct {
	queue      queue.DelayQueue
	ledger     ledger.Ledger
	overrides  OverrideSource
	attendance AttendanceCreator
	logger     *log.Logger
	clock      func() time.Time

	lead       time.Duration
	tolerance  time.Duration
	staleAfter time.Duration
	ledgerTTL  time.Duration
}

func NewFiringConsumer(
	delayQueue queue.DelayQueue,
	jobLedger ledger.Ledger,
	overrides OverrideSource,
	attendance AttendanceCreator,
	logger *log.Logger,
	cfg FiringConfig,
) *FiringConsumer {
	if cfg.Lead <= 0 {
		cfg.Lead = scheduler.DefaultLead
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.LedgerTTL <= 0 {
		cfg.LedgerTTL = scheduler.DefaultLedgerTTL
	}
	return &FiringConsumer{
		queue:      delayQueue,
		ledger:     jobLedger,
		overrides:  overrides,
		attendance: attendance,
		logger:     logger,
		clock:      time.Now,
		lead:       cfg.Lead,
		tolerance:  cfg.Tolerance,
		staleAfter: cfg.StaleAfter,
		ledgerTTL:  cfg.LedgerTTL,
	}
}

// SetClock replaces the consumer clock, for tests.
func (c *FiringConsumer) SetClock(clock func() time.Time) {
	c.clock = clock
}

// Run drains the queue until the context is cancelled. Transient handler
// errors re-enqueue the message with backoff, relying on the idempotent
// attendance insert for safety.
func (c *FiringConsumer) Run(ctx context.Context) error {
	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = 0

	for {
		job, err := c.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Printf("firing receive failed: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retry.NextBackOff()):
			}
			continue
		}

		outcome, err := c.Handle(ctx, job)
		if err != nil {
			delay := retry.NextBackOff()
			c.logger.Printf("firing %s failed, requeueing in %s: %v", job.JobID, delay, err)
			if enqErr := c.queue.Enqueue(ctx, job, delay, jobPriority(job)); enqErr != nil {
				c.logger.Printf("firing %s requeue failed, message lost: %v", job.JobID, enqErr)
			}
			continue
		}
		retry.Reset()

		metrics.Firings.WithLabelValues(outcome.Status.String()).Inc()
		switch outcome.Status {
		case domain.FiringRequeued:
			if err := c.queue.Enqueue(ctx, job, outcome.Delay, jobPriority(job)); err != nil {
				c.logger.Printf("firing %s requeue failed, message lost: %v", job.JobID, err)
			}
		case domain.FiringDiscarded:
			c.logger.Printf("firing %s discarded: %s", job.JobID, outcome.Reason)
		case domain.FiringMaterialized:
			c.logger.Printf("firing %s materialized session %s on %s", job.JobID, job.SessionID, job.Date)
		}
	}
}

// Handle walks one message through the firing state machine and returns its
// outcome. A non-nil error means transient infrastructure failure; the
// caller re-enqueues and every step up to the attendance insert is safe to
// repeat.
func (c *FiringConsumer) Handle(ctx context.Context, job domain.SessionJob) (domain.FiringOutcome, error) {
	if err := job.Validate(); err != nil {
		return domain.Discarded("malformed: " + err.Error()), nil
	}

	key := job.LedgerKey()
	current, err := c.ledger.Get(ctx, key)
	if errors.Is(err, ledger.ErrNotFound) {
		return domain.Discarded("superseded: no ledger entry"), nil
	}
	if err != nil {
		return domain.FiringOutcome{}, err
	}
	if current != job.JobID {
		return domain.Discarded("superseded: ledger holds " + current), nil
	}

	now := c.clock()
	start := job.StartAt()
	fireAt := start.Add(-c.lead)

	if now.Before(fireAt.Add(-c.tolerance)) {
		// Early delivery. Dropping here would silently lose the session,
		// so push the message back out with the remaining delay instead.
		return domain.Requeued(fireAt.Sub(now)), nil
	}
	if now.After(start.Add(c.staleAfter)) {
		if err := c.ledger.Delete(ctx, key); err != nil {
			return domain.FiringOutcome{}, err
		}
		return domain.Discarded("stale: session start long past"), nil
	}

	outcome, done, err := c.recheckOverride(ctx, job, key, start, now)
	if err != nil || done {
		return outcome, err
	}

	att := domain.Attendance{
		SessionID:       job.SessionID,
		Date:            job.Date,
		Day:             job.Day,
		Subject:         job.Subject,
		Program:         job.Program,
		Department:      job.Department,
		Semester:        job.Semester,
		AcademicYear:    job.AcademicYear,
		PresenceBitmask: "",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if job.IsException && job.ExceptionID == job.SessionID {
		att.OverrideID = job.ExceptionID
	} else {
		att.SlotID = job.SessionID
		att.OverrideID = job.ExceptionID
	}

	inserted, err := c.attendance.CreateIfAbsent(ctx, att)
	if err != nil {
		return domain.FiringOutcome{}, err
	}
	if !inserted {
		c.logger.Printf("attendance for %s/%s already exists, treating as materialized", job.SessionID, job.Date)
	}

	if err := c.ledger.Delete(ctx, key); err != nil {
		// Redelivery will retry; the attendance insert above is idempotent.
		return domain.FiringOutcome{}, err
	}
	return domain.Materialized(), nil
}

// recheckOverride catches overrides submitted after this message was
// enqueued but before it fired. Returns done=true when the message has
// been dealt with and must not materialize.
func (c *FiringConsumer) recheckOverride(ctx context.Context, job domain.SessionJob, key string, start, now time.Time) (domain.FiringOutcome, bool, error) {
	slotID, err := uuid.Parse(job.SessionID)
	if err != nil {
		return domain.FiringOutcome{}, false, nil
	}

	override, found, err := c.overrides.GetLatestBySlotDate(ctx, slotID, job.DateValue())
	if err != nil {
		return domain.FiringOutcome{}, false, err
	}
	if !found || override.ID.String() == job.ExceptionID {
		return domain.FiringOutcome{}, false, nil
	}

	switch override.Action {
	case domain.ActionCancel:
		if err := c.ledger.Delete(ctx, key); err != nil {
			return domain.FiringOutcome{}, false, err
		}
		return domain.Discarded("cancelled by override " + override.ID.String()), true, nil

	case domain.ActionReschedule:
		if override.NewStart == nil {
			return domain.FiringOutcome{}, false, nil
		}
		newStart := domain.CombineDateTime(job.DateValue(), *override.NewStart)
		if absDuration(newStart.Sub(start)) <= c.tolerance {
			return domain.FiringOutcome{}, false, nil
		}

		replacement := job
		replacement.JobID = uuid.NewString()
		replacement.StartTimestamp = newStart.UnixMilli()
		replacement.ExceptionID = override.ID.String()
		replacement.IsException = true

		delay := newStart.Add(-c.lead).Sub(now)
		if delay < 0 {
			delay = 0
		}
		if err := c.ledger.Set(ctx, key, replacement.JobID, delay+c.ledgerTTL); err != nil {
			return domain.FiringOutcome{}, false, err
		}
		if err := c.queue.Enqueue(ctx, replacement, delay, scheduler.PriorityException); err != nil {
			return domain.FiringOutcome{}, false, err
		}
		return domain.Discarded(fmt.Sprintf("rescheduled to %s by override %s", newStart.Format("15:04"), override.ID)), true, nil
	}

	return domain.FiringOutcome{}, false, nil
}

// jobPriority keeps a message's queue priority stable across requeues.
func jobPriority(job domain.SessionJob) int {
	if job.IsException {
		return scheduler.PriorityException
	}
	return scheduler.PriorityNormal
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
