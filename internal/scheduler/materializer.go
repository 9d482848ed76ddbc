// Package scheduler contains the daily materializer that turns the weekly
// timetable plus per-date overrides into job-ledger entries and delayed
// firing messages.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/2003deepak/MarkMe-sub000/internal/domain"
	"github.com/2003deepak/MarkMe-sub000/internal/ledger"
	"github.com/2003deepak/MarkMe-sub000/internal/metrics"
	"github.com/2003deepak/MarkMe-sub000/internal/queue"
	"github.com/2003deepak/MarkMe-sub000/internal/repository"
)

const (
	DefaultLead      = 15 * time.Minute
	DefaultLedgerTTL = 48 * time.Hour

	// PriorityNormal and PriorityException order simultaneously-due
	// messages; replacement messages from overrides jump the queue.
	PriorityNormal    = 0
	PriorityException = 1
)

type Config struct {
	// Lead is how long before session start the firing message becomes due.
	Lead time.Duration
	// LedgerTTL is the base expiry for job-ledger entries, extended by the
	// message delay so an entry always outlives its message.
	LedgerTTL time.Duration
	// RunAt is the local wall-clock time ("15:04") of the daily run.
	RunAt string
	// Immediate skips the RunAt gate and materializes on startup; used in
	// development. The run log still keeps the run at-most-once per date.
	Immediate bool
	// TickInterval is how often the run loop re-checks whether a run is due.
	TickInterval time.Duration
}

type Materializer struct {
	txManager repository.TxManager
	ledger    ledger.Ledger
	enqueuer  queue.Enqueuer
	logger    *log.Logger
	clock     func() time.Time

	lead      time.Duration
	ledgerTTL time.Duration
	runAt     time.Time
	immediate bool
	tick      time.Duration
}

func NewMaterializer(
	txManager repository.TxManager,
	jobLedger ledger.Ledger,
	enqueuer queue.Enqueuer,
	logger *log.Logger,
	cfg Config,
) (*Materializer, error) {
	if cfg.Lead <= 0 {
		cfg.Lead = DefaultLead
	}
	if cfg.LedgerTTL <= 0 {
		cfg.LedgerTTL = DefaultLedgerTTL
	}
	if cfg.RunAt == "" {
		cfg.RunAt = "20:00"
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	runAt, err := time.ParseInLocation("15:04", cfg.RunAt, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid materializer run time %q: %w", cfg.RunAt, err)
	}

	return &Materializer{
		txManager: txManager,
		ledger:    jobLedger,
		enqueuer:  enqueuer,
		logger:    logger,
		clock:     time.Now,
		lead:      cfg.Lead,
		ledgerTTL: cfg.LedgerTTL,
		runAt:     runAt,
		immediate: cfg.Immediate,
		tick:      cfg.TickInterval,
	}, nil
}

// SetClock replaces the materializer clock, for tests.
func (m *Materializer) SetClock(clock func() time.Time) {
	m.clock = clock
}

// Run executes the daily materialization loop until the context is
// cancelled. Each tick checks whether the run is due and claims the target
// date in the run log before doing any work.
func (m *Materializer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	m.runIfDue(ctx, m.clock())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			m.runIfDue(ctx, now)
		}
	}
}

func (m *Materializer) runIfDue(ctx context.Context, now time.Time) {
	if !m.immediate && !m.isDue(now) {
		return
	}
	target := domain.TruncateToDateLocal(now).AddDate(0, 0, 1)

	var claimed bool
	err := m.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		var err error
		claimed, err = repos.RunLog.MarkMaterialized(ctx, target)
		return err
	})
	if err != nil {
		m.logger.Printf("materializer run claim failed: %v", err)
		return
	}
	if !claimed {
		return
	}

	result, err := m.MaterializeDate(ctx, target)
	if err != nil {
		m.logger.Printf("materialize %s failed: %v", target.Format(domain.DateLayout), err)
		// Release the claim so the next tick retries the date instead of
		// silently leaving it without sessions.
		if clearErr := m.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
			return repos.RunLog.ClearMaterialized(ctx, target)
		}); clearErr != nil {
			m.logger.Printf("release run claim for %s failed: %v", target.Format(domain.DateLayout), clearErr)
		}
		return
	}
	m.logger.Printf("materialized %s: scheduled=%d cancelled=%d skipped=%d",
		result.Date, result.Scheduled, result.Cancelled, result.Skipped)
}

func (m *Materializer) isDue(now time.Time) bool {
	local := now.In(time.Local)
	dueAt := time.Date(
		local.Year(),
		local.Month(),
		local.Day(),
		m.runAt.Hour(),
		m.runAt.Minute(),
		0,
		0,
		local.Location(),
	)
	return !local.Before(dueAt)
}

// MaterializeDate schedules every session occurring on the target date: one
// ledger entry and one delayed firing message per slot that is not
// cancelled. A failure on one slot never aborts the rest.
func (m *Materializer) MaterializeDate(ctx context.Context, date time.Time) (domain.SessionsMaterializedPayload, error) {
	date = domain.TruncateToDateLocal(date)
	result := domain.SessionsMaterializedPayload{Date: date.Format(domain.DateLayout)}

	var slots []domain.RecurringSlot
	var overrides []domain.Override
	err := m.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		var err error
		if slots, err = repos.Slots.ListByWeekday(ctx, domain.WeekdayNumber(date)); err != nil {
			return err
		}
		overrides, err = repos.Overrides.ListByDate(ctx, date)
		return err
	})
	if err != nil {
		return result, fmt.Errorf("load timetable for %s: %w", result.Date, err)
	}

	latest := latestOverrideBySlot(overrides)
	var jobs []domain.SessionJob
	for _, slot := range slots {
		job, outcome := m.planSlot(ctx, slot, date, latest[slot.ID])
		switch outcome {
		case planCancelled:
			result.Cancelled++
		case planSkipped:
			result.Skipped++
		case planScheduled:
			jobs = append(jobs, job)
		}
	}

	// Deterministic enqueue order for logs and tests; delivery order is
	// governed by each message's own delay.
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].StartTimestamp != jobs[j].StartTimestamp {
			return jobs[i].StartTimestamp < jobs[j].StartTimestamp
		}
		return jobs[i].SessionID < jobs[j].SessionID
	})

	now := m.clock()
	for _, job := range jobs {
		if err := m.schedule(ctx, job, now); err != nil {
			m.logger.Printf("schedule session %s on %s failed: %v", job.SessionID, job.Date, err)
			result.Skipped++
			continue
		}
		result.Scheduled++
		metrics.SessionsScheduled.Inc()
	}

	if err := m.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		return repos.Outbox.Insert(ctx, domain.SchedulerEvent{
			EventType: "SessionsMaterialized",
			Payload:   result,
		})
	}); err != nil {
		m.logger.Printf("materializer outbox insert failed: %v", err)
	}

	return result, nil
}

type planOutcome int

const (
	planScheduled planOutcome = iota
	planCancelled
	planSkipped
)

func (m *Materializer) planSlot(ctx context.Context, slot domain.RecurringSlot, date time.Time, override *domain.Override) (domain.SessionJob, planOutcome) {
	key := domain.LedgerKey(slot.ID.String(), date.Format(domain.DateLayout))

	if override != nil && override.Action == domain.ActionCancel {
		if err := m.ledger.Delete(ctx, key); err != nil {
			m.logger.Printf("ledger delete for cancelled session %s failed: %v", key, err)
		}
		return domain.SessionJob{}, planCancelled
	}

	if slot.SubjectID == "" {
		m.logger.Printf("slot %s has no subject reference, skipping", slot.ID)
		return domain.SessionJob{}, planSkipped
	}

	start := domain.CombineDateTime(date, slot.StartTime)
	job := domain.SessionJob{
		SessionID:    slot.ID.String(),
		Date:         date.Format(domain.DateLayout),
		Day:          date.Weekday().String(),
		Subject:      slot.SubjectID,
		Program:      slot.Program,
		Department:   slot.Department,
		Semester:     slot.Semester,
		AcademicYear: slot.AcademicYear,
		JobID:        uuid.NewString(),
	}

	if override != nil && override.Action == domain.ActionReschedule {
		if override.NewStart == nil {
			m.logger.Printf("reschedule override %s has no new start time, skipping slot %s", override.ID, slot.ID)
			return domain.SessionJob{}, planSkipped
		}
		start = domain.CombineDateTime(date, *override.NewStart)
		job.IsException = true
		job.ExceptionID = override.ID.String()
	}

	job.StartTimestamp = start.UnixMilli()
	return job, planScheduled
}

// schedule writes the ledger entry and then enqueues the message; the
// ledger write must happen first so a fast delivery still finds its
// authority recorded.
func (m *Materializer) schedule(ctx context.Context, job domain.SessionJob, now time.Time) error {
	delay := job.StartAt().Add(-m.lead).Sub(now)
	if delay < 0 {
		delay = 0
	}

	if err := m.ledger.Set(ctx, job.LedgerKey(), job.JobID, delay+m.ledgerTTL); err != nil {
		return err
	}

	priority := PriorityNormal
	if job.IsException {
		priority = PriorityException
	}
	return m.enqueuer.Enqueue(ctx, job, delay, priority)
}

func latestOverrideBySlot(overrides []domain.Override) map[uuid.UUID]*domain.Override {
	latest := make(map[uuid.UUID]*domain.Override)
	for i := range overrides {
		override := overrides[i]
		if override.SlotID == nil {
			// Added sessions are scheduled at submission time by the
			// exception service, not during materialization.
			continue
		}
		current, ok := latest[*override.SlotID]
		if !ok || override.CreatedAt.After(current.CreatedAt) {
			latest[*override.SlotID] = &overrides[i]
		}
	}
	return latest
}
