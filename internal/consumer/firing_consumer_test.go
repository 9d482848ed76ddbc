package consumer

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2003deepak/MarkMe-sub000/internal/domain"
	"github.com/2003deepak/MarkMe-sub000/internal/ledger"
	"github.com/2003deepak/MarkMe-sub000/internal/queue"
	"github.com/2003deepak/MarkMe-sub000/internal/repository"
)

var (
	sessionDate  = time.Date(2026, 3, 2, 0, 0, 0, 0, time.Local) // a Monday
	sessionStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)
	fireTime     = time.Date(2026, 3, 2, 9, 45, 0, 0, time.Local)
)

type fakeAttendance struct {
	created []domain.Attendance
	err     error
}

func (f *fakeAttendance) CreateIfAbsent(_ context.Context, att domain.Attendance) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, existing := range f.created {
		if existing.SessionID == att.SessionID && existing.Date == att.Date {
			return false, nil
		}
	}
	f.created = append(f.created, att)
	return true, nil
}

type firingFixture struct {
	store      *repository.MemoryStore
	ledger     *ledger.MemoryLedger
	queue      *queue.MemoryQueue
	attendance *fakeAttendance
	consumer   *FiringConsumer
	now        time.Time
}

func newFiringFixture(t *testing.T) *firingFixture {
	t.Helper()
	f := &firingFixture{
		store:      repository.NewMemoryStore(),
		ledger:     ledger.NewMemoryLedger(),
		queue:      queue.NewMemoryQueue(),
		attendance: &fakeAttendance{},
		now:        fireTime,
	}
	f.queue.SetClock(func() time.Time { return f.now })
	f.consumer = NewFiringConsumer(
		f.queue,
		f.ledger,
		repository.NewMemoryOverrideRepository(f.store),
		f.attendance,
		log.New(io.Discard, "", 0),
		FiringConfig{
			Lead:       15 * time.Minute,
			Tolerance:  2 * time.Minute,
			StaleAfter: 2 * time.Hour,
			LedgerTTL:  48 * time.Hour,
		},
	)
	f.consumer.SetClock(func() time.Time { return f.now })
	return f
}

func (f *firingFixture) job(t *testing.T) domain.SessionJob {
	t.Helper()
	job := domain.SessionJob{
		SessionID:      uuid.NewString(),
		Date:           "2026-03-02",
		Day:            "Monday",
		StartTimestamp: sessionStart.UnixMilli(),
		Subject:        "64a7f0c2e1b2c3d4e5f60718",
		Program:        "BTech",
		Department:     "CSE",
		Semester:       4,
		AcademicYear:   "2025-26",
		JobID:          uuid.NewString(),
	}
	require.NoError(t, f.ledger.Set(context.Background(), job.LedgerKey(), job.JobID, 48*time.Hour))
	return job
}

func TestHandleMalformedMessageDiscarded(t *testing.T) {
	f := newFiringFixture(t)
	outcome, err := f.consumer.Handle(context.Background(), domain.SessionJob{Date: "2026-03-02"})
	require.NoError(t, err)
	assert.Equal(t, domain.FiringDiscarded, outcome.Status)
	assert.Contains(t, outcome.Reason, "malformed")
	assert.Empty(t, f.attendance.created)
}

func TestHandleNoLedgerEntryDiscarded(t *testing.T) {
	f := newFiringFixture(t)
	job := f.job(t)
	require.NoError(t, f.ledger.Delete(context.Background(), job.LedgerKey()))

	outcome, err := f.consumer.Handle(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, domain.FiringDiscarded, outcome.Status)
	assert.Contains(t, outcome.Reason, "superseded")
	assert.Empty(t, f.attendance.created)
}

func TestHandleSupersededJobDiscarded(t *testing.T) {
	f := newFiringFixture(t)
	ctx := context.Background()
	job := f.job(t)
	require.NoError(t, f.ledger.Set(ctx, job.LedgerKey(), "newer-job", 48*time.Hour))

	outcome, err := f.consumer.Handle(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, domain.FiringDiscarded, outcome.Status)
	assert.Contains(t, outcome.Reason, "superseded")
	assert.Empty(t, f.attendance.created)

	// The newer job's authority must survive the discard.
	held, err := f.ledger.Get(ctx, job.LedgerKey())
	require.NoError(t, err)
	assert.Equal(t, "newer-job", held)
}

func TestHandleEarlyMessageRequeued(t *testing.T) {
	f := newFiringFixture(t)
	f.now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local)
	job := f.job(t)

	outcome, err := f.consumer.Handle(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, domain.FiringRequeued, outcome.Status)
	assert.Equal(t, 45*time.Minute, outcome.Delay)
	assert.Empty(t, f.attendance.created)

	// Authority stays put for the requeued delivery.
	held, err := f.ledger.Get(context.Background(), job.LedgerKey())
	require.NoError(t, err)
	assert.Equal(t, job.JobID, held)
}

func TestHandleSlightlyEarlyMessageProceeds(t *testing.T) {
	f := newFiringFixture(t)
	f.now = time.Date(2026, 3, 2, 9, 44, 0, 0, time.Local)
	job := f.job(t)

	outcome, err := f.consumer.Handle(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, domain.FiringMaterialized, outcome.Status)
}

func TestHandleStaleMessageDiscardedAndLedgerCleared(t *testing.T) {
	f := newFiringFixture(t)
	f.now = time.Date(2026, 3, 2, 12, 1, 0, 0, time.Local)
	job := f.job(t)

	outcome, err := f.consumer.Handle(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, domain.FiringDiscarded, outcome.Status)
	assert.Contains(t, outcome.Reason, "stale")
	assert.Empty(t, f.attendance.created)

	_, err = f.ledger.Get(context.Background(), job.LedgerKey())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestHandleValidMessageMaterializes(t *testing.T) {
	f := newFiringFixture(t)
	job := f.job(t)

	outcome, err := f.consumer.Handle(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, domain.FiringMaterialized, outcome.Status)

	require.Len(t, f.attendance.created, 1)
	att := f.attendance.created[0]
	assert.Equal(t, job.SessionID, att.SessionID)
	assert.Equal(t, job.SessionID, att.SlotID)
	assert.Empty(t, att.OverrideID)
	assert.Equal(t, "2026-03-02", att.Date)
	assert.Equal(t, job.Subject, att.Subject)
	assert.Empty(t, att.PresenceBitmask)

	_, err = f.ledger.Get(context.Background(), job.LedgerKey())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestHandleRedeliveryAfterInsertIsIdempotent(t *testing.T) {
	f := newFiringFixture(t)
	ctx := context.Background()
	job := f.job(t)

	outcome, err := f.consumer.Handle(ctx, job)
	require.NoError(t, err)
	require.Equal(t, domain.FiringMaterialized, outcome.Status)

	// Crash between the attendance insert and the ledger delete leaves the
	// entry behind; the redelivered message must not create a second record.
	require.NoError(t, f.ledger.Set(ctx, job.LedgerKey(), job.JobID, 48*time.Hour))
	outcome, err = f.consumer.Handle(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, domain.FiringMaterialized, outcome.Status)
	assert.Len(t, f.attendance.created, 1)
}

func TestHandleLateCancelOverrideDiscards(t *testing.T) {
	f := newFiringFixture(t)
	ctx := context.Background()
	job := f.job(t)
	slotID := uuid.MustParse(job.SessionID)
	f.store.AddOverride(domain.Override{
		ID:        uuid.New(),
		SlotID:    &slotID,
		Date:      sessionDate,
		Action:    domain.ActionCancel,
		CreatedBy: uuid.New(),
		CreatedAt: f.now.Add(-time.Minute),
	})

	outcome, err := f.consumer.Handle(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, domain.FiringDiscarded, outcome.Status)
	assert.Contains(t, outcome.Reason, "cancelled")
	assert.Empty(t, f.attendance.created)

	_, err = f.ledger.Get(ctx, job.LedgerKey())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestHandleLateRescheduleEnqueuesReplacement(t *testing.T) {
	f := newFiringFixture(t)
	ctx := context.Background()
	job := f.job(t)
	slotID := uuid.MustParse(job.SessionID)
	newStart := time.Date(0, 1, 1, 11, 0, 0, 0, time.UTC)
	override := domain.Override{
		ID:        uuid.New(),
		SlotID:    &slotID,
		Date:      sessionDate,
		Action:    domain.ActionReschedule,
		NewStart:  &newStart,
		CreatedBy: uuid.New(),
		CreatedAt: f.now.Add(-time.Minute),
	}
	f.store.AddOverride(override)

	outcome, err := f.consumer.Handle(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, domain.FiringDiscarded, outcome.Status)
	assert.Contains(t, outcome.Reason, "rescheduled")
	assert.Empty(t, f.attendance.created)

	pending := f.queue.Pending()
	require.Len(t, pending, 1)
	replacement := pending[0].Job
	assert.Equal(t, job.SessionID, replacement.SessionID)
	assert.NotEqual(t, job.JobID, replacement.JobID)
	assert.True(t, replacement.IsException)
	assert.Equal(t, override.ID.String(), replacement.ExceptionID)
	assert.Equal(t, time.Date(2026, 3, 2, 11, 0, 0, 0, time.Local).UnixMilli(), replacement.StartTimestamp)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 45, 0, 0, time.Local), pending[0].ReadyAt)

	held, err := f.ledger.Get(ctx, job.LedgerKey())
	require.NoError(t, err)
	assert.Equal(t, replacement.JobID, held)

	// The replacement itself sails through once its time comes.
	f.now = time.Date(2026, 3, 2, 10, 45, 0, 0, time.Local)
	outcome, err = f.consumer.Handle(ctx, replacement)
	require.NoError(t, err)
	assert.Equal(t, domain.FiringMaterialized, outcome.Status)
	require.Len(t, f.attendance.created, 1)
	assert.Equal(t, override.ID.String(), f.attendance.created[0].OverrideID)
}

func TestHandleRescheduleWithinToleranceProceeds(t *testing.T) {
	f := newFiringFixture(t)
	job := f.job(t)
	slotID := uuid.MustParse(job.SessionID)
	nudged := time.Date(0, 1, 1, 10, 1, 0, 0, time.UTC)
	f.store.AddOverride(domain.Override{
		ID:        uuid.New(),
		SlotID:    &slotID,
		Date:      sessionDate,
		Action:    domain.ActionReschedule,
		NewStart:  &nudged,
		CreatedBy: uuid.New(),
		CreatedAt: f.now.Add(-time.Minute),
	})

	outcome, err := f.consumer.Handle(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, domain.FiringMaterialized, outcome.Status)
	assert.Len(t, f.attendance.created, 1)
}

func TestHandleOwnOverrideDoesNotSupersede(t *testing.T) {
	f := newFiringFixture(t)
	job := f.job(t)
	slotID := uuid.MustParse(job.SessionID)
	overrideID := uuid.New()
	newStart := time.Date(0, 1, 1, 11, 0, 0, 0, time.UTC)
	f.store.AddOverride(domain.Override{
		ID:        overrideID,
		SlotID:    &slotID,
		Date:      sessionDate,
		Action:    domain.ActionReschedule,
		NewStart:  &newStart,
		CreatedBy: uuid.New(),
		CreatedAt: f.now.Add(-time.Hour),
	})

	// The message already carries this override; firing at the new time.
	job.IsException = true
	job.ExceptionID = overrideID.String()
	job.StartTimestamp = time.Date(2026, 3, 2, 11, 0, 0, 0, time.Local).UnixMilli()
	require.NoError(t, f.ledger.Set(context.Background(), job.LedgerKey(), job.JobID, 48*time.Hour))
	f.now = time.Date(2026, 3, 2, 10, 45, 0, 0, time.Local)

	outcome, err := f.consumer.Handle(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, domain.FiringMaterialized, outcome.Status)
}

func TestHandleAddOriginJobRecordsOverrideOnly(t *testing.T) {
	f := newFiringFixture(t)
	overrideID := uuid.NewString()
	job := domain.SessionJob{
		SessionID:      overrideID,
		Date:           "2026-03-02",
		Day:            "Monday",
		StartTimestamp: sessionStart.UnixMilli(),
		Subject:        "64a7f0c2e1b2c3d4e5f60718",
		JobID:          uuid.NewString(),
		ExceptionID:    overrideID,
		IsException:    true,
	}
	require.NoError(t, f.ledger.Set(context.Background(), job.LedgerKey(), job.JobID, 48*time.Hour))

	outcome, err := f.consumer.Handle(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, domain.FiringMaterialized, outcome.Status)

	require.Len(t, f.attendance.created, 1)
	att := f.attendance.created[0]
	assert.Empty(t, att.SlotID)
	assert.Equal(t, overrideID, att.OverrideID)
}

func TestRunRequeuesEarlyExceptionAtSamePriority(t *testing.T) {
	f := newFiringFixture(t)
	f.now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local)
	job := f.job(t)
	job.IsException = true
	job.ExceptionID = uuid.NewString()
	require.NoError(t, f.ledger.Set(context.Background(), job.LedgerKey(), job.JobID, 48*time.Hour))
	require.NoError(t, f.queue.Enqueue(context.Background(), job, 0, 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = f.consumer.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		pending := f.queue.Pending()
		return len(pending) == 1 && pending[0].ReadyAt.After(f.now)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.queue.Pending()[0].Priority)

	cancel()
	<-done
}

func TestHandleTransientInsertFailureReturnsError(t *testing.T) {
	f := newFiringFixture(t)
	f.attendance.err = assert.AnError
	job := f.job(t)

	_, err := f.consumer.Handle(context.Background(), job)
	require.Error(t, err)

	// Authority is untouched so the retry can still act.
	held, err := f.ledger.Get(context.Background(), job.LedgerKey())
	require.NoError(t, err)
	assert.Equal(t, job.JobID, held)
}
