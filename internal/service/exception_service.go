// Package service implements the synchronous override path: an authorized
// actor cancels, reschedules, or adds one occurrence of a recurring slot,
// and the service supersedes whatever firing message is already in flight.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/2003deepak/MarkMe-sub000/internal/domain"
	"github.com/2003deepak/MarkMe-sub000/internal/ledger"
	"github.com/2003deepak/MarkMe-sub000/internal/metrics"
	"github.com/2003deepak/MarkMe-sub000/internal/queue"
	"github.com/2003deepak/MarkMe-sub000/internal/repository"
	"github.com/2003deepak/MarkMe-sub000/internal/scheduler"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

type IdentityClient interface {
	GetMe(ctx context.Context, userID uuid.UUID) (IdentityUser, error)
}

type IdentityUser struct {
	ID    uuid.UUID
	Roles []IdentityRole
}

type IdentityRole struct {
	Name       string
	Department *string
}

type SubjectResolver interface {
	Resolve(ctx context.Context, ref domain.SubjectRef) (string, error)
}

type OverrideRequest struct {
	SlotID       *uuid.UUID
	Date         time.Time             `validate:"required"`
	Action       domain.OverrideAction `validate:"required,oneof=cancel reschedule add"`
	NewStart     *time.Time
	NewEnd       *time.Time
	Subject      domain.SubjectRef
	Program      string
	Department   string
	Semester     int
	AcademicYear string
}

type ExceptionService struct {
	txManager repository.TxManager
	identity  IdentityClient
	ledger    ledger.Ledger
	enqueuer  queue.Enqueuer
	subjects  SubjectResolver
	validate  *validator.Validate
	logger    *log.Logger
	clock     func() time.Time
	lead      time.Duration
	ledgerTTL time.Duration
}

func NewExceptionService(
	txManager repository.TxManager,
	identity IdentityClient,
	jobLedger ledger.Ledger,
	enqueuer queue.Enqueuer,
	subjects SubjectResolver,
	logger *log.Logger,
	lead time.Duration,
	ledgerTTL time.Duration,
) *ExceptionService {
	if lead <= 0 {
		lead = scheduler.DefaultLead
	}
	if ledgerTTL <= 0 {
		ledgerTTL = scheduler.DefaultLedgerTTL
	}
	return &ExceptionService{
		txManager: txManager,
		identity:  identity,
		ledger:    jobLedger,
		enqueuer:  enqueuer,
		subjects:  subjects,
		validate:  validator.New(),
		logger:    logger,
		clock:     time.Now,
		lead:      lead,
		ledgerTTL: ledgerTTL,
	}
}

// SetClock replaces the service clock, for tests.
func (s *ExceptionService) SetClock(clock func() time.Time) {
	s.clock = clock
}

// SubmitOverride records the override durably, then invalidates the old
// ledger entry and, for reschedule/add, enqueues a replacement firing
// message under a fresh job id. The override row is written before any
// ledger or queue mutation so a crash mid-way is recoverable from the
// override store. Identical resubmissions return the original override
// without touching the ledger again.
func (s *ExceptionService) SubmitOverride(ctx context.Context, requesterID uuid.UUID, req OverrideRequest) (domain.Override, error) {
	if err := s.validate.Struct(req); err != nil {
		return domain.Override{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := checkInvariants(req); err != nil {
		return domain.Override{}, err
	}

	user, err := s.identity.GetMe(ctx, requesterID)
	if err != nil {
		return domain.Override{}, err
	}
	if !canOverride(user) {
		return domain.Override{}, ErrUnauthorized
	}

	override := domain.Override{
		ID:           uuid.New(),
		SlotID:       req.SlotID,
		Date:         domain.TruncateToDateLocal(req.Date),
		Action:       req.Action,
		NewStart:     req.NewStart,
		NewEnd:       req.NewEnd,
		Program:      req.Program,
		Department:   req.Department,
		Semester:     req.Semester,
		AcademicYear: req.AcademicYear,
		CreatedBy:    requesterID,
		CreatedAt:    s.clock(),
	}

	var slot domain.RecurringSlot
	if req.Action != domain.ActionAdd {
		var found bool
		err := s.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
			var err error
			slot, found, err = repos.Slots.GetByID(ctx, *req.SlotID)
			return err
		})
		if err != nil {
			return domain.Override{}, err
		}
		if !found {
			return domain.Override{}, fmt.Errorf("%w: slot %s", ErrNotFound, req.SlotID)
		}
		override.SubjectID = slot.SubjectID
		override.Program = slot.Program
		override.Department = slot.Department
		override.Semester = slot.Semester
		override.AcademicYear = slot.AcademicYear
	} else if !req.Subject.IsZero() {
		subjectID, err := s.subjects.Resolve(ctx, req.Subject)
		if err != nil {
			return domain.Override{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		override.SubjectID = subjectID
	}

	// Coordinators are scoped to one department, which for cancel and
	// reschedule comes from the slot rather than the request.
	if !isAuthorized(user, override.Department) {
		return domain.Override{}, ErrUnauthorized
	}

	var duplicateOf uuid.UUID
	var isDuplicate bool
	err = s.txManager.WithTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		var err error
		duplicateOf, isDuplicate, err = repos.Overrides.FindDuplicate(ctx, override)
		if err != nil || isDuplicate {
			return err
		}
		if err := repos.Overrides.Insert(ctx, override); err != nil {
			return err
		}
		return repos.Outbox.Insert(ctx, domain.SchedulerEvent{
			EventType: "SessionOverridden",
			Payload:   overriddenPayload(override),
		})
	})
	if err != nil {
		return domain.Override{}, err
	}
	if isDuplicate {
		s.logger.Printf("override duplicate of %s, skipping ledger update", duplicateOf)
		override.ID = duplicateOf
		return override, nil
	}

	if err := s.applyToLedger(ctx, override, slot); err != nil {
		return domain.Override{}, err
	}
	metrics.OverridesSubmitted.WithLabelValues(string(override.Action)).Inc()
	return override, nil
}

// applyToLedger performs the queue-side half of the override. The new
// ledger entry is written before the replacement message is enqueued so a
// firing consumer can never observe the message without its authority.
func (s *ExceptionService) applyToLedger(ctx context.Context, override domain.Override, slot domain.RecurringSlot) error {
	sessionID := override.SessionID()
	date := override.Date.Format(domain.DateLayout)
	key := domain.LedgerKey(sessionID, date)

	if override.Action == domain.ActionCancel {
		return s.ledger.Delete(ctx, key)
	}

	if override.Action == domain.ActionReschedule {
		if err := s.ledger.Delete(ctx, key); err != nil {
			return err
		}
	}

	start := domain.CombineDateTime(override.Date, *override.NewStart)
	job := domain.SessionJob{
		SessionID:      sessionID,
		Date:           date,
		Day:            override.Date.Weekday().String(),
		StartTimestamp: start.UnixMilli(),
		Subject:        override.SubjectID,
		Program:        override.Program,
		Department:     override.Department,
		Semester:       override.Semester,
		AcademicYear:   override.AcademicYear,
		JobID:          uuid.NewString(),
		ExceptionID:    override.ID.String(),
		IsException:    true,
	}

	delay := start.Add(-s.lead).Sub(s.clock())
	if delay < 0 {
		delay = 0
	}
	if err := s.ledger.Set(ctx, key, job.JobID, delay+s.ledgerTTL); err != nil {
		return err
	}
	return s.enqueuer.Enqueue(ctx, job, delay, scheduler.PriorityException)
}

func checkInvariants(req OverrideRequest) error {
	switch req.Action {
	case domain.ActionCancel, domain.ActionReschedule:
		if req.SlotID == nil {
			return fmt.Errorf("%w: %s requires a slot reference", ErrInvalidInput, req.Action)
		}
	}
	switch req.Action {
	case domain.ActionReschedule, domain.ActionAdd:
		if req.NewStart == nil || req.NewEnd == nil {
			return fmt.Errorf("%w: %s requires new start and end times", ErrInvalidInput, req.Action)
		}
		if !wallClockBefore(*req.NewStart, *req.NewEnd) {
			return fmt.Errorf("%w: new start must be before new end", ErrInvalidInput)
		}
	case domain.ActionCancel:
		if req.NewStart != nil || req.NewEnd != nil {
			return fmt.Errorf("%w: cancel does not take new times", ErrInvalidInput)
		}
	}
	return nil
}

func wallClockBefore(a, b time.Time) bool {
	am := a.Hour()*60 + a.Minute()
	bm := b.Hour()*60 + b.Minute()
	return am < bm
}

// canOverride is the role gate that needs no department context; the
// department-scoped check runs once the override's department is known.
func canOverride(user IdentityUser) bool {
	for _, role := range user.Roles {
		switch role.Name {
		case "admin", "faculty", "coordinator":
			return true
		}
	}
	return false
}

func isAuthorized(user IdentityUser, department string) bool {
	for _, role := range user.Roles {
		switch role.Name {
		case "admin", "faculty":
			return true
		case "coordinator":
			if role.Department != nil && *role.Department == department {
				return true
			}
		}
	}
	return false
}

func overriddenPayload(override domain.Override) domain.SessionOverriddenPayload {
	payload := domain.SessionOverriddenPayload{
		OverrideID:  override.ID.String(),
		Date:        override.Date.Format(domain.DateLayout),
		Action:      string(override.Action),
		RequestedBy: override.CreatedBy.String(),
	}
	if override.SlotID != nil {
		payload.SlotID = override.SlotID.String()
	}
	if override.NewStart != nil {
		payload.NewStart = override.NewStart.Format("15:04")
	}
	if override.NewEnd != nil {
		payload.NewEnd = override.NewEnd.Format("15:04")
	}
	return payload
}
