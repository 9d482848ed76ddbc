package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2003deepak/MarkMe-sub000/internal/domain"
)

// MemoryStore backs the in-memory repository set used by tests and local
// development. It does not model transactions; callers that need rollback
// semantics must use Postgres.
type MemoryStore struct {
	mu        sync.Mutex
	slots     []domain.RecurringSlot
	overrides []domain.Override
	runs      map[string]bool
	events    []domain.SchedulerEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]bool)}
}

func (s *MemoryStore) AddSlot(slot domain.RecurringSlot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = append(s.slots, slot)
}

func (s *MemoryStore) AddOverride(override domain.Override) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides = append(s.overrides, override)
}

func (s *MemoryStore) Overrides() []domain.Override {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Override, len(s.overrides))
	copy(out, s.overrides)
	return out
}

func (s *MemoryStore) Events() []domain.SchedulerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SchedulerEvent, len(s.events))
	copy(out, s.events)
	return out
}

type MemoryTxManager struct {
	Store *MemoryStore
}

func NewMemoryTxManager(store *MemoryStore) *MemoryTxManager {
	return &MemoryTxManager{Store: store}
}

func (m *MemoryTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error {
	repos := TxRepositories{
		Slots:     &MemorySlotRepository{store: m.Store},
		Overrides: &MemoryOverrideRepository{Store: m.Store},
		Outbox:    &memoryOutboxRepository{store: m.Store},
		RunLog:    &memoryRunLogRepository{store: m.Store},
	}
	return fn(ctx, repos)
}

type MemorySlotRepository struct {
	store *MemoryStore
}

func NewMemorySlotRepository(store *MemoryStore) *MemorySlotRepository {
	return &MemorySlotRepository{store: store}
}

func (r *MemorySlotRepository) ListByWeekday(_ context.Context, weekday int) ([]domain.RecurringSlot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var slots []domain.RecurringSlot
	for _, slot := range r.store.slots {
		if slot.Weekday == weekday {
			slots = append(slots, slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return a.ID.String() < b.ID.String()
	})
	return slots, nil
}

func (r *MemorySlotRepository) GetByID(_ context.Context, id uuid.UUID) (domain.RecurringSlot, bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, slot := range r.store.slots {
		if slot.ID == id {
			return slot, true, nil
		}
	}
	return domain.RecurringSlot{}, false, nil
}

type MemoryOverrideRepository struct {
	Store *MemoryStore
}

func NewMemoryOverrideRepository(store *MemoryStore) *MemoryOverrideRepository {
	return &MemoryOverrideRepository{Store: store}
}

func (r *MemoryOverrideRepository) Insert(_ context.Context, override domain.Override) error {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	if override.CreatedAt.IsZero() {
		override.CreatedAt = time.Now()
	}
	r.Store.overrides = append(r.Store.overrides, override)
	return nil
}

func (r *MemoryOverrideRepository) GetLatestBySlotDate(_ context.Context, slotID uuid.UUID, date time.Time) (domain.Override, bool, error) {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	var latest domain.Override
	found := false
	for _, override := range r.Store.overrides {
		if override.SlotID == nil || *override.SlotID != slotID {
			continue
		}
		if !domain.TruncateToDateLocal(override.Date).Equal(domain.TruncateToDateLocal(date)) {
			continue
		}
		if !found || override.CreatedAt.After(latest.CreatedAt) {
			latest = override
			found = true
		}
	}
	return latest, found, nil
}

func (r *MemoryOverrideRepository) ListByDate(_ context.Context, date time.Time) ([]domain.Override, error) {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	var overrides []domain.Override
	for _, override := range r.Store.overrides {
		if domain.TruncateToDateLocal(override.Date).Equal(domain.TruncateToDateLocal(date)) {
			overrides = append(overrides, override)
		}
	}
	sort.Slice(overrides, func(i, j int) bool {
		return overrides[i].CreatedAt.Before(overrides[j].CreatedAt)
	})
	return overrides, nil
}

func (r *MemoryOverrideRepository) FindDuplicate(_ context.Context, override domain.Override) (uuid.UUID, bool, error) {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	for i := len(r.Store.overrides) - 1; i >= 0; i-- {
		existing := r.Store.overrides[i]
		if existing.Action != override.Action {
			continue
		}
		if !sameSlotRef(existing.SlotID, override.SlotID) {
			continue
		}
		if !domain.TruncateToDateLocal(existing.Date).Equal(domain.TruncateToDateLocal(override.Date)) {
			continue
		}
		if !sameTimeRef(existing.NewStart, override.NewStart) {
			continue
		}
		return existing.ID, true, nil
	}
	return uuid.Nil, false, nil
}

func sameSlotRef(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameTimeRef(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Hour() == b.Hour() && a.Minute() == b.Minute()
}

type memoryOutboxRepository struct {
	store *MemoryStore
}

func (r *memoryOutboxRepository) Insert(_ context.Context, event domain.SchedulerEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.events = append(r.store.events, event)
	return nil
}

type memoryRunLogRepository struct {
	store *MemoryStore
}

func (r *memoryRunLogRepository) MarkMaterialized(_ context.Context, date time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := domain.TruncateToDateLocal(date).Format(domain.DateLayout)
	if r.store.runs[key] {
		return false, nil
	}
	r.store.runs[key] = true
	return true, nil
}

func (r *memoryRunLogRepository) ClearMaterialized(_ context.Context, date time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.runs, domain.TruncateToDateLocal(date).Format(domain.DateLayout))
	return nil
}
