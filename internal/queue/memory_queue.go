package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/2003deepak/MarkMe-sub000/internal/domain"
)

// ScheduledJob is a queued message together with its visibility metadata,
// exposed so tests can assert on computed delays and priorities.
type ScheduledJob struct {
	Job      domain.SessionJob
	ReadyAt  time.Time
	Priority int
}

// MemoryQueue is an in-process DelayQueue used by tests and local
// development. Due messages are delivered in (ready-at, priority desc,
// enqueue order) order.
type MemoryQueue struct {
	mu    sync.Mutex
	items []memoryItem
	seq   int
	clock func() time.Time
}

type memoryItem struct {
	ScheduledJob
	seq int
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{clock: time.Now}
}

func (q *MemoryQueue) SetClock(clock func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clock = clock
}

func (q *MemoryQueue) Enqueue(_ context.Context, job domain.SessionJob, delay time.Duration, priority int) error {
	if delay < 0 {
		delay = 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	q.items = append(q.items, memoryItem{
		ScheduledJob: ScheduledJob{
			Job:      job,
			ReadyAt:  q.clock().Add(delay),
			Priority: priority,
		},
		seq: q.seq,
	})
	return nil
}

func (q *MemoryQueue) Receive(ctx context.Context) (domain.SessionJob, error) {
	for {
		if job, ok := q.popDue(); ok {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return domain.SessionJob{}, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (q *MemoryQueue) popDue() (domain.SessionJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.clock()
	best := -1
	for i, item := range q.items {
		if item.ReadyAt.After(now) {
			continue
		}
		if best == -1 || dueBefore(q.items[i], q.items[best]) {
			best = i
		}
	}
	if best == -1 {
		return domain.SessionJob{}, false
	}
	job := q.items[best].Job
	q.items = append(q.items[:best], q.items[best+1:]...)
	return job, true
}

func dueBefore(a, b memoryItem) bool {
	if !a.ReadyAt.Equal(b.ReadyAt) {
		return a.ReadyAt.Before(b.ReadyAt)
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.seq < b.seq
}

// Pending returns the not-yet-received messages ordered by ready time,
// for assertions in tests.
func (q *MemoryQueue) Pending() []ScheduledJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending := make([]ScheduledJob, 0, len(q.items))
	for _, item := range q.items {
		pending = append(pending, item.ScheduledJob)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].ReadyAt.Before(pending[j].ReadyAt)
	})
	return pending
}

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
