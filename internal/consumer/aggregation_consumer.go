package consumer

import (
	"context"
	"log"
	"math"

	"github.com/cenkalti/backoff/v4"

	"github.com/2003deepak/MarkMe-sub000/internal/domain"
	"github.com/2003deepak/MarkMe-sub000/internal/feed"
	"github.com/2003deepak/MarkMe-sub000/internal/metrics"
)

type AttendanceSource interface {
	GetByID(ctx context.Context, id string) (domain.Attendance, bool, error)
}

type RosterSource interface {
	ListRoster(ctx context.Context, program, department string, semester int) ([]domain.Student, error)
}

type SummarySource interface {
	Get(ctx context.Context, studentID, subject string) (domain.StudentAttendanceSummary, bool, error)
	Save(ctx context.Context, summary domain.StudentAttendanceSummary) error
}

// AggregationConsumer turns presence-bitmask changes into running
// per-(student, subject) totals. Deltas are applied through membership of
// the attendance id in the summary's PresentIn/CountedIn lists, so a
// replayed event settles on the same totals.
type AggregationConsumer struct {
	feed       feed.AttendanceFeed
	attendance AttendanceSource
	students   RosterSource
	summaries  SummarySource
	logger     *log.Logger
}

func NewAggregationConsumer(
	attendanceFeed feed.AttendanceFeed,
	attendance AttendanceSource,
	students RosterSource,
	summaries SummarySource,
	logger *log.Logger,
) *AggregationConsumer {
	return &AggregationConsumer{
		feed:       attendanceFeed,
		attendance: attendance,
		students:   students,
		summaries:  summaries,
		logger:     logger,
	}
}

// Run consumes the feed until the context is cancelled. Transient failures
// on one event are retried a few times and then logged and dropped; the
// stream itself is never abandoned over a single event.
func (c *AggregationConsumer) Run(ctx context.Context) error {
	for {
		change, err := c.feed.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		apply := func() error { return c.Apply(ctx, change) }
		retry := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
		if err := backoff.Retry(apply, retry); err != nil {
			c.logger.Printf("aggregation for attendance %s failed, dropping event: %v", change.AttendanceID, err)
			metrics.AggregationEvents.WithLabelValues("failed").Inc()
		}
	}
}

// Apply processes one bitmask change. A non-nil error is transient and the
// event may be retried; data inconsistencies are logged and consume the
// event without error so they cannot wedge the stream.
func (c *AggregationConsumer) Apply(ctx context.Context, change feed.Change) error {
	if change.OldBitmask == change.NewBitmask {
		metrics.AggregationEvents.WithLabelValues("noop").Inc()
		return nil
	}

	att, found, err := c.attendance.GetByID(ctx, change.AttendanceID)
	if err != nil {
		return err
	}
	if !found {
		c.logger.Printf("attendance %s not found, skipping event", change.AttendanceID)
		metrics.AggregationEvents.WithLabelValues("skipped").Inc()
		return nil
	}
	if att.Subject == "" {
		c.logger.Printf("attendance %s has no subject context, skipping event", change.AttendanceID)
		metrics.AggregationEvents.WithLabelValues("skipped").Inc()
		return nil
	}

	roster, err := c.students.ListRoster(ctx, att.Program, att.Department, att.Semester)
	if err != nil {
		return err
	}

	newMask := change.NewBitmask
	oldMask := change.OldBitmask
	if len(roster) != len(newMask) || (oldMask != "" && len(oldMask) != len(newMask)) {
		// A roster/bitmask length mismatch means the session and the
		// enrollment no longer agree; applying deltas would corrupt the
		// aggregates.
		c.logger.Printf("attendance %s bitmask length %d does not match roster size %d, skipping event",
			change.AttendanceID, len(newMask), len(roster))
		metrics.AggregationEvents.WithLabelValues("mismatch").Inc()
		return nil
	}

	firstWrite := oldMask == "" && newMask != ""
	for i := 0; i < len(newMask); i++ {
		if !firstWrite && oldMask[i] == newMask[i] {
			continue
		}
		student := roster[i]
		present := newMask[i] == '1'
		if err := c.applyStudent(ctx, att, student.ID, present); err != nil {
			// One student's failure must not block the rest of the row.
			c.logger.Printf("aggregation for student %s on attendance %s failed: %v",
				student.ID, change.AttendanceID, err)
		}
	}

	metrics.AggregationEvents.WithLabelValues("applied").Inc()
	return nil
}

func (c *AggregationConsumer) applyStudent(ctx context.Context, att domain.Attendance, studentID string, present bool) error {
	summary, found, err := c.summaries.Get(ctx, studentID, att.Subject)
	if err != nil {
		return err
	}
	if !found {
		summary = domain.StudentAttendanceSummary{
			StudentID: studentID,
			Subject:   att.Subject,
		}
	}

	attID := att.ID.Hex()
	dirty := !found

	if !containsID(summary.CountedIn, attID) {
		summary.CountedIn = append(summary.CountedIn, attID)
		summary.TotalClasses++
		dirty = true
	}
	if present {
		if !containsID(summary.PresentIn, attID) {
			summary.PresentIn = append(summary.PresentIn, attID)
			summary.Attended++
			dirty = true
		}
	} else if containsID(summary.PresentIn, attID) {
		summary.PresentIn = removeID(summary.PresentIn, attID)
		summary.Attended--
		dirty = true
	}
	if !dirty {
		return nil
	}

	if summary.Attended < 0 {
		summary.Attended = 0
	}
	summary.Percentage = percentage(summary.Attended, summary.TotalClasses)
	return c.summaries.Save(ctx, summary)
}

func percentage(attended, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(attended)/float64(total)*100*100) / 100
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}
