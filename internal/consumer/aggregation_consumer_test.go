package consumer

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/2003deepak/MarkMe-sub000/internal/domain"
	"github.com/2003deepak/MarkMe-sub000/internal/feed"
)

type fakeAttendanceSource struct {
	docs map[string]domain.Attendance
}

func (f *fakeAttendanceSource) GetByID(_ context.Context, id string) (domain.Attendance, bool, error) {
	att, ok := f.docs[id]
	return att, ok, nil
}

type fakeRoster struct {
	students []domain.Student
	err      error
}

func (f *fakeRoster) ListRoster(_ context.Context, _, _ string, _ int) ([]domain.Student, error) {
	return f.students, f.err
}

type fakeSummaries struct {
	byKey map[string]domain.StudentAttendanceSummary
	saves int
}

func (f *fakeSummaries) Get(_ context.Context, studentID, subject string) (domain.StudentAttendanceSummary, bool, error) {
	summary, ok := f.byKey[studentID+"|"+subject]
	return summary, ok, nil
}

func (f *fakeSummaries) Save(_ context.Context, summary domain.StudentAttendanceSummary) error {
	f.byKey[summary.StudentID+"|"+summary.Subject] = summary
	f.saves++
	return nil
}

type aggFixture struct {
	attendance *fakeAttendanceSource
	roster     *fakeRoster
	summaries  *fakeSummaries
	consumer   *AggregationConsumer
	att        domain.Attendance
}

const aggSubject = "64a7f0c2e1b2c3d4e5f60718"

func newAggFixture(t *testing.T, rosterSize int) *aggFixture {
	t.Helper()
	att := domain.Attendance{
		ID:         primitive.NewObjectID(),
		SessionID:  "session-1",
		Date:       "2026-03-02",
		Subject:    aggSubject,
		Program:    "BTech",
		Department: "CSE",
		Semester:   4,
	}

	students := make([]domain.Student, 0, rosterSize)
	for i := 0; i < rosterSize; i++ {
		students = append(students, domain.Student{
			ID:         "student-" + string(rune('a'+i)),
			RollNumber: i + 1,
		})
	}

	f := &aggFixture{
		attendance: &fakeAttendanceSource{docs: map[string]domain.Attendance{att.ID.Hex(): att}},
		roster:     &fakeRoster{students: students},
		summaries:  &fakeSummaries{byKey: make(map[string]domain.StudentAttendanceSummary)},
		att:        att,
	}
	f.consumer = NewAggregationConsumer(
		feed.NewMemoryFeed(1),
		f.attendance,
		f.roster,
		f.summaries,
		log.New(io.Discard, "", 0),
	)
	return f
}

func (f *aggFixture) apply(t *testing.T, old, new string) {
	t.Helper()
	require.NoError(t, f.consumer.Apply(context.Background(), feed.Change{
		AttendanceID: f.att.ID.Hex(),
		OldBitmask:   old,
		NewBitmask:   new,
	}))
}

func (f *aggFixture) summary(t *testing.T, studentID string) domain.StudentAttendanceSummary {
	t.Helper()
	summary, ok := f.summaries.byKey[studentID+"|"+aggSubject]
	require.True(t, ok, "no summary for %s", studentID)
	return summary
}

func TestApplyFirstWriteCountsWholeRoster(t *testing.T) {
	f := newAggFixture(t, 3)
	f.apply(t, "", "101")

	a := f.summary(t, "student-a")
	assert.Equal(t, 1, a.TotalClasses)
	assert.Equal(t, 1, a.Attended)
	assert.Equal(t, 100.0, a.Percentage)

	b := f.summary(t, "student-b")
	assert.Equal(t, 1, b.TotalClasses)
	assert.Equal(t, 0, b.Attended)
	assert.Equal(t, 0.0, b.Percentage)

	c := f.summary(t, "student-c")
	assert.Equal(t, 1, c.TotalClasses)
	assert.Equal(t, 1, c.Attended)
}

func TestApplyCorrectionSequence(t *testing.T) {
	f := newAggFixture(t, 3)
	f.apply(t, "", "101")
	f.apply(t, "101", "111")
	f.apply(t, "111", "100")

	a := f.summary(t, "student-a")
	assert.Equal(t, 1, a.TotalClasses)
	assert.Equal(t, 1, a.Attended)
	assert.Equal(t, 100.0, a.Percentage)

	b := f.summary(t, "student-b")
	assert.Equal(t, 1, b.TotalClasses)
	assert.Equal(t, 0, b.Attended)
	assert.Equal(t, 0.0, b.Percentage)

	c := f.summary(t, "student-c")
	assert.Equal(t, 1, c.TotalClasses)
	assert.Equal(t, 0, c.Attended)
}

func TestApplyReplayIsIdempotent(t *testing.T) {
	f := newAggFixture(t, 3)
	f.apply(t, "", "101")
	f.apply(t, "101", "111")
	savesBefore := f.summaries.saves

	// At-least-once feed delivery replays the last event.
	f.apply(t, "101", "111")

	b := f.summary(t, "student-b")
	assert.Equal(t, 1, b.TotalClasses)
	assert.Equal(t, 1, b.Attended)
	assert.Equal(t, savesBefore, f.summaries.saves)
}

func TestApplyAccumulatesAcrossSessions(t *testing.T) {
	f := newAggFixture(t, 2)
	f.apply(t, "", "10")

	second := f.att
	second.ID = primitive.NewObjectID()
	second.SessionID = "session-2"
	second.Date = "2026-03-09"
	f.attendance.docs[second.ID.Hex()] = second
	require.NoError(t, f.consumer.Apply(context.Background(), feed.Change{
		AttendanceID: second.ID.Hex(),
		OldBitmask:   "",
		NewBitmask:   "11",
	}))

	a := f.summary(t, "student-a")
	assert.Equal(t, 2, a.TotalClasses)
	assert.Equal(t, 2, a.Attended)
	assert.Equal(t, 100.0, a.Percentage)

	b := f.summary(t, "student-b")
	assert.Equal(t, 2, b.TotalClasses)
	assert.Equal(t, 1, b.Attended)
	assert.Equal(t, 50.0, b.Percentage)
}

func TestApplyNoopChangeSkipped(t *testing.T) {
	f := newAggFixture(t, 3)
	f.apply(t, "101", "101")
	assert.Empty(t, f.summaries.byKey)
}

func TestApplyUnknownAttendanceSkipped(t *testing.T) {
	f := newAggFixture(t, 3)
	require.NoError(t, f.consumer.Apply(context.Background(), feed.Change{
		AttendanceID: primitive.NewObjectID().Hex(),
		OldBitmask:   "",
		NewBitmask:   "101",
	}))
	assert.Empty(t, f.summaries.byKey)
}

func TestApplyMissingSubjectSkipped(t *testing.T) {
	f := newAggFixture(t, 3)
	att := f.att
	att.Subject = ""
	f.attendance.docs[att.ID.Hex()] = att

	f.apply(t, "", "101")
	assert.Empty(t, f.summaries.byKey)
}

func TestApplyRosterLengthMismatchSkipped(t *testing.T) {
	f := newAggFixture(t, 3)
	f.apply(t, "", "10101")
	assert.Empty(t, f.summaries.byKey)
}

func TestApplyBitmaskLengthChangeSkipped(t *testing.T) {
	f := newAggFixture(t, 3)
	f.apply(t, "10", "101")
	assert.Empty(t, f.summaries.byKey)
}

func TestApplyTransientRosterErrorPropagates(t *testing.T) {
	f := newAggFixture(t, 3)
	f.roster.err = assert.AnError
	err := f.consumer.Apply(context.Background(), feed.Change{
		AttendanceID: f.att.ID.Hex(),
		OldBitmask:   "",
		NewBitmask:   "101",
	})
	assert.Error(t, err)
}

func TestApplyPercentageRounding(t *testing.T) {
	f := newAggFixture(t, 1)
	f.apply(t, "", "1")

	for i := 0; i < 2; i++ {
		next := f.att
		next.ID = primitive.NewObjectID()
		next.SessionID = "session-extra-" + string(rune('0'+i))
		f.attendance.docs[next.ID.Hex()] = next
		require.NoError(t, f.consumer.Apply(context.Background(), feed.Change{
			AttendanceID: next.ID.Hex(),
			OldBitmask:   "",
			NewBitmask:   "0",
		}))
	}

	a := f.summary(t, "student-a")
	assert.Equal(t, 3, a.TotalClasses)
	assert.Equal(t, 1, a.Attended)
	assert.Equal(t, 33.33, a.Percentage)
}
