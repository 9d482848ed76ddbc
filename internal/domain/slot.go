package domain

import (
	"time"

	"github.com/google/uuid"
)

type RecurringSlot struct {
	ID           uuid.UUID
	Weekday      int
	StartTime    time.Time
	EndTime      time.Time
	SubjectID    string
	Program      string
	Department   string
	Semester     int
	AcademicYear string
}
