package domain

import (
	"time"

	"github.com/google/uuid"
)

type OverrideAction string

const (
	ActionCancel     OverrideAction = "cancel"
	ActionReschedule OverrideAction = "reschedule"
	ActionAdd        OverrideAction = "add"
)

// Override is a date-specific exception against one occurrence of a
// recurring slot. SlotID is nil for "add" overrides, which create a
// non-recurring extra session. Overrides are immutable after creation;
// corrections are new overrides.
type Override struct {
	ID           uuid.UUID
	SlotID       *uuid.UUID
	Date         time.Time
	Action       OverrideAction
	NewStart     *time.Time
	NewEnd       *time.Time
	SubjectID    string
	Program      string
	Department   string
	Semester     int
	AcademicYear string
	CreatedBy    uuid.UUID
	CreatedAt    time.Time
}

// SessionID returns the ledger/session identifier this override targets:
// the slot id for cancel/reschedule, or a surrogate derived from the
// override id for add.
func (o Override) SessionID() string {
	if o.SlotID != nil {
		return o.SlotID.String()
	}
	return o.ID.String()
}
