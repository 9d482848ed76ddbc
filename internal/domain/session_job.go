package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SessionJob is the delayed-queue payload produced by the materializer and
// the exception service and consumed by the firing consumer.
type SessionJob struct {
	SessionID      string `json:"session_id"`
	Date           string `json:"date"`
	Day            string `json:"day"`
	StartTimestamp int64  `json:"start_time_timestamp"`
	Subject        string `json:"subject"`
	Program        string `json:"program"`
	Department     string `json:"department"`
	Semester       int    `json:"semester"`
	AcademicYear   string `json:"academic_year"`
	JobID          string `json:"job_id"`
	ExceptionID    string `json:"exception_id,omitempty"`
	IsException    bool   `json:"is_exception"`
}

const DateLayout = "2006-01-02"

// Validate reports the required fields a firing message cannot act without.
// Malformed messages are never retried, so the error lists everything
// missing at once.
func (j SessionJob) Validate() error {
	var missing []string
	if j.SessionID == "" {
		missing = append(missing, "session_id")
	}
	if j.Date == "" {
		missing = append(missing, "date")
	} else if _, err := time.ParseInLocation(DateLayout, j.Date, time.Local); err != nil {
		return fmt.Errorf("invalid date %q", j.Date)
	}
	if j.StartTimestamp <= 0 {
		missing = append(missing, "start_time_timestamp")
	}
	if j.JobID == "" {
		missing = append(missing, "job_id")
	}
	if len(missing) > 0 {
		return errors.New("missing fields: " + strings.Join(missing, ", "))
	}
	return nil
}

func (j SessionJob) StartAt() time.Time {
	return time.UnixMilli(j.StartTimestamp)
}

func (j SessionJob) DateValue() time.Time {
	parsed, _ := time.ParseInLocation(DateLayout, j.Date, time.Local)
	return parsed
}

func (j SessionJob) LedgerKey() string {
	return LedgerKey(j.SessionID, j.Date)
}

// LedgerKey is the job-ledger key for one (session, date) pair. At most one
// enqueued message is authoritative per key at any time.
func LedgerKey(sessionID, date string) string {
	return "session_schedule:" + sessionID + ":" + date
}
