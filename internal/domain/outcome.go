package domain

import "time"

type FiringStatus int

const (
	FiringMaterialized FiringStatus = iota
	FiringDiscarded
	FiringRequeued
)

func (s FiringStatus) String() string {
	switch s {
	case FiringMaterialized:
		return "materialized"
	case FiringDiscarded:
		return "discarded"
	case FiringRequeued:
		return "requeued"
	default:
		return "unknown"
	}
}

// FiringOutcome is the result of handling one firing message. The consumer
// loop decides ack/requeue from the variant; handlers never signal discards
// through errors.
type FiringOutcome struct {
	Status FiringStatus
	Reason string
	Delay  time.Duration
}

func Materialized() FiringOutcome {
	return FiringOutcome{Status: FiringMaterialized}
}

func Discarded(reason string) FiringOutcome {
	return FiringOutcome{Status: FiringDiscarded, Reason: reason}
}

func Requeued(delay time.Duration) FiringOutcome {
	return FiringOutcome{Status: FiringRequeued, Delay: delay}
}
