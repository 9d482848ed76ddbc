// Package feed delivers ordered presence-bitmask changes on attendance
// documents to the aggregation consumer. The source must preserve
// per-document commit order; cross-document ordering is irrelevant because
// aggregate keys are independent.
package feed

import "context"

type Change struct {
	AttendanceID string
	OldBitmask   string
	NewBitmask   string
}

type AttendanceFeed interface {
	Next(ctx context.Context) (Change, error)
}
