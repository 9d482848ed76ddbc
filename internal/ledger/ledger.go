// Package ledger provides the job ledger: a TTL'd key-value store mapping
// each (session, date) key to the job identifier currently allowed to act.
// The ledger is the system's cancellation primitive; components treat it as
// compare-and-delete rather than holding locks.
package ledger

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("ledger: key not found")

type Ledger interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}
