package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedgerSetGetDelete(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	require.NoError(t, l.Set(ctx, "session_schedule:a:2026-03-02", "job-1", time.Hour))

	value, err := l.Get(ctx, "session_schedule:a:2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, "job-1", value)

	require.NoError(t, l.Delete(ctx, "session_schedule:a:2026-03-02"))
	_, err = l.Get(ctx, "session_schedule:a:2026-03-02")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryLedgerGetMissing(t *testing.T) {
	l := NewMemoryLedger()
	_, err := l.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryLedgerTTLExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.Local)
	l := NewMemoryLedger()
	l.SetClock(func() time.Time { return now })

	require.NoError(t, l.Set(ctx, "key", "job-1", 48*time.Hour))

	now = now.Add(47 * time.Hour)
	value, err := l.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "job-1", value)

	now = now.Add(2 * time.Hour)
	_, err = l.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryLedgerOverwrite(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	require.NoError(t, l.Set(ctx, "key", "job-1", time.Hour))
	require.NoError(t, l.Set(ctx, "key", "job-2", time.Hour))

	value, err := l.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "job-2", value)
}
