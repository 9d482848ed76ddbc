package feed

import "context"

// MemoryFeed is a channel-backed AttendanceFeed for tests.
type MemoryFeed struct {
	changes chan Change
}

func NewMemoryFeed(buffer int) *MemoryFeed {
	return &MemoryFeed{changes: make(chan Change, buffer)}
}

func (f *MemoryFeed) Emit(change Change) {
	f.changes <- change
}

func (f *MemoryFeed) Next(ctx context.Context) (Change, error) {
	select {
	case <-ctx.Done():
		return Change{}, ctx.Err()
	case change := <-f.changes:
		return change, nil
	}
}
