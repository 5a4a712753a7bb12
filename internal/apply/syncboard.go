package apply

import "github.com/vitaliisemenov/chainboot/internal/plan"

// syncBoard holds one closeable channel per checkpoint id appearing in
// the cache-action list; the execute thread's WaitForCacheThread blocks
// on the channel for its checkpoint until the cache thread reaches the
// matching Syncpoint action (or the run is aborted).
type syncBoard struct {
	events map[int]chan struct{}
}

func newSyncBoard(cacheActions []plan.CacheEntry) *syncBoard {
	b := &syncBoard{events: make(map[int]chan struct{})}
	for _, e := range cacheActions {
		if _, ok := b.events[e.CheckpointID]; !ok {
			b.events[e.CheckpointID] = make(chan struct{})
		}
	}
	return b
}

func (b *syncBoard) signal(checkpointID int) {
	if ch, ok := b.events[checkpointID]; ok {
		select {
		case <-ch:
			// already closed
		default:
			close(ch)
		}
	}
}

func (b *syncBoard) wait(checkpointID int) <-chan struct{} {
	if ch, ok := b.events[checkpointID]; ok {
		return ch
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// abort signals every remaining event so the execute thread, if it is
// waiting on a checkpoint the cache thread never reached, does not block
// forever after a cache-side failure.
func (b *syncBoard) abort() {
	for id := range b.events {
		b.signal(id)
	}
}
