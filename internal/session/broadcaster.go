// ABOUTME: In-memory fan-out of manager state snapshots to observers
// ABOUTME: Non-blocking publish that evicts the oldest pending snapshot for slow subscribers

package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// stateBroadcaster delivers State snapshots to every subscriber. A
// subscriber that falls behind loses its oldest pending snapshots, so the
// last one it receives is always the latest published.
type stateBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan State
	closed      bool
	done        chan struct{}
	logger      *slog.Logger
}

func newStateBroadcaster(logger *slog.Logger) *stateBroadcaster {
	return &stateBroadcaster{
		subscribers: make(map[string]chan State),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// subscribe registers a subscriber that first receives initial. The
// subscription is removed when ctx is cancelled or the broadcaster closes.
func (b *stateBroadcaster) subscribe(ctx context.Context, initial State) <-chan State {
	subID := uuid.NewString()
	ch := make(chan State, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	ch <- initial
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		select {
		case <-ctx.Done():
			b.unsubscribe(subID)
		case <-b.done:
		}
	}()

	return ch
}

// publish sends s to every subscriber without blocking. A full buffer
// gives up its oldest snapshot to make room. The read lock is held across
// the sends so a channel cannot be closed mid-publish.
func (b *stateBroadcaster) publish(s State) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		if offer(ch, s) {
			b.logger.Debug("evicted stale snapshot for slow subscriber", "sub_id", id)
		}
	}
}

// offer puts s on ch, discarding the oldest buffered values until it fits.
func offer(ch chan State, s State) (evicted bool) {
	for {
		select {
		case ch <- s:
			return evicted
		default:
		}
		select {
		case <-ch:
			evicted = true
		default:
		}
	}
}

func (b *stateBroadcaster) unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// close closes every subscriber channel. Later subscriptions get a closed channel.
func (b *stateBroadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	b.closed = true
	close(b.done)
}
