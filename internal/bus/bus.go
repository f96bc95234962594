// Package bus implements the room-wide broadcast fan-out: every published
// frame is delivered, in publish order, to every subscription that was alive
// at publish time. Each subscription carries a bounded buffer; a subscriber
// that falls behind is detached rather than allowed to stall the room.
package bus

import (
	"errors"
	"sync"
)

// DefaultCapacity is the per-subscriber buffer size used when the caller
// does not configure one.
const DefaultCapacity = 16

// ErrSlowSubscriber is reported by Subscription.Err after a subscription was
// dropped because its buffer overran.
var ErrSlowSubscriber = errors.New("bus: subscriber lagged beyond capacity")

// Bus fans published frames out to all live subscriptions. Publish holds the
// bus lock only for non-blocking channel sends, so a publisher never waits
// on a slow consumer.
type Bus struct {
	mu       sync.Mutex
	capacity int
	subs     map[*Subscription]struct{}
}

// New returns a bus whose subscriptions buffer up to capacity frames.
// A non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscription. Frames published after Subscribe
// returns are delivered until the subscription is cancelled or overruns.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		bus: b,
		ch:  make(chan string, b.capacity),
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Publish delivers frame to every live subscription and returns the number
// of subscribers reached. A subscription whose buffer is full is dropped:
// its channel is closed and its Err is set to ErrSlowSubscriber.
func (b *Bus) Publish(frame string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	reached := 0
	for sub := range b.subs {
		select {
		case sub.ch <- frame:
			reached++
		default:
			b.dropLocked(sub, ErrSlowSubscriber)
		}
	}
	return reached
}

// dropLocked detaches sub and closes its channel. Callers must hold b.mu;
// removal before close guarantees no publisher can send on a closed channel.
func (b *Bus) dropLocked(sub *Subscription, err error) {
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	sub.err = err
	close(sub.ch)
}

// Subscription is one receiver's view of the bus. Frames arrive on C in
// publish order; C is closed when the subscription is cancelled or dropped.
type Subscription struct {
	bus *Bus
	ch  chan string
	err error
}

// C returns the receive channel. After C is closed, Err explains why.
func (s *Subscription) C() <-chan string {
	return s.ch
}

// Err reports why the subscription ended: ErrSlowSubscriber after an
// overrun, nil after a plain Cancel or while still live.
func (s *Subscription) Err() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	return s.err
}

// Cancel detaches the subscription from the bus. Cancelling an already
// dropped or cancelled subscription is a no-op.
func (s *Subscription) Cancel() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.bus.dropLocked(s, nil)
}
