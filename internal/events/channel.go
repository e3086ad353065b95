package events

import (
	"log"
	"sync"
)

// DefaultBuffer is the per-subscriber backlog before values are dropped
const DefaultBuffer = 64

// Channel is an in-process multicast point. Values go to the subscribers
// present at publish time; late subscribers miss earlier values.
type Channel[T any] struct {
	name   string
	buffer int

	mu   sync.RWMutex
	next uint64
	subs map[uint64]chan T
}

// NewChannel creates a channel whose subscribers each buffer up to buffer values
func NewChannel[T any](name string, buffer int) *Channel[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Channel[T]{name: name, buffer: buffer, subs: make(map[uint64]chan T)}
}

// Subscription receives values from one Channel until Unsubscribe
type Subscription[T any] struct {
	C <-chan T

	once   sync.Once
	cancel func()
}

// Unsubscribe detaches the subscription and closes C. Safe to call repeatedly.
func (s *Subscription[T]) Unsubscribe() {
	s.once.Do(s.cancel)
}

// Subscribe attaches a new subscriber
func (c *Channel[T]) Subscribe() *Subscription[T] {
	ch := make(chan T, c.buffer)

	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = ch
	c.mu.Unlock()

	return &Subscription[T]{
		C: ch,
		cancel: func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		},
	}
}

// Publish delivers v to every current subscriber and returns how many got it.
// A subscriber whose backlog is full misses v.
func (c *Channel[T]) Publish(v T) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	delivered := 0
	for id, ch := range c.subs {
		select {
		case ch <- v:
			delivered++
		default:
			log.Printf("⚠ [EVENTS] %s: subscriber %d is full, value dropped", c.name, id)
		}
	}
	return delivered
}

// Subscribers is the current subscriber count
func (c *Channel[T]) Subscribers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}
