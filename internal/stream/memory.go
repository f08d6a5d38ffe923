package stream

import (
	"context"
	"sync"
)

// MemoryChannel is an in-memory Channel used by tests and by the stub
// server's clients. Events pushed with Push are delivered in order.
type MemoryChannel struct {
	events chan StatusEvent

	mu     sync.Mutex
	err    error
	closed bool
}

// NewMemoryChannel returns a channel with the given buffer size.
func NewMemoryChannel(buffer int) *MemoryChannel {
	return &MemoryChannel{events: make(chan StatusEvent, buffer)}
}

// NewMemoryFactory returns a Factory that hands out the given channel
// regardless of query id.
func NewMemoryFactory(ch *MemoryChannel) Factory {
	return func(ctx context.Context, queryID string) (Channel, error) {
		return ch, nil
	}
}

// Push delivers one event to the listener. Returns false if the
// channel is closed.
func (c *MemoryChannel) Push(ev StatusEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.events <- ev
	return true
}

// Fail records a transport error and closes the event stream.
func (c *MemoryChannel) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.err = err
	c.closed = true
	close(c.events)
}

func (c *MemoryChannel) Events() <-chan StatusEvent { return c.events }

func (c *MemoryChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *MemoryChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}
