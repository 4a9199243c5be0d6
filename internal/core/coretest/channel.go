// Package coretest provides an in-memory core.Channel for tests.
package coretest

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/rendezvous/internal/core"
	"github.com/dkeye/rendezvous/internal/domain"
)

type Channel struct {
	id  string
	cap int

	mu     sync.Mutex
	frames []core.Frame
	closed bool
	reason core.CloseReason
}

// NewChannel returns an open channel. A positive capacity makes TrySend fail
// with core.ErrBackpressure once that many frames are buffered.
func NewChannel(id string, capacity int) *Channel {
	return &Channel{id: id, cap: capacity}
}

func (c *Channel) ID() string { return c.id }

func (c *Channel) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrChannelClosed
	}
	if c.cap > 0 && len(c.frames) >= c.cap {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, append(core.Frame(nil), f...))
	return nil
}

func (c *Channel) Close(reason core.CloseReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.reason = reason
}

func (c *Channel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) Reason() core.CloseReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Envelopes decodes every frame received so far.
func (c *Channel) Envelopes() []domain.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var e domain.Envelope
		if err := json.Unmarshal(f, &e); err != nil {
			panic(err)
		}
		out = append(out, e)
	}
	return out
}

func (c *Channel) Frames() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Frame(nil), c.frames...)
}
