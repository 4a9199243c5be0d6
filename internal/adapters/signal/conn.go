package signal

import (
	"sync"

	"github.com/dkeye/rendezvous/internal/core"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WsConn is a core.Channel over one websocket. Frames are written by the
// write pump only; TrySend and Close just hand work to it.
type WsConn struct {
	id   string
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
	reason core.CloseReason
	done   chan struct{}
}

func NewWsConn(conn *websocket.Conn, buffer int) *WsConn {
	return &WsConn{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan core.Frame, buffer),
		done: make(chan struct{}),
	}
}

func (c *WsConn) ID() string { return c.id }

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrChannelClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Close marks the connection closed and asks the write pump to send a close
// frame carrying reason. Only the first call counts.
func (c *WsConn) Close(reason core.CloseReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.reason = reason
	close(c.done)
}

func (c *WsConn) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *WsConn) closeReason() core.CloseReason {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reason
}
