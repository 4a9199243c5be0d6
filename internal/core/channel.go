package core

import (
	"errors"
	"time"
)

// Frame is one self-contained text record on the wire.
type Frame []byte

var (
	ErrBackpressure  = errors.New("backpressure")
	ErrChannelClosed = errors.New("channel closed")
	ErrUnknownTarget = errors.New("target not bound")
)

// CloseReason is the application close code and text sent to a peer.
type CloseReason struct {
	Code int
	Text string
}

var (
	CloseNormal       = CloseReason{Code: 1000, Text: "bye"}
	CloseAuthFailed   = CloseReason{Code: 4001, Text: "authentication failed"}
	CloseBackpressure = CloseReason{Code: 4002, Text: "backpressure"}
	CloseShutdown     = CloseReason{Code: 1001, Text: "server shutting down"}
)

// Channel abstracts one client's bidirectional messaging transport.
// Owned by the adapter; TrySend must never block.
type Channel interface {
	ID() string
	TrySend(Frame) error
	Close(CloseReason)
	IsClosed() bool
}

// Clock returns the current time. Tests replace it.
type Clock func() time.Time
