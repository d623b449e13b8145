package connection

import "errors"

var (
	ErrNotConnected     = errors.New("channel is not connected")
	ErrAlreadyStarted   = errors.New("connection manager already started")
	ErrNotStarted       = errors.New("connection manager not started")
	ErrRetriesExhausted = errors.New("reconnect retries exhausted")
	ErrWriteQueueFull   = errors.New("write queue is full")
)
