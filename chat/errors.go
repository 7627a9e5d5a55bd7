package chat

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

var (
	// ErrNotConnected is returned when an operation needs a transport and none is open.
	ErrNotConnected = errors.New("chat: not connected")
	// ErrAlreadyConnected is returned by Connect when a transport is already open.
	ErrAlreadyConnected = errors.New("chat: already connected")
	// ErrStopped is returned by Reconnect when Stop was requested while retrying.
	ErrStopped = errors.New("chat: session stopped")
	// ErrAlreadyStreaming is returned by Start when another Start is already running.
	ErrAlreadyStreaming = errors.New("chat: session already streaming")
	// ErrInvalidSubscriber is returned by Register for nil or non-comparable handles.
	ErrInvalidSubscriber = errors.New("chat: subscriber must be a non-nil comparable handle")
)

// ConnectionError reports a failed attempt to open the transport or write the handshake.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("chat: connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsTransportError reports whether err means the connection is gone and the session must
// reconnect: EOF, a closed or reset socket, a broken pipe, or any network-level failure.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	var connErr *ConnectionError
	var opErr *net.OpError
	switch {
	case errors.As(err, &connErr),
		errors.Is(err, ErrNotConnected),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.As(err, &opErr):
		return true
	}
	return false
}
