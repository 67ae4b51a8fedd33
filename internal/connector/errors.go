// internal/connector/errors.go
package connector

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Send when no connection is established
	ErrNotConnected = errors.New("connector not connected")

	// ErrTransportFailed wraps a transport that could not be brought up
	ErrTransportFailed = errors.New("transport failed")

	// ErrResponseTimeout is returned when no correlated reply arrived in time
	ErrResponseTimeout = errors.New("response timeout")

	// ErrPeerClosed means the remote side ended the connection
	ErrPeerClosed = errors.New("peer closed connection")

	// ErrConnectionClosed resolves requests still pending when a connection ends
	ErrConnectionClosed = errors.New("connection closed")

	// ErrSenderClosed is returned by TransportSender.Send after Close
	ErrSenderClosed = errors.New("transport sender closed")

	// ErrDuplicateID is returned when a correlation id is already pending
	ErrDuplicateID = errors.New("correlation id already pending")
)

// peerClosedError reports a remote close so that both ErrPeerClosed and
// ErrConnectionClosed match with errors.Is.
func peerClosedError(cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %w", ErrPeerClosed, ErrConnectionClosed)
	}
	return fmt.Errorf("%w: %w: %v", ErrPeerClosed, ErrConnectionClosed, cause)
}
