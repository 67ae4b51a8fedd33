// internal/connector/transport.go
package connector

import "context"

// TransportSender is the outbound half of a live connection. It is safe for
// concurrent use; only the first Close takes effect and Send after Close
// fails with ErrSenderClosed.
type TransportSender interface {
	Send(payload []byte) error
	Close() error
}

// RemoteMessage is what a transport pushes onto the bridging channel
type RemoteMessage interface {
	isRemoteMessage()
}

// SenderHandle is pushed exactly once, before any Text
type SenderHandle struct {
	Sender TransportSender
}

// Text is one inbound frame
type Text struct {
	Data []byte
}

// Closed is pushed when the peer ends the connection
type Closed struct {
	Err error
}

func (SenderHandle) isRemoteMessage() {}
func (Text) isRemoteMessage()         {}
func (Closed) isRemoteMessage()       {}

// Transport owns a blocking connection. Run dials, pushes one SenderHandle
// and then every inbound frame onto out until ctx is cancelled or the peer
// goes away. An error returned before the SenderHandle means the
// connection never came up. Run must not close out.
type Transport interface {
	Run(ctx context.Context, out chan<- RemoteMessage) error
}
