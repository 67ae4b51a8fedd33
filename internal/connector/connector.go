// internal/connector/connector.go
package connector

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"haptic-bridge/internal/utils"
	"haptic-bridge/pkg/message"
)

const (
	// DefaultRequestTimeout bounds how long Send waits for a reply
	DefaultRequestTimeout = 30 * time.Second

	// DefaultInboundBuffer is the bridging channel capacity
	DefaultInboundBuffer = 256

	closeWait = 5 * time.Second
)

// Options tunes a Connector
type Options struct {
	// RequestTimeout of zero selects DefaultRequestTimeout; negative disables it
	RequestTimeout time.Duration
	InboundBuffer  int

	// OnEvent receives units without a correlation id, on the receiver goroutine
	OnEvent func(message.Message)
}

// connection is the state of one live transport
type connection struct {
	sender TransportSender
	sorter *Sorter
	cancel context.CancelFunc
	done   chan struct{}
}

// Connector turns a blocking Transport into a request/response channel
// with out-of-band event delivery.
type Connector struct {
	transport Transport
	opts      Options
	logger    *utils.ConnectionLogger
	nextID    atomic.Uint32

	// lifecycle serializes Connect and Disconnect
	lifecycle sync.Mutex

	mu   sync.Mutex
	conn *connection
}

// New creates a disconnected Connector
func New(transport Transport, opts Options, address string, logger *zap.Logger) *Connector {
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.InboundBuffer <= 0 {
		opts.InboundBuffer = DefaultInboundBuffer
	}

	return &Connector{
		transport: transport,
		opts:      opts,
		logger:    utils.NewConnectionLogger(logger, address),
	}
}

// IsConnected reports whether a connection is live
func (c *Connector) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Done returns a channel closed once the current connection is gone, by
// Disconnect or by the peer. It is already closed when not connected.
func (c *Connector) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return c.conn.done
}

// Connect starts the transport on its own OS thread and returns once the
// sender is available and inbound frames are being drained.
func (c *Connector) Connect(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.IsConnected() {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	inbound := make(chan RemoteMessage, c.opts.InboundBuffer)
	runErr := make(chan error, 1)

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		runErr <- c.transport.Run(runCtx, inbound)
		close(inbound)
	}()

	var sender TransportSender
	for sender == nil {
		select {
		case msg, ok := <-inbound:
			if !ok {
				cancel()
				err := <-runErr
				if err == nil {
					err = errors.New("transport ended before handing over a sender")
				}
				c.logger.LogConnection("connect", false, err)
				return fmt.Errorf("%w: %w", ErrTransportFailed, err)
			}
			if h, ok := msg.(SenderHandle); ok {
				sender = h.Sender
			} else {
				c.logger.Warn("Message before sender handle dropped")
			}
		case <-ctx.Done():
			cancel()
			go discard(inbound)
			c.logger.LogConnection("connect", false, ctx.Err())
			return ctx.Err()
		}
	}

	conn := &connection{
		sender: sender,
		sorter: NewSorter(c.opts.OnEvent, c.logger.Logger),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.receive(conn, inbound, runErr)

	c.logger.LogConnection("connect", true, nil)
	return nil
}

// Disconnect fails every pending request with ErrConnectionClosed, stops the
// transport, closes the sender and waits for the receiver before returning.
func (c *Connector) Disconnect() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	conn.sorter.Close(ErrConnectionClosed)
	conn.cancel()
	err := conn.sender.Close()

	select {
	case <-conn.done:
	case <-time.After(closeWait):
		c.logger.Warn("Transport did not stop in time")
	}

	if errors.Is(err, ErrSenderClosed) {
		err = nil
	}
	c.logger.LogConnection("disconnect", err == nil, err)
	return err
}

// Send delivers msg and waits for the reply carrying the same id. A zero
// id is replaced with a fresh one.
func (c *Connector) Send(ctx context.Context, msg message.Message) (message.Message, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return message.Message{}, ErrNotConnected
	}

	if msg.ID == message.SystemID {
		msg.ID = c.newID()
	}

	replies, err := conn.sorter.Register(msg.ID)
	if err != nil {
		return message.Message{}, err
	}

	frame, err := message.EncodeFrame(msg)
	if err != nil {
		conn.sorter.Forget(msg.ID)
		return message.Message{}, err
	}

	if err := conn.sender.Send(frame); err != nil {
		conn.sorter.Forget(msg.ID)
		if errors.Is(err, ErrSenderClosed) {
			return message.Message{}, fmt.Errorf("%w: %w", ErrConnectionClosed, err)
		}
		return message.Message{}, fmt.Errorf("send message %d: %w", msg.ID, err)
	}

	var timeout <-chan time.Time
	if c.opts.RequestTimeout > 0 {
		timer := time.NewTimer(c.opts.RequestTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-replies:
		return res.Message, res.Err
	case <-ctx.Done():
		conn.sorter.Forget(msg.ID)
		return message.Message{}, ctx.Err()
	case <-timeout:
		conn.sorter.Forget(msg.ID)
		return message.Message{}, fmt.Errorf("%w: message %d", ErrResponseTimeout, msg.ID)
	}
}

func (c *Connector) newID() uint32 {
	for {
		if id := c.nextID.Add(1); id != message.SystemID {
			return id
		}
	}
}

// receive drains the bridging channel until the transport is gone
func (c *Connector) receive(conn *connection, inbound <-chan RemoteMessage, runErr <-chan error) {
	defer close(conn.done)

	for msg := range inbound {
		switch m := msg.(type) {
		case Text:
			if err := conn.sorter.Route(m.Data); err != nil {
				c.logger.Warn("Malformed frame dropped", zap.Error(err))
			}
		case Closed:
			conn.sorter.Close(peerClosedError(m.Err))
		case SenderHandle:
			c.logger.Warn("Extra sender handle closed")
			m.Sender.Close()
		}
	}

	conn.sorter.Close(ErrConnectionClosed)
	conn.sender.Close()

	c.mu.Lock()
	remote := c.conn == conn
	if remote {
		c.conn = nil
	}
	c.mu.Unlock()

	if err := <-runErr; err != nil || remote {
		c.logger.LogConnection("closed", err == nil, err)
	}
}

// discard drains an abandoned bridging channel, closing any sender that still shows up
func discard(inbound <-chan RemoteMessage) {
	for msg := range inbound {
		if h, ok := msg.(SenderHandle); ok {
			h.Sender.Close()
		}
	}
}
