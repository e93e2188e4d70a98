// Package signaling maintains the persistent WebSocket to the matchmaking
// backend. It decodes inbound frames into protocol messages, delivers
// outbound messages while the connection is open, and reports connection
// status. A Channel never reconnects on its own: the owner discards it and
// creates a fresh one.
package signaling

import (
	"sync"

	"github.com/google/uuid"

	"github.com/1ureka/blinkchat/internal/protocol"
)

// Status is the connection status of a Channel.
type Status int

const (
	StatusConnecting Status = iota
	StatusOpen
	StatusClosed
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is emitted by a Channel on every status change (Message == nil) and
// for every decoded inbound message. ChannelID identifies the emitting
// instance so events from a discarded channel can be told apart.
type Event struct {
	ChannelID string
	Status    Status
	Message   protocol.Inbound
}

// eventBuffer bounds how many undelivered events a Channel holds before its
// read loop blocks.
const eventBuffer = 64

// Channel is one WebSocket connection to the matchmaking backend.
type Channel struct {
	id    string
	url   string
	token string

	events   chan Event
	outgoing chan []byte
	done     chan struct{}

	closeOnce sync.Once

	mu      sync.RWMutex
	status  Status
	started bool
}

// New creates an unconnected Channel for the given endpoint. token, when
// non-empty, is sent as the "token" query parameter.
func New(url, token string) *Channel {
	return &Channel{
		id:       uuid.NewString(),
		url:      url,
		token:    token,
		events:   make(chan Event, eventBuffer),
		outgoing: make(chan []byte, eventBuffer),
		done:     make(chan struct{}),
		status:   StatusClosed,
	}
}

// ID returns the unique instance id attached to every emitted event.
func (c *Channel) ID() string { return c.id }

// Events returns the channel on which status changes and inbound messages
// are delivered in order. It is never closed; select on Done as well.
func (c *Channel) Events() <-chan Event { return c.events }

// Done is closed once the Channel has shut down, either through Close or
// after the connection dropped and its final status event was delivered.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Status returns the current connection status.
func (c *Channel) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Channel) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
	c.emit(Event{Status: s})
}

// emit delivers ev unless the Channel has already been shut down.
func (c *Channel) emit(ev Event) {
	ev.ChannelID = c.id
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Close terminates the connection and stops the keepalive. Messages Send
// already accepted are still written before the close frame. It is safe to
// call more than once and before Connect.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.status != StatusError {
		c.status = StatusClosed
	}
	c.mu.Unlock()
	c.shutdown()
}

// shutdown marks the Channel done. writePump then flushes and closes the
// socket.
func (c *Channel) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}
