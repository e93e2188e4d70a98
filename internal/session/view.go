package session

import (
	"github.com/1ureka/blinkchat/internal/chat"
	"github.com/1ureka/blinkchat/internal/media"
	"github.com/1ureka/blinkchat/internal/signaling"
)

// View is what the front-end renders. It is a value snapshot; Messages is a
// copy owned by the caller.
type View struct {
	Phase        Phase
	Status       signaling.Status
	Session      *Session
	Messages     []chat.Entry
	LocalStream  *media.LocalStream
	RemoteStream *media.RemoteStream

	// Connected is true once media flows to and from the partner.
	Connected bool

	// Error is the last *negotiation.MediaAccessError or
	// *negotiation.NegotiationError of the session, if any.
	Error error
}

// publish rebuilds the view from the dispatcher's state and notifies
// watchers.
func (c *Coordinator) publish() {
	v := View{
		Phase:        c.state.Phase,
		Status:       signaling.StatusClosed,
		Messages:     c.chat.Entries(),
		LocalStream:  c.engine.LocalStream(),
		RemoteStream: c.engine.RemoteStream(),
		Connected:    c.engine.Connected(),
		Error:        c.engine.Err(),
	}
	if c.channel != nil {
		v.Status = c.channel.Status()
	}
	if s := c.state.Session; s != nil {
		cp := *s
		v.Session = &cp
	}

	c.mu.Lock()
	c.view = v
	c.mu.Unlock()

	select {
	case c.changes <- struct{}{}:
	default:
	}
}
