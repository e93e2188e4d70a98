package signaling

import (
	"context"
	"errors"

	"github.com/1ureka/blinkchat/internal/util"
)

// ErrAlreadyConnected is returned by Connect on a Channel that was connected
// or closed before. Channels are single-use.
var ErrAlreadyConnected = errors.New("signaling channel already used")

// Connect dials the endpoint with the identity token attached. Status moves
// to connecting, then to open on success or error on failure. The read and
// write loops run until Close is called or the connection drops.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.started || c.isDone() {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.started = true
	c.mu.Unlock()

	c.setStatus(StatusConnecting)

	target, err := withToken(c.url, c.token)
	if err != nil {
		c.setStatus(StatusError)
		return err
	}

	conn, err := dial(ctx, target)
	if err != nil {
		c.setStatus(StatusError)
		return err
	}

	c.mu.Lock()
	if c.isDone() {
		// Closed while dialing.
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	util.LogDebug("WS connected: %s", c.url)
	c.setStatus(StatusOpen)

	go c.readPump(conn)
	go c.writePump(conn)

	return nil
}

func (c *Channel) isDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
