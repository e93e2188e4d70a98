package signaling

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/blinkchat/internal/protocol"
	"github.com/1ureka/blinkchat/internal/util"
)

// Send queues msg for delivery. It reports false, and drops msg, when the
// Channel is not open or msg cannot be encoded.
func (c *Channel) Send(msg protocol.Outbound) bool {
	if c.Status() != StatusOpen {
		util.LogDebug("WS not open, dropped %s", msg.Type)
		return false
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		util.LogWarning("WS dropped %s: %v", msg.Type, err)
		return false
	}

	select {
	case c.outgoing <- data:
		if msg.Type == protocol.TypeSignal {
			util.Stats.AddSignalSent()
		}
		return true
	case <-c.done:
		return false
	}
}

// writePump serializes writes to conn and pings the server every
// pingPeriod. It owns the socket's shutdown: once the Channel is done it
// flushes what Send already accepted, writes the close frame and closes
// conn. A write failure closes the connection, which ends readPump.
func (c *Channel) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.outgoing:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				util.LogDebug("WS write failed: %v", err)
				conn.Close()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}

		case <-c.done:
			c.flush(conn)
			return
		}
	}
}

// flush writes the frames still queued, then closes conn with a normal
// close frame. All writes share one writeWait deadline.
func (c *Channel) flush(conn *websocket.Conn) {
	defer conn.Close()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	for {
		select {
		case data := <-c.outgoing:
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				util.LogDebug("WS flush failed: %v", err)
				return
			}
		default:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
