package signaling

import (
	"errors"

	"github.com/gorilla/websocket"

	"github.com/1ureka/blinkchat/internal/protocol"
	"github.com/1ureka/blinkchat/internal/util"
)

// readPump decodes frames until the connection fails. Undecodable frames
// are dropped without touching the status. When the connection drops on its
// own, the final status (closed or error) is emitted before shutdown.
func (c *Channel) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.isDone() {
				return
			}
			final := StatusError
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				final = StatusClosed
			}
			util.LogDebug("WS read ended: %v", err)
			c.setStatus(final)
			c.shutdown()
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownType) {
				util.LogTrace("WS frame ignored: %v", err)
			} else {
				util.LogDebug("WS frame discarded: %v", err)
			}
			continue
		}

		if msg.Type() == protocol.TypeSignal {
			util.Stats.AddSignalRecv()
		}
		c.emit(Event{Status: StatusOpen, Message: msg})
	}
}
