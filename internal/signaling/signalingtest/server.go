// Package signalingtest provides an in-process matchmaking backend for
// exercising signaling clients. Tests script server frames and read back
// what the client sent.
package signalingtest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1ureka/blinkchat/internal/protocol"
)

// Path is the endpoint the stub serves, matching the real backend.
const Path = "/ws/chat/"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server accepts any number of clients. When Token is set, connections
// carrying a different token are rejected with 401.
type Server struct {
	Token string

	http   *httptest.Server
	connCh chan *Conn
}

// NewServer starts a stub backend on a loopback port.
func NewServer(token string) *Server {
	s := &Server{
		Token:  token,
		connCh: make(chan *Conn, 8),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleWS)
	s.http = httptest.NewServer(mux)

	return s
}

// URL returns the ws:// address of the chat endpoint.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http") + Path
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.Token != "" && r.URL.Query().Get("token") != s.Token {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &Conn{
		ws:       ws,
		Token:    r.URL.Query().Get("token"),
		received: make(chan protocol.Outbound, 64),
		closed:   make(chan struct{}),
	}
	go c.readLoop()

	select {
	case s.connCh <- c:
	default:
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many clients"))
		ws.Close()
	}
}

// Accept blocks until a client connects or ctx is done.
func (s *Server) Accept(ctx context.Context) (*Conn, error) {
	select {
	case c := <-s.connCh:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts down the listener and all client connections.
func (s *Server) Close() {
	s.http.CloseClientConnections()
	s.http.Close()
}

// ---------------------------------------------------------------------------
// Conn
// ---------------------------------------------------------------------------

// Conn is the server side of one client connection.
type Conn struct {
	// Token is the identity token the client presented.
	Token string

	ws       *websocket.Conn
	writeMu  sync.Mutex
	received chan protocol.Outbound
	closed   chan struct{}
}

func (c *Conn) readLoop() {
	defer close(c.closed)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.DecodeOutbound(data)
		if err != nil {
			continue
		}
		c.received <- msg
	}
}

// SendFrame writes f as one JSON text frame.
func (c *Conn) SendFrame(f protocol.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(f)
}

// SendRaw writes data verbatim, for malformed-frame tests.
func (c *Conn) SendRaw(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Next returns the next message the client sent, or ctx's error.
func (c *Conn) Next(ctx context.Context) (protocol.Outbound, error) {
	select {
	case msg := <-c.received:
		return msg, nil
	case <-ctx.Done():
		return protocol.Outbound{}, ctx.Err()
	}
}

// Expect waits up to timeout for the next client message of type typ,
// skipping any others (for example ICE candidates).
func (c *Conn) Expect(typ protocol.Type, kind protocol.SignalKind, timeout time.Duration) (protocol.Outbound, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case msg := <-c.received:
			if msg.Type != typ {
				continue
			}
			if kind != "" && (msg.Payload == nil || msg.Payload.Type != kind) {
				continue
			}
			return msg, true
		case <-deadline:
			return protocol.Outbound{}, false
		}
	}
}

// Closed is closed once the client side of the connection has gone away.
func (c *Conn) Closed() <-chan struct{} { return c.closed }

// Close closes the connection with a normal closure frame.
func (c *Conn) Close() error {
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second))
	return c.ws.Close()
}

// Drop terminates the TCP connection without a closing handshake.
func (c *Conn) Drop() error {
	return c.ws.NetConn().Close()
}

// ---------------------------------------------------------------------------
// Frame builders
// ---------------------------------------------------------------------------

// Connected builds the greeting frame.
func Connected() protocol.Frame {
	return protocol.Frame{Type: protocol.TypeConnected}
}

// Waiting builds a waiting frame.
func Waiting() protocol.Frame {
	return protocol.Frame{Type: protocol.TypeWaiting, Message: "Looking for a partner..."}
}

// Matched builds a matched frame with a fresh session id.
func Matched(partnerID, username string, initiator bool) protocol.Frame {
	return protocol.Frame{
		Type:        protocol.TypeMatched,
		SessionID:   uuid.NewString(),
		Partner:     &protocol.Partner{ID: protocol.LooseString(partnerID), Username: username},
		IsInitiator: &initiator,
	}
}

// Chat builds a chat frame from the partner.
func Chat(text, senderID string) protocol.Frame {
	return protocol.Frame{Type: protocol.TypeChat, Message: text, SenderID: protocol.LooseString(senderID)}
}

// Signal builds a signal frame relaying p.
func Signal(p protocol.SignalPayload) protocol.Frame {
	return protocol.Frame{Type: protocol.TypeSignal, Payload: &p}
}

// PartnerLeft builds a partner_left frame.
func PartnerLeft() protocol.Frame {
	return protocol.Frame{Type: protocol.TypePartnerLeft}
}

// PartnerNext builds a partner_next frame.
func PartnerNext() protocol.Frame {
	return protocol.Frame{Type: protocol.TypePartnerNext}
}

// MustJSON marshals f or panics; for building raw frames in tests.
func MustJSON(f protocol.Frame) []byte {
	data, err := json.Marshal(f)
	if err != nil {
		panic(err)
	}
	return data
}
