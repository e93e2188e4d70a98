package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/blinkchat/internal/chat"
	"github.com/1ureka/blinkchat/internal/media"
	"github.com/1ureka/blinkchat/internal/negotiation"
	"github.com/1ureka/blinkchat/internal/protocol"
	"github.com/1ureka/blinkchat/internal/signaling"
	"github.com/1ureka/blinkchat/internal/util"
)

var (
	// ErrEmptyMessage is returned by SendChat for blank text.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNotOpen is returned when the signaling channel is not open.
	// Nothing is buffered for later delivery.
	ErrNotOpen = errors.New("signaling channel not open")

	// ErrNotMatched is returned when there is no partner to talk to.
	ErrNotMatched = errors.New("no active session")

	// ErrStopped is returned once Run has exited.
	ErrStopped = errors.New("coordinator stopped")
)

// Channel is the signaling connection the coordinator drives.
// signaling.Channel implements it.
type Channel interface {
	ID() string
	Connect(ctx context.Context) error
	Send(msg protocol.Outbound) bool
	Events() <-chan signaling.Event
	Done() <-chan struct{}
	Status() signaling.Status
	Close()
}

// ChannelFactory builds a new, unconnected Channel. It is called for every
// (re)connection so credentials can change between sessions.
type ChannelFactory func() Channel

// Config wires a Coordinator to its collaborators.
type Config struct {
	NewChannel ChannelFactory
	NewPeer    negotiation.PeerFactory
	Media      media.Source

	// ChatLimit caps the chat log; 0 keeps every message.
	ChatLimit int
}

// Coordinator runs the session lifecycle. All state changes happen on the
// goroutine executing Run; the exported methods only enqueue work.
type Coordinator struct {
	newChannel ChannelFactory
	engine     *negotiation.Engine
	chat       *chat.Log
	queue      *mailbox
	changes    chan struct{}
	stopped    chan struct{}

	// Owned by the Run goroutine.
	ctx     context.Context
	state   State
	channel Channel

	mu   sync.RWMutex
	view View
}

// queue items that are not FSM events

type connectRequest struct{}

type chatRequest struct {
	text  string
	reply chan error
}

type nextRequest struct {
	reply chan error
}

type channelEvent struct {
	ev signaling.Event
}

type mediaReady struct {
	epoch     uint64
	stream    *media.LocalStream
	initiator bool
}

type localSignal struct {
	epoch   uint64
	payload protocol.SignalPayload
}

type peerUpdate struct {
	epoch uint64
}

// New creates a Coordinator in PhaseIdle. Call Run to start it.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		newChannel: cfg.NewChannel,
		chat:       chat.NewLog(cfg.ChatLimit),
		queue:      newMailbox(),
		changes:    make(chan struct{}, 1),
		stopped:    make(chan struct{}),
		state:      State{Phase: PhaseIdle},
	}
	c.engine = negotiation.New(cfg.NewPeer, cfg.Media, negotiation.Hooks{
		Signal: func(epoch uint64, p protocol.SignalPayload) {
			c.queue.push(localSignal{epoch: epoch, payload: p})
		},
		RemoteStream: func(epoch uint64, _ *media.RemoteStream) {
			c.queue.push(peerUpdate{epoch: epoch})
		},
		State: func(epoch uint64, s webrtc.PeerConnectionState) {
			util.LogDebug("Media path %s", s)
			c.queue.push(peerUpdate{epoch: epoch})
		},
	})
	c.view = View{Phase: PhaseIdle, Status: signaling.StatusClosed}
	return c
}

// Run dispatches queued events until ctx is cancelled, then tears down the
// session and closes the channel. It must be called once.
func (c *Coordinator) Run(ctx context.Context) {
	c.ctx = ctx
	defer close(c.stopped)
	defer c.shutdown()

	for {
		for {
			item, ok := c.queue.pop()
			if !ok {
				break
			}
			c.handle(item)
		}
		c.publish()

		select {
		case <-c.queue.ready():
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) shutdown() {
	c.engine.Teardown()
	c.chat.Clear()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	c.state = State{Phase: PhaseIdle}
	c.publish()
}

// ---------------------------------------------------------------------------
// Consumer API
// ---------------------------------------------------------------------------

// Connect opens a signaling channel unless one is already open or
// connecting.
func (c *Coordinator) Connect() {
	c.queue.push(connectRequest{})
}

// SendChat sends text to the partner and records it locally. It fails with
// ErrEmptyMessage, ErrNotOpen or ErrNotMatched instead of buffering.
func (c *Coordinator) SendChat(ctx context.Context, text string) error {
	reply := make(chan error, 1)
	c.queue.push(chatRequest{text: text, reply: reply})
	return c.await(ctx, reply)
}

// RequestNext ends the current session and queues for a new partner.
func (c *Coordinator) RequestNext(ctx context.Context) error {
	reply := make(chan error, 1)
	c.queue.push(nextRequest{reply: reply})
	return c.await(ctx, reply)
}

func (c *Coordinator) await(ctx context.Context, reply <-chan error) error {
	select {
	case err := <-reply:
		return err
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View returns a snapshot of the current state.
func (c *Coordinator) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// Changes is signalled whenever the View may have changed. Notifications
// coalesce; read View after each one.
func (c *Coordinator) Changes() <-chan struct{} { return c.changes }

// ReportTarget returns the partner id and session id a moderation report
// should reference, or ok == false outside a session.
func (c *Coordinator) ReportTarget() (partnerID, sessionID string, ok bool) {
	v := c.View()
	if v.Session == nil {
		return "", "", false
	}
	return string(v.Session.Partner.ID), v.Session.ID, true
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

func (c *Coordinator) handle(item any) {
	switch it := item.(type) {
	case connectRequest:
		if c.channel != nil {
			if st := c.channel.Status(); st == signaling.StatusOpen || st == signaling.StatusConnecting {
				return
			}
		}
		c.openChannel()

	case channelEvent:
		if c.channel == nil || it.ev.ChannelID != c.channel.ID() {
			util.LogTrace("Event from discarded channel %s dropped", it.ev.ChannelID)
			return
		}
		if it.ev.Message != nil {
			c.apply(Received{Message: it.ev.Message, At: time.Now()})
			return
		}
		c.apply(StatusChanged{Status: it.ev.Status})

	case chatRequest:
		it.reply <- c.sendChat(it.text)

	case nextRequest:
		if c.state.Phase != PhaseMatched {
			it.reply <- ErrNotMatched
			return
		}
		c.apply(NextRequested{})
		it.reply <- nil

	case mediaReady:
		if it.epoch != c.engine.Epoch() || c.state.Phase != PhaseMatched {
			if it.stream != nil {
				it.stream.Stop()
			}
			return
		}
		if err := c.engine.CreateConnection(c.ctx, it.stream, it.initiator); err != nil {
			util.LogWarning("Could not start media: %v", err)
		}

	case localSignal:
		if it.epoch != c.engine.Epoch() || c.state.Phase != PhaseMatched || c.channel == nil {
			return
		}
		c.channel.Send(protocol.SignalMessage(it.payload))

	case peerUpdate:
		// Only refreshes the view.
	}
}

// apply runs one FSM step and its effects.
func (c *Coordinator) apply(ev Event) {
	prev := c.state.Phase
	next, effects := Transition(c.state, ev)
	c.state = next

	if next.Phase != prev {
		util.LogDebug("Phase %s -> %s", prev, next.Phase)
	}

	for _, eff := range effects {
		c.run(eff)
	}
}

func (c *Coordinator) run(eff Effect) {
	switch e := eff.(type) {
	case Teardown:
		c.engine.Teardown()
		c.chat.Clear()
		util.Stats.AddTeardown()

	case ClearChat:
		c.chat.Clear()

	case StartNegotiation:
		s := c.state.Session
		util.LogSuccess("Matched with %s", s.Partner.Name())
		util.Stats.AddSession()

		c.engine.Begin()
		epoch := c.engine.Epoch()
		ctx := c.ctx
		go func() {
			stream := c.engine.AcquireLocalMedia(ctx)
			c.queue.push(mediaReady{epoch: epoch, stream: stream, initiator: e.Initiator})
		}()

	case ForwardSignal:
		if err := c.engine.HandleInboundSignal(c.ctx, e.Payload, c.engine.LocalStream()); err != nil {
			util.LogDebug("Signal %s not applied: %v", e.Payload.Type, err)
		}

	case AppendRemoteChat:
		c.chat.AppendRemote(e.Text, e.SenderID)
		util.Stats.AddChatRecv()

	case SendUpstream:
		if c.channel != nil {
			c.channel.Send(e.Message)
		}

	case Requeue:
		c.openChannel()
	}
}

func (c *Coordinator) sendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if c.channel == nil || c.channel.Status() != signaling.StatusOpen {
		return ErrNotOpen
	}
	if c.state.Phase != PhaseMatched {
		return ErrNotMatched
	}
	if !c.channel.Send(protocol.ChatMessage(text)) {
		return ErrNotOpen
	}
	c.chat.Append(text, chat.Local)
	util.Stats.AddChatSent()
	return nil
}

// openChannel discards the current channel and connects a new one. Events
// of the old instance are dropped by id from now on.
func (c *Coordinator) openChannel() {
	if c.channel != nil {
		c.channel.Close()
	}

	ch := c.newChannel()
	c.channel = ch
	go c.forward(ch)

	ctx := c.ctx
	go func() {
		if err := ch.Connect(ctx); err != nil {
			util.LogWarning("Signaling connection failed: %v", err)
		}
	}()
}

// forward moves ch's events onto the queue until ch shuts down.
func (c *Coordinator) forward(ch Channel) {
	for {
		select {
		case ev := <-ch.Events():
			c.queue.push(channelEvent{ev: ev})
		case <-ch.Done():
			for {
				select {
				case ev := <-ch.Events():
					c.queue.push(channelEvent{ev: ev})
				default:
					return
				}
			}
		case <-c.stopped:
			return
		}
	}
}
