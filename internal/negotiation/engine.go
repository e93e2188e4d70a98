// Package negotiation drives the WebRTC offer/answer exchange for one session
// at a time: it acquires local media, creates the peer connection, turns
// local ICE candidates into outbound signals and applies inbound ones.
//
// Begin, CreateConnection, HandleInboundSignal and Teardown are meant to be
// called from a single goroutine (the session dispatcher); AcquireLocalMedia
// and the accessors are safe anywhere. Peer callbacks arrive on other
// goroutines and are reported through Hooks, tagged with the epoch that was
// current when the peer was created. Teardown advances the epoch, so a
// consumer can drop results that belong to a finished session.
package negotiation

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/blinkchat/internal/media"
	"github.com/1ureka/blinkchat/internal/protocol"
	"github.com/1ureka/blinkchat/internal/util"
)

// PeerChannel is the subset of a WebRTC peer connection the engine needs.
// transport.Peer implements it.
type PeerChannel interface {
	AddLocalStream(stream *media.LocalStream) error
	CreateOffer() (string, error)
	CreateAnswer() (string, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnRemoteStream(fn func(*media.RemoteStream))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))
	ConnectionState() webrtc.PeerConnectionState
	Close() error
}

// PeerFactory creates a fresh, unconfigured PeerChannel.
type PeerFactory func(ctx context.Context) (PeerChannel, error)

// Hooks receive the engine's asynchronous output. Any hook may be nil.
// Hooks may be called from the driving goroutine (the initiator's offer, an
// answer) as well as from peer goroutines, so they must not block.
type Hooks struct {
	Signal       func(epoch uint64, p protocol.SignalPayload)
	RemoteStream func(epoch uint64, s *media.RemoteStream)
	State        func(epoch uint64, s webrtc.PeerConnectionState)
}

// ErrNoConnection is returned for an answer that arrives before any
// connection exists.
var ErrNoConnection = errors.New("no peer connection")

// Engine negotiates the media path of the current session.
type Engine struct {
	newPeer PeerFactory
	source  media.Source
	hooks   Hooks

	mu        sync.Mutex
	epoch     uint64
	peer      PeerChannel
	local     *media.LocalStream
	remote    *media.RemoteStream
	err       error
	awaiting  bool // local media acquisition in flight
	remoteSet bool

	pendingICE     []webrtc.ICECandidateInit
	pendingSignals []protocol.SignalPayload
}

// New creates an idle Engine.
func New(newPeer PeerFactory, source media.Source, hooks Hooks) *Engine {
	return &Engine{newPeer: newPeer, source: source, hooks: hooks}
}

// Epoch identifies the current session. It advances on every Teardown.
func (e *Engine) Epoch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch
}

// Begin announces that local media is about to be acquired for the current
// session. Signals that arrive before CreateConnection are held and replayed
// once the connection exists.
func (e *Engine) Begin() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.awaiting = true
}

// AcquireLocalMedia asks the media source for camera and microphone. On
// failure it records a *MediaAccessError and returns nil. A stream that
// arrives after Teardown is stopped and nil is returned. Safe to call from
// any goroutine.
func (e *Engine) AcquireLocalMedia(ctx context.Context) *media.LocalStream {
	e.mu.Lock()
	epoch := e.epoch
	e.mu.Unlock()

	stream, err := e.source.Acquire(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	if epoch != e.epoch {
		if stream != nil {
			stream.Stop()
		}
		return nil
	}
	if err != nil {
		util.LogWarning("Local media unavailable: %v", err)
		e.err = &MediaAccessError{Err: err}
		return nil
	}
	return stream
}

// CreateConnection builds the session's peer connection, attaches stream
// (nil means receive-only) and, for the initiator, sends the offer. Held
// signals are replayed afterwards; a held offer makes this side the answerer
// whatever isInitiator says. A second call within the same session is a
// no-op and stops the surplus stream.
func (e *Engine) CreateConnection(ctx context.Context, stream *media.LocalStream, isInitiator bool) error {
	e.mu.Lock()
	if e.peer != nil {
		owned := e.local
		e.mu.Unlock()
		if stream != nil && stream != owned {
			stream.Stop()
		}
		return nil
	}
	epoch := e.epoch
	e.mu.Unlock()

	peer, err := e.newPeer(ctx)
	if err != nil {
		if stream != nil {
			stream.Stop()
		}
		e.releaseHeld(epoch)
		return e.fail("create connection", err)
	}

	e.mu.Lock()
	if epoch != e.epoch {
		// Torn down while the peer was being built. Teardown already reset
		// the held state, which may now belong to the next session.
		e.mu.Unlock()
		peer.Close()
		if stream != nil {
			stream.Stop()
		}
		return nil
	}
	e.peer = peer
	e.local = stream
	e.awaiting = false
	e.remoteSet = false
	pending := e.pendingSignals
	e.pendingSignals = nil
	e.mu.Unlock()

	for _, p := range pending {
		if p.Type == protocol.SignalOffer {
			isInitiator = false
		}
	}

	e.bind(peer, epoch)

	if err := peer.AddLocalStream(stream); err != nil {
		// The connection still receives; report and carry on.
		e.fail("attach local media", err)
	}

	role := "answerer"
	if isInitiator {
		role = "initiator"
	}
	util.LogDebug("Peer connection created as %s", role)

	var offerErr error
	if isInitiator {
		sdp, err := peer.CreateOffer()
		if err != nil {
			offerErr = e.fail("create offer", err)
		} else {
			e.emit(epoch, protocol.Offer(sdp))
		}
	}

	// Held signals are applied even when the offer failed so that no
	// candidate is lost.
	var replayErr error
	for _, p := range pending {
		if err := e.HandleInboundSignal(ctx, p, nil); err != nil && replayErr == nil {
			replayErr = err
		}
	}
	if offerErr != nil {
		return offerErr
	}
	return replayErr
}

// releaseHeld stops holding signals for epoch after its connection could not
// be built. Held candidates move to the candidate buffer; held descriptions
// are dropped. A later offer then creates the connection as answerer.
func (e *Engine) releaseHeld(epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch != e.epoch {
		return
	}
	for _, p := range e.pendingSignals {
		if p.Type == protocol.SignalICE {
			e.pendingICE = append(e.pendingICE, *p.Candidate)
			continue
		}
		util.LogDebug("Held %s dropped", p.Type)
	}
	e.pendingSignals = nil
	e.awaiting = false
}

// bind routes peer callbacks to the hooks while peer is still the current
// connection of epoch.
func (e *Engine) bind(peer PeerChannel, epoch uint64) {
	peer.OnICECandidate(func(c webrtc.ICECandidateInit) {
		if e.current(peer, epoch) {
			e.emit(epoch, protocol.ICE(c))
		}
	})

	peer.OnRemoteStream(func(s *media.RemoteStream) {
		e.mu.Lock()
		ok := e.peer == peer && e.epoch == epoch
		if ok {
			e.remote = s
		}
		e.mu.Unlock()
		if ok && e.hooks.RemoteStream != nil {
			e.hooks.RemoteStream(epoch, s)
		}
	})

	peer.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if e.current(peer, epoch) && e.hooks.State != nil {
			e.hooks.State(epoch, s)
		}
	})
}

func (e *Engine) current(peer PeerChannel, epoch uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peer == peer && e.epoch == epoch
}

func (e *Engine) emit(epoch uint64, p protocol.SignalPayload) {
	if e.hooks.Signal != nil {
		e.hooks.Signal(epoch, p)
	}
}

// fail records a description-level failure as the engine error and returns
// it.
func (e *Engine) fail(op string, err error) error {
	ne := &NegotiationError{Op: op, Err: err}
	util.LogError("%v", ne)
	e.mu.Lock()
	e.err = ne
	e.mu.Unlock()
	return ne
}

// HandleInboundSignal applies a signal relayed from the partner.
//
// Without a connection, signals are held while local media is being acquired.
// Otherwise an offer creates the connection as answerer with stream, an ICE
// candidate is held for later and an answer is rejected with ErrNoConnection.
// Candidates that arrive before the remote description are buffered and
// flushed right after it is applied; candidate failures are logged and
// swallowed. A malformed payload is rejected with protocol.ErrMalformed.
func (e *Engine) HandleInboundSignal(ctx context.Context, p protocol.SignalPayload, stream *media.LocalStream) error {
	if err := p.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	peer := e.peer
	if peer == nil {
		switch {
		case e.awaiting:
			e.pendingSignals = append(e.pendingSignals, p)
			e.mu.Unlock()
			return nil
		case p.Type == protocol.SignalICE:
			e.pendingICE = append(e.pendingICE, *p.Candidate)
			e.mu.Unlock()
			return nil
		case p.Type == protocol.SignalAnswer:
			e.mu.Unlock()
			util.LogDebug("Answer without connection dropped")
			return ErrNoConnection
		}
		e.mu.Unlock()

		if err := e.CreateConnection(ctx, stream, false); err != nil {
			return err
		}
		e.mu.Lock()
		peer = e.peer
		if peer == nil {
			e.mu.Unlock()
			return ErrNoConnection
		}
	}
	epoch := e.epoch
	e.mu.Unlock()

	switch p.Type {
	case protocol.SignalOffer:
		if err := peer.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP}); err != nil {
			return e.fail("set remote offer", err)
		}
		e.flushICE(peer)

		sdp, err := peer.CreateAnswer()
		if err != nil {
			return e.fail("create answer", err)
		}
		e.emit(epoch, protocol.Answer(sdp))

	case protocol.SignalAnswer:
		if err := peer.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.SDP}); err != nil {
			return e.fail("set remote answer", err)
		}
		e.flushICE(peer)

	case protocol.SignalICE:
		e.mu.Lock()
		if !e.remoteSet {
			e.pendingICE = append(e.pendingICE, *p.Candidate)
			e.mu.Unlock()
			return nil
		}
		e.mu.Unlock()
		addCandidate(peer, *p.Candidate)
	}
	return nil
}

// flushICE marks the remote description as applied and adds every buffered
// candidate in arrival order.
func (e *Engine) flushICE(peer PeerChannel) {
	e.mu.Lock()
	e.remoteSet = true
	queued := e.pendingICE
	e.pendingICE = nil
	e.mu.Unlock()

	for _, c := range queued {
		addCandidate(peer, c)
	}
}

func addCandidate(peer PeerChannel, c webrtc.ICECandidateInit) {
	if err := peer.AddICECandidate(c); err != nil {
		util.LogDebug("ICE candidate rejected: %v", err)
	}
}

// Teardown closes the connection, stops local tracks and clears remote
// media, buffered signals and the error. It advances the epoch and is safe
// to call repeatedly.
func (e *Engine) Teardown() {
	e.mu.Lock()
	peer, local := e.peer, e.local
	e.epoch++
	e.peer = nil
	e.local = nil
	e.remote = nil
	e.err = nil
	e.awaiting = false
	e.remoteSet = false
	e.pendingICE = nil
	e.pendingSignals = nil
	e.mu.Unlock()

	if peer != nil {
		if err := peer.Close(); err != nil {
			util.LogDebug("Peer close: %v", err)
		}
	}
	if local != nil {
		local.Stop()
	}
}

// Err returns the last recorded *MediaAccessError or *NegotiationError.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// LocalStream returns the stream attached to the current connection.
func (e *Engine) LocalStream() *media.LocalStream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.local
}

// RemoteStream returns the partner's stream once a track has arrived.
func (e *Engine) RemoteStream() *media.RemoteStream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remote
}

// HasConnection reports whether a peer connection exists for the session.
func (e *Engine) HasConnection() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peer != nil
}

// Connected reports whether media is flowing.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	peer := e.peer
	e.mu.Unlock()
	return peer != nil && peer.ConnectionState() == webrtc.PeerConnectionStateConnected
}
