package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/blinkchat/internal/media"
	"github.com/1ureka/blinkchat/internal/util"
)

// rtpBufferSize fits one RTP packet at a typical MTU.
const rtpBufferSize = 1500

// Peer wraps a single PeerConnection carrying the partner's audio/video.
// It exposes just enough of the offer/answer and trickle-ICE surface for the
// negotiation engine, and reports remote tracks grouped into streams.
//
// Its lifecycle is governed by the PeerConnection state and the context
// passed at construction time: Done closes once the connection fails, is
// closed, or ctx is cancelled.
type Peer struct {
	pc *webrtc.PeerConnection

	connected     chan struct{}
	connectedOnce sync.Once
	closeOnce     sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	pcState  webrtc.PeerConnectionState
	remote   map[string]*media.RemoteStream
	onRemote func(*media.RemoteStream)
	onState  func(webrtc.PeerConnectionState)
}

// NewPeer creates a Peer backed by a new PeerConnection configured from opts.
// Signaling is driven by the caller through CreateOffer / CreateAnswer /
// SetRemoteDescription / AddICECandidate.
func NewPeer(ctx context.Context, opts Options) (*Peer, error) {
	pc, err := newPeerConnection(opts)
	if err != nil {
		return nil, err
	}

	pCtx, pCancel := context.WithCancel(ctx)

	p := &Peer{
		pc:        pc,
		connected: make(chan struct{}),
		ctx:       pCtx,
		cancel:    pCancel,
		pcState:   webrtc.PeerConnectionStateNew,
		remote:    make(map[string]*media.RemoteStream),
	}

	pc.OnConnectionStateChange(p.handleStateChange)
	pc.OnTrack(p.handleTrack)

	return p, nil
}

func (p *Peer) handleStateChange(state webrtc.PeerConnectionState) {
	util.LogDebug("PeerConnection state: %s", state.String())

	p.mu.Lock()
	p.pcState = state
	fn := p.onState
	p.mu.Unlock()

	switch state {
	case webrtc.PeerConnectionStateConnected:
		p.connectedOnce.Do(func() { close(p.connected) })
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		p.cancel()
	}

	if fn != nil {
		fn(state)
	}
}

func (p *Peer) handleTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	util.LogDebug("Remote %s track %s (%s)", track.Kind(), track.ID(), track.Codec().MimeType)

	p.mu.Lock()
	stream, ok := p.remote[track.StreamID()]
	if !ok {
		stream = media.NewRemoteStream(track.StreamID())
		p.remote[track.StreamID()] = stream
	}
	stream.AddTrack(media.RemoteTrack{
		ID:    track.ID(),
		Kind:  track.Kind(),
		Codec: track.Codec().MimeType,
	})
	fn := p.onRemote
	p.mu.Unlock()

	if fn != nil {
		fn(stream)
	}

	go drainTrack(track)
}

// drainTrack consumes inbound RTP so the interceptors keep producing
// receiver reports. The bytes only feed the stats counter; rendering is
// left to the front-end.
func drainTrack(track *webrtc.TrackRemote) {
	buf := make([]byte, rtpBufferSize)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}
		util.Stats.AddMediaRecv(n)
	}
}

// drainRTCP reads RTCP for a sender; without it NACK and PLI never reach
// the interceptors.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, rtpBufferSize)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Ready returns a channel that is closed once ICE and DTLS complete and media
// can flow.
func (p *Peer) Ready() <-chan struct{} {
	return p.connected
}

// Done returns a channel that is closed when the Peer is shut down
// (connection failed or closed, or parent context cancelled).
func (p *Peer) Done() <-chan struct{} {
	return p.ctx.Done()
}

// ConnectionState returns the last observed PeerConnection state.
func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pcState
}

// OnConnectionStateChange registers a callback for PeerConnection state
// transitions. Only the latest registration is kept.
func (p *Peer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

// Close shuts down the PeerConnection. Safe to call more than once.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.cancel()
		err = p.pc.Close()
	})
	return err
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

// AddLocalStream attaches every track of stream to the connection. It must
// be called before CreateOffer / CreateAnswer for the tracks to be announced.
func (p *Peer) AddLocalStream(stream *media.LocalStream) error {
	if stream == nil {
		return nil
	}
	for _, track := range stream.Tracks() {
		sender, err := p.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
		go drainRTCP(sender)
	}
	return nil
}

// OnRemoteStream registers a callback invoked each time a remote track
// arrives, with the stream that now contains it.
func (p *Peer) OnRemoteStream(fn func(*media.RemoteStream)) {
	p.mu.Lock()
	p.onRemote = fn
	p.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer and applies it as the local
// description. Kinds without a local track are offered receive-only so a
// peer that has no camera can still watch the partner.
func (p *Peer) CreateOffer() (string, error) {
	if err := p.ensureReceivers(); err != nil {
		return "", err
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local offer: %w", err)
	}
	return offer.SDP, nil
}

// CreateAnswer generates an SDP answer to the applied remote offer and sets
// it as the local description.
func (p *Peer) CreateAnswer() (string, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local answer: %w", err)
	}
	return answer.SDP, nil
}

// SetRemoteDescription applies the remote SDP.
func (p *Peer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(desc)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (p *Peer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. The end-of-gathering marker is not forwarded.
func (p *Peer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		fn(c.ToJSON())
	})
}

func (p *Peer) ensureReceivers() error {
	have := map[webrtc.RTPCodecType]bool{}
	for _, t := range p.pc.GetTransceivers() {
		have[t.Kind()] = true
	}

	var errs []error
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if have[kind] {
			continue
		}
		_, err := p.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
