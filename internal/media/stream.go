// Package media abstracts local capture (camera + microphone) and the
// streams exchanged with the partner, so the negotiation engine never talks
// to devices directly.
package media

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

var (
	// ErrDenied is returned when the user refuses camera/microphone access.
	ErrDenied = errors.New("camera/microphone access denied")

	// ErrUnavailable is returned when no capture device exists.
	ErrUnavailable = errors.New("camera/microphone unavailable")
)

// Source grants access to the local camera and microphone. Acquire may block
// for as long as the user takes to answer a permission prompt; it must return
// when ctx is cancelled.
type Source interface {
	Acquire(ctx context.Context) (*LocalStream, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*LocalStream, error)

// Acquire implements Source.
func (f SourceFunc) Acquire(ctx context.Context) (*LocalStream, error) { return f(ctx) }

// Deny returns a Source that always fails with err.
func Deny(err error) Source {
	return SourceFunc(func(context.Context) (*LocalStream, error) { return nil, err })
}

// ---------------------------------------------------------------------------
// Local stream
// ---------------------------------------------------------------------------

// LocalStream is a set of captured tracks. Stop releases the devices; it is
// safe to call more than once.
type LocalStream struct {
	id     string
	tracks []webrtc.TrackLocal

	stopOnce sync.Once
	stopFn   func()
	stopped  atomic.Bool
}

// NewLocalStream wraps tracks; stop (optional) is run once by Stop.
func NewLocalStream(id string, tracks []webrtc.TrackLocal, stop func()) *LocalStream {
	return &LocalStream{id: id, tracks: tracks, stopFn: stop}
}

// ID returns the stream id (msid) the tracks are announced under.
func (s *LocalStream) ID() string { return s.id }

// Tracks returns the captured tracks.
func (s *LocalStream) Tracks() []webrtc.TrackLocal { return s.tracks }

// Stop releases every track.
func (s *LocalStream) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		if s.stopFn != nil {
			s.stopFn()
		}
	})
}

// Stopped reports whether Stop has run.
func (s *LocalStream) Stopped() bool { return s.stopped.Load() }

// ---------------------------------------------------------------------------
// Remote stream
// ---------------------------------------------------------------------------

// RemoteTrack describes one track received from the partner.
type RemoteTrack struct {
	ID    string
	Kind  webrtc.RTPCodecType
	Codec string
}

// RemoteStream collects the tracks the partner published.
type RemoteStream struct {
	id string

	mu     sync.RWMutex
	tracks []RemoteTrack
}

// NewRemoteStream creates an empty remote stream.
func NewRemoteStream(id string) *RemoteStream {
	return &RemoteStream{id: id}
}

// ID returns the partner's stream id.
func (s *RemoteStream) ID() string { return s.id }

// AddTrack records a newly arrived track.
func (s *RemoteStream) AddTrack(t RemoteTrack) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

// Tracks returns a copy of the received tracks.
func (s *RemoteStream) Tracks() []RemoteTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RemoteTrack, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// HasKind reports whether a track of the given kind arrived.
func (s *RemoteStream) HasKind(kind webrtc.RTPCodecType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tracks {
		if t.Kind == kind {
			return true
		}
	}
	return false
}
