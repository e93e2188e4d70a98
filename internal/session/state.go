// Package session owns the chat lifecycle: it reacts to matchmaking events,
// starts and tears down media negotiation and keeps the chat log, exposing
// everything to the front-end as an immutable View.
//
// The lifecycle itself is the pure function Transition. Coordinator runs it
// on a single goroutine over a queue of events and carries out the returned
// effects.
package session

import (
	"time"

	"github.com/1ureka/blinkchat/internal/protocol"
	"github.com/1ureka/blinkchat/internal/signaling"
)

// Phase is the coordinator's lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseWaiting
	PhaseMatched
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaiting:
		return "waiting"
	case PhaseMatched:
		return "matched"
	default:
		return "unknown"
	}
}

// Session is one match with a partner.
type Session struct {
	ID        string
	Partner   protocol.Partner
	Initiator bool
	CreatedAt time.Time
}

// State is the input and output of Transition. Session is non-nil exactly
// when Phase is PhaseMatched.
type State struct {
	Phase   Phase
	Session *Session
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// Event is an input to Transition.
type Event interface{ isEvent() }

// Received carries one decoded message from the signaling channel.
type Received struct {
	Message protocol.Inbound
	At      time.Time
}

// StatusChanged reports a signaling channel status change.
type StatusChanged struct {
	Status signaling.Status
}

// NextRequested is the user asking for a new partner.
type NextRequested struct{}

func (Received) isEvent()      {}
func (StatusChanged) isEvent() {}
func (NextRequested) isEvent() {}

// ---------------------------------------------------------------------------
// Effects
// ---------------------------------------------------------------------------

// Effect is an action Transition asks the runtime to perform, in order.
type Effect interface{ isEffect() }

// Teardown closes the peer connection, stops local tracks, clears the chat
// log and resets the negotiation error.
type Teardown struct{}

// ClearChat empties the chat log.
type ClearChat struct{}

// StartNegotiation acquires local media and creates the peer connection.
type StartNegotiation struct {
	Initiator bool
}

// ForwardSignal hands a relayed signal to the negotiation engine.
type ForwardSignal struct {
	Payload protocol.SignalPayload
}

// AppendRemoteChat records a message from the partner.
type AppendRemoteChat struct {
	Text     string
	SenderID string
}

// SendUpstream writes a message to the signaling channel.
type SendUpstream struct {
	Message protocol.Outbound
}

// Requeue discards the signaling channel and connects a fresh one, which
// puts the user back in the matchmaking queue.
type Requeue struct{}

func (Teardown) isEffect()         {}
func (ClearChat) isEffect()        {}
func (StartNegotiation) isEffect() {}
func (ForwardSignal) isEffect()    {}
func (AppendRemoteChat) isEffect() {}
func (SendUpstream) isEffect()     {}
func (Requeue) isEffect()          {}
