package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/1ureka/blinkchat/internal/protocol"
	"github.com/1ureka/blinkchat/internal/signaling"
)

var (
	at    = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	bob   = protocol.Partner{ID: "7", Username: "bob"}
	idle  = State{Phase: PhaseIdle}
	wait  = State{Phase: PhaseWaiting}
	match = State{Phase: PhaseMatched, Session: &Session{ID: "s1", Partner: bob, Initiator: true, CreatedAt: at}}
)

func recv(m protocol.Inbound) Event { return Received{Message: m, At: at} }

func TestTransition(t *testing.T) {
	matched := protocol.Matched{SessionID: "s1", Partner: bob, IsInitiator: true}
	offer := protocol.Offer("v=0")

	tests := []struct {
		name    string
		from    State
		event   Event
		want    State
		effects []Effect
	}{
		{"connected from idle", idle, recv(protocol.Connected{}), wait, nil},
		{"waiting from waiting", wait, recv(protocol.Waiting{}), wait, nil},
		{"waiting from matched tears down", match, recv(protocol.Waiting{}), wait, []Effect{Teardown{}}},
		{"matched from idle", idle, recv(matched), match, []Effect{ClearChat{}, StartNegotiation{Initiator: true}}},
		{"matched from waiting", wait, recv(matched), match, []Effect{ClearChat{}, StartNegotiation{Initiator: true}}},
		{"matched while matched ignored", match, recv(protocol.Matched{SessionID: "s2", Partner: bob}), match, nil},
		{"chat in matched", match, recv(protocol.Chat{Text: "hi", SenderID: "7"}), match, []Effect{AppendRemoteChat{Text: "hi", SenderID: "7"}}},
		{"chat in waiting ignored", wait, recv(protocol.Chat{Text: "hi"}), wait, nil},
		{"signal in matched", match, recv(protocol.Signal{Payload: offer}), match, []Effect{ForwardSignal{Payload: offer}}},
		{"signal in idle ignored", idle, recv(protocol.Signal{Payload: offer}), idle, nil},
		{"partner_left in matched", match, recv(protocol.PartnerLeft{}), idle, []Effect{Teardown{}, Requeue{}}},
		{"partner_next in matched", match, recv(protocol.PartnerNext{}), idle, []Effect{Teardown{}, Requeue{}}},
		{"partner_left in waiting", wait, recv(protocol.PartnerLeft{}), idle, []Effect{Requeue{}}},
		{"next in matched", match, NextRequested{}, idle, []Effect{SendUpstream{Message: protocol.NextMessage()}, Teardown{}, Requeue{}}},
		{"next in waiting ignored", wait, NextRequested{}, wait, nil},
		{"channel error in matched", match, StatusChanged{Status: signaling.StatusError}, idle, []Effect{Teardown{}}},
		{"channel closed in waiting", wait, StatusChanged{Status: signaling.StatusClosed}, idle, nil},
		{"channel open is no-op", wait, StatusChanged{Status: signaling.StatusOpen}, wait, nil},
		{"channel closed in idle", idle, StatusChanged{Status: signaling.StatusClosed}, idle, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, effects := Transition(tt.from, tt.event)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.effects, effects)
		})
	}
}

func TestMatchedDefaultsToInitiator(t *testing.T) {
	// protocol.Decode resolves a missing is_initiator to true.
	msg, err := protocol.Decode([]byte(`{"type":"matched","session_id":"s9","partner":{"user_id":3,"username":"amy"}}`))
	assert.NoError(t, err)

	got, effects := Transition(wait, recv(msg))
	assert.Equal(t, PhaseMatched, got.Phase)
	assert.Equal(t, "s9", got.Session.ID)
	assert.Equal(t, "3", string(got.Session.Partner.ID))
	assert.Contains(t, effects, Effect(StartNegotiation{Initiator: true}))
}

// Matched holds exactly when a Session exists, for any event sequence.
func TestSessionInvariant(t *testing.T) {
	events := []Event{
		recv(protocol.Connected{}),
		recv(protocol.Matched{SessionID: "a", Partner: bob}),
		recv(protocol.Chat{Text: "x"}),
		recv(protocol.Waiting{}),
		recv(protocol.Matched{SessionID: "b", Partner: bob}),
		NextRequested{},
		recv(protocol.Signal{Payload: protocol.Answer("v=0")}),
		recv(protocol.Matched{SessionID: "c", Partner: bob}),
		StatusChanged{Status: signaling.StatusError},
		recv(protocol.PartnerLeft{}),
		recv(protocol.Matched{SessionID: "d", Partner: bob}),
		recv(protocol.PartnerNext{}),
	}

	s := idle
	for i, ev := range events {
		s, _ = Transition(s, ev)
		assert.Equal(t, s.Phase == PhaseMatched, s.Session != nil, "after event %d", i)
	}
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "waiting", PhaseWaiting.String())
	assert.Equal(t, "matched", PhaseMatched.String())
}
