package session

import (
	"github.com/1ureka/blinkchat/internal/protocol"
	"github.com/1ureka/blinkchat/internal/signaling"
)

// Transition returns the state that follows ev and the effects to run.
// Events that are not valid in the current phase return s unchanged and no
// effects. Any transition that leaves PhaseMatched starts with Teardown.
func Transition(s State, ev Event) (State, []Effect) {
	switch ev := ev.(type) {
	case Received:
		return received(s, ev)

	case StatusChanged:
		if ev.Status != signaling.StatusClosed && ev.Status != signaling.StatusError {
			return s, nil
		}
		if s.Phase == PhaseIdle {
			return s, nil
		}
		return State{Phase: PhaseIdle}, leave(s)

	case NextRequested:
		if s.Phase != PhaseMatched {
			return s, nil
		}
		return State{Phase: PhaseIdle}, []Effect{
			SendUpstream{Message: protocol.NextMessage()},
			Teardown{},
			Requeue{},
		}
	}
	return s, nil
}

func received(s State, ev Received) (State, []Effect) {
	switch msg := ev.Message.(type) {
	case protocol.Connected, protocol.Waiting:
		return State{Phase: PhaseWaiting}, leave(s)

	case protocol.Matched:
		if s.Phase == PhaseMatched {
			return s, nil
		}
		next := State{
			Phase: PhaseMatched,
			Session: &Session{
				ID:        msg.SessionID,
				Partner:   msg.Partner,
				Initiator: msg.IsInitiator,
				CreatedAt: ev.At,
			},
		}
		return next, []Effect{ClearChat{}, StartNegotiation{Initiator: msg.IsInitiator}}

	case protocol.Chat:
		if s.Phase != PhaseMatched {
			return s, nil
		}
		return s, []Effect{AppendRemoteChat{Text: msg.Text, SenderID: msg.SenderID}}

	case protocol.Signal:
		if s.Phase != PhaseMatched {
			return s, nil
		}
		return s, []Effect{ForwardSignal{Payload: msg.Payload}}

	case protocol.PartnerNext, protocol.PartnerLeft:
		return State{Phase: PhaseIdle}, append(leave(s), Requeue{})
	}
	return s, nil
}

// leave returns the effects needed to drop the live session, if any.
func leave(s State) []Effect {
	if s.Phase != PhaseMatched {
		return nil
	}
	return []Effect{Teardown{}}
}
