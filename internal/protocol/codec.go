package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned for frames that are not valid JSON or that
	// lack the fields their type requires.
	ErrMalformed = errors.New("malformed signaling message")

	// ErrUnknownType is returned for well-formed frames of an unknown type.
	ErrUnknownType = errors.New("unknown signaling message type")
)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// Frame is the flat JSON envelope of every server → client message. Only the
// fields belonging to Type are populated.
type Frame struct {
	Type        Type           `json:"type"`
	SessionID   string         `json:"session_id,omitempty"`
	Partner     *Partner       `json:"partner,omitempty"`
	IsInitiator *bool          `json:"is_initiator,omitempty"`
	Message     string         `json:"message,omitempty"`
	SenderID    LooseString    `json:"sender_id,omitempty"`
	Payload     *SignalPayload `json:"payload,omitempty"`
	User        *Partner       `json:"user,omitempty"`
}

// Decode parses one inbound frame into its typed message.
func Decode(data []byte) (Inbound, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch f.Type {
	case TypeConnected:
		return Connected{User: f.User}, nil

	case TypeWaiting:
		return Waiting{Note: f.Message}, nil

	case TypeMatched:
		if f.SessionID == "" {
			return nil, malformed("matched without session_id")
		}
		if f.Partner == nil || f.Partner.ID == "" {
			return nil, malformed("matched without partner")
		}
		// A missing is_initiator means "initiate".
		initiator := f.IsInitiator == nil || *f.IsInitiator
		return Matched{SessionID: f.SessionID, Partner: *f.Partner, IsInitiator: initiator}, nil

	case TypeChat:
		return Chat{Text: f.Message, SenderID: string(f.SenderID)}, nil

	case TypeSignal:
		if f.Payload == nil {
			return nil, malformed("signal without payload")
		}
		if err := f.Payload.Validate(); err != nil {
			return nil, err
		}
		return Signal{Payload: *f.Payload}, nil

	case TypePartnerNext:
		return PartnerNext{}, nil

	case TypePartnerLeft:
		return PartnerLeft{}, nil

	case "":
		return nil, malformed("missing type")

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
}

// Encode serializes an outbound message for the wire.
func Encode(msg Outbound) ([]byte, error) {
	if msg.Type == TypeSignal {
		if msg.Payload == nil {
			return nil, malformed("signal without payload")
		}
		if err := msg.Payload.Validate(); err != nil {
			return nil, err
		}
	}
	return json.Marshal(msg)
}

// DecodeOutbound parses a client → server message; used by server-side
// peers such as test stubs.
func DecodeOutbound(data []byte) (Outbound, error) {
	var msg Outbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return Outbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch msg.Type {
	case TypeChat, TypeNext:
	case TypeSignal:
		if msg.Payload == nil {
			return Outbound{}, malformed("signal without payload")
		}
	default:
		return Outbound{}, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
	return msg, nil
}
