// Package protocol defines the JSON control messages exchanged with the
// matchmaking server over the signaling channel.
package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/pion/webrtc/v4"
)

// Type identifies the kind of a signaling message.
type Type string

// Inbound message types (server → client).
const (
	TypeConnected   Type = "connected"
	TypeWaiting     Type = "waiting"
	TypeMatched     Type = "matched"
	TypeChat        Type = "chat"
	TypeSignal      Type = "signal"
	TypePartnerNext Type = "partner_next"
	TypePartnerLeft Type = "partner_left"
)

// Outbound-only message types (client → server). TypeChat and TypeSignal
// are used in both directions.
const (
	TypeNext Type = "next"
)

// SignalKind tags the variant carried by a SignalPayload.
type SignalKind string

const (
	SignalOffer  SignalKind = "offer"
	SignalAnswer SignalKind = "answer"
	SignalICE    SignalKind = "ice"
)

// SignalPayload is the offer | answer | ice union relayed verbatim between
// the two matched peers. Exactly one of SDP / Candidate is meaningful,
// selected by Type.
type SignalPayload struct {
	Type      SignalKind               `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// Offer builds an offer payload.
func Offer(sdp string) SignalPayload { return SignalPayload{Type: SignalOffer, SDP: sdp} }

// Answer builds an answer payload.
func Answer(sdp string) SignalPayload { return SignalPayload{Type: SignalAnswer, SDP: sdp} }

// ICE builds an ice payload.
func ICE(c webrtc.ICECandidateInit) SignalPayload {
	return SignalPayload{Type: SignalICE, Candidate: &c}
}

// Validate reports whether the payload is a well-formed member of the union.
func (p SignalPayload) Validate() error {
	switch p.Type {
	case SignalOffer, SignalAnswer:
		if p.SDP == "" {
			return malformed("signal %s without sdp", p.Type)
		}
	case SignalICE:
		if p.Candidate == nil {
			return malformed("signal ice without candidate")
		}
	default:
		return malformed("unknown signal type %q", p.Type)
	}
	return nil
}

// LooseString decodes from either a JSON string or a JSON number. The
// server sends user ids as numbers in some messages and strings in others.
type LooseString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *LooseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = LooseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = LooseString(n.String())
	return nil
}

// Int returns the numeric value, if any.
func (s LooseString) Int() (int64, bool) {
	n, err := strconv.ParseInt(string(s), 10, 64)
	return n, err == nil
}

// Partner describes the matched remote user.
type Partner struct {
	ID          LooseString `json:"user_id"`
	Username    string      `json:"username"`
	DisplayName string      `json:"display_name,omitempty"`
	Age         LooseString `json:"age,omitempty"`
	Country     string      `json:"country,omitempty"`
}

// Name returns the best label for display.
func (p Partner) Name() string {
	switch {
	case p.DisplayName != "":
		return p.DisplayName
	case p.Username != "":
		return p.Username
	default:
		return "Stranger"
	}
}

// ---------------------------------------------------------------------------
// Inbound union
// ---------------------------------------------------------------------------

// Inbound is a decoded server → client message. The concrete type is one of
// Connected, Waiting, Matched, Chat, Signal, PartnerNext or PartnerLeft.
type Inbound interface {
	Type() Type
}

// Connected acknowledges the socket; User is the authenticated identity, if any.
type Connected struct {
	User *Partner
}

// Waiting means the client sits in the matchmaking queue.
type Waiting struct {
	Note string
}

// Matched starts a new session with Partner.
type Matched struct {
	SessionID   string
	Partner     Partner
	IsInitiator bool
}

// Chat is a text message relayed from the partner.
type Chat struct {
	Text     string
	SenderID string
}

// Signal carries a negotiation payload from the partner.
type Signal struct {
	Payload SignalPayload
}

// PartnerNext means the partner skipped to someone else.
type PartnerNext struct{}

// PartnerLeft means the partner disconnected.
type PartnerLeft struct{}

func (Connected) Type() Type   { return TypeConnected }
func (Waiting) Type() Type     { return TypeWaiting }
func (Matched) Type() Type     { return TypeMatched }
func (Chat) Type() Type        { return TypeChat }
func (Signal) Type() Type      { return TypeSignal }
func (PartnerNext) Type() Type { return TypePartnerNext }
func (PartnerLeft) Type() Type { return TypePartnerLeft }

// ---------------------------------------------------------------------------
// Outbound
// ---------------------------------------------------------------------------

// Outbound is a client → server message.
type Outbound struct {
	Type    Type           `json:"type"`
	Message string         `json:"message,omitempty"`
	Payload *SignalPayload `json:"payload,omitempty"`
}

// ChatMessage builds {type:"chat", message}.
func ChatMessage(text string) Outbound {
	return Outbound{Type: TypeChat, Message: text}
}

// SignalMessage builds {type:"signal", payload}.
func SignalMessage(p SignalPayload) Outbound {
	return Outbound{Type: TypeSignal, Payload: &p}
}

// NextMessage builds {type:"next"}.
func NextMessage() Outbound {
	return Outbound{Type: TypeNext}
}
