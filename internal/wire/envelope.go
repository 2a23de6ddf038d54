// Package wire defines the JSON envelope exchanged over every session
// connection, generalizing the control-plane's existing
// type/timestamp/payload message shape into RingForge's
// type/action/ref/payload protocol.
package wire

import (
	"encoding/json"
	"time"

	"github.com/streamspace-dev/ringforge/internal/errors"
)

// MaxEnvelopeBytes is the hard per-frame size limit; breach closes the
// session with payload_too_large.
const MaxEnvelopeBytes = 64 * 1024

// Families selected by Envelope.Type.
const (
	TypeAuth     = "auth"
	TypePresence = "presence"
	TypeActivity = "activity"
	TypeMemory   = "memory"
	TypeFile     = "file"
	TypeReplay   = "replay"
	TypeDirect   = "direct"
	TypeTask     = "task"
	TypeSystem   = "system"
	TypeError    = "error"
)

// Envelope is the single wire frame shape for every message in either
// direction: one text frame, one JSON object.
type Envelope struct {
	Type    string          `json:"type"`
	Action  string          `json:"action,omitempty"`
	Ref     string          `json:"ref,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode parses a raw frame into an Envelope, enforcing the frame size
// limit and basic shape validity.
func Decode(frame []byte) (*Envelope, *errors.AppError) {
	if len(frame) > MaxEnvelopeBytes {
		return nil, errors.PayloadTooLarge("envelope exceeds 64 KiB")
	}
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, errors.InvalidMessage("malformed envelope")
	}
	if env.Type == "" {
		return nil, errors.InvalidMessage("envelope missing type")
	}
	return &env, nil
}

// Encode serializes an envelope back to its wire frame.
func Encode(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// DecodePayload unmarshals the envelope payload into dst, or returns
// invalid_message if the payload is absent or malformed.
func DecodePayload(env *Envelope, dst interface{}) *errors.AppError {
	if len(env.Payload) == 0 {
		return errors.InvalidMessage("envelope missing payload")
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return errors.InvalidMessage("malformed payload: " + err.Error())
	}
	return nil
}

// NewEvent builds an unsolicited server event envelope of the given type
// and action, carrying the marshaled payload. Every unsolicited event also
// carries an event id and server timestamp inside its payload by
// convention of the caller.
func NewEvent(typ, action string, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: typ, Action: action, Payload: raw}, nil
}

// NewResponse builds a response envelope echoing the request's ref.
func NewResponse(typ, action, ref string, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: typ, Action: action, Ref: ref, Payload: raw}, nil
}

// NewError builds an error envelope for the given AppError.
func NewError(ref string, appErr *errors.AppError) *Envelope {
	raw, _ := json.Marshal(appErr.ToResponse())
	return &Envelope{Type: TypeError, Ref: ref, Payload: raw}
}

// EventEnvelope fields common to every unsolicited server event.
type EventEnvelope struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
}
