package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedPayload is returned for payloads that fail to decode, carry an
// unsupported type, include fields foreign to their type or miss a required
// field.
var ErrMalformedPayload = errors.New("malformed payload")

// Inbound is a decoded client payload: either a ChatRequest or a
// StatusRequest.
type Inbound interface {
	inbound()
}

// ChatRequest asks the server to post Content to Room. An empty Room means the
// sender's current room. Username is informational only.
type ChatRequest struct {
	Username string
	Content  string
	Room     string
}

func (ChatRequest) inbound() {}

// StatusRequest changes the sender's presence status.
type StatusRequest struct {
	Username string
	Status   string
}

func (StatusRequest) inbound() {}

type typeProbe struct {
	Type *Type `json:"type"`
}

// The client may still send its own timestamp; it is accepted and discarded.
type chatRequestWire struct {
	Type      Type    `json:"type"`
	Username  *string `json:"username"`
	Content   *string `json:"content"`
	Room      *string `json:"room"`
	Timestamp *string `json:"timestamp"`
}

type statusRequestWire struct {
	Type     Type    `json:"type"`
	Username *string `json:"username"`
	Status   *string `json:"status"`
}

// Decode parses one inbound frame. Every failure wraps ErrMalformedPayload.
func Decode(raw []byte) (Inbound, error) {
	var probe typeProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if probe.Type == nil {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}

	switch *probe.Type {
	case TypeMessage:
		return decodeChat(raw)
	case TypeStatus:
		return decodeStatus(raw)
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", ErrMalformedPayload, *probe.Type)
	}
}

func decodeChat(raw []byte) (Inbound, error) {
	var wire chatRequestWire
	if err := strictUnmarshal(raw, &wire); err != nil {
		return nil, err
	}
	if wire.Content == nil || strings.TrimSpace(*wire.Content) == "" {
		return nil, fmt.Errorf("%w: message requires content", ErrMalformedPayload)
	}
	return ChatRequest{
		Username: deref(wire.Username),
		Content:  *wire.Content,
		Room:     deref(wire.Room),
	}, nil
}

func decodeStatus(raw []byte) (Inbound, error) {
	var wire statusRequestWire
	if err := strictUnmarshal(raw, &wire); err != nil {
		return nil, err
	}
	if wire.Status == nil || strings.TrimSpace(*wire.Status) == "" {
		return nil, fmt.Errorf("%w: status requires status", ErrMalformedPayload)
	}
	return StatusRequest{
		Username: deref(wire.Username),
		Status:   *wire.Status,
	}, nil
}

func strictUnmarshal(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after envelope", ErrMalformedPayload)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Encode renders an outbound message as a single JSON envelope.
func Encode(o Outbound) ([]byte, error) {
	if o == nil {
		return nil, errors.New("protocol: nil outbound message")
	}
	return json.Marshal(o.envelope())
}
