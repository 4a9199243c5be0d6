package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const MaxIDLen = 128

var (
	ErrMalformedMessage   = errors.New("malformed message")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Message is a decoded inbound signaling record. Payload stays opaque.
type Message struct {
	Kind       Kind
	Session    SessionID
	From       ClientID
	To         ClientID
	Payload    json.RawMessage
	Credential string
}

// Envelope is the outbound wire form. It never carries a credential.
type Envelope struct {
	Type    Kind            `json:"type"`
	Session SessionID       `json:"session"`
	From    ClientID        `json:"from"`
	To      ClientID        `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wireMessage struct {
	Type       Kind            `json:"type"`
	Session    SessionID       `json:"session" validate:"required,max=128"`
	From       ClientID        `json:"from" validate:"required,max=128"`
	To         ClientID        `json:"to" validate:"required_unless=Type join,max=128"`
	Payload    json.RawMessage `json:"payload"`
	Credential json.RawMessage `json:"credential"`
}

type wireCredential struct {
	Token  string `json:"token"`
	Secret string `json:"secret"`
}

var validate = validator.New()

// Decode parses one frame. Errors wrap ErrMalformedMessage or
// ErrUnknownMessageType.
func Decode(frame []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(frame, &w); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if w.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	if !w.Type.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownMessageType, w.Type)
	}
	if err := validate.Struct(w); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	cred, err := parseCredential(w.Credential)
	if err != nil {
		return Message{}, err
	}

	m := Message{
		Kind:       w.Type,
		Session:    w.Session,
		From:       w.From,
		Payload:    w.Payload,
		Credential: cred,
	}
	if w.Type != KindJoin {
		m.To = w.To
	}
	if isNull(m.Payload) {
		m.Payload = nil
	}
	return m, nil
}

func parseCredential(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return "", fmt.Errorf("%w: missing credential", ErrMalformedMessage)
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: credential: %v", ErrMalformedMessage, err)
		}
		return strings.TrimSpace(s), nil
	case '{':
		var c wireCredential
		if err := json.Unmarshal(raw, &c); err != nil {
			return "", fmt.Errorf("%w: credential: %v", ErrMalformedMessage, err)
		}
		if c.Token != "" {
			return strings.TrimSpace(c.Token), nil
		}
		return strings.TrimSpace(c.Secret), nil
	default:
		return "", fmt.Errorf("%w: credential must be a string or object", ErrMalformedMessage)
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Outbound strips the credential for relay.
func (m Message) Outbound() Envelope {
	return Envelope{
		Type:    m.Kind,
		Session: m.Session,
		From:    m.From,
		To:      m.To,
		Payload: m.Payload,
	}
}

func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}
