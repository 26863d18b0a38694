package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"time"
)

type Type string

const (
	TypeTerminalOutput Type = "terminal.output"
	TypeTerminalInput  Type = "terminal.input"
	TypeTerminalSelect Type = "terminal.select"
	TypeTerminalResize Type = "terminal.resize"
	TypeTerminalList   Type = "terminal.list"
	TypeConnectionPing Type = "connection.ping"
	TypeConnectionPong Type = "connection.pong"
	TypeError          Type = "error"
)

var ErrMalformed = errors.New("malformed message")

func (t Type) Known() bool {
	switch t {
	case TypeTerminalOutput, TypeTerminalInput, TypeTerminalSelect, TypeTerminalResize,
		TypeTerminalList, TypeConnectionPing, TypeConnectionPong, TypeError:
		return true
	default:
		return false
	}
}

// Message is the envelope exchanged over the streaming transport. Payload is kept
// raw so that the envelope can be decoded before the receiver knows its type.
type Message struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func New(messageType Type, payload any) (*Message, error) {
	if payload == nil {
		payload = struct{}{}
	}

	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		ID:        uuid.New().String(),
		Type:      messageType,
		Timestamp: time.Now().UnixMilli(),
		Payload:   rawPayload,
	}, nil
}

// MustNew is New for payloads that are known to serialize.
func MustNew(messageType Type, payload any) *Message {
	msg, err := New(messageType, payload)
	if err != nil {
		panic(err)
	}

	return msg
}

func Decode(data []byte) (*Message, error) {
	var msg Message

	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing message type", ErrMalformed)
	}

	return &msg, nil
}

func (msg *Message) Encode() ([]byte, error) {
	return json.Marshal(msg)
}

// DecodePayload unmarshals the payload into v. An absent payload decodes as an empty object.
func (msg *Message) DecodePayload(v any) error {
	payload := msg.Payload
	if len(payload) == 0 || string(payload) == "null" {
		payload = []byte("{}")
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: invalid %s payload: %v", ErrMalformed, msg.Type, err)
	}

	return nil
}
