// Package protocol defines the bridge wire envelope, its request, response and
// event types, and the payloads each type carries.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Direction tells a receiver how to treat a message.
type Direction string

// Message directions.
const (
	DirectionRequest  Direction = "request"
	DirectionResponse Direction = "response"
	DirectionEvent    Direction = "event"
)

// Protocol errors.
var (
	ErrMalformed      = errors.New("malformed message")
	ErrUnknownType    = errors.New("unknown message type")
	ErrInvalidPayload = errors.New("invalid payload")
)

// Message is the single envelope exchanged over the bridge. Requests and their
// responses share ID; events carry a fresh ID and no partner.
type Message struct {
	ID        string          `json:"id"`
	Direction Direction       `json:"direction"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Result is the payload of every response.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func newMessage(id string, dir Direction, msgType string, payload any) (Message, error) {
	msg := Message{
		ID:        id,
		Direction: dir,
		Type:      msgType,
		Timestamp: time.Now().UTC(),
	}
	if payload == nil {
		return msg, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s payload: %w", msgType, err)
	}
	msg.Payload = raw
	return msg, nil
}

// NewRequest builds a request of msgType with a fresh correlation id.
func NewRequest(msgType string, payload any) (Message, error) {
	if !IsRequestType(msgType) {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, msgType)
	}
	return newMessage(uuid.NewString(), DirectionRequest, msgType, payload)
}

// NewResponse builds the successful response to req.
func NewResponse(req Message, data any) (Message, error) {
	return newMessage(req.ID, DirectionResponse, ResponseType(req.Type), Result{Success: true, Data: data})
}

// NewFailure builds the failed response to req. It cannot fail.
func NewFailure(req Message, err error) Message {
	msg := Message{
		ID:        req.ID,
		Direction: DirectionResponse,
		Type:      ResponseType(req.Type),
		Timestamp: time.Now().UTC(),
	}
	// Result with a string error always marshals.
	msg.Payload, _ = json.Marshal(Result{Success: false, Error: err.Error()})
	return msg
}

// NewEvent builds an unsolicited event with a fresh id.
func NewEvent(eventType string, payload any) (Message, error) {
	return newMessage(uuid.NewString(), DirectionEvent, eventType, payload)
}

// Decode parses one inbound frame. The envelope must carry an id and a type;
// a missing direction is read as a request.
func Decode(frame []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.ID == "" || msg.Type == "" {
		return Message{}, fmt.Errorf("%w: id and type are required", ErrMalformed)
	}
	if msg.Direction == "" {
		msg.Direction = DirectionRequest
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return msg, nil
}

// Result decodes the payload of a response.
func (m Message) Result() (Result, error) {
	if m.Direction != DirectionResponse {
		return Result{}, fmt.Errorf("%w: %s is not a response", ErrMalformed, m.Type)
	}
	var r Result
	if err := json.Unmarshal(m.Payload, &r); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return r, nil
}
