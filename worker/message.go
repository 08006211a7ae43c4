/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package worker

import (
	"encoding/json"
	"fmt"
)

// MessageType is a kind of message exchanged between a dispatcher and a worker.
type MessageType string

// Message types.
const (
	MessageTypeTask   MessageType = "TASK"
	MessageTypeResult MessageType = "RESULT"
	MessageTypeError  MessageType = "ERROR"
)

// IsTerminal reports whether the message type ends a task (RESULT or ERROR).
func (t MessageType) IsTerminal() bool {
	return t == MessageTypeResult || t == MessageTypeError
}

// Task is a named unit of work.
type Task struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is the wire envelope. ID correlates a TASK with its RESULT or ERROR.
type Message struct {
	ID      string          `json:"id"`
	Type    MessageType     `json:"type"`
	Payload *Task           `json:"payload,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// NewTaskMessage creates a TASK message. The same id is used for the envelope and the payload.
func NewTaskMessage(id, taskType string, data json.RawMessage) *Message {
	return &Message{
		ID:      id,
		Type:    MessageTypeTask,
		Payload: &Task{ID: id, Type: taskType, Data: data},
	}
}

// NewResultMessage creates a RESULT message for the task with the given id.
func NewResultMessage(id string, data json.RawMessage) *Message {
	return &Message{ID: id, Type: MessageTypeResult, Data: data}
}

// NewErrorMessage creates an ERROR message for the task with the given id.
func NewErrorMessage(id string, errMsg string) *Message {
	return &Message{ID: id, Type: MessageTypeError, Error: errMsg}
}

// TaskID returns the correlation id of the message.
// For a TASK message with an empty envelope id the payload id is used.
func (m *Message) TaskID() string {
	if m.ID == "" && m.Payload != nil {
		return m.Payload.ID
	}
	return m.ID
}

// Validate checks that the message is well-formed.
func (m *Message) Validate() error {
	switch m.Type {
	case MessageTypeTask:
		if m.Payload == nil {
			return fmt.Errorf("%w: TASK message has no payload", ErrMalformedMessage)
		}
		if m.Payload.Type == "" {
			return fmt.Errorf("%w: TASK message has no task type", ErrMalformedMessage)
		}
	case MessageTypeResult, MessageTypeError:
	default:
		return fmt.Errorf("%w: unknown message type %q", ErrMalformedMessage, m.Type)
	}
	if m.TaskID() == "" {
		return fmt.Errorf("%w: message has no id", ErrMalformedMessage)
	}
	return nil
}

// EncodeMessage serializes the message to JSON.
func EncodeMessage(m *Message) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage deserializes and validates a JSON-encoded message.
func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
