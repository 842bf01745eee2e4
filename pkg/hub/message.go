// Package hub fans capture events out to websocket subscribers.
// Each client follows one capture session, or every session when its
// topic is empty.
package hub

import (
	"encoding/json"
	"time"
)

// MessageType indicates the websocket message format
type MessageType int

const (
	// JSONMessage is a JSON-encoded message
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data (the captured WebP photo)
	BinaryMessage
)

// Message is one frame queued for delivery.
type Message struct {
	Type  MessageType
	Topic string // session ID; empty reaches every client
	Data  []byte
}

// Event is the JSON payload describing a capture session change.
type Event struct {
	Type      string    `json:"type"` // "phase", "captured", "error", "submitted"
	Session   string    `json:"session"`
	Phase     string    `json:"phase,omitempty"`
	Previous  string    `json:"previous,omitempty"`
	Tier      string    `json:"tier,omitempty"`
	SizeBytes int       `json:"size_bytes,omitempty"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(topic string, data []byte) Message {
	return Message{Type: JSONMessage, Topic: topic, Data: data}
}

// NewBinaryMessage creates a binary message
func NewBinaryMessage(topic string, data []byte) Message {
	return Message{Type: BinaryMessage, Topic: topic, Data: data}
}

func encodeEvent(e Event) (Message, error) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(e.Session, data), nil
}
