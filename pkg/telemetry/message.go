// Package telemetry carries per-tick diagnostics out of the control process.
//
// The Recorder sits between the control loop and every consumer: the loop
// publishes one Sample per tick and never blocks, consumers subscribe and
// get what the buffer holds. WebSocket fan-out (Hub) and the MQTT publisher
// drain Recorder subscriptions.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies a websocket telemetry message.
type MessageType string

const (
	// Daemon -> client messages.
	TypeSample MessageType = "sample" // Per-tick diagnostics
	TypeFault  MessageType = "fault"  // Fault record
	TypeStatus MessageType = "status" // Loop status snapshot

	// Client -> daemon messages.
	TypeCommand MessageType = "command" // Operator command

	// Bidirectional.
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the wire envelope for all websocket telemetry traffic.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage wraps data in an envelope stamped with the current time.
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct.
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// CommandData is an operator command arriving over the ops websocket.
type CommandData struct {
	Action string `json:"action"` // "start", "stop", "reset_fault"
}

// PingData carries a ping identifier for latency measurement.
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData is the response to a ping.
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
