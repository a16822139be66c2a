// Package events contains the websocket message contract of the export
// service.
package events

import (
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MessageTypeConnect      MessageType = "connect"
	MessageTypeRunStatus    MessageType = "run:status"
	MessageTypeRunProgress  MessageType = "run:progress"
	MessageTypeRunWorkbook  MessageType = "run:workbook"
	MessageTypeError        MessageType = "error"
	MessageTypeHeartbeat    MessageType = "heartbeat"
	MessageTypeSubscription MessageType = "subscribe"
)

// BaseMessage represents the base structure for all WebSocket messages
type BaseMessage struct {
	ID        string      `json:"id,omitempty"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// WebSocketMessage represents a complete WebSocket message
type WebSocketMessage struct {
	BaseMessage
	Data interface{} `json:"data,omitempty"`
}

// ClientMessage is sent by clients. A subscribe message with a run id
// limits delivery to that run; an empty run id subscribes to every run.
type ClientMessage struct {
	Type  MessageType `json:"type"`
	RunID string      `json:"run_id,omitempty"`
}
