package model

import (
	"time"
)

// EventType represents the type of messaging event.
type EventType string

const (
	EventTypeMessageSent         EventType = "message_sent"
	EventTypeMessageDeleted      EventType = "message_deleted"
	EventTypeConversationRead    EventType = "conversation_read"
	EventTypeConversationDeleted EventType = "conversation_deleted"
)

// MessageEvent is published after a mutation has been persisted. It
// carries identities only, never message content.
type MessageEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	MessageID string    `json:"message_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	ActorRole Role      `json:"actor_role,omitempty"`
	TargetID  string    `json:"target_id,omitempty"`
	Topology  Topology  `json:"topology,omitempty"`
	Count     int64     `json:"count,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
