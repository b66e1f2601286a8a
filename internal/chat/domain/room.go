// Package domain holds the chat model: rooms with a guarded status machine
// and an ordered message log.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus is the handling state of a chat room.
type RoomStatus string

const (
	// RoomAIActive means the automated responder answers visitor messages.
	RoomAIActive RoomStatus = "ai_active"
	// RoomEscalated means the room waits for a human operator.
	RoomEscalated RoomStatus = "escalated"
	// RoomOperatorActive means a human operator owns the conversation.
	RoomOperatorActive RoomStatus = "operator_active"
	// RoomClosed is terminal.
	RoomClosed RoomStatus = "closed"
)

// transitions is the full set of legal status moves. Everything else is
// rejected; closed has no outgoing edges.
var transitions = map[RoomStatus][]RoomStatus{
	RoomAIActive:       {RoomEscalated, RoomOperatorActive, RoomClosed},
	RoomEscalated:      {RoomOperatorActive, RoomClosed},
	RoomOperatorActive: {RoomClosed},
}

// CanTransition reports whether from → to is a legal status move.
func CanTransition(from, to RoomStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions.
func IsTerminal(s RoomStatus) bool {
	return len(transitions[s]) == 0
}

// IsKnownStatus reports whether s is a recognized room status.
func IsKnownStatus(s RoomStatus) bool {
	switch s {
	case RoomAIActive, RoomEscalated, RoomOperatorActive, RoomClosed:
		return true
	}
	return false
}

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderVisitor  SenderType = "visitor"
	SenderAI       SenderType = "ai"
	SenderOperator SenderType = "operator"
	SenderSystem   SenderType = "system"
)

// Room is one visitor conversation.
type Room struct {
	ID         uuid.UUID
	VisitorID  uuid.UUID
	Status     RoomStatus
	OperatorID *uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Message is one entry in a room's ordered log. Metadata carries optional
// sender-specific details, like the model and confidence of an automated
// reply.
type Message struct {
	ID        uuid.UUID
	RoomID    uuid.UUID
	SenderID  uuid.UUID
	Type      SenderType
	Content   string
	Metadata  map[string]any
	Seq       int64
	CreatedAt time.Time
}
