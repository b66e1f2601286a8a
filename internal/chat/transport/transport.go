// Package transport defines the HTTP request and response shapes for chat.
package transport

import (
	"time"

	"leadflow_backend/internal/chat/domain"

	"github.com/google/uuid"
)

type OpenRoomRequest struct {
	VisitorID uuid.UUID `json:"visitorId" binding:"required"`
}

type SendMessageRequest struct {
	SenderID uuid.UUID `json:"senderId" binding:"required"`
	Content  string    `json:"content" binding:"required,min=1,max=4000"`
}

type TakeOverRequest struct {
	OperatorID uuid.UUID `json:"operatorId" binding:"required"`
}

type RoomResponse struct {
	ID         uuid.UUID  `json:"id"`
	VisitorID  uuid.UUID  `json:"visitorId"`
	Status     string     `json:"status"`
	OperatorID *uuid.UUID `json:"operatorId,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func ToRoomResponse(room domain.Room) RoomResponse {
	return RoomResponse{
		ID:         room.ID,
		VisitorID:  room.VisitorID,
		Status:     string(room.Status),
		OperatorID: room.OperatorID,
		CreatedAt:  room.CreatedAt,
		UpdatedAt:  room.UpdatedAt,
	}
}

type MessageResponse struct {
	ID        uuid.UUID      `json:"id"`
	RoomID    uuid.UUID      `json:"roomId"`
	SenderID  uuid.UUID      `json:"senderId"`
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Seq       int64          `json:"seq"`
	CreatedAt time.Time      `json:"createdAt"`
}

func ToMessageResponse(msg domain.Message) MessageResponse {
	return MessageResponse{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		SenderID:  msg.SenderID,
		Type:      string(msg.Type),
		Content:   msg.Content,
		Metadata:  msg.Metadata,
		Seq:       msg.Seq,
		CreatedAt: msg.CreatedAt,
	}
}
