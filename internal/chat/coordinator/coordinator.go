// Package coordinator drives the chat room state machine: automated replies,
// escalation to operators and the guarded takeover handshake.
package coordinator

import (
	"context"
	"errors"
	"time"

	"leadflow_backend/internal/chat/domain"
	"leadflow_backend/internal/chat/realtime"
	"leadflow_backend/internal/chat/repository"
	"leadflow_backend/internal/chat/responder"
	"leadflow_backend/internal/events"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/ident"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Store is the persistence surface the coordinator needs.
type Store interface {
	InsertRoom(ctx context.Context, room domain.Room) error
	GetRoom(ctx context.Context, id uuid.UUID) (domain.Room, error)
	ListRoomsByStatus(ctx context.Context, status domain.RoomStatus) ([]domain.Room, error)
	CompareAndSetStatus(ctx context.Context, roomID uuid.UUID, from, to domain.RoomStatus, operatorID *uuid.UUID, now time.Time) (bool, error)
	CloseRoom(ctx context.Context, roomID uuid.UUID, now time.Time) (bool, error)
	InsertMessage(ctx context.Context, msg domain.Message) (domain.Message, error)
	ListMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]domain.Message, error)
}

const escalationNotice = "Thanks for your patience. A member of our team will join this conversation shortly."

// Coordinator orchestrates message handling and room status transitions.
type Coordinator struct {
	store       Store
	responder   responder.Responder
	broadcaster realtime.Broadcaster
	bus         events.Bus
	ids         ident.Generator
	log         *logger.Logger
	now         func() time.Time
}

// New creates the coordinator. responder may be nil when automated replies
// are disabled; broadcaster may be nil in workers without live listeners.
func New(store Store, rsp responder.Responder, bc realtime.Broadcaster, bus events.Bus, ids ident.Generator, log *logger.Logger) *Coordinator {
	return &Coordinator{
		store:       store,
		responder:   rsp,
		broadcaster: bc,
		bus:         bus,
		ids:         ids,
		log:         log,
		now:         time.Now,
	}
}

// OpenRoom starts a new conversation in automated mode.
func (c *Coordinator) OpenRoom(ctx context.Context, visitorID uuid.UUID) (domain.Room, error) {
	now := c.now().UTC()
	room := domain.Room{
		ID:        c.ids.NewID(),
		VisitorID: visitorID,
		Status:    domain.RoomAIActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.InsertRoom(ctx, room); err != nil {
		c.log.DatabaseError("chat_rooms.insert", err)
		return domain.Room{}, apperr.Wrap(apperr.KindInternal, "could not open room", err)
	}
	return room, nil
}

// GetRoom loads one room.
func (c *Coordinator) GetRoom(ctx context.Context, roomID uuid.UUID) (domain.Room, error) {
	room, err := c.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Room{}, apperr.NotFound("room not found")
		}
		return domain.Room{}, apperr.Wrap(apperr.KindInternal, "could not load room", err)
	}
	return room, nil
}

// Messages returns the room transcript in canonical order.
func (c *Coordinator) Messages(ctx context.Context, roomID uuid.UUID, limit int) ([]domain.Message, error) {
	if _, err := c.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	messages, err := c.store.ListMessages(ctx, roomID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not list messages", err)
	}
	return messages, nil
}

// HandleInbound appends a visitor message and, when the room is still in
// automated mode at that moment, produces the assistant reply. A provider
// failure escalates the room instead of dropping the visitor.
func (c *Coordinator) HandleInbound(ctx context.Context, roomID, senderID uuid.UUID, content string) (domain.Message, error) {
	room, err := c.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Message{}, err
	}
	if room.Status == domain.RoomClosed {
		return domain.Message{}, apperr.Gone("room is closed")
	}

	content = sanitize.Text(content)
	if content == "" {
		return domain.Message{}, apperr.Validation("message content is required")
	}

	msg, err := c.append(ctx, roomID, senderID, domain.SenderVisitor, content, nil)
	if err != nil {
		return domain.Message{}, err
	}

	// The operator may have taken over between the first read and now.
	// Only a room still in automated mode gets an assistant reply.
	current, err := c.store.GetRoom(ctx, roomID)
	if err == nil && current.Status == domain.RoomAIActive {
		if c.responder == nil {
			c.escalateAfterFailure(ctx, roomID)
		} else {
			c.autoReply(ctx, roomID, content)
		}
	}

	return msg, nil
}

func (c *Coordinator) autoReply(ctx context.Context, roomID uuid.UUID, inbound string) {
	history, err := c.store.ListMessages(ctx, roomID, 50)
	if err != nil {
		c.log.DatabaseError("chat_messages.list", err)
		return
	}

	reply, meta, err := c.responder.Reply(ctx, history, inbound)
	if err != nil {
		c.log.Error("responder failed, escalating room", "room_id", roomID, "error", err)
		c.escalateAfterFailure(ctx, roomID)
		return
	}

	// Re-read before posting: a takeover during generation wins and the
	// automated reply is discarded.
	current, err := c.store.GetRoom(ctx, roomID)
	if err != nil || current.Status != domain.RoomAIActive {
		return
	}

	if _, err := c.append(ctx, roomID, uuid.Nil, domain.SenderAI, reply, meta); err != nil {
		c.log.DatabaseError("chat_messages.insert", err)
	}
}

func (c *Coordinator) escalateAfterFailure(ctx context.Context, roomID uuid.UUID) {
	swapped, err := c.store.CompareAndSetStatus(ctx, roomID, domain.RoomAIActive, domain.RoomEscalated, nil, c.now().UTC())
	if err != nil {
		c.log.DatabaseError("chat_rooms.escalate", err)
		return
	}
	if !swapped {
		return
	}

	if _, err := c.append(ctx, roomID, uuid.Nil, domain.SenderSystem, escalationNotice, nil); err != nil {
		c.log.DatabaseError("chat_messages.insert", err)
	}
	c.bus.Publish(ctx, events.RoomEscalated{
		BaseEvent: events.NewBaseEvent(),
		RoomID:    roomID,
	})
}

// Escalate hands an automated room to the operator queue. Escalating a room
// that already left automated mode is not an error for escalated rooms, so
// retried requests stay safe.
func (c *Coordinator) Escalate(ctx context.Context, roomID uuid.UUID) error {
	room, err := c.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}

	switch room.Status {
	case domain.RoomEscalated:
		return nil
	case domain.RoomClosed:
		return apperr.Gone("room is closed")
	case domain.RoomOperatorActive:
		return apperr.Conflict("an operator already handles this room")
	}

	swapped, err := c.store.CompareAndSetStatus(ctx, roomID, domain.RoomAIActive, domain.RoomEscalated, nil, c.now().UTC())
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "could not escalate room", err)
	}
	if !swapped {
		return apperr.Conflict("room status changed concurrently")
	}

	if _, err := c.append(ctx, roomID, uuid.Nil, domain.SenderSystem, escalationNotice, nil); err != nil {
		c.log.DatabaseError("chat_messages.insert", err)
	}
	c.bus.Publish(ctx, events.RoomEscalated{
		BaseEvent: events.NewBaseEvent(),
		RoomID:    roomID,
	})
	return nil
}

// TakeOver assigns the room to an operator. Exactly one operator can win a
// contested takeover; everyone else gets a conflict.
func (c *Coordinator) TakeOver(ctx context.Context, roomID, operatorID uuid.UUID) error {
	if _, err := c.GetRoom(ctx, roomID); err != nil {
		return err
	}
	now := c.now().UTC()

	swapped, err := c.store.CompareAndSetStatus(ctx, roomID, domain.RoomEscalated, domain.RoomOperatorActive, &operatorID, now)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "could not take over room", err)
	}
	if !swapped {
		// Direct takeover of a still-automated room is also legal.
		swapped, err = c.store.CompareAndSetStatus(ctx, roomID, domain.RoomAIActive, domain.RoomOperatorActive, &operatorID, now)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "could not take over room", err)
		}
	}
	if !swapped {
		return apperr.Conflict("room already handled")
	}

	c.bus.Publish(ctx, events.RoomTakenOver{
		BaseEvent:  events.NewBaseEvent(),
		RoomID:     roomID,
		OperatorID: operatorID,
	})
	return nil
}

// SendOperatorMessage appends a human operator's message. The room must be
// operator-owned.
func (c *Coordinator) SendOperatorMessage(ctx context.Context, roomID, operatorID uuid.UUID, content string) (domain.Message, error) {
	room, err := c.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Message{}, err
	}
	if room.Status == domain.RoomClosed {
		return domain.Message{}, apperr.Gone("room is closed")
	}
	if room.Status != domain.RoomOperatorActive {
		return domain.Message{}, apperr.Conflict("take over the room before replying")
	}

	content = sanitize.Text(content)
	if content == "" {
		return domain.Message{}, apperr.Validation("message content is required")
	}
	return c.append(ctx, roomID, operatorID, domain.SenderOperator, content, nil)
}

// Close ends the conversation from any non-closed status. Closing twice is
// not an error.
func (c *Coordinator) Close(ctx context.Context, roomID uuid.UUID) error {
	if _, err := c.GetRoom(ctx, roomID); err != nil {
		return err
	}

	closed, err := c.store.CloseRoom(ctx, roomID, c.now().UTC())
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "could not close room", err)
	}
	if closed {
		c.bus.Publish(ctx, events.RoomClosed{
			BaseEvent: events.NewBaseEvent(),
			RoomID:    roomID,
		})
	}
	return nil
}

// ListEscalated returns the operator queue, longest-waiting first.
func (c *Coordinator) ListEscalated(ctx context.Context) ([]domain.Room, error) {
	rooms, err := c.store.ListRoomsByStatus(ctx, domain.RoomEscalated)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not list escalated rooms", err)
	}
	return rooms, nil
}

func (c *Coordinator) append(ctx context.Context, roomID, senderID uuid.UUID, senderType domain.SenderType, content string, metadata map[string]any) (domain.Message, error) {
	msg := domain.Message{
		ID:        c.ids.NewID(),
		RoomID:    roomID,
		SenderID:  senderID,
		Type:      senderType,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: c.now().UTC(),
	}

	stored, err := c.store.InsertMessage(ctx, msg)
	if err != nil {
		return domain.Message{}, apperr.Wrap(apperr.KindInternal, "could not store message", err)
	}

	c.bus.Publish(ctx, events.ChatMessageCreated{
		BaseEvent: events.NewBaseEvent(),
		RoomID:    roomID,
		MessageID: stored.ID,
		Type:      string(senderType),
	})
	if c.broadcaster != nil {
		if err := c.broadcaster.Broadcast(ctx, stored); err != nil {
			c.log.Error("broadcast failed", "room_id", roomID, "error", err)
		}
	}
	return stored, nil
}
