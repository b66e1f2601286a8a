// Package realtime fans chat messages out to live subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"leadflow_backend/internal/chat/domain"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Broadcaster distributes room messages to every connected listener,
// across processes.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg domain.Message) error
	Subscribe(ctx context.Context, roomID uuid.UUID) (<-chan domain.Message, func(), error)
}

func roomChannel(roomID uuid.UUID) string {
	return "chat.room." + roomID.String()
}

// RedisBroadcaster implements Broadcaster over redis pub/sub, with one
// channel per room.
type RedisBroadcaster struct {
	rdb *redis.Client
	log *logger.Logger
}

// NewRedis creates a redis-backed broadcaster.
func NewRedis(rdb *redis.Client, log *logger.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb, log: log}
}

// Broadcast publishes the message to the room's channel.
func (b *RedisBroadcaster) Broadcast(ctx context.Context, msg domain.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := b.rdb.Publish(ctx, roomChannel(msg.RoomID), payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", roomChannel(msg.RoomID), err)
	}
	return nil
}

// Subscribe starts listening to the room's channel. The returned cancel
// function must be called to release the subscription; the message channel
// closes after cancellation.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, roomID uuid.UUID) (<-chan domain.Message, func(), error) {
	pubsub := b.rdb.Subscribe(ctx, roomChannel(roomID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe to %s: %w", roomChannel(roomID), err)
	}

	out := make(chan domain.Message, 16)
	go func() {
		defer close(out)
		for raw := range pubsub.Channel() {
			var msg domain.Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				b.log.Error("broadcast payload decode failed", "room_id", roomID, "error", err)
				continue
			}
			select {
			case out <- msg:
			default:
				// Drop for slow consumers; the message log remains the
				// source of truth.
			}
		}
	}()

	cancel := func() { pubsub.Close() }
	return out, cancel, nil
}
