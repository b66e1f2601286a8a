package realtime

import (
	"context"
	"testing"
	"time"

	"leadflow_backend/internal/chat/domain"
	"leadflow_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newBroadcaster(t *testing.T) *RedisBroadcaster {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedis(rdb, logger.New("development"))
}

func TestBroadcastReachesSubscriber(t *testing.T) {
	b := newBroadcaster(t)
	ctx := context.Background()
	roomID := uuid.New()

	ch, cancel, err := b.Subscribe(ctx, roomID)
	if err != nil {
		t.Fatalf("Subscribe() = %v", err)
	}
	defer cancel()

	want := domain.Message{
		ID:        uuid.New(),
		RoomID:    roomID,
		SenderID:  uuid.New(),
		Type:      domain.SenderVisitor,
		Content:   "hello",
		Seq:       1,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := b.Broadcast(ctx, want); err != nil {
		t.Fatalf("Broadcast() = %v", err)
	}

	select {
	case got := <-ch:
		if got.ID != want.ID || got.Content != want.Content || got.Type != want.Type {
			t.Errorf("received %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestSubscriberOnlySeesOwnRoom(t *testing.T) {
	b := newBroadcaster(t)
	ctx := context.Background()
	roomA, roomB := uuid.New(), uuid.New()

	ch, cancel, err := b.Subscribe(ctx, roomA)
	if err != nil {
		t.Fatalf("Subscribe() = %v", err)
	}
	defer cancel()

	other := domain.Message{ID: uuid.New(), RoomID: roomB, Type: domain.SenderVisitor, Content: "elsewhere"}
	if err := b.Broadcast(ctx, other); err != nil {
		t.Fatalf("Broadcast() = %v", err)
	}
	mine := domain.Message{ID: uuid.New(), RoomID: roomA, Type: domain.SenderVisitor, Content: "here"}
	if err := b.Broadcast(ctx, mine); err != nil {
		t.Fatalf("Broadcast() = %v", err)
	}

	select {
	case got := <-ch:
		if got.RoomID != roomA {
			t.Errorf("received message for room %s, subscribed to %s", got.RoomID, roomA)
		}
		if got.Content != "here" {
			t.Errorf("received %q, want %q", got.Content, "here")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestCancelClosesChannel(t *testing.T) {
	b := newBroadcaster(t)
	ch, cancel, err := b.Subscribe(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Subscribe() = %v", err)
	}

	cancel()

	select {
	case _, open := <-ch:
		if open {
			t.Error("channel delivered a message after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after cancel")
	}
}
