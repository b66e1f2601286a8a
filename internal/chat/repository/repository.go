// Package repository provides postgres persistence for chat rooms and messages.
package repository

import (
	"context"
	"errors"
	"time"

	"leadflow_backend/internal/chat/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a room or message does not exist.
var ErrNotFound = errors.New("not found")

// Repository is the pgx-backed chat store.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new chat repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertRoom stores a new room.
func (r *Repository) InsertRoom(ctx context.Context, room domain.Room) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chat_rooms (id, visitor_id, status, operator_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		room.ID, room.VisitorID, string(room.Status), room.OperatorID, room.CreatedAt)
	return err
}

// GetRoom loads one room.
func (r *Repository) GetRoom(ctx context.Context, id uuid.UUID) (domain.Room, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, visitor_id, status, operator_id, created_at, updated_at
		 FROM chat_rooms WHERE id = $1`, id)
	return scanRoom(row)
}

// ListRoomsByStatus returns rooms in the given status, oldest first so the
// longest-waiting escalation surfaces at the top of the queue.
func (r *Repository) ListRoomsByStatus(ctx context.Context, status domain.RoomStatus) ([]domain.Room, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, visitor_id, status, operator_id, created_at, updated_at
		 FROM chat_rooms WHERE status = $1 ORDER BY updated_at`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []domain.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// CompareAndSetStatus moves the room from one status to another atomically.
// It reports whether this caller won the transition; a false return means
// another writer changed the status first.
func (r *Repository) CompareAndSetStatus(ctx context.Context, roomID uuid.UUID, from, to domain.RoomStatus, operatorID *uuid.UUID, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE chat_rooms
		 SET status = $3, operator_id = COALESCE($4, operator_id), updated_at = $5
		 WHERE id = $1 AND status = $2`,
		roomID, string(from), string(to), operatorID, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CloseRoom moves any non-closed room to closed.
func (r *Repository) CloseRoom(ctx context.Context, roomID uuid.UUID, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE chat_rooms SET status = 'closed', updated_at = $2
		 WHERE id = $1 AND status <> 'closed'`, roomID, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// InsertMessage appends a message to the room log. The database assigns the
// seq that fixes the total order within the room.
func (r *Repository) InsertMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO chat_messages (id, room_id, sender_id, message_type, content, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING seq`,
		msg.ID, msg.RoomID, msg.SenderID, string(msg.Type), msg.Content, msg.Metadata, msg.CreatedAt)
	if err := row.Scan(&msg.Seq); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// ListMessages returns the room's messages in insertion order.
func (r *Repository) ListMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]domain.Message, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, room_id, sender_id, message_type, content, metadata, seq, created_at
		 FROM chat_messages WHERE room_id = $1
		 ORDER BY created_at, seq LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var msgType string
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msgType, &msg.Content, &msg.Metadata, &msg.Seq, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Type = domain.SenderType(msgType)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func scanRoom(row pgx.Row) (domain.Room, error) {
	var room domain.Room
	var status string
	err := row.Scan(&room.ID, &room.VisitorID, &status, &room.OperatorID, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Room{}, ErrNotFound
		}
		return domain.Room{}, err
	}
	room.Status = domain.RoomStatus(status)
	return room, nil
}
