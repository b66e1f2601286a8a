package events

import "github.com/google/uuid"

// LeadCreated fires when a new lead is recorded from intake.
type LeadCreated struct {
	BaseEvent
	LeadID uuid.UUID
	Score  int
}

func (LeadCreated) EventName() string { return "lead.created" }

// LeadScored fires when a lead's score is recomputed after an attribute change.
type LeadScored struct {
	BaseEvent
	LeadID        uuid.UUID
	Score         int
	PreviousScore int
}

func (LeadScored) EventName() string { return "lead.scored" }

// LeadEnrolled fires when a lead is enrolled into a nurture sequence.
type LeadEnrolled struct {
	BaseEvent
	LeadID       uuid.UUID
	SequenceID   uuid.UUID
	EnrollmentID uuid.UUID
}

func (LeadEnrolled) EventName() string { return "sequence.enrolled" }

// EnrollmentEnded fires when an enrollment is cancelled, replaced, or completed.
type EnrollmentEnded struct {
	BaseEvent
	LeadID       uuid.UUID
	SequenceID   uuid.UUID
	EnrollmentID uuid.UUID
	Reason       string
}

func (EnrollmentEnded) EventName() string { return "sequence.enrollment_ended" }

// SequenceStepSent fires after a sequence step email is dispatched.
type SequenceStepSent struct {
	BaseEvent
	LeadID     uuid.UUID
	SequenceID uuid.UUID
	StepNumber int
}

func (SequenceStepSent) EventName() string { return "sequence.step_sent" }

// SequenceStepFailed fires when a step reaches its terminal failed outcome.
type SequenceStepFailed struct {
	BaseEvent
	LeadID     uuid.UUID
	SequenceID uuid.UUID
	StepNumber int
	LastError  string
}

func (SequenceStepFailed) EventName() string { return "sequence.step_failed" }

// ChatMessageCreated fires after a message is appended to a room.
type ChatMessageCreated struct {
	BaseEvent
	RoomID    uuid.UUID
	MessageID uuid.UUID
	Type      string
}

func (ChatMessageCreated) EventName() string { return "chat.message_created" }

// RoomEscalated fires when a visitor requests human help.
type RoomEscalated struct {
	BaseEvent
	RoomID uuid.UUID
}

func (RoomEscalated) EventName() string { return "chat.room_escalated" }

// RoomTakenOver fires when an operator claims a room.
type RoomTakenOver struct {
	BaseEvent
	RoomID     uuid.UUID
	OperatorID uuid.UUID
}

func (RoomTakenOver) EventName() string { return "chat.room_taken_over" }

// RoomClosed fires when a room reaches its terminal state.
type RoomClosed struct {
	BaseEvent
	RoomID uuid.UUID
}

func (RoomClosed) EventName() string { return "chat.room_closed" }
