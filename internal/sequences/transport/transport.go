// Package transport defines the HTTP request and response shapes for sequences.
package transport

import (
	"time"

	"leadflow_backend/internal/sequences/domain"

	"github.com/google/uuid"
)

type StepRequest struct {
	DelayDays int    `json:"delayDays" binding:"min=0"`
	Subject   string `json:"subject" binding:"required"`
	Body      string `json:"body" binding:"required"`
}

type CreateSequenceRequest struct {
	Name         string        `json:"name" binding:"required,min=1,max=200"`
	ScoreMin     int           `json:"scoreMin" binding:"min=0,max=100"`
	ScoreMax     int           `json:"scoreMax" binding:"min=0,max=100"`
	TargetStatus string        `json:"targetStatus" binding:"omitempty,max=50"`
	Steps        []StepRequest `json:"steps" binding:"required,min=1,dive"`
}

func (r CreateSequenceRequest) ToDomain() domain.Sequence {
	targetStatus := r.TargetStatus
	if targetStatus == "" {
		targetStatus = domain.TargetAny
	}
	seq := domain.Sequence{
		Name:         r.Name,
		ScoreMin:     r.ScoreMin,
		ScoreMax:     r.ScoreMax,
		TargetStatus: targetStatus,
		Active:       true,
	}
	for i, step := range r.Steps {
		seq.Steps = append(seq.Steps, domain.Step{
			Number:    i + 1,
			DelayDays: step.DelayDays,
			Subject:   step.Subject,
			Body:      step.Body,
		})
	}
	return seq
}

type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type StepResponse struct {
	Number    int    `json:"number"`
	DelayDays int    `json:"delayDays"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

type SequenceResponse struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	ScoreMin     int            `json:"scoreMin"`
	ScoreMax     int            `json:"scoreMax"`
	TargetStatus string         `json:"targetStatus"`
	Active       bool           `json:"active"`
	Steps        []StepResponse `json:"steps"`
	CreatedAt    time.Time      `json:"createdAt"`
}

func ToSequenceResponse(seq domain.Sequence) SequenceResponse {
	out := SequenceResponse{
		ID:           seq.ID,
		Name:         seq.Name,
		ScoreMin:     seq.ScoreMin,
		ScoreMax:     seq.ScoreMax,
		TargetStatus: seq.TargetStatus,
		Active:       seq.Active,
		CreatedAt:    seq.CreatedAt,
	}
	for _, step := range seq.Steps {
		out.Steps = append(out.Steps, StepResponse{
			Number:    step.Number,
			DelayDays: step.DelayDays,
			Subject:   step.Subject,
			Body:      step.Body,
		})
	}
	return out
}

type EnrollmentResponse struct {
	ID         uuid.UUID  `json:"id"`
	LeadID     uuid.UUID  `json:"leadId"`
	SequenceID uuid.UUID  `json:"sequenceId"`
	Status     string     `json:"status"`
	EnrolledAt time.Time  `json:"enrolledAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
	EndReason  string     `json:"endReason,omitempty"`
}

func ToEnrollmentResponse(e domain.Enrollment) EnrollmentResponse {
	return EnrollmentResponse{
		ID:         e.ID,
		LeadID:     e.LeadID,
		SequenceID: e.SequenceID,
		Status:     string(e.Status),
		EnrolledAt: e.EnrolledAt,
		EndedAt:    e.EndedAt,
		EndReason:  e.EndReason,
	}
}

type DeliveryResponse struct {
	SequenceID uuid.UUID `json:"sequenceId"`
	StepNumber int       `json:"stepNumber"`
	Outcome    string    `json:"outcome"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"lastError,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func ToDeliveryResponse(rec domain.DeliveryRecord) DeliveryResponse {
	return DeliveryResponse{
		SequenceID: rec.SequenceID,
		StepNumber: rec.StepNumber,
		Outcome:    string(rec.Outcome),
		Attempts:   rec.Attempts,
		LastError:  rec.LastError,
		UpdatedAt:  rec.UpdatedAt,
	}
}
