// Package service implements sequence management and enrollment evaluation.
package service

import (
	"context"
	"errors"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/sequences/domain"
	"leadflow_backend/internal/sequences/matcher"
	"leadflow_backend/internal/sequences/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/ident"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the persistence surface the service needs.
type Store interface {
	InsertSequence(ctx context.Context, seq domain.Sequence) error
	GetSequence(ctx context.Context, id uuid.UUID) (domain.Sequence, error)
	ListSequences(ctx context.Context) ([]domain.Sequence, error)
	ListActiveSequences(ctx context.Context) ([]domain.Sequence, error)
	SetSequenceActive(ctx context.Context, id uuid.UUID, active bool, now time.Time) error
	InsertEnrollment(ctx context.Context, e domain.Enrollment) error
	GetActiveEnrollment(ctx context.Context, leadID uuid.UUID) (domain.Enrollment, error)
	EndEnrollment(ctx context.Context, id uuid.UUID, status domain.EnrollmentStatus, reason string, now time.Time) (bool, error)
	ListDeliveries(ctx context.Context, leadID uuid.UUID) ([]domain.DeliveryRecord, error)
}

// Service manages sequence definitions and keeps each lead enrolled in the
// sequence matching its current score.
type Service struct {
	store Store
	bus   events.Bus
	ids   ident.Generator
	log   *logger.Logger
	now   func() time.Time
}

// New creates the sequences service.
func New(store Store, bus events.Bus, ids ident.Generator, log *logger.Logger) *Service {
	return &Service{store: store, bus: bus, ids: ids, log: log, now: time.Now}
}

// CreateSequence validates and stores a new sequence definition.
func (s *Service) CreateSequence(ctx context.Context, seq domain.Sequence) (domain.Sequence, error) {
	now := s.now().UTC()
	seq.ID = s.ids.NewID()
	seq.CreatedAt = now
	seq.UpdatedAt = now
	if seq.TargetStatus == "" {
		seq.TargetStatus = domain.TargetAny
	}
	for i := range seq.Steps {
		seq.Steps[i].SequenceID = seq.ID
	}

	if err := seq.Validate(); err != nil {
		return domain.Sequence{}, apperr.Validation(err.Error())
	}
	if err := s.store.InsertSequence(ctx, seq); err != nil {
		s.log.DatabaseError("sequences.insert", err)
		return domain.Sequence{}, apperr.Wrap(apperr.KindInternal, "could not store sequence", err)
	}
	return seq, nil
}

// GetSequence loads one sequence with its steps.
func (s *Service) GetSequence(ctx context.Context, id uuid.UUID) (domain.Sequence, error) {
	seq, err := s.store.GetSequence(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Sequence{}, apperr.NotFound("sequence not found")
		}
		return domain.Sequence{}, apperr.Wrap(apperr.KindInternal, "could not load sequence", err)
	}
	return seq, nil
}

// ListSequences returns all sequence definitions.
func (s *Service) ListSequences(ctx context.Context) ([]domain.Sequence, error) {
	sequences, err := s.store.ListSequences(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not list sequences", err)
	}
	return sequences, nil
}

// SetSequenceActive activates or deactivates a sequence. Existing
// enrollments keep running; the flag only affects future matching.
func (s *Service) SetSequenceActive(ctx context.Context, id uuid.UUID, active bool) error {
	err := s.store.SetSequenceActive(ctx, id, active, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("sequence not found")
		}
		return apperr.Wrap(apperr.KindInternal, "could not update sequence", err)
	}
	return nil
}

// EvaluateLead aligns the lead's enrollment with its current score and
// pipeline status. The lead ends up enrolled in the best-matching active
// sequence, or in none when no sequence targets it. Switching sequences
// replaces the old enrollment and restarts step timing from now; a match on
// the same sequence keeps the existing enrollment untouched.
func (s *Service) EvaluateLead(ctx context.Context, leadID uuid.UUID, score int, status string) error {
	sequences, err := s.store.ListActiveSequences(ctx)
	if err != nil {
		return err
	}
	target, matched := matcher.Match(sequences, score, status)

	current, err := s.store.GetActiveEnrollment(ctx, leadID)
	hasCurrent := err == nil
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	if !matched {
		if hasCurrent {
			return s.end(ctx, current, domain.EnrollmentCancelled, "lead left every sequence band")
		}
		return nil
	}

	if hasCurrent {
		if current.SequenceID == target.ID {
			return nil
		}
		if err := s.end(ctx, current, domain.EnrollmentReplaced, "score moved to another sequence"); err != nil {
			return err
		}
	}

	return s.enroll(ctx, leadID, target)
}

// CancelForLead ends the lead's active enrollment, if any.
func (s *Service) CancelForLead(ctx context.Context, leadID uuid.UUID, reason string) error {
	current, err := s.store.GetActiveEnrollment(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.end(ctx, current, domain.EnrollmentCancelled, reason)
}

// EnrollmentFor returns the lead's active enrollment.
func (s *Service) EnrollmentFor(ctx context.Context, leadID uuid.UUID) (domain.Enrollment, error) {
	e, err := s.store.GetActiveEnrollment(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Enrollment{}, apperr.NotFound("lead has no active enrollment")
		}
		return domain.Enrollment{}, apperr.Wrap(apperr.KindInternal, "could not load enrollment", err)
	}
	return e, nil
}

// DeliveriesFor returns the step delivery history of a lead.
func (s *Service) DeliveriesFor(ctx context.Context, leadID uuid.UUID) ([]domain.DeliveryRecord, error) {
	records, err := s.store.ListDeliveries(ctx, leadID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not list deliveries", err)
	}
	return records, nil
}

func (s *Service) enroll(ctx context.Context, leadID uuid.UUID, seq domain.Sequence) error {
	e := domain.Enrollment{
		ID:         s.ids.NewID(),
		LeadID:     leadID,
		SequenceID: seq.ID,
		Status:     domain.EnrollmentActive,
		EnrolledAt: s.now().UTC(),
	}
	if err := s.store.InsertEnrollment(ctx, e); err != nil {
		return err
	}

	s.bus.Publish(ctx, events.LeadEnrolled{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       leadID,
		SequenceID:   seq.ID,
		EnrollmentID: e.ID,
	})
	return nil
}

func (s *Service) end(ctx context.Context, e domain.Enrollment, status domain.EnrollmentStatus, reason string) error {
	ended, err := s.store.EndEnrollment(ctx, e.ID, status, reason, s.now().UTC())
	if err != nil {
		return err
	}
	if ended {
		s.bus.Publish(ctx, events.EnrollmentEnded{
			BaseEvent:    events.NewBaseEvent(),
			LeadID:       e.LeadID,
			SequenceID:   e.SequenceID,
			EnrollmentID: e.ID,
			Reason:       reason,
		})
	}
	return nil
}
