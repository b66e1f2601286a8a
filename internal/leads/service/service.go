// Package service implements the lead intake and lifecycle use cases.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/leads/scoring"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/ident"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"
	"leadflow_backend/platform/sanitize"
	"leadflow_backend/platform/validator"

	"github.com/google/uuid"
)

// Store is the persistence surface the service needs.
type Store interface {
	Insert(ctx context.Context, lead domain.Lead) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	List(ctx context.Context, limit int) ([]domain.Lead, error)
	UpdateAttributes(ctx context.Context, id uuid.UUID, attrs domain.Attributes, score int, now time.Time) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, now time.Time) error
}

// EnrollmentEvaluator re-evaluates sequence enrollment after a score or
// status change. The sequences module satisfies this; it is injected with a
// setter to avoid a package cycle between leads and sequences.
type EnrollmentEvaluator interface {
	EvaluateLead(ctx context.Context, leadID uuid.UUID, score int, status string) error
	CancelForLead(ctx context.Context, leadID uuid.UUID, reason string) error
}

// Service orchestrates lead creation, scoring and status transitions.
type Service struct {
	store     Store
	engine    *scoring.Engine
	bus       events.Bus
	ids       ident.Generator
	val       *validator.Validator
	log       *logger.Logger
	evaluator EnrollmentEvaluator
	now       func() time.Time
}

// New creates the lead service.
func New(store Store, engine *scoring.Engine, bus events.Bus, ids ident.Generator, val *validator.Validator, log *logger.Logger) *Service {
	return &Service{
		store:  store,
		engine: engine,
		bus:    bus,
		ids:    ids,
		val:    val,
		log:    log,
		now:    time.Now,
	}
}

// SetEnrollmentEvaluator wires the sequences module in after construction.
func (s *Service) SetEnrollmentEvaluator(ev EnrollmentEvaluator) {
	s.evaluator = ev
}

// Create records a new lead from intake, scores it and announces it on the bus.
func (s *Service) Create(ctx context.Context, email, phoneRaw, firstName, lastName string, attrs domain.Attributes) (domain.Lead, error) {
	if err := s.val.Var(email, "required,email"); err != nil {
		return domain.Lead{}, apperr.Validation("a valid email address is required")
	}

	now := s.now().UTC()

	lead := domain.Lead{
		ID:         s.ids.NewID(),
		Email:      strings.ToLower(strings.TrimSpace(email)),
		Phone:      phone.NormalizeE164(phoneRaw),
		FirstName:  sanitize.Text(firstName),
		LastName:   sanitize.Text(lastName),
		Status:     domain.StatusNew,
		Attributes: attrs,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	lead.Score = s.engine.Score(attrs)

	if err := s.store.Insert(ctx, lead); err != nil {
		s.log.DatabaseError("leads.insert", err)
		return domain.Lead{}, apperr.Wrap(apperr.KindInternal, "could not store lead", err)
	}

	s.bus.Publish(ctx, events.LeadCreated{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		Score:     lead.Score,
	})

	if s.evaluator != nil {
		if err := s.evaluator.EvaluateLead(ctx, lead.ID, lead.Score, string(lead.Status)); err != nil {
			s.log.Error("enrollment evaluation failed", "lead_id", lead.ID, "error", err)
		}
	}

	return lead, nil
}

// Get returns a single lead.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Lead{}, apperr.NotFound("lead not found")
		}
		return domain.Lead{}, apperr.Wrap(apperr.KindInternal, "could not load lead", err)
	}
	return lead, nil
}

// List returns the highest-scoring leads first.
func (s *Service) List(ctx context.Context, limit int) ([]domain.Lead, error) {
	leads, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "could not list leads", err)
	}
	return leads, nil
}

// UpdateAttributes replaces the lead's scoring attributes, recomputes the
// score and re-evaluates sequence enrollment when the score moved.
func (s *Service) UpdateAttributes(ctx context.Context, id uuid.UUID, attrs domain.Attributes) (domain.Lead, error) {
	lead, err := s.Get(ctx, id)
	if err != nil {
		return domain.Lead{}, err
	}

	previous := lead.Score
	score := s.engine.Score(attrs)
	now := s.now().UTC()

	if err := s.store.UpdateAttributes(ctx, id, attrs, score, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Lead{}, apperr.NotFound("lead not found")
		}
		return domain.Lead{}, apperr.Wrap(apperr.KindInternal, "could not update lead", err)
	}

	lead.Attributes = attrs
	lead.Score = score
	lead.UpdatedAt = now

	s.bus.Publish(ctx, events.LeadScored{
		BaseEvent:     events.NewBaseEvent(),
		LeadID:        id,
		Score:         score,
		PreviousScore: previous,
	})

	if s.evaluator != nil && score != previous && !domain.IsTerminalStatus(lead.Status) {
		if err := s.evaluator.EvaluateLead(ctx, id, score, string(lead.Status)); err != nil {
			s.log.Error("enrollment re-evaluation failed", "lead_id", id, "error", err)
		}
	}

	return lead, nil
}

// UpdateStatus moves the lead through the sales pipeline. Terminal statuses
// cancel any active sequence enrollment; every other move re-matches the
// lead, since sequences can target a single status.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) (domain.Lead, error) {
	if !domain.IsKnownStatus(status) {
		return domain.Lead{}, apperr.Validation("unknown lead status").WithDetails(map[string]string{"status": string(status)})
	}

	now := s.now().UTC()
	if err := s.store.UpdateStatus(ctx, id, status, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Lead{}, apperr.NotFound("lead not found")
		}
		return domain.Lead{}, apperr.Wrap(apperr.KindInternal, "could not update lead status", err)
	}

	lead, err := s.Get(ctx, id)
	if err != nil {
		return domain.Lead{}, err
	}

	if s.evaluator != nil {
		if domain.IsTerminalStatus(status) {
			if err := s.evaluator.CancelForLead(ctx, id, "lead reached terminal status"); err != nil {
				s.log.Error("enrollment cancellation failed", "lead_id", id, "error", err)
			}
		} else if err := s.evaluator.EvaluateLead(ctx, id, lead.Score, string(status)); err != nil {
			s.log.Error("enrollment re-evaluation failed", "lead_id", id, "error", err)
		}
	}

	return lead, nil
}

// ScoreBreakdown returns the per-factor contribution for a lead.
func (s *Service) ScoreBreakdown(ctx context.Context, id uuid.UUID) (scoring.Result, error) {
	lead, err := s.Get(ctx, id)
	if err != nil {
		return scoring.Result{}, err
	}
	return s.engine.ScoreDetail(lead.Attributes), nil
}

// Engine exposes the scoring engine for read-only presentation helpers.
func (s *Service) Engine() *scoring.Engine {
	return s.engine
}
