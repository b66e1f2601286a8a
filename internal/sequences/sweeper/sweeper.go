// Package sweeper walks active enrollments and dispatches due steps.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/internal/email"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/sequences/domain"
	"leadflow_backend/internal/sequences/repository"
	"leadflow_backend/internal/sequences/tracker"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Store is the enrollment persistence the sweeper needs beyond the tracker.
type Store interface {
	ListActiveEnrollments(ctx context.Context) ([]repository.ActiveEnrollment, error)
	GetEnrollment(ctx context.Context, id uuid.UUID) (domain.Enrollment, error)
	EndEnrollment(ctx context.Context, id uuid.UUID, status domain.EnrollmentStatus, reason string, now time.Time) (bool, error)
	GetDelivery(ctx context.Context, leadID, sequenceID uuid.UUID, stepNumber int) (domain.DeliveryRecord, error)
}

// Sweeper evaluates every active enrollment against wall-clock time and
// sends the steps whose delay has elapsed. Sweeps are idempotent: running
// twice over the same state sends nothing twice.
type Sweeper struct {
	store       Store
	tracker     *tracker.Tracker
	sender      email.Sender
	bus         events.Bus
	log         *logger.Logger
	sendTimeout time.Duration
	parallelism int
	now         func() time.Time
}

// New creates a sweeper.
func New(store Store, trk *tracker.Tracker, sender email.Sender, bus events.Bus, sendTimeout time.Duration, log *logger.Logger) *Sweeper {
	if sendTimeout <= 0 {
		sendTimeout = 20 * time.Second
	}
	return &Sweeper{
		store:       store,
		tracker:     trk,
		sender:      sender,
		bus:         bus,
		log:         log,
		sendTimeout: sendTimeout,
		parallelism: 8,
		now:         time.Now,
	}
}

// SetClock overrides the clock for tests.
func (s *Sweeper) SetClock(now func() time.Time) { s.now = now }

// Sweep processes all active enrollments. Enrollments are independent, so
// they run in parallel; one lead's failure never blocks another's.
func (s *Sweeper) Sweep(ctx context.Context) error {
	enrollments, err := s.store.ListActiveEnrollments(ctx)
	if err != nil {
		return fmt.Errorf("list active enrollments: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, ae := range enrollments {
		g.Go(func() error {
			if err := s.processEnrollment(gctx, ae); err != nil {
				s.log.Error("enrollment sweep failed",
					"enrollment_id", ae.Enrollment.ID,
					"lead_id", ae.Enrollment.LeadID,
					"error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Sweeper) processEnrollment(ctx context.Context, ae repository.ActiveEnrollment) error {
	now := s.now().UTC()
	elapsedDays := int(now.Sub(ae.Enrollment.EnrolledAt).Hours() / 24)

	allDue := true
	for _, step := range ae.Sequence.Steps {
		// Delays are non-decreasing, so the first not-yet-due step ends
		// this sweep for the enrollment.
		if step.DelayDays > elapsedDays {
			allDue = false
			break
		}

		claimed, attempt, err := s.tracker.Claim(ctx, ae.Enrollment.LeadID, ae.Sequence.ID, step.Number)
		if err != nil {
			return fmt.Errorf("claim step %d: %w", step.Number, err)
		}
		if !claimed {
			continue
		}

		// The enrollment may have been cancelled between listing and the
		// claim. Re-read before sending so a cancelled lead gets nothing.
		// A failed re-read is not a cancellation: the claim goes back to
		// retryable and a later sweep picks the step up again.
		current, err := s.store.GetEnrollment(ctx, ae.Enrollment.ID)
		if err != nil {
			if relErr := s.tracker.Release(ctx, ae.Enrollment.LeadID, ae.Sequence.ID, step.Number, "enrollment re-read failed: "+err.Error()); relErr != nil {
				return relErr
			}
			return fmt.Errorf("re-read enrollment: %w", err)
		}
		if current.Status != domain.EnrollmentActive {
			if markErr := s.tracker.MarkSkipped(ctx, ae.Enrollment.LeadID, ae.Sequence.ID, step.Number, "enrollment no longer active"); markErr != nil {
				return markErr
			}
			return nil
		}

		s.dispatchStep(ctx, ae, step, attempt)
	}

	if allDue {
		return s.completeIfFinished(ctx, ae, now)
	}
	return nil
}

func (s *Sweeper) dispatchStep(ctx context.Context, ae repository.ActiveEnrollment, step domain.Step, attempt int) {
	vars := map[string]string{
		"firstName":    ae.LeadFirstName,
		"lastName":     ae.LeadLastName,
		"email":        ae.LeadEmail,
		"sequenceName": ae.Sequence.Name,
	}
	subject := domain.RenderTemplate(step.Subject, vars)
	body := domain.RenderTemplate(step.Body, vars)

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	err := s.sender.Send(sendCtx, ae.LeadEmail, subject, body)
	cancel()

	leadID, seqID := ae.Enrollment.LeadID, ae.Sequence.ID
	if err != nil {
		if markErr := s.tracker.MarkSendError(ctx, leadID, seqID, step.Number, attempt, err); markErr != nil {
			s.log.DatabaseError("deliveries.mark_error", markErr)
		}
		s.bus.Publish(ctx, events.SequenceStepFailed{
			BaseEvent:  events.NewBaseEvent(),
			LeadID:     leadID,
			SequenceID: seqID,
			StepNumber: step.Number,
			LastError:  err.Error(),
		})
		return
	}

	if markErr := s.tracker.MarkSent(ctx, leadID, seqID, step.Number); markErr != nil {
		s.log.DatabaseError("deliveries.mark_sent", markErr)
	}
	s.bus.Publish(ctx, events.SequenceStepSent{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     leadID,
		SequenceID: seqID,
		StepNumber: step.Number,
	})
}

// completeIfFinished ends the enrollment once every step has reached a
// terminal outcome. Retryable and in-flight steps keep it open for the
// next sweep.
func (s *Sweeper) completeIfFinished(ctx context.Context, ae repository.ActiveEnrollment, now time.Time) error {
	for _, step := range ae.Sequence.Steps {
		rec, err := s.store.GetDelivery(ctx, ae.Enrollment.LeadID, ae.Sequence.ID, step.Number)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return err
		}
		switch rec.Outcome {
		case domain.DeliverySent, domain.DeliveryFailed, domain.DeliverySkipped:
		default:
			return nil
		}
	}

	ended, err := s.store.EndEnrollment(ctx, ae.Enrollment.ID, domain.EnrollmentCompleted, "all steps processed", now)
	if err != nil {
		return err
	}
	if ended {
		s.bus.Publish(ctx, events.EnrollmentEnded{
			BaseEvent:    events.NewBaseEvent(),
			LeadID:       ae.Enrollment.LeadID,
			SequenceID:   ae.Sequence.ID,
			EnrollmentID: ae.Enrollment.ID,
			Reason:       "completed",
		})
	}
	return nil
}
