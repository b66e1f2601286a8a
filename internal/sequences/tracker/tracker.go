// Package tracker enforces at-most-once step delivery with bounded retries.
package tracker

import (
	"context"
	"time"

	"leadflow_backend/internal/email"
	"leadflow_backend/internal/sequences/domain"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the delivery-record persistence the tracker needs.
type Store interface {
	InsertPendingDelivery(ctx context.Context, leadID, sequenceID uuid.UUID, stepNumber int, now time.Time) (bool, error)
	ClaimRetryable(ctx context.Context, leadID, sequenceID uuid.UUID, stepNumber, maxAttempts int, now time.Time) (bool, error)
	GetDelivery(ctx context.Context, leadID, sequenceID uuid.UUID, stepNumber int) (domain.DeliveryRecord, error)
	SetDeliveryOutcome(ctx context.Context, leadID, sequenceID uuid.UUID, stepNumber int, outcome domain.DeliveryOutcome, lastError string, now time.Time) error
}

// Tracker guards each (lead, sequence, step) send behind a durable claim.
type Tracker struct {
	store       Store
	maxAttempts int
	log         *logger.Logger
	now         func() time.Time
}

// New creates a tracker. maxAttempts bounds total send attempts per step.
func New(store Store, maxAttempts int, log *logger.Logger) *Tracker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Tracker{store: store, maxAttempts: maxAttempts, log: log, now: time.Now}
}

// SetClock overrides the clock for tests.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// Claim attempts to own the send for a step. It reports whether the caller
// won the claim and, if so, which attempt number this is. A step whose
// record already exists is claimable only when a previous attempt left it
// retryable below the attempt limit; anything else is silently skipped so a
// lead can never receive the same step twice.
func (t *Tracker) Claim(ctx context.Context, leadID, sequenceID uuid.UUID, stepNumber int) (bool, int, error) {
	now := t.now().UTC()

	claimed, err := t.store.InsertPendingDelivery(ctx, leadID, sequenceID, stepNumber, now)
	if err != nil {
		return false, 0, err
	}
	if claimed {
		return true, 1, nil
	}

	rec, err := t.store.GetDelivery(ctx, leadID, sequenceID, stepNumber)
	if err != nil {
		return false, 0, err
	}
	if rec.Outcome != domain.DeliveryRetryable {
		return false, 0, nil
	}

	if rec.Attempts >= t.maxAttempts {
		if err := t.store.SetDeliveryOutcome(ctx, leadID, sequenceID, stepNumber, domain.DeliveryFailed, "attempt limit reached", now); err != nil {
			return false, 0, err
		}
		t.log.DeliveryOutcome(leadID.String(), sequenceID.String(), stepNumber, string(domain.DeliveryFailed))
		return false, 0, nil
	}

	claimed, err = t.store.ClaimRetryable(ctx, leadID, sequenceID, stepNumber, t.maxAttempts, now)
	if err != nil {
		return false, 0, err
	}
	return claimed, rec.Attempts + 1, nil
}

// MarkSent finalizes a successful send.
func (t *Tracker) MarkSent(ctx context.Context, leadID, sequenceID uuid.UUID, stepNumber int) error {
	t.log.DeliveryOutcome(leadID.String(), sequenceID.String(), stepNumber, string(domain.DeliverySent))
	return t.store.SetDeliveryOutcome(ctx, leadID, sequenceID, stepNumber, domain.DeliverySent, "", t.now().UTC())
}

// Release returns a claimed step to the retryable pool when the send could
// not even be attempted. The claim's attempt stays counted, so a step behind
// a persistently failing dependency still terminates at the attempt limit.
func (t *Tracker) Release(ctx context.Context, leadID, sequenceID uuid.UUID, stepNumber int, reason string) error {
	t.log.DeliveryOutcome(leadID.String(), sequenceID.String(), stepNumber, string(domain.DeliveryRetryable))
	return t.store.SetDeliveryOutcome(ctx, leadID, sequenceID, stepNumber, domain.DeliveryRetryable, reason, t.now().UTC())
}

// MarkSkipped abandons a claim because the enrollment ended before the send.
func (t *Tracker) MarkSkipped(ctx context.Context, leadID, sequenceID uuid.UUID, stepNumber int, reason string) error {
	t.log.DeliveryOutcome(leadID.String(), sequenceID.String(), stepNumber, string(domain.DeliverySkipped))
	return t.store.SetDeliveryOutcome(ctx, leadID, sequenceID, stepNumber, domain.DeliverySkipped, reason, t.now().UTC())
}

// MarkSendError records a failed attempt. Permanent provider errors and
// attempts at the limit become failed; everything else stays retryable for
// a later sweep.
func (t *Tracker) MarkSendError(ctx context.Context, leadID, sequenceID uuid.UUID, stepNumber, attempt int, sendErr error) error {
	outcome := domain.DeliveryRetryable
	if email.IsPermanent(sendErr) || attempt >= t.maxAttempts {
		outcome = domain.DeliveryFailed
	}
	t.log.DeliveryOutcome(leadID.String(), sequenceID.String(), stepNumber, string(outcome))
	return t.store.SetDeliveryOutcome(ctx, leadID, sequenceID, stepNumber, outcome, sendErr.Error(), t.now().UTC())
}
