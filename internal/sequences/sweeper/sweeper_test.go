package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"leadflow_backend/internal/email"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/sequences/domain"
	"leadflow_backend/internal/sequences/repository"
	"leadflow_backend/internal/sequences/tracker"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	mu          sync.Mutex
	enrollments map[uuid.UUID]domain.Enrollment
	joined      []repository.ActiveEnrollment
	deliveries  map[string]domain.DeliveryRecord
	enrollErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		enrollments: map[uuid.UUID]domain.Enrollment{},
		deliveries:  map[string]domain.DeliveryRecord{},
	}
}

func deliveryKey(leadID, sequenceID uuid.UUID, stepNumber int) string {
	return fmt.Sprintf("%s|%s|%d", leadID, sequenceID, stepNumber)
}

func (f *fakeStore) addEnrollment(ae repository.ActiveEnrollment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrollments[ae.Enrollment.ID] = ae.Enrollment
	f.joined = append(f.joined, ae)
}

func (f *fakeStore) ListActiveEnrollments(context.Context) ([]repository.ActiveEnrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.ActiveEnrollment
	for _, ae := range f.joined {
		current := f.enrollments[ae.Enrollment.ID]
		if current.Status != domain.EnrollmentActive {
			continue
		}
		ae.Enrollment = current
		out = append(out, ae)
	}
	return out, nil
}

func (f *fakeStore) GetEnrollment(_ context.Context, id uuid.UUID) (domain.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enrollErr != nil {
		err := f.enrollErr
		f.enrollErr = nil
		return domain.Enrollment{}, err
	}
	e, ok := f.enrollments[id]
	if !ok {
		return domain.Enrollment{}, repository.ErrNotFound
	}
	return e, nil
}

func (f *fakeStore) EndEnrollment(_ context.Context, id uuid.UUID, status domain.EnrollmentStatus, reason string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok || e.Status != domain.EnrollmentActive {
		return false, nil
	}
	e.Status = status
	e.EndedAt = &now
	e.EndReason = reason
	f.enrollments[id] = e
	return true, nil
}

func (f *fakeStore) InsertPendingDelivery(_ context.Context, leadID, sequenceID uuid.UUID, stepNumber int, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := deliveryKey(leadID, sequenceID, stepNumber)
	if _, exists := f.deliveries[key]; exists {
		return false, nil
	}
	f.deliveries[key] = domain.DeliveryRecord{
		LeadID: leadID, SequenceID: sequenceID, StepNumber: stepNumber,
		Outcome: domain.DeliveryPending, Attempts: 1, CreatedAt: now, UpdatedAt: now,
	}
	return true, nil
}

func (f *fakeStore) ClaimRetryable(_ context.Context, leadID, sequenceID uuid.UUID, stepNumber, maxAttempts int, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := deliveryKey(leadID, sequenceID, stepNumber)
	rec, ok := f.deliveries[key]
	if !ok || rec.Outcome != domain.DeliveryRetryable || rec.Attempts >= maxAttempts {
		return false, nil
	}
	rec.Outcome = domain.DeliveryPending
	rec.Attempts++
	rec.UpdatedAt = now
	f.deliveries[key] = rec
	return true, nil
}

func (f *fakeStore) GetDelivery(_ context.Context, leadID, sequenceID uuid.UUID, stepNumber int) (domain.DeliveryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.deliveries[deliveryKey(leadID, sequenceID, stepNumber)]
	if !ok {
		return domain.DeliveryRecord{}, repository.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) SetDeliveryOutcome(_ context.Context, leadID, sequenceID uuid.UUID, stepNumber int, outcome domain.DeliveryOutcome, lastError string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := deliveryKey(leadID, sequenceID, stepNumber)
	rec, ok := f.deliveries[key]
	if !ok {
		return repository.ErrNotFound
	}
	rec.Outcome = outcome
	rec.LastError = lastError
	rec.UpdatedAt = now
	f.deliveries[key] = rec
	return nil
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sentMail
	errFn func(subject string) error
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errFn != nil {
		if err := f.errFn(subject); err != nil {
			return err
		}
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakeBus) Publish(_ context.Context, event events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeBus) PublishSync(ctx context.Context, event events.Event) error {
	f.Publish(ctx, event)
	return nil
}

func (f *fakeBus) Subscribe(string, events.Handler) {}

func (f *fakeBus) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.EventName())
	}
	return out
}

type fixture struct {
	store   *fakeStore
	sender  *fakeSender
	bus     *fakeBus
	sweeper *Sweeper
	now     time.Time
	lead    uuid.UUID
	seq     domain.Sequence
	enroll  domain.Enrollment
}

func newFixture(t *testing.T, maxAttempts, enrolledDaysAgo int) *fixture {
	t.Helper()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	sender := &fakeSender{}
	bus := &fakeBus{}
	log := logger.New("development")

	seqID := uuid.New()
	seq := domain.Sequence{
		ID: seqID, Name: "Nurture", ScoreMin: 40, ScoreMax: 79,
		TargetStatus: domain.TargetAny, Active: true,
		Steps: []domain.Step{
			{SequenceID: seqID, Number: 1, DelayDays: 0, Subject: "Welcome {{firstName}}", Body: "Hello {{firstName}}"},
			{SequenceID: seqID, Number: 2, DelayDays: 3, Subject: "Checking in", Body: "Still evaluating?"},
			{SequenceID: seqID, Number: 3, DelayDays: 7, Subject: "Last call", Body: "Final note"},
		},
	}

	leadID := uuid.New()
	enroll := domain.Enrollment{
		ID:         uuid.New(),
		LeadID:     leadID,
		SequenceID: seqID,
		Status:     domain.EnrollmentActive,
		EnrolledAt: now.AddDate(0, 0, -enrolledDaysAgo),
	}
	store.addEnrollment(repository.ActiveEnrollment{
		Enrollment:    enroll,
		LeadEmail:     "dana@example.com",
		LeadFirstName: "Dana",
		LeadLastName:  "Reyes",
		Sequence:      seq,
	})

	trk := tracker.New(store, maxAttempts, log)
	trk.SetClock(func() time.Time { return now })
	sw := New(store, trk, sender, bus, time.Second, log)
	sw.SetClock(func() time.Time { return now })

	return &fixture{store: store, sender: sender, bus: bus, sweeper: sw, now: now, lead: leadID, seq: seq, enroll: enroll}
}

func (fx *fixture) outcome(t *testing.T, step int) domain.DeliveryRecord {
	t.Helper()
	rec, err := fx.store.GetDelivery(context.Background(), fx.lead, fx.seq.ID, step)
	if err != nil {
		t.Fatalf("GetDelivery(step=%d): %v", step, err)
	}
	return rec
}

func TestSweepSendsOnlyDueSteps(t *testing.T) {
	fx := newFixture(t, 3, 5)

	if err := fx.sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep() = %v", err)
	}

	if got := fx.sender.sentCount(); got != 2 {
		t.Fatalf("sent %d emails at day 5, want 2 (delays 0 and 3 due, 7 not)", got)
	}
	if rec := fx.outcome(t, 1); rec.Outcome != domain.DeliverySent {
		t.Errorf("step 1 outcome = %s, want sent", rec.Outcome)
	}
	if rec := fx.outcome(t, 2); rec.Outcome != domain.DeliverySent {
		t.Errorf("step 2 outcome = %s, want sent", rec.Outcome)
	}
	if _, err := fx.store.GetDelivery(context.Background(), fx.lead, fx.seq.ID, 3); !errors.Is(err, repository.ErrNotFound) {
		t.Error("step 3 should have no delivery record before its delay elapses")
	}

	fx.sender.mu.Lock()
	first := fx.sender.sent[0]
	fx.sender.mu.Unlock()
	if first.Subject != "Welcome Dana" || first.Body != "Hello Dana" {
		t.Errorf("template not rendered: subject=%q body=%q", first.Subject, first.Body)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	fx := newFixture(t, 3, 5)
	ctx := context.Background()

	if err := fx.sweeper.Sweep(ctx); err != nil {
		t.Fatalf("first Sweep() = %v", err)
	}
	if err := fx.sweeper.Sweep(ctx); err != nil {
		t.Fatalf("second Sweep() = %v", err)
	}

	if got := fx.sender.sentCount(); got != 2 {
		t.Errorf("sent %d emails after two sweeps, want 2: a repeated sweep must send nothing", got)
	}
}

func TestSweepRetriesTransientFailure(t *testing.T) {
	fx := newFixture(t, 3, 1)
	ctx := context.Background()

	fail := true
	fx.sender.errFn = func(string) error {
		if fail {
			return errors.New("smtp: connection reset")
		}
		return nil
	}

	if err := fx.sweeper.Sweep(ctx); err != nil {
		t.Fatalf("Sweep() = %v", err)
	}
	if rec := fx.outcome(t, 1); rec.Outcome != domain.DeliveryRetryable || rec.Attempts != 1 {
		t.Fatalf("after transient failure: outcome=%s attempts=%d, want retryable/1", rec.Outcome, rec.Attempts)
	}

	fail = false
	if err := fx.sweeper.Sweep(ctx); err != nil {
		t.Fatalf("retry Sweep() = %v", err)
	}
	if rec := fx.outcome(t, 1); rec.Outcome != domain.DeliverySent || rec.Attempts != 2 {
		t.Errorf("after retry: outcome=%s attempts=%d, want sent/2", rec.Outcome, rec.Attempts)
	}
}

func TestSweepStopsAtAttemptLimit(t *testing.T) {
	fx := newFixture(t, 3, 1)
	ctx := context.Background()

	fx.sender.errFn = func(string) error { return errors.New("smtp: timeout") }

	for i := 0; i < 5; i++ {
		if err := fx.sweeper.Sweep(ctx); err != nil {
			t.Fatalf("Sweep() #%d = %v", i+1, err)
		}
	}

	rec := fx.outcome(t, 1)
	if rec.Outcome != domain.DeliveryFailed {
		t.Errorf("outcome = %s, want failed after exhausting attempts", rec.Outcome)
	}
	if rec.Attempts != 3 {
		t.Errorf("attempts = %d, want exactly the limit of 3", rec.Attempts)
	}
}

func TestSweepPermanentErrorFailsImmediately(t *testing.T) {
	fx := newFixture(t, 3, 1)
	ctx := context.Background()

	fx.sender.errFn = func(string) error {
		return email.Permanent(errors.New("mailbox does not exist"))
	}

	if err := fx.sweeper.Sweep(ctx); err != nil {
		t.Fatalf("Sweep() = %v", err)
	}

	rec := fx.outcome(t, 1)
	if rec.Outcome != domain.DeliveryFailed || rec.Attempts != 1 {
		t.Errorf("outcome=%s attempts=%d, want failed/1 for a permanent error", rec.Outcome, rec.Attempts)
	}
}

func TestFailedStepDoesNotBlockLaterSteps(t *testing.T) {
	fx := newFixture(t, 3, 5)
	ctx := context.Background()

	fx.sender.errFn = func(subject string) error {
		if subject == "Welcome Dana" {
			return email.Permanent(errors.New("rejected"))
		}
		return nil
	}

	if err := fx.sweeper.Sweep(ctx); err != nil {
		t.Fatalf("Sweep() = %v", err)
	}

	if rec := fx.outcome(t, 1); rec.Outcome != domain.DeliveryFailed {
		t.Errorf("step 1 outcome = %s, want failed", rec.Outcome)
	}
	if rec := fx.outcome(t, 2); rec.Outcome != domain.DeliverySent {
		t.Errorf("step 2 outcome = %s, want sent despite step 1 failing", rec.Outcome)
	}
}

func TestCancelledEnrollmentSkipsClaimedStep(t *testing.T) {
	fx := newFixture(t, 3, 5)
	ctx := context.Background()

	// Cancel after listing but before the claim is resolved: the fake's
	// enrollment map is read again inside processEnrollment.
	now := fx.now
	fx.store.mu.Lock()
	e := fx.store.enrollments[fx.enroll.ID]
	e.Status = domain.EnrollmentCancelled
	e.EndedAt = &now
	fx.store.enrollments[fx.enroll.ID] = e
	joined := fx.store.joined
	fx.store.mu.Unlock()

	// Bypass ListActiveEnrollments' filter to simulate the race.
	if err := fx.sweeper.processEnrollment(ctx, joined[0]); err != nil {
		t.Fatalf("processEnrollment() = %v", err)
	}

	if got := fx.sender.sentCount(); got != 0 {
		t.Fatalf("sent %d emails to a cancelled enrollment, want 0", got)
	}
	if rec := fx.outcome(t, 1); rec.Outcome != domain.DeliverySkipped {
		t.Errorf("step 1 outcome = %s, want skipped", rec.Outcome)
	}
}

func TestTransientEnrollmentReadErrorKeepsStepRetryable(t *testing.T) {
	fx := newFixture(t, 3, 0)
	ctx := context.Background()

	fx.store.mu.Lock()
	fx.store.enrollErr = errors.New("read tcp: connection reset by peer")
	fx.store.mu.Unlock()

	if err := fx.sweeper.Sweep(ctx); err != nil {
		t.Fatalf("Sweep() = %v", err)
	}

	rec := fx.outcome(t, 1)
	if rec.Outcome != domain.DeliveryRetryable {
		t.Fatalf("outcome after failed enrollment re-read = %s, want retryable", rec.Outcome)
	}
	if got := fx.sender.sentCount(); got != 0 {
		t.Fatalf("sent %d emails while the enrollment state was unknown, want 0", got)
	}

	// The store recovers; the next sweep delivers the step.
	if err := fx.sweeper.Sweep(ctx); err != nil {
		t.Fatalf("recovery Sweep() = %v", err)
	}
	rec = fx.outcome(t, 1)
	if rec.Outcome != domain.DeliverySent {
		t.Errorf("outcome after recovery = %s, want sent", rec.Outcome)
	}
	if got := fx.sender.sentCount(); got != 1 {
		t.Errorf("sent %d emails, want exactly 1 after recovery", got)
	}
}

func TestSweepCompletesEnrollmentWhenAllStepsTerminal(t *testing.T) {
	fx := newFixture(t, 3, 10)
	ctx := context.Background()

	if err := fx.sweeper.Sweep(ctx); err != nil {
		t.Fatalf("Sweep() = %v", err)
	}

	e, err := fx.store.GetEnrollment(ctx, fx.enroll.ID)
	if err != nil {
		t.Fatalf("GetEnrollment() = %v", err)
	}
	if e.Status != domain.EnrollmentCompleted {
		t.Fatalf("enrollment status = %s, want completed at day 10 with all steps sent", e.Status)
	}

	var sawEnded bool
	for _, name := range fx.bus.names() {
		if name == (events.EnrollmentEnded{}).EventName() {
			sawEnded = true
		}
	}
	if !sawEnded {
		t.Error("completing the enrollment should publish an enrollment_ended event")
	}
}

func TestSweepKeepsEnrollmentOpenWhileStepsRemain(t *testing.T) {
	fx := newFixture(t, 3, 5)
	ctx := context.Background()

	if err := fx.sweeper.Sweep(ctx); err != nil {
		t.Fatalf("Sweep() = %v", err)
	}

	e, err := fx.store.GetEnrollment(ctx, fx.enroll.ID)
	if err != nil {
		t.Fatalf("GetEnrollment() = %v", err)
	}
	if e.Status != domain.EnrollmentActive {
		t.Errorf("enrollment status = %s, want active while step 3 is not due", e.Status)
	}
}

func TestSweepPublishesStepEvents(t *testing.T) {
	fx := newFixture(t, 3, 0)
	ctx := context.Background()

	if err := fx.sweeper.Sweep(ctx); err != nil {
		t.Fatalf("Sweep() = %v", err)
	}

	var sent int
	for _, name := range fx.bus.names() {
		if name == (events.SequenceStepSent{}).EventName() {
			sent++
		}
	}
	if sent != 1 {
		t.Errorf("published %d step_sent events at day 0, want 1", sent)
	}
}
