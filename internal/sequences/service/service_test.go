package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/sequences/domain"
	"leadflow_backend/internal/sequences/repository"
	"leadflow_backend/platform/ident"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	mu          sync.Mutex
	sequences   []domain.Sequence
	enrollments map[uuid.UUID]domain.Enrollment
}

func newFakeStore() *fakeStore {
	return &fakeStore{enrollments: map[uuid.UUID]domain.Enrollment{}}
}

func (f *fakeStore) InsertSequence(_ context.Context, seq domain.Sequence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequences = append(f.sequences, seq)
	return nil
}

func (f *fakeStore) GetSequence(_ context.Context, id uuid.UUID) (domain.Sequence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, seq := range f.sequences {
		if seq.ID == id {
			return seq, nil
		}
	}
	return domain.Sequence{}, repository.ErrNotFound
}

func (f *fakeStore) ListSequences(context.Context) ([]domain.Sequence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Sequence(nil), f.sequences...), nil
}

func (f *fakeStore) ListActiveSequences(context.Context) ([]domain.Sequence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Sequence
	for _, seq := range f.sequences {
		if seq.Active {
			out = append(out, seq)
		}
	}
	return out, nil
}

func (f *fakeStore) SetSequenceActive(_ context.Context, id uuid.UUID, active bool, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.sequences {
		if f.sequences[i].ID == id {
			f.sequences[i].Active = active
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeStore) InsertEnrollment(_ context.Context, e domain.Enrollment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrollments[e.ID] = e
	return nil
}

func (f *fakeStore) GetActiveEnrollment(_ context.Context, leadID uuid.UUID) (domain.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.enrollments {
		if e.LeadID == leadID && e.Status == domain.EnrollmentActive {
			return e, nil
		}
	}
	return domain.Enrollment{}, repository.ErrNotFound
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

func (f *fakeStore) ListDeliveries(context.Context, uuid.UUID) ([]domain.DeliveryRecord, error) {
	return nil, nil
}

type fakeBus struct {
	mu    sync.Mutex
	names []string
}

func (f *fakeBus) Publish(_ context.Context, event events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, event.EventName())
}

func (f *fakeBus) PublishSync(ctx context.Context, event events.Event) error {
	f.Publish(ctx, event)
	return nil
}

func (f *fakeBus) Subscribe(string, events.Handler) {}

func (f *fakeBus) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, got := range f.names {
		if got == name {
			n++
		}
	}
	return n
}

func steps(seqID uuid.UUID) []domain.Step {
	return []domain.Step{{SequenceID: seqID, Number: 1, DelayDays: 0, Subject: "Hello", Body: "Hi"}}
}

func newService(t *testing.T) (*Service, *fakeStore, *fakeBus) {
	t.Helper()
	store := newFakeStore()
	bus := &fakeBus{}
	svc := New(store, bus, ident.NewSequential(), logger.New("development"))
	return svc, store, bus
}

func addSequence(store *fakeStore, min, max int) domain.Sequence {
	seq := domain.Sequence{
		ID: uuid.New(), Name: "band", ScoreMin: min, ScoreMax: max,
		TargetStatus: domain.TargetAny, Active: true,
	}
	seq.Steps = steps(seq.ID)
	store.sequences = append(store.sequences, seq)
	return seq
}

func TestEvaluateLeadEnrollsIntoMatchingBand(t *testing.T) {
	svc, store, bus := newService(t)
	seq := addSequence(store, 60, 79)
	leadID := uuid.New()

	if err := svc.EvaluateLead(context.Background(), leadID, 70, "new"); err != nil {
		t.Fatalf("EvaluateLead() = %v", err)
	}

	e, err := store.GetActiveEnrollment(context.Background(), leadID)
	if err != nil {
		t.Fatalf("no active enrollment after evaluation: %v", err)
	}
	if e.SequenceID != seq.ID {
		t.Errorf("enrolled in %s, want %s", e.SequenceID, seq.ID)
	}
	if bus.count("sequence.enrolled") != 1 {
		t.Error("expected one sequence.enrolled event")
	}
}

func TestEvaluateLeadNoMatchLeavesLeadUnenrolled(t *testing.T) {
	svc, store, _ := newService(t)
	addSequence(store, 80, 100)
	leadID := uuid.New()

	if err := svc.EvaluateLead(context.Background(), leadID, 30, "new"); err != nil {
		t.Fatalf("EvaluateLead() = %v", err)
	}
	if _, err := store.GetActiveEnrollment(context.Background(), leadID); err == nil {
		t.Error("lead should not be enrolled when no band matches")
	}
}

func TestEvaluateLeadSameSequenceIsNoOp(t *testing.T) {
	svc, store, bus := newService(t)
	addSequence(store, 60, 79)
	leadID := uuid.New()
	ctx := context.Background()

	if err := svc.EvaluateLead(ctx, leadID, 65, "new"); err != nil {
		t.Fatalf("first EvaluateLead() = %v", err)
	}
	first, _ := store.GetActiveEnrollment(ctx, leadID)

	if err := svc.EvaluateLead(ctx, leadID, 75, "new"); err != nil {
		t.Fatalf("second EvaluateLead() = %v", err)
	}
	second, _ := store.GetActiveEnrollment(ctx, leadID)

	if first.ID != second.ID {
		t.Error("moving within the same band must keep the existing enrollment")
	}
	if bus.count("sequence.enrolled") != 1 {
		t.Error("re-evaluation inside the same band must not re-enroll")
	}
}

func TestEvaluateLeadSwitchReplacesEnrollment(t *testing.T) {
	svc, store, bus := newService(t)
	low := addSequence(store, 40, 59)
	high := addSequence(store, 80, 100)
	leadID := uuid.New()
	ctx := context.Background()

	if err := svc.EvaluateLead(ctx, leadID, 50, "new"); err != nil {
		t.Fatalf("EvaluateLead(50) = %v", err)
	}
	if err := svc.EvaluateLead(ctx, leadID, 90, "new"); err != nil {
		t.Fatalf("EvaluateLead(90) = %v", err)
	}

	current, err := store.GetActiveEnrollment(ctx, leadID)
	if err != nil {
		t.Fatalf("no active enrollment after switch: %v", err)
	}
	if current.SequenceID != high.ID {
		t.Errorf("active enrollment is in %s, want %s", current.SequenceID, high.ID)
	}

	store.mu.Lock()
	var replaced int
	for _, e := range store.enrollments {
		if e.SequenceID == low.ID && e.Status == domain.EnrollmentReplaced {
			replaced++
		}
	}
	store.mu.Unlock()
	if replaced != 1 {
		t.Errorf("old enrollment replaced count = %d, want 1", replaced)
	}
	if bus.count("sequence.enrollment_ended") != 1 {
		t.Error("replacing an enrollment should publish enrollment_ended")
	}
}

func TestEvaluateLeadScoreLeavesAllBandsCancels(t *testing.T) {
	svc, store, bus := newService(t)
	addSequence(store, 60, 79)
	leadID := uuid.New()
	ctx := context.Background()

	if err := svc.EvaluateLead(ctx, leadID, 70, "new"); err != nil {
		t.Fatalf("EvaluateLead(70) = %v", err)
	}
	if err := svc.EvaluateLead(ctx, leadID, 10, "new"); err != nil {
		t.Fatalf("EvaluateLead(10) = %v", err)
	}

	if _, err := store.GetActiveEnrollment(ctx, leadID); err == nil {
		t.Error("enrollment should be cancelled when the score leaves every band")
	}
	if bus.count("sequence.enrollment_ended") != 1 {
		t.Error("cancellation should publish enrollment_ended")
	}
}

func TestCancelForLead(t *testing.T) {
	svc, store, _ := newService(t)
	addSequence(store, 0, 100)
	leadID := uuid.New()
	ctx := context.Background()

	if err := svc.EvaluateLead(ctx, leadID, 50, "new"); err != nil {
		t.Fatalf("EvaluateLead() = %v", err)
	}
	if err := svc.CancelForLead(ctx, leadID, "lead reached terminal status"); err != nil {
		t.Fatalf("CancelForLead() = %v", err)
	}
	if _, err := store.GetActiveEnrollment(ctx, leadID); err == nil {
		t.Error("active enrollment should be gone after cancellation")
	}

	// Cancelling again is a no-op, not an error.
	if err := svc.CancelForLead(ctx, leadID, "again"); err != nil {
		t.Errorf("repeat CancelForLead() = %v, want nil", err)
	}
}

func TestCreateSequenceRejectsInvalidDefinition(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.CreateSequence(context.Background(), domain.Sequence{
		Name: "bad", ScoreMin: 80, ScoreMax: 60, Active: true,
	})
	if err == nil {
		t.Fatal("CreateSequence should reject an inverted score band")
	}
}

func TestEvaluateLeadRespectsTargetStatus(t *testing.T) {
	svc, store, _ := newService(t)
	seq := addSequence(store, 0, 100)
	store.mu.Lock()
	store.sequences[0].TargetStatus = "qualified"
	store.mu.Unlock()
	leadID := uuid.New()
	ctx := context.Background()

	if err := svc.EvaluateLead(ctx, leadID, 50, "new"); err != nil {
		t.Fatalf("EvaluateLead(new) = %v", err)
	}
	if _, err := store.GetActiveEnrollment(ctx, leadID); err == nil {
		t.Fatal("a new lead must not enroll in a qualified-only sequence")
	}

	if err := svc.EvaluateLead(ctx, leadID, 50, "qualified"); err != nil {
		t.Fatalf("EvaluateLead(qualified) = %v", err)
	}
	e, err := store.GetActiveEnrollment(ctx, leadID)
	if err != nil {
		t.Fatalf("no enrollment after the lead became qualified: %v", err)
	}
	if e.SequenceID != seq.ID {
		t.Errorf("enrolled in %s, want %s", e.SequenceID, seq.ID)
	}
}

func TestEvaluateLeadStatusChangeCancelsMismatchedEnrollment(t *testing.T) {
	svc, store, bus := newService(t)
	addSequence(store, 0, 100)
	store.mu.Lock()
	store.sequences[0].TargetStatus = "new"
	store.mu.Unlock()
	leadID := uuid.New()
	ctx := context.Background()

	if err := svc.EvaluateLead(ctx, leadID, 50, "new"); err != nil {
		t.Fatalf("EvaluateLead(new) = %v", err)
	}
	if err := svc.EvaluateLead(ctx, leadID, 50, "contacted"); err != nil {
		t.Fatalf("EvaluateLead(contacted) = %v", err)
	}

	if _, err := store.GetActiveEnrollment(ctx, leadID); err == nil {
		t.Error("enrollment should end when the lead leaves the targeted status")
	}
	if bus.count("sequence.enrollment_ended") != 1 {
		t.Error("leaving the targeted status should publish enrollment_ended")
	}
}
