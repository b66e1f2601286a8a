package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/leads/scoring"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/ident"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/google/uuid"
)

type fakeStore struct {
	mu    sync.Mutex
	leads map[uuid.UUID]domain.Lead
}

func newFakeStore() *fakeStore {
	return &fakeStore{leads: map[uuid.UUID]domain.Lead{}}
}

func (f *fakeStore) Insert(_ context.Context, lead domain.Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leads[lead.ID] = lead
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	return lead, nil
}

func (f *fakeStore) List(context.Context, int) ([]domain.Lead, error) {
	return nil, nil
}

func (f *fakeStore) UpdateAttributes(_ context.Context, id uuid.UUID, attrs domain.Attributes, score int, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return repository.ErrNotFound
	}
	lead.Attributes = attrs
	lead.Score = score
	lead.UpdatedAt = now
	f.leads[id] = lead
	return nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.Status, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return repository.ErrNotFound
	}
	lead.Status = status
	lead.UpdatedAt = now
	f.leads[id] = lead
	return nil
}

type evaluatorCall struct {
	LeadID uuid.UUID
	Score  int
	Status string
}

type fakeEvaluator struct {
	mu        sync.Mutex
	evaluated []evaluatorCall
	cancelled []uuid.UUID
}

func (f *fakeEvaluator) EvaluateLead(_ context.Context, leadID uuid.UUID, score int, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluated = append(f.evaluated, evaluatorCall{LeadID: leadID, Score: score, Status: status})
	return nil
}

func (f *fakeEvaluator) CancelForLead(_ context.Context, leadID uuid.UUID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, leadID)
	return nil
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

func newService() (*Service, *fakeStore, *fakeEvaluator, *fakeBus) {
	store := newFakeStore()
	bus := &fakeBus{}
	ev := &fakeEvaluator{}
	svc := New(store, scoring.NewDefault(), bus, ident.NewSequential(), validator.New(), logger.New("development"))
	svc.SetEnrollmentEvaluator(ev)
	return svc, store, ev, bus
}

func enterpriseAttributes() domain.Attributes {
	return domain.Attributes{
		CompanySize:        "1000+",
		Industry:           "Financial Services",
		ConsultationType:   "Enterprise Implementation",
		ProductsInterested: []string{"crm", "analytics", "automation", "support"},
	}
}

func TestCreateScoresAndEvaluates(t *testing.T) {
	svc, _, ev, bus := newService()

	lead, err := svc.Create(context.Background(), "Dana@Example.com", "+1 415 555 0100", "Dana", "Reyes", enterpriseAttributes())
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}

	if lead.Score != 100 {
		t.Errorf("score = %d, want 100 for the maximal attribute set", lead.Score)
	}
	if lead.Email != "dana@example.com" {
		t.Errorf("email = %q, want lowercased", lead.Email)
	}
	if lead.Status != domain.StatusNew {
		t.Errorf("status = %s, want new", lead.Status)
	}

	ev.mu.Lock()
	defer ev.mu.Unlock()
	if len(ev.evaluated) != 1 || ev.evaluated[0].Score != 100 {
		t.Errorf("evaluator calls = %+v, want one call with score 100", ev.evaluated)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if len(bus.names) == 0 || bus.names[0] != "lead.created" {
		t.Errorf("published events = %v, want lead.created first", bus.names)
	}
}

func TestCreateRejectsInvalidEmail(t *testing.T) {
	svc, _, _, _ := newService()

	_, err := svc.Create(context.Background(), "not-an-email", "", "Dana", "", domain.Attributes{})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Create with bad email = %v, want Validation", err)
	}
}

func TestUpdateAttributesRescoresAndReevaluates(t *testing.T) {
	svc, _, ev, _ := newService()
	ctx := context.Background()

	lead, err := svc.Create(ctx, "dana@example.com", "", "Dana", "", domain.Attributes{})
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}
	if lead.Score != 0 {
		t.Fatalf("empty attributes score = %d, want 0", lead.Score)
	}

	updated, err := svc.UpdateAttributes(ctx, lead.ID, enterpriseAttributes())
	if err != nil {
		t.Fatalf("UpdateAttributes() = %v", err)
	}
	if updated.Score != 100 {
		t.Errorf("updated score = %d, want 100", updated.Score)
	}

	ev.mu.Lock()
	defer ev.mu.Unlock()
	if len(ev.evaluated) != 2 {
		t.Fatalf("evaluator calls = %d, want 2 (create + rescore)", len(ev.evaluated))
	}
	if ev.evaluated[1].Score != 100 {
		t.Errorf("re-evaluation score = %d, want 100", ev.evaluated[1].Score)
	}
}

func TestUpdateAttributesUnchangedScoreSkipsReevaluation(t *testing.T) {
	svc, _, ev, _ := newService()
	ctx := context.Background()

	lead, err := svc.Create(ctx, "dana@example.com", "", "Dana", "", domain.Attributes{})
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}

	// Attributes change but every factor still scores zero.
	if _, err := svc.UpdateAttributes(ctx, lead.ID, domain.Attributes{CompanySize: "unknown"}); err != nil {
		t.Fatalf("UpdateAttributes() = %v", err)
	}

	ev.mu.Lock()
	defer ev.mu.Unlock()
	if len(ev.evaluated) != 1 {
		t.Errorf("evaluator calls = %d, want only the create-time call", len(ev.evaluated))
	}
}

func TestTerminalStatusCancelsEnrollment(t *testing.T) {
	svc, _, ev, _ := newService()
	ctx := context.Background()

	lead, err := svc.Create(ctx, "dana@example.com", "", "Dana", "", enterpriseAttributes())
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, lead.ID, domain.StatusConverted); err != nil {
		t.Fatalf("UpdateStatus() = %v", err)
	}

	ev.mu.Lock()
	defer ev.mu.Unlock()
	if len(ev.cancelled) != 1 || ev.cancelled[0] != lead.ID {
		t.Errorf("cancelled = %v, want [%s]", ev.cancelled, lead.ID)
	}
}

func TestNonTerminalStatusKeepsEnrollment(t *testing.T) {
	svc, _, ev, _ := newService()
	ctx := context.Background()

	lead, err := svc.Create(ctx, "dana@example.com", "", "Dana", "", enterpriseAttributes())
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, lead.ID, domain.StatusContacted); err != nil {
		t.Fatalf("UpdateStatus() = %v", err)
	}

	ev.mu.Lock()
	defer ev.mu.Unlock()
	if len(ev.cancelled) != 0 {
		t.Errorf("cancelled = %v, want none for a non-terminal status", ev.cancelled)
	}
}

func TestStatusChangeReevaluatesEnrollment(t *testing.T) {
	svc, _, ev, _ := newService()
	ctx := context.Background()

	lead, err := svc.Create(ctx, "dana@example.com", "", "Dana", "", enterpriseAttributes())
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, lead.ID, domain.StatusQualified); err != nil {
		t.Fatalf("UpdateStatus() = %v", err)
	}

	ev.mu.Lock()
	defer ev.mu.Unlock()
	if len(ev.evaluated) != 2 {
		t.Fatalf("evaluator calls = %d, want 2 (create + status change)", len(ev.evaluated))
	}
	last := ev.evaluated[1]
	if last.Status != string(domain.StatusQualified) || last.Score != lead.Score {
		t.Errorf("re-evaluated with score=%d status=%q, want score=%d status=%q",
			last.Score, last.Status, lead.Score, domain.StatusQualified)
	}
}

func TestUpdateStatusRejectsUnknown(t *testing.T) {
	svc, _, _, _ := newService()
	ctx := context.Background()

	lead, err := svc.Create(ctx, "dana@example.com", "", "Dana", "", domain.Attributes{})
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, lead.ID, domain.Status("archived")); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("UpdateStatus with unknown status = %v, want Validation", err)
	}
}
