// Package repository provides postgres persistence for sequences,
// enrollments and delivery records.
package repository

import (
	"context"
	"errors"
	"time"

	"leadflow_backend/internal/sequences/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when a sequence or enrollment does not exist.
	ErrNotFound = errors.New("not found")
)

// ActiveEnrollment is an active enrollment joined with the lead contact
// fields and the full sequence the sweeper needs to evaluate due steps.
type ActiveEnrollment struct {
	Enrollment    domain.Enrollment
	LeadEmail     string
	LeadFirstName string
	LeadLastName  string
	Sequence      domain.Sequence
}

// Repository is the pgx-backed sequences store.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new sequences repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// --- sequences ---

// InsertSequence stores a sequence definition and its steps in one transaction.
func (r *Repository) InsertSequence(ctx context.Context, seq domain.Sequence) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO sequences (id, name, score_min, score_max, target_status, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		seq.ID, seq.Name, seq.ScoreMin, seq.ScoreMax, seq.TargetStatus, seq.Active, seq.CreatedAt)
	if err != nil {
		return err
	}

	for _, step := range seq.Steps {
		_, err = tx.Exec(ctx,
			`INSERT INTO sequence_steps (sequence_id, step_number, delay_days, subject, body)
			 VALUES ($1, $2, $3, $4, $5)`,
			seq.ID, step.Number, step.DelayDays, step.Subject, step.Body)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetSequence loads one sequence with its steps.
func (r *Repository) GetSequence(ctx context.Context, id uuid.UUID) (domain.Sequence, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, score_min, score_max, target_status, active, created_at, updated_at
		 FROM sequences WHERE id = $1`, id)

	var seq domain.Sequence
	err := row.Scan(&seq.ID, &seq.Name, &seq.ScoreMin, &seq.ScoreMax, &seq.TargetStatus, &seq.Active, &seq.CreatedAt, &seq.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Sequence{}, ErrNotFound
		}
		return domain.Sequence{}, err
	}

	steps, err := r.stepsFor(ctx, []uuid.UUID{id})
	if err != nil {
		return domain.Sequence{}, err
	}
	seq.Steps = steps[id]
	return seq, nil
}

// ListSequences returns every sequence with its steps, newest first.
func (r *Repository) ListSequences(ctx context.Context) ([]domain.Sequence, error) {
	return r.listSequences(ctx,
		`SELECT id, name, score_min, score_max, target_status, active, created_at, updated_at
		 FROM sequences ORDER BY created_at DESC`)
}

// ListActiveSequences returns the active sequences the matcher considers.
func (r *Repository) ListActiveSequences(ctx context.Context) ([]domain.Sequence, error) {
	return r.listSequences(ctx,
		`SELECT id, name, score_min, score_max, target_status, active, created_at, updated_at
		 FROM sequences WHERE active ORDER BY created_at DESC`)
}

// SetSequenceActive flips the active flag of a sequence.
func (r *Repository) SetSequenceActive(ctx context.Context, id uuid.UUID, active bool, now time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sequences SET active = $2, updated_at = $3 WHERE id = $1`, id, active, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) listSequences(ctx context.Context, query string) ([]domain.Sequence, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sequences []domain.Sequence
	var ids []uuid.UUID
	for rows.Next() {
		var seq domain.Sequence
		if err := rows.Scan(&seq.ID, &seq.Name, &seq.ScoreMin, &seq.ScoreMax, &seq.TargetStatus, &seq.Active, &seq.CreatedAt, &seq.UpdatedAt); err != nil {
			return nil, err
		}
		sequences = append(sequences, seq)
		ids = append(ids, seq.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	steps, err := r.stepsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sequences {
		sequences[i].Steps = steps[sequences[i].ID]
	}
	return sequences, nil
}

func (r *Repository) stepsFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]domain.Step, error) {
	if len(ids) == 0 {
		return map[uuid.UUID][]domain.Step{}, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT sequence_id, step_number, delay_days, subject, body
		 FROM sequence_steps WHERE sequence_id = ANY($1) ORDER BY sequence_id, step_number`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]domain.Step, len(ids))
	for rows.Next() {
		var step domain.Step
		if err := rows.Scan(&step.SequenceID, &step.Number, &step.DelayDays, &step.Subject, &step.Body); err != nil {
			return nil, err
		}
		out[step.SequenceID] = append(out[step.SequenceID], step)
	}
	return out, rows.Err()
}

// --- enrollments ---

// InsertEnrollment stores a new active enrollment. The partial unique index
// on (lead_id) WHERE status = 'active' rejects a second active enrollment.
func (r *Repository) InsertEnrollment(ctx context.Context, e domain.Enrollment) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sequence_enrollments (id, lead_id, sequence_id, status, enrolled_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.LeadID, e.SequenceID, string(e.Status), e.EnrolledAt)
	return err
}

// GetActiveEnrollment returns the lead's single active enrollment, if any.
func (r *Repository) GetActiveEnrollment(ctx context.Context, leadID uuid.UUID) (domain.Enrollment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, lead_id, sequence_id, status, enrolled_at, ended_at, end_reason
		 FROM sequence_enrollments WHERE lead_id = $1 AND status = 'active'`, leadID)
	return scanEnrollment(row)
}

// GetEnrollment loads an enrollment by id.
func (r *Repository) GetEnrollment(ctx context.Context, id uuid.UUID) (domain.Enrollment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, lead_id, sequence_id, status, enrolled_at, ended_at, end_reason
		 FROM sequence_enrollments WHERE id = $1`, id)
	return scanEnrollment(row)
}

// EndEnrollment moves an active enrollment to a terminal status. The status
// guard makes concurrent enders race safely: only one caller wins.
func (r *Repository) EndEnrollment(ctx context.Context, id uuid.UUID, status domain.EnrollmentStatus, reason string, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sequence_enrollments
		 SET status = $2, ended_at = $3, end_reason = $4
		 WHERE id = $1 AND status = 'active'`,
		id, string(status), now, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListActiveEnrollments returns every active enrollment joined with the lead
// contact fields and the sequence definition, for the sweeper.
func (r *Repository) ListActiveEnrollments(ctx context.Context) ([]ActiveEnrollment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT e.id, e.lead_id, e.sequence_id, e.status, e.enrolled_at, e.ended_at, e.end_reason,
		        l.email, l.first_name, l.last_name,
		        s.id, s.name, s.score_min, s.score_max, s.target_status, s.active, s.created_at, s.updated_at
		 FROM sequence_enrollments e
		 JOIN leads l ON l.id = e.lead_id
		 JOIN sequences s ON s.id = e.sequence_id
		 WHERE e.status = 'active'
		 ORDER BY e.enrolled_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActiveEnrollment
	var seqIDs []uuid.UUID
	seen := map[uuid.UUID]bool{}
	for rows.Next() {
		var ae ActiveEnrollment
		var status string
		err := rows.Scan(
			&ae.Enrollment.ID, &ae.Enrollment.LeadID, &ae.Enrollment.SequenceID, &status,
			&ae.Enrollment.EnrolledAt, &ae.Enrollment.EndedAt, &ae.Enrollment.EndReason,
			&ae.LeadEmail, &ae.LeadFirstName, &ae.LeadLastName,
			&ae.Sequence.ID, &ae.Sequence.Name, &ae.Sequence.ScoreMin, &ae.Sequence.ScoreMax,
			&ae.Sequence.TargetStatus, &ae.Sequence.Active, &ae.Sequence.CreatedAt, &ae.Sequence.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		ae.Enrollment.Status = domain.EnrollmentStatus(status)
		out = append(out, ae)
		if !seen[ae.Sequence.ID] {
			seen[ae.Sequence.ID] = true
			seqIDs = append(seqIDs, ae.Sequence.ID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	steps, err := r.stepsFor(ctx, seqIDs)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Sequence.Steps = steps[out[i].Sequence.ID]
	}
	return out, nil
}

func scanEnrollment(row pgx.Row) (domain.Enrollment, error) {
	var e domain.Enrollment
	var status string
	err := row.Scan(&e.ID, &e.LeadID, &e.SequenceID, &status, &e.EnrolledAt, &e.EndedAt, &e.EndReason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Enrollment{}, ErrNotFound
		}
		return domain.Enrollment{}, err
	}
	e.Status = domain.EnrollmentStatus(status)
	return e, nil
}

// --- deliveries ---

// InsertPendingDelivery claims a step for sending. The composite primary key
// on (lead_id, sequence_id, step_number) is the at-most-once guard: the
// insert reports claimed only for the first caller, ever.
func (r *Repository) InsertPendingDelivery(ctx context.Context, leadID, sequenceID uuid.UUID, stepNumber int, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO sequence_deliveries (lead_id, sequence_id, step_number, outcome, attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, 'pending', 1, $4, $4)
		 ON CONFLICT (lead_id, sequence_id, step_number) DO NOTHING`,
		leadID, sequenceID, stepNumber, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimRetryable atomically reclaims a retryable delivery for another attempt.
// Only one concurrent sweeper wins the compare-and-set; deliveries at the
// attempt limit are left for MarkFailed.
func (r *Repository) ClaimRetryable(ctx context.Context, leadID, sequenceID uuid.UUID, stepNumber, maxAttempts int, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sequence_deliveries
		 SET outcome = 'pending', attempts = attempts + 1, updated_at = $5
		 WHERE lead_id = $1 AND sequence_id = $2 AND step_number = $3
		   AND outcome = 'retryable' AND attempts < $4`,
		leadID, sequenceID, stepNumber, maxAttempts, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// GetDelivery loads one delivery record.
func (r *Repository) GetDelivery(ctx context.Context, leadID, sequenceID uuid.UUID, stepNumber int) (domain.DeliveryRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT lead_id, sequence_id, step_number, outcome, attempts, last_error, created_at, updated_at
		 FROM sequence_deliveries
		 WHERE lead_id = $1 AND sequence_id = $2 AND step_number = $3`,
		leadID, sequenceID, stepNumber)
	return scanDelivery(row)
}

// ListDeliveries returns the delivery history for one lead.
func (r *Repository) ListDeliveries(ctx context.Context, leadID uuid.UUID) ([]domain.DeliveryRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT lead_id, sequence_id, step_number, outcome, attempts, last_error, created_at, updated_at
		 FROM sequence_deliveries WHERE lead_id = $1 ORDER BY created_at, step_number`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DeliveryRecord
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SetDeliveryOutcome records the result of a send attempt.
func (r *Repository) SetDeliveryOutcome(ctx context.Context, leadID, sequenceID uuid.UUID, stepNumber int, outcome domain.DeliveryOutcome, lastError string, now time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sequence_deliveries
		 SET outcome = $4, last_error = $5, updated_at = $6
		 WHERE lead_id = $1 AND sequence_id = $2 AND step_number = $3`,
		leadID, sequenceID, stepNumber, string(outcome), lastError, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDelivery(row pgx.Row) (domain.DeliveryRecord, error) {
	var rec domain.DeliveryRecord
	var outcome string
	err := row.Scan(&rec.LeadID, &rec.SequenceID, &rec.StepNumber, &outcome, &rec.Attempts, &rec.LastError, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DeliveryRecord{}, ErrNotFound
		}
		return domain.DeliveryRecord{}, err
	}
	rec.Outcome = domain.DeliveryOutcome(outcome)
	return rec, nil
}
