// Package domain holds the nurture-sequence model: sequences with ordered
// steps, score-band matching, enrollments and per-step delivery records.
package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	leaddomain "leadflow_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// TargetAny is the wildcard target status: the sequence accepts leads in any
// pipeline status.
const TargetAny = "any"

// EnrollmentStatus is the lifecycle state of a sequence enrollment.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
	EnrollmentReplaced  EnrollmentStatus = "replaced"
)

// DeliveryOutcome is the terminal-or-transient state of one step delivery.
type DeliveryOutcome string

const (
	// DeliveryPending marks a claimed delivery that has not finished sending.
	DeliveryPending DeliveryOutcome = "pending"
	// DeliveryRetryable marks a transient failure eligible for a later sweep.
	DeliveryRetryable DeliveryOutcome = "retryable"
	DeliverySent      DeliveryOutcome = "sent"
	DeliveryFailed    DeliveryOutcome = "failed"
	// DeliverySkipped marks a claim abandoned because the enrollment ended
	// between the claim and the send.
	DeliverySkipped DeliveryOutcome = "skipped"
)

// Sequence is an ordered set of timed email steps matched to a score band
// and a target pipeline status.
type Sequence struct {
	ID           uuid.UUID
	Name         string
	ScoreMin     int
	ScoreMax     int
	TargetStatus string
	Active       bool
	Steps        []Step
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Step is one email in a sequence, sent DelayDays after enrollment.
type Step struct {
	SequenceID uuid.UUID
	Number     int
	DelayDays  int
	Subject    string
	Body       string
}

// Enrollment ties a lead to a sequence from a fixed start time.
type Enrollment struct {
	ID         uuid.UUID
	LeadID     uuid.UUID
	SequenceID uuid.UUID
	Status     EnrollmentStatus
	EnrolledAt time.Time
	EndedAt    *time.Time
	EndReason  string
}

// DeliveryRecord is the idempotency guard and audit row for one step send.
// The (LeadID, SequenceID, StepNumber) triple is unique for all time: once a
// row exists the step is never claimed again, regardless of re-enrollment.
type DeliveryRecord struct {
	LeadID     uuid.UUID
	SequenceID uuid.UUID
	StepNumber int
	Outcome    DeliveryOutcome
	Attempts   int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Matches reports whether a lead with the given score and pipeline status is
// eligible for the sequence. Both band endpoints are inclusive; a TargetAny
// sequence accepts every status.
func (s Sequence) Matches(score int, status string) bool {
	if !s.Active {
		return false
	}
	if s.TargetStatus != TargetAny && s.TargetStatus != status {
		return false
	}
	return score >= s.ScoreMin && score <= s.ScoreMax
}

// BandWidth is the number of scores the band covers. Narrower bands are
// considered more specific when two sequences match the same score.
func (s Sequence) BandWidth() int {
	return s.ScoreMax - s.ScoreMin
}

// Validate checks the structural invariants of a sequence definition:
// a sane score band, contiguous step numbers from 1 and non-decreasing delays.
func (s Sequence) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("sequence name is required")
	}
	if s.ScoreMin < 0 || s.ScoreMax > 100 {
		return fmt.Errorf("score band must lie within [0, 100]")
	}
	if s.ScoreMin > s.ScoreMax {
		return fmt.Errorf("score band min %d exceeds max %d", s.ScoreMin, s.ScoreMax)
	}
	if s.TargetStatus != TargetAny && !leaddomain.IsKnownStatus(leaddomain.Status(s.TargetStatus)) {
		return fmt.Errorf("unknown target status %q", s.TargetStatus)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("sequence needs at least one step")
	}

	prevDelay := 0
	for i, step := range s.Steps {
		if step.Number != i+1 {
			return fmt.Errorf("step %d has number %d, want %d", i, step.Number, i+1)
		}
		if step.DelayDays < 0 {
			return fmt.Errorf("step %d has negative delay", step.Number)
		}
		if step.DelayDays < prevDelay {
			return fmt.Errorf("step %d delay %d decreases from previous %d", step.Number, step.DelayDays, prevDelay)
		}
		if strings.TrimSpace(step.Subject) == "" {
			return fmt.Errorf("step %d subject is required", step.Number)
		}
		if strings.TrimSpace(step.Body) == "" {
			return fmt.Errorf("step %d body is required", step.Number)
		}
		prevDelay = step.DelayDays
	}
	return nil
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z][a-zA-Z0-9_]*)\s*\}\}`)

// RenderTemplate substitutes {{name}} placeholders from vars. Unknown
// placeholders render as an empty string rather than leaking the tag.
func RenderTemplate(tmpl string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		return vars[name]
	})
}
