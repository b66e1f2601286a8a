// Package scheduler provides the asynq task plumbing that drives periodic
// sequence sweeps.
package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TaskSequenceSweep evaluates every active enrollment and sends due steps.
const TaskSequenceSweep = "sequences.sweep"

// SweepPayload carries the enqueue time for observability.
type SweepPayload struct {
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// NewSweepTask builds the sweep task.
func NewSweepTask(now time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(SweepPayload{EnqueuedAt: now})
	if err != nil {
		return nil, fmt.Errorf("marshal sweep payload: %w", err)
	}
	return asynq.NewTask(TaskSequenceSweep, payload), nil
}

// ParseSweepPayload decodes the sweep task payload.
func ParseSweepPayload(task *asynq.Task) (SweepPayload, error) {
	var payload SweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return SweepPayload{}, fmt.Errorf("unmarshal sweep payload: %w", err)
	}
	return payload, nil
}
