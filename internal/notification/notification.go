// Package notification turns domain events into operational alerts. It
// subscribes to the event bus so the publishing modules never know about
// email delivery or alert routing.
package notification

import (
	"context"
	"fmt"

	"leadflow_backend/internal/email"
	"leadflow_backend/internal/events"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

// criticalScore is the score from which a fresh lead warrants a same-day
// alert to the sales inbox.
const criticalScore = 80

// Module handles domain events that should reach a human: escalated chat
// rooms, terminally failed sequence steps and critical new leads.
type Module struct {
	sender email.Sender
	to     string
	log    *logger.Logger
}

// New creates the notification module. When no alert address is configured
// the handlers still log, but nothing is emailed.
func New(sender email.Sender, cfg config.AlertConfig, log *logger.Logger) *Module {
	return &Module{sender: sender, to: cfg.GetAlertEmail(), log: log}
}

// RegisterHandlers subscribes the module to the events it alerts on.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.LeadCreated{}.EventName(), m)
	bus.Subscribe(events.RoomEscalated{}.EventName(), m)
	bus.Subscribe(events.SequenceStepFailed{}.EventName(), m)
}

// Handle dispatches one event to its alert handler.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadCreated:
		return m.handleLeadCreated(ctx, e)
	case events.RoomEscalated:
		return m.handleRoomEscalated(ctx, e)
	case events.SequenceStepFailed:
		return m.handleStepFailed(ctx, e)
	}
	return nil
}

func (m *Module) handleLeadCreated(ctx context.Context, e events.LeadCreated) error {
	if e.Score < criticalScore {
		return nil
	}
	m.log.Info("critical lead alert", "lead_id", e.LeadID, "score", e.Score)
	return m.alert(ctx,
		"Critical lead needs same-day contact",
		fmt.Sprintf("<p>Lead %s came in with score %d. Contact within the same business day.</p>", e.LeadID, e.Score))
}

func (m *Module) handleRoomEscalated(ctx context.Context, e events.RoomEscalated) error {
	m.log.Info("room escalation alert", "room_id", e.RoomID)
	return m.alert(ctx,
		"Chat visitor waiting for an operator",
		fmt.Sprintf("<p>Room %s was escalated and waits in the operator queue.</p>", e.RoomID))
}

func (m *Module) handleStepFailed(ctx context.Context, e events.SequenceStepFailed) error {
	m.log.Info("delivery failure alert",
		"lead_id", e.LeadID, "sequence_id", e.SequenceID, "step_number", e.StepNumber)
	return m.alert(ctx,
		fmt.Sprintf("Sequence step %d failed for lead %s", e.StepNumber, e.LeadID),
		fmt.Sprintf("<p>Delivery of step %d in sequence %s to lead %s failed: %s</p>",
			e.StepNumber, e.SequenceID, e.LeadID, e.LastError))
}

func (m *Module) alert(ctx context.Context, subject, body string) error {
	if m.to == "" {
		return nil
	}
	if err := m.sender.Send(ctx, m.to, subject, body); err != nil {
		return fmt.Errorf("send alert %q: %w", subject, err)
	}
	return nil
}
