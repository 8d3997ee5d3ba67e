package notification

import (
	"context"
	"fmt"

	"crm_core_backend/internal/events"
	"crm_core_backend/platform/logger"

	"github.com/google/uuid"
)

// Sender delivers one message; satisfied by *Mailer and by test fakes.
type Sender interface {
	Send(ctx context.Context, toEmail, subject, body string) error
}

// AgentDirectory resolves an agent's email address. Agent accounts are
// owned by the identity system; this module only reads contact details.
type AgentDirectory interface {
	EmailFor(ctx context.Context, tenantID, agentID uuid.UUID) (string, error)
}

// Notifier turns domain events into email. Lookup or delivery failures are
// logged and swallowed; notification must never fail the publishing flow.
type Notifier struct {
	sender    Sender
	directory AgentDirectory
	log       *logger.Logger
}

// NewNotifier creates a notifier. Pass a nil *Mailer to disable delivery.
func NewNotifier(sender Sender, directory AgentDirectory, log *logger.Logger) *Notifier {
	return &Notifier{sender: sender, directory: directory, log: log}
}

// Register subscribes the notifier to the events it emails about.
func (n *Notifier) Register(bus events.Bus) {
	bus.Subscribe(events.PrestigeEarned{}.EventName(), events.HandlerFunc(n.onPrestigeEarned))
	bus.Subscribe(events.AgentExited{}.EventName(), events.HandlerFunc(n.onAgentExited))
	bus.Subscribe(events.LeadAssigned{}.EventName(), events.HandlerFunc(n.onLeadAssigned))
}

func (n *Notifier) onPrestigeEarned(ctx context.Context, event events.Event) error {
	e, ok := event.(events.PrestigeEarned)
	if !ok {
		return nil
	}
	n.deliver(ctx, e.TenantID, e.AgentID,
		"Prestige earned",
		fmt.Sprintf("Congratulations, you completed another prestige cycle. Your prestige level is now %d.", e.Prestige))
	return nil
}

func (n *Notifier) onAgentExited(ctx context.Context, event events.Event) error {
	e, ok := event.(events.AgentExited)
	if !ok {
		return nil
	}
	n.deliver(ctx, e.TenantID, e.AgentID,
		"Removed from the lead pool",
		fmt.Sprintf("You have been removed from the gamified lead pool (%s). Contact your team leader to be readmitted.", e.Reason))
	return nil
}

func (n *Notifier) onLeadAssigned(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadAssigned)
	if !ok {
		return nil
	}
	n.deliver(ctx, e.TenantID, e.AgentID,
		"New pool lead assigned",
		fmt.Sprintf("A new advertising-pool lead (%s) has been assigned to you. Follow up as soon as possible.", e.LeadID))
	return nil
}

func (n *Notifier) deliver(ctx context.Context, tenantID, agentID uuid.UUID, subject, body string) {
	if n.sender == nil || n.directory == nil {
		return
	}

	email, err := n.directory.EmailFor(ctx, tenantID, agentID)
	if err != nil || email == "" {
		n.log.Warn("could not resolve agent email for notification",
			"tenant_id", tenantID.String(), "agent_id", agentID.String(), "error", err)
		return
	}

	if err := n.sender.Send(ctx, email, subject, body); err != nil {
		n.log.Error("notification email failed",
			"tenant_id", tenantID.String(), "agent_id", agentID.String(), "subject", subject, "error", err)
	}
}
