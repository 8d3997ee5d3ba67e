package notification

import (
	"context"
	"errors"
	"testing"

	"crm_core_backend/internal/events"
	"crm_core_backend/platform/logger"

	"github.com/google/uuid"
)

type recordedMail struct {
	to      string
	subject string
}

type fakeSender struct {
	sent []recordedMail
	fail bool
}

func (f *fakeSender) Send(_ context.Context, to, subject, _ string) error {
	if f.fail {
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, recordedMail{to: to, subject: subject})
	return nil
}

type fakeDirectory struct {
	emails map[uuid.UUID]string
}

func (f *fakeDirectory) EmailFor(_ context.Context, _, agentID uuid.UUID) (string, error) {
	email, ok := f.emails[agentID]
	if !ok {
		return "", errors.New("agent not found")
	}
	return email, nil
}

func TestNotifierSendsOnPrestige(t *testing.T) {
	agentID := uuid.New()
	sender := &fakeSender{}
	n := NewNotifier(sender, &fakeDirectory{emails: map[uuid.UUID]string{agentID: "agent@example.com"}}, logger.New("development"))
	bus := events.NewInMemoryBus(logger.New("development"))
	n.Register(bus)

	err := bus.PublishSync(context.Background(), events.PrestigeEarned{
		BaseEvent: events.NewBaseEvent(),
		TenantID:  uuid.New(),
		AgentID:   agentID,
		Prestige:  2,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(sender.sent) != 1 || sender.sent[0].to != "agent@example.com" {
		t.Fatalf("expected one mail to the agent, got %+v", sender.sent)
	}
}

func TestNotifierSwallowsFailures(t *testing.T) {
	agentID := uuid.New()
	sender := &fakeSender{fail: true}
	n := NewNotifier(sender, &fakeDirectory{emails: map[uuid.UUID]string{agentID: "agent@example.com"}}, logger.New("development"))
	bus := events.NewInMemoryBus(logger.New("development"))
	n.Register(bus)

	// Delivery failure must not propagate to the publisher.
	err := bus.PublishSync(context.Background(), events.LeadAssigned{
		BaseEvent: events.NewBaseEvent(),
		TenantID:  uuid.New(),
		LeadID:    uuid.New(),
		AgentID:   agentID,
	})
	if err != nil {
		t.Fatalf("handler errors must be swallowed, got %v", err)
	}
}

func TestNotifierSkipsUnknownAgents(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, &fakeDirectory{emails: map[uuid.UUID]string{}}, logger.New("development"))
	bus := events.NewInMemoryBus(logger.New("development"))
	n.Register(bus)

	err := bus.PublishSync(context.Background(), events.AgentExited{
		BaseEvent: events.NewBaseEvent(),
		TenantID:  uuid.New(),
		AgentID:   uuid.New(),
		Reason:    "solitary idle limit exceeded",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("no mail expected for unknown agent, got %+v", sender.sent)
	}
}
