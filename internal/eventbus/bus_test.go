package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/opendeepwiki/deepresearch/internal/domain"
)

func TestBusPublishBroadcast(t *testing.T) {
	bus := NewResearchEventBus()
	calledA := false
	calledB := false

	bus.Subscribe(ResearchEventTurnRecorded, func(ctx context.Context, event ResearchEvent) error {
		calledA = true
		return nil
	})
	bus.Subscribe(ResearchEventTurnRecorded, func(ctx context.Context, event ResearchEvent) error {
		calledB = event.Turn != nil && event.Turn.Index == 2
		return nil
	})

	err := bus.Publish(context.Background(), ResearchEvent{
		Type: ResearchEventTurnRecorded,
		Turn: &domain.TurnRecord{Index: 2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !calledA || !calledB {
		t.Fatalf("expected handlers to be called")
	}
}

func TestBusRoutesByType(t *testing.T) {
	bus := NewResearchEventBus()
	called := false
	bus.Subscribe(ResearchEventSessionFinished, func(ctx context.Context, event ResearchEvent) error {
		called = true
		return nil
	})

	if err := bus.Publish(context.Background(), ResearchEvent{Type: ResearchEventSessionStarted}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("handler of another type must not be called")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewThreatModelEventBus()
	called := false
	unsubscribe := bus.Subscribe(ThreatModelEventGenerated, func(ctx context.Context, event ThreatModelEvent) error {
		called = true
		return nil
	})
	unsubscribe()

	if err := bus.Publish(context.Background(), ThreatModelEvent{Type: ThreatModelEventGenerated}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("expected handler to be unsubscribed")
	}
}

func TestBusPublishJoinErrors(t *testing.T) {
	bus := NewResearchEventBus()
	errA := errors.New("err-a")
	bus.Subscribe(ResearchEventTurnRecorded, func(ctx context.Context, event ResearchEvent) error {
		return errA
	})
	bus.Subscribe(ResearchEventTurnRecorded, func(ctx context.Context, event ResearchEvent) error {
		return errors.New("err-b")
	})

	err := bus.Publish(context.Background(), ResearchEvent{Type: ResearchEventTurnRecorded})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, errA) {
		t.Fatalf("expected joined error to contain err-a, got %v", err)
	}
}
