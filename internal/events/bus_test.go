package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/streadway/amqp"
)

type pinged struct{ ID string }

func (pinged) Name() string { return "pinged" }

type other struct{}

func (other) Name() string { return "other" }

func TestPublishRunsHandlersInOrder(t *testing.T) {
	bus := NewBus(nil)
	var calls []string
	bus.Subscribe("pinged", BestEffort, func(context.Context, Event) error {
		calls = append(calls, "first")
		return nil
	})
	bus.Subscribe(Any, BestEffort, func(context.Context, Event) error {
		calls = append(calls, "any")
		return nil
	})
	bus.Subscribe("pinged", Critical, func(context.Context, Event) error {
		calls = append(calls, "third")
		return nil
	})
	bus.Subscribe("other", Critical, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	if err := bus.Publish(context.Background(), pinged{ID: "x"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	want := []string{"first", "any", "third"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}

func TestPublishSwallowsBestEffortErrors(t *testing.T) {
	bus := NewBus(nil)
	ran := false
	bus.Subscribe("pinged", BestEffort, func(context.Context, Event) error { return errors.New("push down") })
	bus.Subscribe("pinged", BestEffort, func(context.Context, Event) error {
		ran = true
		return nil
	})
	if err := bus.Publish(context.Background(), pinged{}); err != nil {
		t.Fatalf("expected best-effort failure to be swallowed, got %v", err)
	}
	if !ran {
		t.Fatal("handler after a failing one must still run")
	}
}

func TestPublishReturnsCriticalErrors(t *testing.T) {
	bus := NewBus(nil)
	boom := errors.New("ledger unavailable")
	ran := false
	bus.Subscribe("pinged", Critical, func(context.Context, Event) error { return boom })
	bus.Subscribe("pinged", BestEffort, func(context.Context, Event) error {
		ran = true
		return nil
	})
	err := bus.Publish(context.Background(), pinged{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected critical error, got %v", err)
	}
	if !ran {
		t.Fatal("critical failure must not stop later handlers")
	}
}

type fakeChannel struct {
	declared  string
	published []amqp.Publishing
	keys      []string
}

func (f *fakeChannel) ExchangeDeclare(name, _ string, _, _, _, _ bool, _ amqp.Table) error {
	f.declared = name
	return nil
}

func (f *fakeChannel) Publish(_, key string, _, _ bool, msg amqp.Publishing) error {
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func TestAMQPMirrorPublishesEnvelope(t *testing.T) {
	ch := &fakeChannel{}
	m, err := NewAMQPMirror(ch, "")
	if err != nil {
		t.Fatalf("new mirror: %v", err)
	}
	if ch.declared != DefaultExchange {
		t.Fatalf("declared %q, want %q", ch.declared, DefaultExchange)
	}
	if err := m.Handle(context.Background(), pinged{ID: "o1"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(ch.published) != 1 || ch.keys[0] != "pinged" {
		t.Fatalf("unexpected publishes: %v", ch.keys)
	}
	var got struct {
		Event   string `json:"event"`
		Payload struct {
			ID string `json:"ID"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(ch.published[0].Body, &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Event != "pinged" || got.Payload.ID != "o1" {
		t.Fatalf("unexpected envelope: %+v", got)
	}
}
