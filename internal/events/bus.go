// README: In-process domain event bus; handlers run in registration order per event.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Any subscribes a handler to every event.
const Any = "*"

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

// Mode decides what happens to a handler error.
type Mode int

const (
	// BestEffort errors are logged and swallowed.
	BestEffort Mode = iota
	// Critical errors are returned from Publish after all handlers ran.
	Critical
)

type subscription struct {
	name    string
	mode    Mode
	handler Handler
}

type Bus struct {
	mu   sync.RWMutex
	subs []subscription
	log  *slog.Logger
}

func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log}
}

// Subscribe registers h for events named name (or Any).
func (b *Bus) Subscribe(name string, mode Mode, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, mode: mode, handler: h})
}

// Publish delivers e synchronously. A failing handler never stops later handlers.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	subs := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.name == e.Name() || s.name == Any {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		err := s.handler(ctx, e)
		if err == nil {
			continue
		}
		if s.mode == Critical {
			b.log.Error("critical event handler failed", "event", e.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		b.log.Warn("event handler failed", "event", e.Name(), "error", err)
	}
	return errors.Join(errs...)
}
