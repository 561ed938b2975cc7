// README: Notification dispatch contract (tokens + payload) shared by dispatch and order flows.
package notify

import (
	"context"
	"log/slog"
)

type Payload struct {
	Title string
	Body  string
	Data  map[string]string
}

type Result struct {
	SuccessCount int
	FailureCount int
}

// Notifier delivers a payload to device tokens. Per-token failures are counted in
// Result; only a failure of the whole call is returned as an error.
type Notifier interface {
	Notify(ctx context.Context, tokens []string, p Payload) (Result, error)
}

// Dedupe drops empty and repeated tokens, keeping first-seen order.
func Dedupe(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// LogNotifier only logs; used when Firebase messaging is not configured.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, tokens []string, p Payload) (Result, error) {
	log := n.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("notification skipped (no messaging backend)", "title", p.Title, "recipients", len(tokens))
	return Result{}, nil
}
