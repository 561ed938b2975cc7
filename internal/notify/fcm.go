// README: Firebase Cloud Messaging multicast notifier.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"
)

// fcmMaxTokens is the FCM limit of tokens per multicast request.
const fcmMaxTokens = 500

// Messenger is the subset of *messaging.Client used here.
type Messenger interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type FCMNotifier struct {
	client Messenger
	log    *slog.Logger
}

func NewFCMNotifier(client Messenger, log *slog.Logger) *FCMNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &FCMNotifier{client: client, log: log}
}

// Notify sends p to every token in chunks of fcmMaxTokens. A failing chunk is counted
// as failures for all of its tokens and does not stop later chunks.
func (n *FCMNotifier) Notify(ctx context.Context, tokens []string, p Payload) (Result, error) {
	tokens = Dedupe(tokens)
	var res Result
	if len(tokens) == 0 {
		return res, nil
	}

	var lastErr error
	for start := 0; start < len(tokens); start += fcmMaxTokens {
		end := min(start+fcmMaxTokens, len(tokens))
		chunk := tokens[start:end]

		br, err := n.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens: chunk,
			Data:   p.Data,
			Notification: &messaging.Notification{
				Title: p.Title,
				Body:  p.Body,
			},
			Android: &messaging.AndroidConfig{
				Priority: "high",
			},
		})
		if err != nil {
			n.log.Warn("fcm multicast failed", "tokens", len(chunk), "error", err)
			res.FailureCount += len(chunk)
			lastErr = err
			continue
		}
		res.SuccessCount += br.SuccessCount
		res.FailureCount += br.FailureCount
		for i, r := range br.Responses {
			if r != nil && !r.Success && i < len(chunk) {
				n.log.Debug("fcm token rejected", "token", chunk[i], "error", r.Error)
			}
		}
	}

	if res.SuccessCount == 0 && lastErr != nil {
		return res, fmt.Errorf("sending fcm multicast: %w", lastErr)
	}
	return res, nil
}
