package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"firebase.google.com/go/v4/messaging"
)

type fakeMessenger struct {
	calls   []*messaging.MulticastMessage
	failAll bool
	reject  map[string]bool
}

func (f *fakeMessenger) SendEachForMulticast(_ context.Context, m *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	f.calls = append(f.calls, m)
	if f.failAll {
		return nil, errors.New("fcm unavailable")
	}
	br := &messaging.BatchResponse{}
	for _, tok := range m.Tokens {
		if f.reject[tok] {
			br.FailureCount++
			br.Responses = append(br.Responses, &messaging.SendResponse{Success: false, Error: errors.New("unregistered")})
			continue
		}
		br.SuccessCount++
		br.Responses = append(br.Responses, &messaging.SendResponse{Success: true, MessageID: "m-" + tok})
	}
	return br, nil
}

func TestFCMNotifierCountsPartialFailures(t *testing.T) {
	fm := &fakeMessenger{reject: map[string]bool{"bad": true}}
	n := NewFCMNotifier(fm, nil)

	res, err := n.Notify(context.Background(), []string{"a", "bad", "a", "", "b"}, Payload{Title: "New order"})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if res.SuccessCount != 2 || res.FailureCount != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(fm.calls) != 1 || len(fm.calls[0].Tokens) != 3 {
		t.Fatalf("expected one deduplicated multicast of 3 tokens, got %+v", fm.calls)
	}
}

func TestFCMNotifierChunksLargeTargetSets(t *testing.T) {
	fm := &fakeMessenger{}
	n := NewFCMNotifier(fm, nil)

	tokens := make([]string, 1201)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok-%d", i)
	}
	res, err := n.Notify(context.Background(), tokens, Payload{})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(fm.calls) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(fm.calls))
	}
	if res.SuccessCount != 1201 {
		t.Fatalf("expected 1201 successes, got %d", res.SuccessCount)
	}
}

func TestFCMNotifierEmptyTokensIsNoop(t *testing.T) {
	fm := &fakeMessenger{}
	res, err := NewFCMNotifier(fm, nil).Notify(context.Background(), nil, Payload{})
	if err != nil || res != (Result{}) || len(fm.calls) != 0 {
		t.Fatalf("expected silent no-op, got res=%+v err=%v calls=%d", res, err, len(fm.calls))
	}
}

func TestFCMNotifierTotalFailureReturnsError(t *testing.T) {
	fm := &fakeMessenger{failAll: true}
	res, err := NewFCMNotifier(fm, nil).Notify(context.Background(), []string{"a", "b"}, Payload{})
	if err == nil {
		t.Fatal("expected error when every chunk fails")
	}
	if res.FailureCount != 2 {
		t.Fatalf("expected 2 failures, got %d", res.FailureCount)
	}
}
