package llmerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestFromStatus(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusInternalServerError, KindProvider},
		{http.StatusBadRequest, KindProvider},
	}
	for _, tc := range cases {
		err := FromStatus(tc.status, []byte(`{"error":"secret detail"}`))
		if err.Kind != tc.want {
			t.Errorf("status %d: expected %s, got %s", tc.status, tc.want, err.Kind)
		}
		if strings.Contains(err.UserMessage(), "secret detail") {
			t.Errorf("status %d: user message leaks provider detail", tc.status)
		}
		if !strings.Contains(err.Error(), "secret detail") {
			t.Errorf("status %d: detail should stay available for logs", tc.status)
		}
	}
}

func TestUserMessage(t *testing.T) {
	v := Validation("Message is required")
	if v.UserMessage() != "Message is required" {
		t.Fatalf("validation message should pass through, got %q", v.UserMessage())
	}
	p := Wrap(KindTransport, "dial tcp: connection refused", errors.New("boom"))
	if p.UserMessage() != GenericMessage {
		t.Fatalf("expected generic message, got %q", p.UserMessage())
	}
}

func TestNormalize(t *testing.T) {
	if Normalize(nil) != nil {
		t.Fatal("nil should stay nil")
	}

	orig := New(KindRateLimited, "slow down")
	wrapped := fmt.Errorf("outer: %w", orig)
	if got := Normalize(wrapped); got != orig {
		t.Fatalf("expected the wrapped *Error back, got %v", got)
	}

	if got := Normalize(context.DeadlineExceeded); got.Kind != KindTransport {
		t.Fatalf("deadline should be transport, got %s", got.Kind)
	}
	if got := Normalize(errors.New("weird")); got.Kind != KindProvider {
		t.Fatalf("unknown error should be provider, got %s", got.Kind)
	}
}

func TestKindOf(t *testing.T) {
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatal("plain errors have no kind")
	}
	if !IsValidation(fmt.Errorf("x: %w", Validation("bad"))) {
		t.Fatal("expected validation through wrapping")
	}
}
