// Package llmerr is the error taxonomy shared by the provider adapters, the
// orchestrator and the HTTP layer.
package llmerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies why a completion did not produce text.
type Kind string

const (
	KindValidation    Kind = "ValidationError"
	KindAuth          Kind = "AuthError"
	KindRateLimited   Kind = "RateLimited"
	KindTransport     Kind = "TransportError"
	KindProvider      Kind = "ProviderError"
	KindEmptyResponse Kind = "EmptyResponse"
)

// GenericMessage is the only text callers see for non-validation failures.
const GenericMessage = "Failed to get response from the assistant"

// Error carries a Kind, a message and the underlying cause.
// Message is safe to show to users only for KindValidation; everything else is
// replaced by GenericMessage in UserMessage.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage returns text that can cross the HTTP boundary.
func (e *Error) UserMessage() string {
	if e.Kind == KindValidation {
		return e.Message
	}
	return GenericMessage
}

// New creates an Error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation creates a KindValidation error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func IsValidation(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindValidation
}

// Normalize guarantees an *Error: values already classified pass through,
// context expiry becomes a transport failure, anything else a provider failure.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(KindTransport, "request did not complete", err)
	}
	return Wrap(KindProvider, "unclassified provider failure", err)
}

// FromStatus classifies a non-2xx provider response.
func FromStatus(status int, body []byte) *Error {
	detail := fmt.Errorf("API error: %d %s - %s", status, http.StatusText(status), strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Wrap(KindAuth, "provider rejected credentials", detail)
	case status == http.StatusTooManyRequests:
		return Wrap(KindRateLimited, "provider rate limit reached", detail)
	default:
		return Wrap(KindProvider, "provider returned an error", detail)
	}
}

// FromTransport classifies a failure to reach the provider at all.
func FromTransport(message string, err error) *Error {
	return Wrap(KindTransport, message, err)
}
