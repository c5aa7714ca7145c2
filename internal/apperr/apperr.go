// Package apperr defines the error kinds every whispr operation can fail with
// and the user-facing message attached to each.
package apperr

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Kind classifies a failure so the HTTP layer can pick a status code and the
// message shown to the user.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotAuthenticated
	KindUnauthorized
	KindBanned
	KindRateLimited
	KindContainsPII
	KindDuplicateReport
	KindAlreadyBanned
	KindNotFound
	KindInvalidKey
	KindAddressAlreadyActivated
	KindDatabase
	KindModerationService
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotAuthenticated:
		return "not_authenticated"
	case KindUnauthorized:
		return "unauthorized"
	case KindBanned:
		return "banned"
	case KindRateLimited:
		return "rate_limited"
	case KindContainsPII:
		return "contains_pii"
	case KindDuplicateReport:
		return "duplicate_report"
	case KindAlreadyBanned:
		return "already_banned"
	case KindNotFound:
		return "not_found"
	case KindInvalidKey:
		return "invalid_key"
	case KindAddressAlreadyActivated:
		return "address_already_activated"
	case KindDatabase:
		return "database"
	case KindModerationService:
		return "moderation_service"
	default:
		return "unknown"
	}
}

// Error is the error type returned by the services. Message is safe to show
// to end users; Err holds the internal cause and is only ever logged.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on kind alone, e.g. errors.Is(err, apperr.New(apperr.KindBanned, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New returns an error of the given kind with a user-facing message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an error of the given kind that keeps err as its cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Database wraps an opaque store failure.
func Database(message string, err error) *Error {
	return Wrap(KindDatabase, message, err)
}

// RateLimited reports a cooldown that has not elapsed. The message rounds the
// remaining wait up to whole minutes.
func RateLimited(remaining time.Duration) *Error {
	minutes := int(math.Ceil(remaining.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return &Error{
		Kind:       KindRateLimited,
		Message:    fmt.Sprintf("You must wait %d more minute(s) to post again.", minutes),
		RetryAfter: remaining,
	}
}

// KindOf returns the kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Message returns the user-facing message for err. Errors that did not come
// from this package get a generic text so internals never leak.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "Something went wrong. Please try again later."
}
