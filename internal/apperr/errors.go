// Package apperr defines the error kinds surfaced by the messaging core.
package apperr

import (
	"errors"
	"fmt"
)

// Validation reasons.
const (
	ReasonEmptyContent     = "empty_content"
	ReasonInvalidSender    = "invalid_sender"
	ReasonUnknownRecipient = "unknown_recipient"
	ReasonInvalidRecipient = "invalid_recipient"
	ReasonInvalidID        = "invalid_id"
	ReasonInvalidRole      = "invalid_role"
)

var (
	// ErrNotFound is returned when a message, conversation or account is absent,
	// or when the viewer is not a participant of the message it tried to touch.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable is returned when no administrative agent can receive
	// support messages.
	ErrUnavailable = errors.New("support channel unavailable")
)

// ValidationError reports a request that can never succeed as submitted.
type ValidationError struct {
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Reason, e.Detail)
}

// Validation returns a *ValidationError.
func Validation(reason, detail string) error {
	return &ValidationError{Reason: reason, Detail: detail}
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Reason returns the validation reason carried by err, or "".
func Reason(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ""
}
