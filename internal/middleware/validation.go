package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// MaxSubjectLength caps a message subject, in bytes.
	MaxSubjectLength = 256
	// MaxBodyLength caps a message body, in bytes.
	MaxBodyLength = 20000
	// MaxAccountIDLength caps an account id.
	MaxAccountIDLength = 64
)

// ValidateMessageContent checks size and encoding of a subject/body pair.
// Emptiness is the message service's concern.
func ValidateMessageContent(subject, body string) error {
	if len(subject) > MaxSubjectLength {
		return errors.New("subject exceeds maximum length")
	}
	if len(body) > MaxBodyLength {
		return errors.New("body exceeds maximum length")
	}
	if !utf8.ValidString(subject) || !utf8.ValidString(body) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateMessageID validates a message ID.
func ValidateMessageID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid message ID format")
	}
	return nil
}

// ValidateAccountID validates an account id taken from a path.
func ValidateAccountID(id string) error {
	if len(id) == 0 {
		return errors.New("account ID cannot be empty")
	}
	if len(id) > MaxAccountIDLength {
		return errors.New("account ID exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("account ID must be valid UTF-8")
	}
	return nil
}
