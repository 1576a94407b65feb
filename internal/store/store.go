// Package store persists messages. Every implementation must apply the
// multi-row mutations (DeleteBetween, MarkAllRead) atomically or not at all.
package store

import (
	"context"

	"github.com/inkwell-books/storefront-messaging/internal/apperr"
	"github.com/inkwell-books/storefront-messaging/internal/conversation"
	"github.com/inkwell-books/storefront-messaging/internal/model"
)

// Query selects messages. Zero-valued fields do not filter.
type Query struct {
	// To keeps messages addressed to this identity.
	To string
	// Involving keeps messages this identity sent or received.
	Involving string
	// Between keeps messages exchanged by the pair, in either direction.
	Between conversation.Pair
	// FromAccountsOnly keeps account-authored messages.
	FromAccountsOnly bool
	// UnreadOnly keeps messages whose read flag is false.
	UnreadOnly bool
	// Ascending sorts oldest first; the default is newest first.
	Ascending bool
	// Limit caps the result size when positive.
	Limit int
}

// MessageStore is the storage interface for messages.
type MessageStore interface {
	// Insert persists a new message. Messages without a valid sender are
	// rejected with a validation error.
	Insert(ctx context.Context, m *model.Message) error

	// Get retrieves a message by ID. Returns apperr.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*model.Message, error)

	// Delete removes a message. Returns apperr.ErrNotFound if absent.
	Delete(ctx context.Context, id string) error

	// Find returns messages matching q, ordered by creation.
	Find(ctx context.Context, q Query) ([]model.Message, error)

	// CountCounterparts returns the number of distinct counterparts of
	// viewerID across the messages matching q. q.Limit is ignored.
	CountCounterparts(ctx context.Context, q Query, viewerID string) (int, error)

	// CountUnread returns the number of unread messages addressed to recipientID.
	CountUnread(ctx context.Context, recipientID string) (int64, error)

	// SetRead sets the read flag of a message addressed to recipientID.
	// Returns apperr.ErrNotFound if no such message is addressed to them.
	SetRead(ctx context.Context, id, recipientID string, read bool) error

	// MarkAllRead marks every unread message from senderID to recipientID read.
	MarkAllRead(ctx context.Context, recipientID, senderID string) (model.ReadSweepResult, error)

	// DeleteBetween removes every message exchanged by the pair.
	DeleteBetween(ctx context.Context, pair conversation.Pair) (int64, error)

	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the backing store.
	Close(ctx context.Context) error
}

func validate(m *model.Message) error {
	if m.ID == "" {
		return apperr.Validation(apperr.ReasonInvalidID, "message id is empty")
	}
	if !m.From.Valid() {
		return apperr.Validation(apperr.ReasonInvalidSender, "exactly one of fromAdmin/fromUser must be set")
	}
	if m.To == "" {
		return apperr.Validation(apperr.ReasonInvalidRecipient, "recipient is empty")
	}
	return nil
}

// matches reports whether m satisfies q's filters.
func (q Query) matches(m *model.Message) bool {
	if !m.From.Valid() {
		return false
	}
	if q.To != "" && m.To != q.To {
		return false
	}
	if q.Involving != "" && m.To != q.Involving && m.From.ID() != q.Involving {
		return false
	}
	if !q.Between.IsZero() && !q.Between.Matches(m) {
		return false
	}
	if q.FromAccountsOnly && m.From.IsAdmin() {
		return false
	}
	if q.UnreadOnly && m.Read {
		return false
	}
	return true
}
