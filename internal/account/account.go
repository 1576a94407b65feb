// Package account reads the storefront's account records. The messaging
// core never writes accounts.
package account

import (
	"context"

	"github.com/inkwell-books/storefront-messaging/internal/model"
)

// Directory is the account identity store consumed by the messaging core.
type Directory interface {
	// Get returns the account with id. Returns apperr.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*model.Account, error)

	// GetMany returns the accounts found among ids, keyed by id.
	GetMany(ctx context.Context, ids []string) (map[string]model.Account, error)

	// FindAdminByEmail returns the administrative account with exactly
	// this email, blocked or not. Returns apperr.ErrNotFound if absent.
	FindAdminByEmail(ctx context.Context, email string) (*model.Account, error)

	// ListAdmins returns administrative accounts, excluding blocked ones
	// unless includeBlocked is set.
	ListAdmins(ctx context.Context, includeBlocked bool) ([]model.Account, error)
}
