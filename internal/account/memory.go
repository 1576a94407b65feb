package account

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/inkwell-books/storefront-messaging/internal/apperr"
	"github.com/inkwell-books/storefront-messaging/internal/model"
)

// Memory is an in-process Directory, used in tests and local development.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]model.Account
}

// NewMemory creates a directory seeded with accounts.
func NewMemory(accounts ...model.Account) *Memory {
	d := &Memory{accounts: make(map[string]model.Account)}
	for _, a := range accounts {
		d.accounts[a.ID] = a
	}
	return d
}

func (d *Memory) Get(ctx context.Context, id string) (*model.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, apperr.ErrNotFound)
	}
	return &a, nil
}

func (d *Memory) GetMany(ctx context.Context, ids []string) (map[string]model.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]model.Account, len(ids))
	for _, id := range ids {
		if a, ok := d.accounts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (d *Memory) FindAdminByEmail(ctx context.Context, email string) (*model.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, a := range d.accounts {
		if a.IsAdmin() && a.Email == email {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("admin %s: %w", email, apperr.ErrNotFound)
}

func (d *Memory) ListAdmins(ctx context.Context, includeBlocked bool) ([]model.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []model.Account
	for _, a := range d.accounts {
		if a.IsAdmin() && (includeBlocked || !a.Blocked) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
