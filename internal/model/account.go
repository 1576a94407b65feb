package model

import (
	"time"
)

// Account is the projection of an account used by the messaging core.
// Accounts are owned by the storefront; this core only reads them.
type Account struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName"`
	AvatarRef   string    `json:"avatarRef,omitempty"`
	Role        Role      `json:"role"`
	Blocked     bool      `json:"blocked"`
	LastLoginAt time.Time `json:"lastLoginAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// IsAdmin reports whether the account is an administrative agent.
func (a Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}
