package account

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inkwell-books/storefront-messaging/internal/model"
)

type seedFile struct {
	Accounts []seedAccount `yaml:"accounts"`
}

type seedAccount struct {
	ID          string    `yaml:"id"`
	Email       string    `yaml:"email"`
	DisplayName string    `yaml:"display_name"`
	Avatar      string    `yaml:"avatar"`
	Role        string    `yaml:"role"`
	Blocked     bool      `yaml:"blocked"`
	LastLoginAt time.Time `yaml:"last_login_at"`
	CreatedAt   time.Time `yaml:"created_at"`
}

// ParseSeed decodes a YAML account list of the form
//
//	accounts:
//	  - id: AG1
//	    email: desk@shop.test
//	    role: admin
func ParseSeed(data []byte) ([]model.Account, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse accounts YAML: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Accounts))
	out := make([]model.Account, 0, len(f.Accounts))
	for i, a := range f.Accounts {
		if a.ID == "" {
			return nil, fmt.Errorf("account %d: id is required", i)
		}
		if _, dup := seen[a.ID]; dup {
			return nil, fmt.Errorf("account %s: duplicate id", a.ID)
		}
		seen[a.ID] = struct{}{}

		role := model.Role(a.Role)
		if a.Role == "" {
			role = model.RoleUser
		}
		if !role.Valid() {
			return nil, fmt.Errorf("account %s: unknown role %q", a.ID, a.Role)
		}

		out = append(out, model.Account{
			ID:          a.ID,
			Email:       a.Email,
			DisplayName: a.DisplayName,
			AvatarRef:   a.Avatar,
			Role:        role,
			Blocked:     a.Blocked,
			LastLoginAt: a.LastLoginAt.UTC(),
			CreatedAt:   a.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// LoadMemory builds an in-memory directory from a YAML seed file. An empty
// path yields an empty directory.
func LoadMemory(path string) (*Memory, error) {
	if path == "" {
		return NewMemory(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}
	accounts, err := ParseSeed(data)
	if err != nil {
		return nil, err
	}
	return NewMemory(accounts...), nil
}
