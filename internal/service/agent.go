package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/inkwell-books/storefront-messaging/internal/account"
	"github.com/inkwell-books/storefront-messaging/internal/apperr"
	"github.com/inkwell-books/storefront-messaging/internal/model"
	"github.com/inkwell-books/storefront-messaging/pkg/logger"
	"github.com/inkwell-books/storefront-messaging/pkg/metrics"
)

// AgentPolicy decides which administrative agent receives support
// messages when the caller does not name one.
type AgentPolicy struct {
	// FallbackEmail names the agent used when no preferred email matches.
	FallbackEmail string
	// Less orders eligible (non-blocked) agents; the first one wins.
	// Nil means DefaultAgentOrder.
	Less func(a, b model.Account) bool
}

// DefaultAgentOrder prefers the most recent login, then the earliest
// created account, then the smallest id.
func DefaultAgentOrder(a, b model.Account) bool {
	if !a.LastLoginAt.Equal(b.LastLoginAt) {
		return a.LastLoginAt.After(b.LastLoginAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SupportAgentResolver picks the agent a support message is addressed to.
type SupportAgentResolver struct {
	accounts account.Directory
	policy   AgentPolicy
	logger   *logger.Logger
}

// NewSupportAgentResolver creates a resolver applying policy.
func NewSupportAgentResolver(accounts account.Directory, policy AgentPolicy, log *logger.Logger) *SupportAgentResolver {
	if policy.Less == nil {
		policy.Less = DefaultAgentOrder
	}
	return &SupportAgentResolver{
		accounts: accounts,
		policy:   policy,
		logger:   logger.OrGlobal(log),
	}
}

// Resolve returns the agent for preferredEmail, the configured fallback,
// or the best-ranked non-blocked agent, in that order. An explicitly named
// agent is returned even when blocked. It returns nil, nil when no agent
// is available.
func (r *SupportAgentResolver) Resolve(ctx context.Context, preferredEmail string) (*model.Account, error) {
	for _, c := range []struct{ rule, email string }{
		{"preferred", preferredEmail},
		{"fallback", r.policy.FallbackEmail},
	} {
		if c.email == "" {
			continue
		}
		agent, err := r.accounts.FindAdminByEmail(ctx, c.email)
		if err == nil {
			metrics.SupportAgentResolutions.WithLabelValues(c.rule).Inc()
			return agent, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up %s agent: %w", c.rule, err)
		}
		r.logger.Debug("support agent email not found", zap.String("rule", c.rule))
	}

	admins, err := r.accounts.ListAdmins(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	if len(admins) == 0 {
		metrics.SupportAgentResolutions.WithLabelValues("none").Inc()
		return nil, nil
	}

	sort.SliceStable(admins, func(i, j int) bool {
		return r.policy.Less(admins[i], admins[j])
	})
	metrics.SupportAgentResolutions.WithLabelValues("ranked").Inc()
	agent := admins[0]
	return &agent, nil
}
