package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/inkwell-books/storefront-messaging/internal/account"
	"github.com/inkwell-books/storefront-messaging/internal/apperr"
	"github.com/inkwell-books/storefront-messaging/internal/conversation"
	"github.com/inkwell-books/storefront-messaging/internal/model"
	"github.com/inkwell-books/storefront-messaging/internal/store"
	"github.com/inkwell-books/storefront-messaging/pkg/logger"
	"github.com/inkwell-books/storefront-messaging/pkg/metrics"
	"github.com/inkwell-books/storefront-messaging/pkg/tracing"
)

// ListOptions tunes conversation listings.
type ListOptions struct {
	// OverfetchFactor multiplies the raw message window so that enough
	// distinct counterparts survive grouping.
	OverfetchFactor int
	DefaultPageSize int
	MaxPageSize     int
	SnippetLength   int
}

// DefaultListOptions returns the listing defaults.
func DefaultListOptions() ListOptions {
	return ListOptions{
		OverfetchFactor: 5,
		DefaultPageSize: 20,
		MaxPageSize:     100,
		SnippetLength:   conversation.DefaultSnippetLength,
	}
}

// ConversationService builds the derived conversation views: the agent
// inbox, an account's conversation list and the thread between two
// participants. No conversation entity is stored; every view is computed
// from messages at read time.
type ConversationService struct {
	store    store.MessageStore
	accounts account.Directory
	opts     ListOptions
	logger   *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(st store.MessageStore, accounts account.Directory, opts ListOptions, log *logger.Logger) *ConversationService {
	def := DefaultListOptions()
	if opts.OverfetchFactor <= 0 {
		opts.OverfetchFactor = def.OverfetchFactor
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = def.DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = def.MaxPageSize
	}
	if opts.SnippetLength <= 0 {
		opts.SnippetLength = def.SnippetLength
	}
	return &ConversationService{
		store:    st,
		accounts: accounts,
		opts:     opts,
		logger:   logger.OrGlobal(log),
	}
}

// ListInboxForAgent lists the account holders who wrote to agentID, one
// row per account holder. UnreadCount on the page is the number of
// account holders with unread messages. With unreadOnly, rows without
// unread messages are dropped; each kept row still shows the latest
// message of the conversation.
func (s *ConversationService) ListInboxForAgent(ctx context.Context, agentID string, page, pageSize int, unreadOnly bool) (res *model.ConversationPage, err error) {
	ctx, span := tracing.Start(ctx, "ConversationService.ListInboxForAgent", "agent_id", agentID)
	defer func() { tracing.End(span, err) }()

	q := store.Query{To: agentID, FromAccountsOnly: true}
	unreadQ := store.Query{To: agentID, FromAccountsOnly: true, UnreadOnly: true}
	return s.list(ctx, "agent_inbox", agentID, q, unreadQ, unreadOnly, page, pageSize)
}

// ListConversationsForAccount lists accountID's conversations across the
// support channel and peer-to-peer messages, one row per counterpart.
func (s *ConversationService) ListConversationsForAccount(ctx context.Context, accountID string, page, pageSize int) (res *model.ConversationPage, err error) {
	ctx, span := tracing.Start(ctx, "ConversationService.ListConversationsForAccount", "account_id", accountID)
	defer func() { tracing.End(span, err) }()

	q := store.Query{Involving: accountID}
	unreadQ := store.Query{To: accountID, UnreadOnly: true}
	return s.list(ctx, "account_sidebar", accountID, q, unreadQ, false, page, pageSize)
}

// GetThread returns every message exchanged between viewerID and otherID,
// oldest first. An empty thread is not an error.
func (s *ConversationService) GetThread(ctx context.Context, viewerID, otherID string) (res *model.ThreadResponse, err error) {
	ctx, span := tracing.Start(ctx, "ConversationService.GetThread", "viewer_id", viewerID, "other_id", otherID)
	defer func() { tracing.End(span, err) }()

	if err := validatePair(viewerID, otherID); err != nil {
		return nil, err
	}

	messages, err := s.store.Find(ctx, store.Query{
		Between:   conversation.Pair{A: viewerID, B: otherID},
		Ascending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}

	return &model.ThreadResponse{
		CounterpartID: otherID,
		Messages:      conversation.Assemble(messages, viewerID, otherID),
	}, nil
}

// NormalizePage clamps page and pageSize to the configured bounds.
func (s *ConversationService) NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.opts.DefaultPageSize
	}
	if pageSize > s.opts.MaxPageSize {
		pageSize = s.opts.MaxPageSize
	}
	return page, pageSize
}

func (s *ConversationService) list(ctx context.Context, view, viewerID string, q, unreadQ store.Query, unreadOnly bool, page, pageSize int) (*model.ConversationPage, error) {
	if viewerID == "" {
		return nil, apperr.Validation(apperr.ReasonInvalidID, "viewer is empty")
	}
	page, pageSize = s.NormalizePage(page, pageSize)

	total, err := s.store.CountCounterparts(ctx, q, viewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}
	unread, err := s.store.CountCounterparts(ctx, unreadQ, viewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread conversations: %w", err)
	}
	if unreadOnly {
		total = unread
	}

	summaries, err := s.compactWindow(ctx, view, viewerID, q, unreadOnly, page*pageSize, total)
	if err != nil {
		return nil, err
	}
	items := conversation.Paginate(summaries, page, pageSize)

	s.enrich(ctx, items)

	return &model.ConversationPage{
		Items:       items,
		Total:       total,
		UnreadCount: unread,
		Page:        page,
		PageSize:    pageSize,
		HasMore:     page*pageSize < total,
	}, nil
}

// compactWindow loads the newest messages matching q and groups them by
// counterpart. A window full of one chatty counterpart collapses into few
// rows, so the window doubles until it yields want rows, every known
// counterpart, or every matching message.
func (s *ConversationService) compactWindow(ctx context.Context, view, viewerID string, q store.Query, unreadOnly bool, want, total int) ([]model.ConversationSummary, error) {
	window := q
	window.Limit = want * s.opts.OverfetchFactor
	for {
		messages, err := s.store.Find(ctx, window)
		if err != nil {
			return nil, fmt.Errorf("failed to load messages: %w", err)
		}

		summaries := conversation.Compact(messages, viewerID, conversation.Options{SnippetLength: s.opts.SnippetLength})
		if unreadOnly {
			summaries = withUnread(summaries)
		}
		if len(summaries) >= want || len(summaries) >= total || len(messages) < window.Limit {
			metrics.RecordWindow(view, len(messages))
			return summaries, nil
		}

		s.logger.Debug("conversation window collapsed, widening",
			zap.String("view", view),
			zap.Int("limit", window.Limit),
			zap.Int("rows", len(summaries)),
		)
		window.Limit *= 2
	}
}

func withUnread(summaries []model.ConversationSummary) []model.ConversationSummary {
	out := summaries[:0]
	for _, c := range summaries {
		if c.HasUnread {
			out = append(out, c)
		}
	}
	return out
}

// enrich fills display fields from the account directory. Missing
// accounts keep empty display fields.
func (s *ConversationService) enrich(ctx context.Context, items []model.ConversationSummary) {
	if len(items) == 0 {
		return
	}
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].CounterpartID
	}

	accounts, err := s.accounts.GetMany(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to load counterpart accounts", zap.Error(err))
		return
	}
	for i := range items {
		if a, ok := accounts[items[i].CounterpartID]; ok {
			items[i].DisplayName = a.DisplayName
			items[i].AvatarRef = a.AvatarRef
			items[i].CounterpartRole = a.Role
		}
	}
}
