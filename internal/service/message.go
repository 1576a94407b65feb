package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
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

// MessageService validates and applies message mutations: sending,
// deleting and read-state changes.
//
// A conversation read sweep racing a send from the same sender may or may
// not include the new message. A conversation delete racing a send into
// the same pair removes whatever matches when the delete executes; a
// message committed after that survives.
type MessageService struct {
	store    store.MessageStore
	accounts account.Directory
	agents   *SupportAgentResolver
	events   Publisher
	logger   *logger.Logger
	now      func() time.Time
}

// NewMessageService creates a new message service.
func NewMessageService(
	st store.MessageStore,
	accounts account.Directory,
	agents *SupportAgentResolver,
	events Publisher,
	log *logger.Logger,
) *MessageService {
	if events == nil {
		events = NopPublisher{}
	}
	return &MessageService{
		store:    st,
		accounts: accounts,
		agents:   agents,
		events:   events,
		logger:   logger.OrGlobal(log),
		now:      time.Now,
	}
}

// WithClock replaces the clock used for creation timestamps.
func (s *MessageService) WithClock(now func() time.Time) *MessageService {
	s.now = now
	return s
}

// SendInput describes a message to send.
type SendInput struct {
	AuthorID   string
	AuthorRole model.Role
	ToID       string
	Subject    string
	Body       string
}

// Send validates and persists a message.
func (s *MessageService) Send(ctx context.Context, in SendInput) (msg *model.Message, err error) {
	ctx, span := tracing.Start(ctx, "MessageService.Send", "author_id", in.AuthorID, "to_id", in.ToID)
	defer func() { tracing.End(span, err) }()

	defer func() {
		if reason := apperr.Reason(err); reason != "" {
			metrics.MessagesRejectedTotal.WithLabelValues(reason).Inc()
		}
	}()

	from, subject, body, err := validateSend(in)
	if err != nil {
		return nil, err
	}

	recipient, err := s.accounts.Get(ctx, in.ToID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Validation(apperr.ReasonUnknownRecipient, in.ToID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up recipient: %w", err)
	}

	msg = &model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		To:        recipient.ID,
		From:      from,
		Subject:   subject,
		Body:      body,
		Read:      false,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	topology := model.TopologyOf(from, recipient.Role)
	metrics.MessagesTotal.WithLabelValues(string(topology)).Inc()
	s.logger.Info("message sent",
		zap.String("message_id", msg.ID),
		zap.String("from", from.ID()),
		zap.String("from_role", string(from.Role())),
		zap.String("to", msg.To),
		zap.String("topology", string(topology)),
	)

	publish(ctx, s.events, s.logger, model.MessageEvent{
		Type:      model.EventTypeMessageSent,
		MessageID: msg.ID,
		ActorID:   from.ID(),
		ActorRole: from.Role(),
		TargetID:  msg.To,
		Topology:  topology,
		CreatedAt: msg.CreatedAt,
	})
	return msg, nil
}

// SendSupport sends an account holder's message to the support channel.
// The agent is resolved from agentEmail, the configured fallback, or the
// ranking policy. Returns apperr.ErrUnavailable when no agent is eligible.
func (s *MessageService) SendSupport(ctx context.Context, authorID, subject, body, agentEmail string) (*model.Message, error) {
	if _, _, _, err := validateSend(SendInput{
		AuthorID:   authorID,
		AuthorRole: model.RoleUser,
		ToID:       "support",
		Subject:    subject,
		Body:       body,
	}); err != nil {
		return nil, err
	}

	agent, err := s.agents.Resolve(ctx, agentEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve support agent: %w", err)
	}
	if agent == nil {
		s.logger.Warn("support channel unavailable", zap.String("author_id", authorID))
		return nil, apperr.ErrUnavailable
	}

	return s.Send(ctx, SendInput{
		AuthorID:   authorID,
		AuthorRole: model.RoleUser,
		ToID:       agent.ID,
		Subject:    subject,
		Body:       body,
	})
}

// Get returns a message to one of its participants.
func (s *MessageService) Get(ctx context.Context, id, viewerID string) (*model.Message, error) {
	msg, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.To != viewerID && msg.From.ID() != viewerID {
		return nil, fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	return msg, nil
}

// DeleteMessageAs deletes a message on behalf of viewerID. Participants
// may delete their own messages and administrative agents any message;
// everyone else gets apperr.ErrNotFound.
func (s *MessageService) DeleteMessageAs(ctx context.Context, id, viewerID string, role model.Role) error {
	if role != model.RoleAdmin {
		if _, err := s.Get(ctx, id, viewerID); err != nil {
			return err
		}
	}
	return s.DeleteMessage(ctx, id)
}

// DeleteMessage physically deletes a message. Authorisation is the
// caller's concern.
func (s *MessageService) DeleteMessage(ctx context.Context, id string) (err error) {
	ctx, span := tracing.Start(ctx, "MessageService.DeleteMessage", "message_id", id)
	defer func() { tracing.End(span, err) }()

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	metrics.MessagesDeletedTotal.WithLabelValues("message").Inc()
	s.logger.Info("message deleted", zap.String("message_id", id))
	publish(ctx, s.events, s.logger, model.MessageEvent{
		Type:      model.EventTypeMessageDeleted,
		MessageID: id,
		Count:     1,
	})
	return nil
}

// DeleteConversation physically deletes every message exchanged between
// viewerID and otherID, in both directions. Returns apperr.ErrNotFound if
// there was nothing to delete.
func (s *MessageService) DeleteConversation(ctx context.Context, viewerID, otherID string) (n int64, err error) {
	ctx, span := tracing.Start(ctx, "MessageService.DeleteConversation", "viewer_id", viewerID, "other_id", otherID)
	defer func() { tracing.End(span, err) }()

	if err := validatePair(viewerID, otherID); err != nil {
		return 0, err
	}

	n, err = s.store.DeleteBetween(ctx, conversation.Pair{A: viewerID, B: otherID})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("conversation with %s: %w", otherID, apperr.ErrNotFound)
	}

	metrics.MessagesDeletedTotal.WithLabelValues("conversation").Add(float64(n))
	s.logger.Info("conversation deleted",
		zap.String("viewer_id", viewerID),
		zap.String("other_id", otherID),
		zap.Int64("deleted", n),
	)
	publish(ctx, s.events, s.logger, model.MessageEvent{
		Type:     model.EventTypeConversationDeleted,
		ActorID:  viewerID,
		TargetID: otherID,
		Count:    n,
	})
	return n, nil
}

// MarkRead sets the read flag of a message addressed to viewerID.
// Returns apperr.ErrNotFound for messages not addressed to the viewer.
func (s *MessageService) MarkRead(ctx context.Context, id, viewerID string, read bool) error {
	if viewerID == "" {
		return fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	return s.store.SetRead(ctx, id, viewerID, read)
}

// MarkConversationRead marks every unread message from otherID to
// viewerID read in a single store operation.
func (s *MessageService) MarkConversationRead(ctx context.Context, viewerID, otherID string) (res model.ReadSweepResult, err error) {
	ctx, span := tracing.Start(ctx, "MessageService.MarkConversationRead", "viewer_id", viewerID, "other_id", otherID)
	defer func() { tracing.End(span, err) }()

	if err := validatePair(viewerID, otherID); err != nil {
		return model.ReadSweepResult{}, err
	}

	res, err = s.store.MarkAllRead(ctx, viewerID, otherID)
	if err != nil {
		return model.ReadSweepResult{}, err
	}

	if res.Modified > 0 {
		metrics.ReadSweepMessages.Add(float64(res.Modified))
		publish(ctx, s.events, s.logger, model.MessageEvent{
			Type:     model.EventTypeConversationRead,
			ActorID:  viewerID,
			TargetID: otherID,
			Count:    res.Modified,
		})
	}
	return res, nil
}

// UnreadCount returns the number of unread messages addressed to viewerID.
func (s *MessageService) UnreadCount(ctx context.Context, viewerID string) (int64, error) {
	return s.store.CountUnread(ctx, viewerID)
}

// validateSend checks everything about a send that needs no lookups and
// returns the sender with trimmed content.
func validateSend(in SendInput) (model.Sender, string, string, error) {
	if !in.AuthorRole.Valid() {
		return model.Sender{}, "", "", apperr.Validation(apperr.ReasonInvalidRole, string(in.AuthorRole))
	}
	from, ok := model.SenderFor(in.AuthorRole, in.AuthorID)
	if !ok {
		return model.Sender{}, "", "", apperr.Validation(apperr.ReasonInvalidSender, "author is empty")
	}

	subject := strings.TrimSpace(in.Subject)
	body := strings.TrimSpace(in.Body)
	if subject == "" && body == "" {
		return model.Sender{}, "", "", apperr.Validation(apperr.ReasonEmptyContent, "subject and body are both empty")
	}

	if in.ToID == "" {
		return model.Sender{}, "", "", apperr.Validation(apperr.ReasonInvalidRecipient, "recipient is empty")
	}
	if in.ToID == in.AuthorID {
		return model.Sender{}, "", "", apperr.Validation(apperr.ReasonInvalidRecipient, "cannot message yourself")
	}
	return from, subject, body, nil
}

func validatePair(viewerID, otherID string) error {
	if viewerID == "" || otherID == "" {
		return apperr.Validation(apperr.ReasonInvalidID, "participant is empty")
	}
	if viewerID == otherID {
		return apperr.Validation(apperr.ReasonInvalidID, "participants must differ")
	}
	return nil
}
