package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/inkwell-books/storefront-messaging/internal/middleware"
	"github.com/inkwell-books/storefront-messaging/internal/model"
	natsclient "github.com/inkwell-books/storefront-messaging/internal/nats"
	"github.com/inkwell-books/storefront-messaging/internal/service"
	"github.com/inkwell-books/storefront-messaging/pkg/logger"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// EventReplayer reads recorded mutation events back from the event stream.
type EventReplayer interface {
	ReplayEvents(ctx context.Context, eventType model.EventType, afterSequence uint64, limit int) ([]natsclient.RecordedEvent, uint64, bool, error)
}

// EventPage is a page of replayed events.
type EventPage struct {
	Events       []natsclient.RecordedEvent `json:"events"`
	LastSequence uint64                     `json:"lastSequence"`
	HasMore      bool                       `json:"hasMore"`
}

// AdminHandler handles agent-only endpoints.
type AdminHandler struct {
	conversations *service.ConversationService
	events        EventReplayer
	logger        *logger.Logger
}

// NewAdminHandler creates a new admin handler. events may be nil when no
// event stream is configured.
func NewAdminHandler(convSvc *service.ConversationService, events EventReplayer, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		conversations: convSvc,
		events:        events,
		logger:        logger.OrGlobal(log),
	}
}

// Inbox handles GET /api/v1/admin/inbox
func (h *AdminHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unreadOnly"))

	page, err := h.conversations.ListInboxForAgent(ctx,
		middleware.GetViewerID(ctx),
		queryInt(r, "page", 1),
		queryInt(r, "pageSize", 0),
		unreadOnly,
	)
	if err != nil {
		writeServiceError(w, h.logger, err, "list inbox")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// Events handles GET /api/v1/admin/events
func (h *AdminHandler) Events(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream not configured")
		return
	}

	var after uint64
	if v := r.URL.Query().Get("after"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be a sequence number")
			return
		}
		after = parsed
	}

	limit := queryInt(r, "limit", defaultEventLimit)
	if limit < 1 || limit > maxEventLimit {
		limit = defaultEventLimit
	}

	events, last, more, err := h.events.ReplayEvents(r.Context(), model.EventType(r.URL.Query().Get("type")), after, limit)
	if err != nil {
		writeServiceError(w, h.logger, err, "replay events")
		return
	}

	writeJSON(w, http.StatusOK, EventPage{Events: events, LastSequence: last, HasMore: more})
}
