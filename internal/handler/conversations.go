// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-books/storefront-messaging/internal/middleware"
	"github.com/inkwell-books/storefront-messaging/internal/model"
	"github.com/inkwell-books/storefront-messaging/internal/service"
	"github.com/inkwell-books/storefront-messaging/pkg/logger"
)

// ConversationHandler handles the viewer's conversation endpoints. The
// counterpart is addressed by account id.
type ConversationHandler struct {
	conversations *service.ConversationService
	messages      *service.MessageService
	logger        *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(convSvc *service.ConversationService, msgSvc *service.MessageService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversations: convSvc,
		messages:      msgSvc,
		logger:        logger.OrGlobal(log),
	}
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, err := h.conversations.ListConversationsForAccount(ctx,
		middleware.GetViewerID(ctx),
		queryInt(r, "page", 1),
		queryInt(r, "pageSize", 0),
	)
	if err != nil {
		writeServiceError(w, h.logger, err, "list conversations")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// Thread handles GET /api/v1/conversations/{otherId}
func (h *ConversationHandler) Thread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	otherID, ok := counterpartParam(w, r)
	if !ok {
		return
	}

	thread, err := h.conversations.GetThread(ctx, middleware.GetViewerID(ctx), otherID)
	if err != nil {
		writeServiceError(w, h.logger, err, "get thread")
		return
	}

	writeJSON(w, http.StatusOK, thread)
}

// MarkRead handles PUT /api/v1/conversations/{otherId}/read
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	otherID, ok := counterpartParam(w, r)
	if !ok {
		return
	}

	res, err := h.messages.MarkConversationRead(ctx, middleware.GetViewerID(ctx), otherID)
	if err != nil {
		writeServiceError(w, h.logger, err, "mark conversation read")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Delete handles DELETE /api/v1/conversations/{otherId}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	otherID, ok := counterpartParam(w, r)
	if !ok {
		return
	}

	n, err := h.messages.DeleteConversation(ctx, middleware.GetViewerID(ctx), otherID)
	if err != nil {
		writeServiceError(w, h.logger, err, "delete conversation")
		return
	}

	writeJSON(w, http.StatusOK, model.DeleteConversationResponse{Deleted: n})
}

func counterpartParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	otherID := chi.URLParam(r, "otherId")
	if err := middleware.ValidateAccountID(otherID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return otherID, true
}
