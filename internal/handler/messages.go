package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-books/storefront-messaging/internal/middleware"
	"github.com/inkwell-books/storefront-messaging/internal/model"
	"github.com/inkwell-books/storefront-messaging/internal/service"
	"github.com/inkwell-books/storefront-messaging/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	messageService *service.MessageService
	logger         *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(msgSvc *service.MessageService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		messageService: msgSvc,
		logger:         logger.OrGlobal(log),
	}
}

// Send handles POST /api/v1/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateMessageContent(req.Subject, req.Body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.messageService.Send(ctx, service.SendInput{
		AuthorID:   middleware.GetViewerID(ctx),
		AuthorRole: middleware.GetRole(ctx),
		ToID:       req.To,
		Subject:    req.Subject,
		Body:       req.Body,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "send message")
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// SendSupport handles POST /api/v1/support/messages
func (h *MessageHandler) SendSupport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if middleware.IsAdmin(ctx) {
		writeError(w, http.StatusForbidden, "agents reply through /messages")
		return
	}

	var req model.SendSupportMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateMessageContent(req.Subject, req.Body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.messageService.SendSupport(ctx, middleware.GetViewerID(ctx), req.Subject, req.Body, req.AgentEmail)
	if err != nil {
		writeServiceError(w, h.logger, err, "send support message")
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// Get handles GET /api/v1/messages/{id}
func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := middleware.ValidateMessageID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.messageService.Get(ctx, id, middleware.GetViewerID(ctx))
	if err != nil {
		writeServiceError(w, h.logger, err, "get message")
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// Delete handles DELETE /api/v1/messages/{id}
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := middleware.ValidateMessageID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.messageService.DeleteMessageAs(ctx, id, middleware.GetViewerID(ctx), middleware.GetRole(ctx)); err != nil {
		writeServiceError(w, h.logger, err, "delete message")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkRead handles PUT /api/v1/messages/{id}/read
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := middleware.ValidateMessageID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.MarkReadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Read == nil {
		writeError(w, http.StatusBadRequest, "read is required")
		return
	}

	if err := h.messageService.MarkRead(ctx, id, middleware.GetViewerID(ctx), *req.Read); err != nil {
		writeServiceError(w, h.logger, err, "update read state")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UnreadCount handles GET /api/v1/messages/unread-count
func (h *MessageHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	n, err := h.messageService.UnreadCount(ctx, middleware.GetViewerID(ctx))
	if err != nil {
		writeServiceError(w, h.logger, err, "count unread messages")
		return
	}

	writeJSON(w, http.StatusOK, model.UnreadCountResponse{Unread: n})
}
