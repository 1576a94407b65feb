package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inkwell-books/storefront-messaging/internal/middleware"
	"github.com/inkwell-books/storefront-messaging/internal/model"
	"github.com/inkwell-books/storefront-messaging/internal/service"
	"github.com/inkwell-books/storefront-messaging/pkg/logger"
)

// RouterConfig carries everything the HTTP surface is built from.
type RouterConfig struct {
	JWTSecret string
	// RateLimitRequests per RateLimitWindow; zero disables rate limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration
	AllowedOrigins    []string

	Messages      *service.MessageService
	Conversations *service.ConversationService
	Events        EventReplayer
	Health        *HealthHandler
	Logger        *logger.Logger
}

// NewRouter builds the API router.
func NewRouter(cfg RouterConfig) http.Handler {
	log := logger.OrGlobal(cfg.Logger)

	messageHandler := NewMessageHandler(cfg.Messages, log)
	conversationHandler := NewConversationHandler(cfg.Conversations, cfg.Messages, log)
	adminHandler := NewAdminHandler(cfg.Conversations, cfg.Events, log)
	healthHandler := cfg.Health
	if healthHandler == nil {
		healthHandler = NewHealthHandler(nil)
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins...))

	// Health and metrics (no auth required)
	r.Group(func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}
		r.Get("/health", healthHandler.Health)
		r.Get("/ready", healthHandler.Ready)
		r.Handle("/metrics", promhttp.Handler())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.ViewerRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Route("/messages", func(r chi.Router) {
			r.Post("/", messageHandler.Send)
			r.Get("/unread-count", messageHandler.UnreadCount)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", messageHandler.Get)
				r.Delete("/", messageHandler.Delete)
				r.Put("/read", messageHandler.MarkRead)
			})
		})

		r.Post("/support/messages", messageHandler.SendSupport)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)

			r.Route("/{otherId}", func(r chi.Router) {
				r.Get("/", conversationHandler.Thread)
				r.Delete("/", conversationHandler.Delete)
				r.Put("/read", conversationHandler.MarkRead)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleAdmin))
			r.Get("/inbox", adminHandler.Inbox)
			r.Get("/events", adminHandler.Events)
		})
	})

	return r
}
