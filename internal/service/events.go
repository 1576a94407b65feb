// Package service provides business logic for the storefront messaging core.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inkwell-books/storefront-messaging/internal/model"
	"github.com/inkwell-books/storefront-messaging/pkg/logger"
	"github.com/inkwell-books/storefront-messaging/pkg/metrics"
)

// Publisher publishes domain events after a mutation has been persisted.
type Publisher interface {
	PublishEvent(ctx context.Context, event *model.MessageEvent) (uint64, error)
}

// NopPublisher discards events. Used when no event bus is configured.
type NopPublisher struct{}

func (NopPublisher) PublishEvent(context.Context, *model.MessageEvent) (uint64, error) {
	return 0, nil
}

// publish sends event and only logs failures: the mutation it describes
// is already durable.
func publish(ctx context.Context, p Publisher, log *logger.Logger, event model.MessageEvent) {
	if p == nil {
		return
	}
	event.ID = uuid.Must(uuid.NewV7()).String()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if _, err := p.PublishEvent(ctx, &event); err != nil {
		metrics.EventsPublishFailures.WithLabelValues(string(event.Type)).Inc()
		log.Warn("failed to publish event",
			zap.String("type", string(event.Type)),
			zap.String("message_id", event.MessageID),
			zap.Error(err),
		)
	}
}
