package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/inkwell-books/storefront-messaging/internal/model"
)

const (
	// StreamName is the name of the messaging events stream.
	StreamName = "MESSAGES"

	// SubjectPrefix is the prefix for all messaging event subjects.
	SubjectPrefix = "msg"

	// publishTimeout bounds how long a mutation waits on the event feed.
	publishTimeout = 2 * time.Second
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the messaging events stream exists.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Storefront messaging mutation events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	m.client.logger.Info("created NATS stream", zap.String("stream", StreamName))
	return nil
}

// EventSubject returns the subject for an event addressed to targetID.
// Events without a target go to the "none" token. The target id is carried
// in the payload; the subject token is only for filtering.
func EventSubject(eventType model.EventType, targetID string) string {
	return fmt.Sprintf("%s.event.%s.%s", SubjectPrefix, eventType, subjectToken(targetID))
}

// subjectToken maps id onto a single subject token: separators, wildcards
// and whitespace become underscores.
func subjectToken(id string) string {
	if id == "" {
		return "none"
	}
	return strings.Map(func(r rune) rune {
		if r == '.' || r == '*' || r == '>' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return '_'
		}
		return r
	}, id)
}

// EventFilter returns the filter subject for events of eventType, or for
// every event when eventType is empty.
func EventFilter(eventType model.EventType) string {
	if eventType == "" {
		return fmt.Sprintf("%s.event.>", SubjectPrefix)
	}
	return fmt.Sprintf("%s.event.%s.>", SubjectPrefix, eventType)
}

// PublishEvent publishes an event to JetStream and returns its stream sequence.
func (m *StreamManager) PublishEvent(ctx context.Context, event *model.MessageEvent) (uint64, error) {
	subject := EventSubject(event.Type, event.TargetID)

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	ack, err := m.client.JetStream().Publish(ctx, subject, data, jetstream.WithMsgID(event.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}

	return ack.Sequence, nil
}

// RecordedEvent is an event read back from the stream.
type RecordedEvent struct {
	Sequence uint64             `json:"sequence"`
	Event    model.MessageEvent `json:"event"`
}

// ReplayEvents reads up to limit events of eventType recorded after
// afterSequence. It reports whether more events may follow.
func (m *StreamManager) ReplayEvents(ctx context.Context, eventType model.EventType, afterSequence uint64, limit int) ([]RecordedEvent, uint64, bool, error) {
	js := m.client.JetStream()

	cfg := jetstream.OrderedConsumerConfig{
		FilterSubjects:    []string{EventFilter(eventType)},
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: time.Minute,
	}
	if afterSequence > 0 {
		cfg.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		cfg.OptStartSeq = afterSequence + 1
	}

	consumer, err := js.OrderedConsumer(ctx, StreamName, cfg)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to fetch events: %w", err)
	}

	events := make([]RecordedEvent, 0, limit)
	lastSequence := afterSequence
	for msg := range batch.Messages() {
		var event model.MessageEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			m.client.logger.Warn("skipping malformed event", zap.String("subject", msg.Subject()), zap.Error(err))
			continue
		}

		rec := RecordedEvent{Event: event}
		if meta, err := msg.Metadata(); err == nil {
			rec.Sequence = meta.Sequence.Stream
			lastSequence = meta.Sequence.Stream
		}
		events = append(events, rec)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return nil, 0, false, fmt.Errorf("batch error: %w", err)
	}

	return events, lastSequence, len(events) == limit, nil
}
