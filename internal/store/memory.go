package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/inkwell-books/storefront-messaging/internal/apperr"
	"github.com/inkwell-books/storefront-messaging/internal/conversation"
	"github.com/inkwell-books/storefront-messaging/internal/model"
)

// Memory is an in-process MessageStore. A single mutex makes every
// operation, including the bulk ones, atomic.
type Memory struct {
	mu       sync.RWMutex
	messages map[string]model.Message
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{messages: make(map[string]model.Message)}
}

func (s *Memory) Insert(ctx context.Context, m *model.Message) error {
	if err := validate(m); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.messages[m.ID]; exists {
		return fmt.Errorf("message %s already exists", m.ID)
	}
	s.messages[m.ID] = *m
	return nil
}

func (s *Memory) Get(ctx context.Context, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	return &m, nil
}

func (s *Memory) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[id]; !ok {
		return fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	delete(s.messages, id)
	return nil
}

func (s *Memory) Find(ctx context.Context, q Query) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Message, 0)
	for _, m := range s.messages {
		if q.matches(&m) {
			out = append(out, m)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if q.Ascending {
			return conversation.Newer(&out[j], &out[i])
		}
		return conversation.Newer(&out[i], &out[j])
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Memory) CountCounterparts(ctx context.Context, q Query, viewerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, m := range s.messages {
		if !q.matches(&m) {
			continue
		}
		if cp := conversation.Counterpart(&m, viewerID); cp != "" && cp != viewerID {
			seen[cp] = struct{}{}
		}
	}
	return len(seen), nil
}

func (s *Memory) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, m := range s.messages {
		if m.To == recipientID && !m.Read {
			n++
		}
	}
	return n, nil
}

func (s *Memory) SetRead(ctx context.Context, id, recipientID string, read bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok || m.To != recipientID {
		return fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	m.Read = read
	s.messages[id] = m
	return nil
}

func (s *Memory) MarkAllRead(ctx context.Context, recipientID, senderID string) (model.ReadSweepResult, error) {
	if err := ctx.Err(); err != nil {
		return model.ReadSweepResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res model.ReadSweepResult
	for id, m := range s.messages {
		if m.To != recipientID || m.From.ID() != senderID || m.Read {
			continue
		}
		res.Matched++
		m.Read = true
		s.messages[id] = m
		res.Modified++
	}
	return res, nil
}

func (s *Memory) DeleteBetween(ctx context.Context, pair conversation.Pair) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, m := range s.messages {
		if pair.Matches(&m) {
			delete(s.messages, id)
			n++
		}
	}
	return n, nil
}

func (s *Memory) Ping(ctx context.Context) error { return nil }

func (s *Memory) Close(ctx context.Context) error { return nil }
