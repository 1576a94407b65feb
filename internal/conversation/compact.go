package conversation

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/inkwell-books/storefront-messaging/internal/model"
)

// DefaultSnippetLength is the snippet length used when Options leaves it unset.
const DefaultSnippetLength = 80

// Options tunes compaction.
type Options struct {
	SnippetLength int
}

// Compact reduces messages to one summary per counterpart of viewerID,
// newest conversation first. The latest message of each group fills the
// summary; unread state counts every message of the group that is unread
// and addressed to the viewer.
func Compact(messages []model.Message, viewerID string, opts Options) []model.ConversationSummary {
	if opts.SnippetLength <= 0 {
		opts.SnippetLength = DefaultSnippetLength
	}

	latest := make(map[string]*model.Message)
	unread := make(map[string]int)
	var order []string

	for i := range messages {
		m := &messages[i]
		cp := Counterpart(m, viewerID)
		if cp == "" || cp == viewerID {
			continue
		}

		cur, seen := latest[cp]
		if !seen {
			order = append(order, cp)
		}
		if !seen || Newer(m, cur) {
			latest[cp] = m
		}
		if !m.Read && m.To == viewerID {
			unread[cp]++
		}
	}

	out := make([]model.ConversationSummary, 0, len(order))
	for _, cp := range order {
		m := latest[cp]
		out = append(out, model.ConversationSummary{
			CounterpartID:  cp,
			LastMessageID:  m.ID,
			LastSubject:    m.Subject,
			LastSnippet:    Snippet(m.Subject, m.Body, opts.SnippetLength),
			LastAt:         m.CreatedAt,
			LastFromViewer: m.From.ID() == viewerID,
			HasUnread:      unread[cp] > 0,
			UnreadCount:    unread[cp],
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastAt.Equal(out[j].LastAt) {
			return out[i].LastAt.After(out[j].LastAt)
		}
		return out[i].CounterpartID < out[j].CounterpartID
	})
	return out
}

// Newer reports whether a sorts after b in creation order. Ids break
// timestamp ties; they are time-ordered at creation.
func Newer(a, b *model.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// Paginate returns the 1-based page of items.
func Paginate(items []model.ConversationSummary, page, pageSize int) []model.ConversationSummary {
	if page < 1 || pageSize < 1 {
		return []model.ConversationSummary{}
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []model.ConversationSummary{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// Snippet returns a single-line preview of body, falling back to subject,
// cut to at most n runes.
func Snippet(subject, body string, n int) string {
	text := strings.Join(strings.Fields(body), " ")
	if text == "" {
		text = strings.Join(strings.Fields(subject), " ")
	}
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return strings.TrimRight(string(runes[:n]), " ") + "…"
}
