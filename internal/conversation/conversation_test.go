package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-books/storefront-messaging/internal/model"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(id string, from model.Sender, to string, offset time.Duration, subject, body string, read bool) model.Message {
	return model.Message{
		ID:        id,
		From:      from,
		To:        to,
		Subject:   subject,
		Body:      body,
		Read:      read,
		CreatedAt: base.Add(offset),
	}
}

func TestCounterpart(t *testing.T) {
	tests := []struct {
		name   string
		msg    model.Message
		viewer string
		want   string
	}{
		{"agent authored seen by recipient", msg("1", model.AdminSender("ag1"), "u1", 0, "", "hi", false), "u1", "ag1"},
		{"agent authored seen by agent", msg("2", model.AdminSender("ag1"), "u1", 0, "", "hi", false), "ag1", "ag1"},
		{"account authored seen by author", msg("3", model.AccountSender("u1"), "u2", 0, "", "hi", false), "u1", "u2"},
		{"account authored seen by recipient", msg("4", model.AccountSender("u1"), "u2", 0, "", "hi", false), "u2", "u1"},
		{"account to agent seen by agent", msg("5", model.AccountSender("u1"), "ag1", 0, "", "hi", false), "ag1", "u1"},
		{"malformed sender falls back to recipient", msg("6", model.Sender{}, "u2", 0, "", "hi", false), "u1", "u2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Counterpart(&tt.msg, tt.viewer))
		})
	}
}

func TestCounterpartSymmetry(t *testing.T) {
	m := msg("1", model.AccountSender("a"), "b", 0, "", "hello", false)
	assert.Equal(t, "b", Counterpart(&m, "a"))
	assert.Equal(t, "a", Counterpart(&m, "b"))

	// Call order must not matter.
	assert.Equal(t, "a", Counterpart(&m, "b"))
	assert.Equal(t, "b", Counterpart(&m, "a"))
}

func TestPairMatches(t *testing.T) {
	pair := Pair{A: "u1", B: "ag1"}

	in := msg("1", model.AccountSender("u1"), "ag1", 0, "", "x", false)
	back := msg("2", model.AdminSender("ag1"), "u1", 0, "", "x", false)
	other := msg("3", model.AccountSender("u1"), "u3", 0, "", "x", false)
	broken := msg("4", model.Sender{}, "ag1", 0, "", "x", false)

	assert.True(t, pair.Matches(&in))
	assert.True(t, pair.Matches(&back))
	assert.False(t, pair.Matches(&other))
	assert.False(t, pair.Matches(&broken))
	assert.False(t, Pair{}.Matches(&in))
}

func TestCompactCollapsesToLatestPerCounterpart(t *testing.T) {
	messages := []model.Message{
		msg("1", model.AccountSender("u1"), "v", 1*time.Minute, "first", "one", true),
		msg("2", model.AccountSender("v"), "u1", 2*time.Minute, "second", "two", false),
		msg("3", model.AccountSender("u1"), "v", 3*time.Minute, "S", "latest body", true),
		msg("4", model.AccountSender("u2"), "v", 90*time.Second, "other", "from u2", false),
	}

	got := Compact(messages, "v", Options{})
	require.Len(t, got, 2)

	assert.Equal(t, "u1", got[0].CounterpartID)
	assert.Equal(t, "S", got[0].LastSubject)
	assert.Equal(t, "latest body", got[0].LastSnippet)
	assert.Equal(t, "3", got[0].LastMessageID)
	assert.False(t, got[0].HasUnread)
	assert.False(t, got[0].LastFromViewer)

	assert.Equal(t, "u2", got[1].CounterpartID)
	assert.True(t, got[1].HasUnread)
	assert.Equal(t, 1, got[1].UnreadCount)
}

func TestCompactUnreadConsidersWholeGroup(t *testing.T) {
	messages := []model.Message{
		msg("1", model.AccountSender("u1"), "v", 1*time.Minute, "", "unread older", false),
		msg("2", model.AccountSender("v"), "u1", 2*time.Minute, "", "my reply", false),
	}

	got := Compact(messages, "v", Options{})
	require.Len(t, got, 1)
	assert.True(t, got[0].HasUnread, "older unread message addressed to viewer counts")
	assert.Equal(t, 1, got[0].UnreadCount, "viewer's own unread outbound message does not count")
	assert.True(t, got[0].LastFromViewer)
}

func TestCompactMixesSupportAndPeerTopologies(t *testing.T) {
	messages := []model.Message{
		msg("1", model.AccountSender("u1"), "ag1", 1*time.Minute, "Help", "order missing", false),
		msg("2", model.AdminSender("ag1"), "u1", 2*time.Minute, "Re: Help", "looking into it", false),
		msg("3", model.AccountSender("u2"), "u1", 3*time.Minute, "", "hey", false),
	}

	got := Compact(messages, "u1", Options{})
	require.Len(t, got, 2)
	assert.Equal(t, "u2", got[0].CounterpartID)
	assert.Equal(t, "ag1", got[1].CounterpartID)
	assert.Equal(t, "Re: Help", got[1].LastSubject)
	assert.True(t, got[1].HasUnread)
}

func TestCompactOrderIsIndependentOfInputOrder(t *testing.T) {
	a := msg("1", model.AccountSender("u1"), "v", 1*time.Minute, "a", "a", false)
	b := msg("2", model.AccountSender("u1"), "v", 2*time.Minute, "b", "b", false)
	c := msg("3", model.AccountSender("u2"), "v", 3*time.Minute, "c", "c", false)

	first := Compact([]model.Message{a, b, c}, "v", Options{})
	second := Compact([]model.Message{c, b, a}, "v", Options{})
	assert.Equal(t, first, second)
}

func TestPaginate(t *testing.T) {
	items := make([]model.ConversationSummary, 5)
	for i := range items {
		items[i].CounterpartID = string(rune('a' + i))
	}

	assert.Len(t, Paginate(items, 1, 2), 2)
	assert.Equal(t, "e", Paginate(items, 3, 2)[0].CounterpartID)
	assert.Empty(t, Paginate(items, 4, 2))
	assert.Empty(t, Paginate(items, 0, 2))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "hello world", Snippet("subj", "  hello \n world ", 80))
	assert.Equal(t, "subj only", Snippet(" subj only ", "", 80))
	assert.Equal(t, "abcde…", Snippet("", "abcdefgh", 5))
	assert.Equal(t, "héllo…", Snippet("", "héllo wörld", 6))
}

func TestAssembleOrdersBothDirections(t *testing.T) {
	messages := []model.Message{
		msg("3", model.AdminSender("ag1"), "u1", 3*time.Minute, "", "reply 2", true),
		msg("1", model.AccountSender("u1"), "ag1", 1*time.Minute, "Help", "Order missing", false),
		msg("x", model.AccountSender("u1"), "u3", 2*time.Minute, "", "unrelated", false),
		msg("2", model.AdminSender("ag1"), "u1", 2*time.Minute, "", "reply 1", false),
		msg("bad", model.Sender{}, "u1", 4*time.Minute, "", "broken", false),
	}

	got := Assemble(messages, "u1", "ag1")
	require.Len(t, got, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.True(t, got[0].IsViewer)
	assert.Equal(t, model.RoleUser, got[0].AuthorRole)
	assert.False(t, got[1].IsViewer)
	assert.Equal(t, "ag1", got[1].AuthorID)
	assert.Equal(t, model.RoleAdmin, got[1].AuthorRole)

	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].CreatedAt.After(got[i-1].CreatedAt))
	}
}

func TestAssembleEmpty(t *testing.T) {
	got := Assemble(nil, "u1", "u2")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
