package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-books/storefront-messaging/internal/apperr"
	"github.com/inkwell-books/storefront-messaging/internal/conversation"
	"github.com/inkwell-books/storefront-messaging/internal/model"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

// forEachStore runs fn against every MessageStore that needs no external service.
func forEachStore(t *testing.T, fn func(t *testing.T, s MessageStore)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite(context.Background(), ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close(context.Background()) })
		fn(t, s)
	})
}

func insert(t *testing.T, s MessageStore, id string, from model.Sender, to string, minute int, read bool) model.Message {
	t.Helper()
	m := model.Message{
		ID:        id,
		From:      from,
		To:        to,
		Subject:   "subject " + id,
		Body:      "body " + id,
		Read:      read,
		CreatedAt: t0.Add(time.Duration(minute) * time.Minute),
	}
	require.NoError(t, s.Insert(context.Background(), &m))
	return m
}

func ids(messages []model.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}

func TestInsertRejectsInvalidSender(t *testing.T) {
	forEachStore(t, func(t *testing.T, s MessageStore) {
		err := s.Insert(context.Background(), &model.Message{ID: "m1", To: "u2", Body: "x", CreatedAt: t0})
		require.Error(t, err)
		assert.Equal(t, apperr.ReasonInvalidSender, apperr.Reason(err))

		_, err = s.Get(context.Background(), "m1")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestGetRoundTripsSender(t *testing.T) {
	forEachStore(t, func(t *testing.T, s MessageStore) {
		insert(t, s, "m1", model.AdminSender("ag1"), "u1", 1, false)
		insert(t, s, "m2", model.AccountSender("u1"), "ag1", 2, true)

		got, err := s.Get(context.Background(), "m1")
		require.NoError(t, err)
		assert.True(t, got.From.IsAdmin())
		assert.Equal(t, "ag1", got.From.ID())
		assert.Equal(t, "u1", got.To)
		assert.True(t, got.CreatedAt.Equal(t0.Add(time.Minute)))

		got, err = s.Get(context.Background(), "m2")
		require.NoError(t, err)
		assert.Equal(t, model.RoleUser, got.From.Role())
		assert.True(t, got.Read)
	})
}

func TestDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, s MessageStore) {
		ctx := context.Background()
		insert(t, s, "m1", model.AccountSender("u1"), "u2", 1, false)

		require.NoError(t, s.Delete(ctx, "m1"))
		assert.ErrorIs(t, s.Delete(ctx, "m1"), apperr.ErrNotFound)
	})
}

func TestFindFilters(t *testing.T) {
	forEachStore(t, func(t *testing.T, s MessageStore) {
		ctx := context.Background()
		insert(t, s, "a", model.AccountSender("u1"), "ag1", 1, false)
		insert(t, s, "b", model.AdminSender("ag1"), "u1", 2, false)
		insert(t, s, "c", model.AccountSender("u2"), "ag1", 3, true)
		insert(t, s, "d", model.AccountSender("u1"), "u2", 4, false)

		got, err := s.Find(ctx, Query{To: "ag1", FromAccountsOnly: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a"}, ids(got))

		got, err = s.Find(ctx, Query{To: "ag1", UnreadOnly: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, ids(got))

		got, err = s.Find(ctx, Query{Involving: "u1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"d", "b", "a"}, ids(got))

		got, err = s.Find(ctx, Query{Between: conversation.Pair{A: "ag1", B: "u1"}, Ascending: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids(got))

		got, err = s.Find(ctx, Query{Involving: "u1", Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"d", "b"}, ids(got))
	})
}

func TestCountCounterparts(t *testing.T) {
	forEachStore(t, func(t *testing.T, s MessageStore) {
		ctx := context.Background()
		insert(t, s, "a", model.AccountSender("u1"), "ag1", 1, false)
		insert(t, s, "b", model.AccountSender("u1"), "ag1", 2, true)
		insert(t, s, "c", model.AccountSender("u2"), "ag1", 3, true)
		insert(t, s, "d", model.AdminSender("ag1"), "u1", 4, false)
		insert(t, s, "e", model.AccountSender("u1"), "u3", 5, false)

		n, err := s.CountCounterparts(ctx, Query{To: "ag1", FromAccountsOnly: true}, "ag1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.CountCounterparts(ctx, Query{To: "ag1", FromAccountsOnly: true, UnreadOnly: true}, "ag1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		// u1 talks to ag1 (both directions) and u3.
		n, err = s.CountCounterparts(ctx, Query{Involving: "u1"}, "u1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestSetRead(t *testing.T) {
	forEachStore(t, func(t *testing.T, s MessageStore) {
		ctx := context.Background()
		insert(t, s, "m1", model.AccountSender("u1"), "u2", 1, false)

		assert.ErrorIs(t, s.SetRead(ctx, "m1", "u1", true), apperr.ErrNotFound, "sender cannot mark")
		assert.ErrorIs(t, s.SetRead(ctx, "missing", "u2", true), apperr.ErrNotFound)

		require.NoError(t, s.SetRead(ctx, "m1", "u2", true))
		require.NoError(t, s.SetRead(ctx, "m1", "u2", true), "idempotent")

		got, err := s.Get(ctx, "m1")
		require.NoError(t, err)
		assert.True(t, got.Read)

		require.NoError(t, s.SetRead(ctx, "m1", "u2", false))
		n, err := s.CountUnread(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestMarkAllRead(t *testing.T) {
	forEachStore(t, func(t *testing.T, s MessageStore) {
		ctx := context.Background()
		insert(t, s, "a", model.AdminSender("ag1"), "u1", 1, false)
		insert(t, s, "b", model.AdminSender("ag1"), "u1", 2, false)
		insert(t, s, "c", model.AdminSender("ag1"), "u1", 3, true)
		insert(t, s, "d", model.AccountSender("u2"), "u1", 4, false)
		insert(t, s, "e", model.AccountSender("u1"), "ag1", 5, false)

		res, err := s.MarkAllRead(ctx, "u1", "ag1")
		require.NoError(t, err)
		assert.Equal(t, model.ReadSweepResult{Matched: 2, Modified: 2}, res)

		n, err := s.CountUnread(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n, "peer message from u2 stays unread")

		n, err = s.CountUnread(ctx, "ag1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n, "messages in the other direction are untouched")

		res, err = s.MarkAllRead(ctx, "u1", "ag1")
		require.NoError(t, err)
		assert.Equal(t, model.ReadSweepResult{}, res)
	})
}

func TestDeleteBetween(t *testing.T) {
	forEachStore(t, func(t *testing.T, s MessageStore) {
		ctx := context.Background()
		for i, from := range []string{"u1", "u2", "u1", "u2", "u1"} {
			to := "u2"
			if from == "u2" {
				to = "u1"
			}
			insert(t, s, string(rune('a'+i)), model.AccountSender(from), to, i, false)
		}
		insert(t, s, "x", model.AccountSender("u1"), "u3", 10, false)
		insert(t, s, "y", model.AccountSender("u3"), "u2", 11, false)

		n, err := s.DeleteBetween(ctx, conversation.Pair{A: "u1", B: "u2"})
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)

		got, err := s.Find(ctx, Query{Between: conversation.Pair{A: "u2", B: "u1"}})
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = s.Find(ctx, Query{})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"x", "y"}, ids(got))
	})
}

func TestBulkMutationsNotAppliedWhenCancelled(t *testing.T) {
	forEachStore(t, func(t *testing.T, s MessageStore) {
		insert(t, s, "a", model.AccountSender("u1"), "u2", 1, false)
		insert(t, s, "b", model.AccountSender("u2"), "u1", 2, false)
		insert(t, s, "c", model.AccountSender("u1"), "u2", 3, false)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := s.MarkAllRead(ctx, "u2", "u1")
		assert.ErrorIs(t, err, context.Canceled)
		_, err = s.DeleteBetween(ctx, conversation.Pair{A: "u1", B: "u2"})
		assert.ErrorIs(t, err, context.Canceled)

		got, err := s.Find(context.Background(), Query{Between: conversation.Pair{A: "u1", B: "u2"}})
		require.NoError(t, err)
		assert.Len(t, got, 3)
		for _, m := range got {
			assert.False(t, m.Read, "message %s", m.ID)
		}
	})
}

func TestSQLiteRejectsMalformedRows(t *testing.T) {
	s, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close(context.Background())

	_, err = s.db.Exec("INSERT INTO messages ("+messageColumns+") VALUES ('bad', 'u1', 'ag1', 'u2', '', 'x', 0, 1)")
	assert.Error(t, err, "schema enforces exactly one sender column")
}
