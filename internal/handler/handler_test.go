package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-books/storefront-messaging/internal/account"
	"github.com/inkwell-books/storefront-messaging/internal/middleware"
	"github.com/inkwell-books/storefront-messaging/internal/model"
	natsclient "github.com/inkwell-books/storefront-messaging/internal/nats"
	"github.com/inkwell-books/storefront-messaging/internal/service"
	"github.com/inkwell-books/storefront-messaging/internal/store"
	"github.com/inkwell-books/storefront-messaging/pkg/logger"
)

const secret = "handler-test-secret"

type api struct {
	t      *testing.T
	server http.Handler
}

type fakeReplayer struct {
	after uint64
	limit int
	typ   model.EventType
}

func (f *fakeReplayer) ReplayEvents(_ context.Context, typ model.EventType, after uint64, limit int) ([]natsclient.RecordedEvent, uint64, bool, error) {
	f.after, f.limit, f.typ = after, limit, typ
	return []natsclient.RecordedEvent{{Sequence: after + 1, Event: model.MessageEvent{Type: model.EventTypeMessageSent}}}, after + 1, false, nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("down") }

func newAPI(t *testing.T, replayer EventReplayer, accounts ...model.Account) *api {
	t.Helper()

	log := logger.NewNop()
	st := store.NewMemory()
	dir := account.NewMemory(accounts...)
	resolver := service.NewSupportAgentResolver(dir, service.AgentPolicy{}, log)

	return &api{
		t: t,
		server: NewRouter(RouterConfig{
			JWTSecret:     secret,
			Messages:      service.NewMessageService(st, dir, resolver, nil, log),
			Conversations: service.NewConversationService(st, dir, service.DefaultListOptions(), log),
			Events:        replayer,
			Health:        NewHealthHandler(map[string]Pinger{"store": st}),
			Logger:        log,
		}),
	}
}

func token(t *testing.T, subject string, role model.Role) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: role,
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func (a *api) do(method, path, viewer string, role model.Role, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if viewer != "" {
		req.Header.Set("Authorization", "Bearer "+token(a.t, viewer, role))
	}
	rec := httptest.NewRecorder()
	a.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func agentAccount(id, email string) model.Account {
	return model.Account{ID: id, Email: email, DisplayName: "Agent " + id, Role: model.RoleAdmin, LastLoginAt: time.Now()}
}

func userAccount(id string) model.Account {
	return model.Account{ID: id, DisplayName: "User " + id, Role: model.RoleUser}
}

func TestSupportRoundTrip(t *testing.T) {
	a := newAPI(t, nil, agentAccount("AG1", "desk@shop.test"), userAccount("U1"))

	rec := a.do(http.MethodPost, "/api/v1/support/messages", "U1", model.RoleUser,
		model.SendSupportMessageRequest{Subject: "Help", Body: "Order missing"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sent := decode[map[string]any](t, rec)
	assert.Equal(t, "AG1", sent["to"])
	assert.Equal(t, "U1", sent["fromUser"])
	assert.NotContains(t, sent, "fromAdmin")

	rec = a.do(http.MethodGet, "/api/v1/admin/inbox?page=1&pageSize=10", "AG1", model.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inbox := decode[model.ConversationPage](t, rec)
	require.Len(t, inbox.Items, 1)
	assert.Equal(t, "U1", inbox.Items[0].CounterpartID)
	assert.Equal(t, 1, inbox.Items[0].UnreadCount)

	rec = a.do(http.MethodPost, "/api/v1/messages", "AG1", model.RoleAdmin,
		model.SendMessageRequest{To: "U1", Subject: "Re: Help", Body: "On its way"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(http.MethodGet, "/api/v1/conversations/AG1", "U1", model.RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	thread := decode[model.ThreadResponse](t, rec)
	require.Len(t, thread.Messages, 2)
	assert.Equal(t, "U1", thread.Messages[0].AuthorID)
	assert.Equal(t, "AG1", thread.Messages[1].AuthorID)

	rec = a.do(http.MethodGet, "/api/v1/messages/unread-count", "U1", model.RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[model.UnreadCountResponse](t, rec).Unread)

	rec = a.do(http.MethodPut, "/api/v1/conversations/AG1/read", "U1", model.RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[model.ReadSweepResult](t, rec).Modified)
}

func TestSendErrors(t *testing.T) {
	a := newAPI(t, nil, userAccount("U1"), userAccount("U2"))

	tests := []struct {
		name   string
		body   interface{}
		status int
		reason string
	}{
		{"empty content", model.SendMessageRequest{To: "U2"}, http.StatusBadRequest, "empty_content"},
		{"unknown recipient", model.SendMessageRequest{To: "U9", Body: "hi"}, http.StatusBadRequest, "unknown_recipient"},
		{"self", model.SendMessageRequest{To: "U1", Body: "hi"}, http.StatusBadRequest, "invalid_recipient"},
		{"malformed", "not an object", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(http.MethodPost, "/api/v1/messages", "U1", model.RoleUser, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.reason, decode[errorResponse](t, rec).Reason)
		})
	}
}

func TestSupportUnavailableIs503(t *testing.T) {
	a := newAPI(t, nil, userAccount("U1"))

	rec := a.do(http.MethodPost, "/api/v1/support/messages", "U1", model.RoleUser,
		model.SendSupportMessageRequest{Body: "anyone?"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, decode[errorResponse](t, rec).Reason)
}

func TestMessageAccess(t *testing.T) {
	a := newAPI(t, nil, agentAccount("AG1", "desk@shop.test"), userAccount("U1"), userAccount("U2"), userAccount("U3"))

	rec := a.do(http.MethodPost, "/api/v1/messages", "U1", model.RoleUser, model.SendMessageRequest{To: "U2", Body: "hello"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[map[string]any](t, rec)["id"].(string)

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/v1/messages/"+id, "U2", model.RoleUser, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/v1/messages/"+id, "U3", model.RoleUser, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/v1/messages/nope", "U2", model.RoleUser, nil).Code)

	read := true
	assert.Equal(t, http.StatusNotFound,
		a.do(http.MethodPut, "/api/v1/messages/"+id+"/read", "U1", model.RoleUser, model.MarkReadRequest{Read: &read}).Code,
		"only the recipient changes read state")
	assert.Equal(t, http.StatusBadRequest,
		a.do(http.MethodPut, "/api/v1/messages/"+id+"/read", "U2", model.RoleUser, model.MarkReadRequest{}).Code)
	assert.Equal(t, http.StatusNoContent,
		a.do(http.MethodPut, "/api/v1/messages/"+id+"/read", "U2", model.RoleUser, model.MarkReadRequest{Read: &read}).Code)

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, "/api/v1/messages/"+id, "U3", model.RoleUser, nil).Code)
	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/api/v1/messages/"+id, "AG1", model.RoleAdmin, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/v1/messages/"+id, "U2", model.RoleUser, nil).Code)
}

func TestConversationListAndDelete(t *testing.T) {
	a := newAPI(t, nil, userAccount("U1"), userAccount("U2"), userAccount("U3"))

	for _, to := range []string{"U2", "U3", "U2"} {
		rec := a.do(http.MethodPost, "/api/v1/messages", "U1", model.RoleUser, model.SendMessageRequest{To: to, Body: "hi " + to})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := a.do(http.MethodGet, "/api/v1/conversations?pageSize=1", "U1", model.RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[model.ConversationPage](t, rec)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 2, page.Total)
	assert.True(t, page.HasMore)
	assert.Equal(t, "User U2", page.Items[0].DisplayName)

	rec = a.do(http.MethodDelete, "/api/v1/conversations/U2", "U1", model.RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode[model.DeleteConversationResponse](t, rec).Deleted)

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, "/api/v1/conversations/U2", "U1", model.RoleUser, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodDelete, "/api/v1/conversations/U1", "U1", model.RoleUser, nil).Code)
}

func TestAdminRoutesRequireAgent(t *testing.T) {
	a := newAPI(t, &fakeReplayer{}, userAccount("U1"))

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/api/v1/admin/inbox", "U1", model.RoleUser, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/api/v1/admin/events", "U1", model.RoleUser, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/v1/admin/inbox", "", "", nil).Code)
}

func TestEventReplay(t *testing.T) {
	replayer := &fakeReplayer{}
	a := newAPI(t, replayer, agentAccount("AG1", "desk@shop.test"))

	rec := a.do(http.MethodGet, "/api/v1/admin/events?after=41&limit=10&type=message_sent", "AG1", model.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[EventPage](t, rec)
	assert.EqualValues(t, 42, page.LastSequence)
	require.Len(t, page.Events, 1)
	assert.EqualValues(t, 41, replayer.after)
	assert.Equal(t, 10, replayer.limit)
	assert.Equal(t, model.EventTypeMessageSent, replayer.typ)

	assert.Equal(t, http.StatusBadRequest,
		a.do(http.MethodGet, "/api/v1/admin/events?after=-1", "AG1", model.RoleAdmin, nil).Code)

	noBus := newAPI(t, nil, agentAccount("AG1", "desk@shop.test"))
	assert.Equal(t, http.StatusServiceUnavailable,
		noBus.do(http.MethodGet, "/api/v1/admin/events", "AG1", model.RoleAdmin, nil).Code)
}

func TestHealth(t *testing.T) {
	a := newAPI(t, nil)

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/health", "", "", nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/ready", "", "", nil).Code)

	h := NewHealthHandler(map[string]Pinger{"store": failingPinger{}, "nats": nil})
	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "store: down")
}
