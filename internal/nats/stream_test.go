package nats

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inkwell-books/storefront-messaging/internal/model"
)

func TestEventSubject(t *testing.T) {
	assert.Equal(t, "msg.event.message_sent.U1", EventSubject(model.EventTypeMessageSent, "U1"))
	assert.Equal(t, "msg.event.message_deleted.none", EventSubject(model.EventTypeMessageDeleted, ""))
}

func TestEventSubjectKeepsTargetInOneToken(t *testing.T) {
	for id, want := range map[string]string{
		"a.b":       "msg.event.message_sent.a_b",
		"*":         "msg.event.message_sent._",
		"x>":        "msg.event.message_sent.x_",
		"two words": "msg.event.message_sent.two_words",
		"tab\there":  "msg.event.message_sent.tab_here",
	} {
		subject := EventSubject(model.EventTypeMessageSent, id)
		assert.Equal(t, want, subject, id)
		assert.Len(t, strings.Split(subject, "."), 4, id)
	}
}

func TestEventFilter(t *testing.T) {
	assert.Equal(t, "msg.event.>", EventFilter(""))
	assert.Equal(t, "msg.event.conversation_read.>", EventFilter(model.EventTypeConversationRead))
}
