package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/inkwell-books/storefront-messaging/internal/conversation"
)

func TestSupportsTransactions(t *testing.T) {
	assert.True(t, supportsTransactions("rs0", ""))
	assert.True(t, supportsTransactions("", "isdbgrid"))
	assert.False(t, supportsTransactions("", ""))
}

func TestMongoFilterKeepsSingleSenderDocuments(t *testing.T) {
	for name, q := range map[string]Query{
		"empty":   {},
		"inbox":   {To: "ag1", FromAccountsOnly: true, UnreadOnly: true},
		"between": {Between: conversation.Pair{A: "u1", B: "u2"}},
	} {
		t.Run(name, func(t *testing.T) {
			and, ok := mongoFilter(q)["$and"].(bson.A)
			if assert.True(t, ok) {
				assert.Contains(t, and, singleSender)
			}
		})
	}
}
