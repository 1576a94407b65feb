package conversation

import (
	"sort"

	"github.com/inkwell-books/storefront-messaging/internal/model"
)

// Assemble returns the messages exchanged between viewerID and otherID,
// oldest first, normalised for the viewer. Messages outside the pair or
// without a valid sender are dropped.
func Assemble(messages []model.Message, viewerID, otherID string) []model.ThreadMessage {
	pair := Pair{A: viewerID, B: otherID}

	matched := make([]*model.Message, 0, len(messages))
	for i := range messages {
		if pair.Matches(&messages[i]) {
			matched = append(matched, &messages[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return Newer(matched[j], matched[i])
	})

	out := make([]model.ThreadMessage, len(matched))
	for i, m := range matched {
		out[i] = model.ThreadMessage{
			ID:         m.ID,
			AuthorID:   m.From.ID(),
			AuthorRole: m.From.Role(),
			IsViewer:   m.From.ID() == viewerID,
			Subject:    m.Subject,
			Body:       m.Body,
			Read:       m.Read,
			CreatedAt:  m.CreatedAt,
		}
	}
	return out
}
