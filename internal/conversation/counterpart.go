// Package conversation derives conversation-level views from the flat
// message log. Nothing here touches storage.
package conversation

import (
	"github.com/inkwell-books/storefront-messaging/internal/model"
)

// Counterpart returns the other participant of m as seen by viewerID.
//
// Agent-authored messages always resolve to the agent. Account-authored
// messages resolve to the recipient when the viewer wrote them and to the
// author otherwise. A message without a valid sender resolves to m.To.
func Counterpart(m *model.Message, viewerID string) string {
	switch {
	case m.From.IsAdmin():
		return m.From.ID()
	case m.From.Valid():
		if m.From.ID() == viewerID {
			return m.To
		}
		return m.From.ID()
	default:
		return m.To
	}
}

// Pair is an unordered pair of participants.
type Pair struct {
	A string
	B string
}

// IsZero reports whether p is unset.
func (p Pair) IsZero() bool {
	return p.A == "" && p.B == ""
}

// Matches reports whether m was exchanged between the two participants, in
// either direction and under either sender spelling. Messages without a
// valid sender never match.
func (p Pair) Matches(m *model.Message) bool {
	if !m.From.Valid() || p.A == "" || p.B == "" {
		return false
	}
	from := m.From.ID()
	return (from == p.A && m.To == p.B) || (from == p.B && m.To == p.A)
}
