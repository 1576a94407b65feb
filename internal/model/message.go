// Package model defines data structures for the storefront messaging core.
package model

import (
	"encoding/json"
	"time"
)

// Role is the role an account acts under.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Sender identifies who authored a message: either an administrative agent
// or an account holder. The zero Sender is invalid and is never persisted.
type Sender struct {
	role Role
	id   string
}

// AdminSender returns a Sender for an administrative agent.
func AdminSender(id string) Sender { return Sender{role: RoleAdmin, id: id} }

// AccountSender returns a Sender for an account holder.
func AccountSender(id string) Sender { return Sender{role: RoleUser, id: id} }

// SenderFor returns the Sender for id acting under role.
func SenderFor(role Role, id string) (Sender, bool) {
	if !role.Valid() || id == "" {
		return Sender{}, false
	}
	return Sender{role: role, id: id}, true
}

// SenderFromFields rebuilds a Sender from the stored fromAdmin/fromUser
// pair. It reports false when both or neither are set.
func SenderFromFields(fromAdmin, fromUser string) (Sender, bool) {
	switch {
	case fromAdmin != "" && fromUser == "":
		return AdminSender(fromAdmin), true
	case fromUser != "" && fromAdmin == "":
		return AccountSender(fromUser), true
	default:
		return Sender{}, false
	}
}

func (s Sender) ID() string    { return s.id }
func (s Sender) Role() Role    { return s.role }
func (s Sender) IsAdmin() bool { return s.role == RoleAdmin && s.id != "" }
func (s Sender) Valid() bool   { return s.role.Valid() && s.id != "" }

// Fields returns the sender spread over the stored fromAdmin/fromUser pair.
func (s Sender) Fields() (fromAdmin, fromUser string) {
	switch {
	case !s.Valid():
		return "", ""
	case s.role == RoleAdmin:
		return s.id, ""
	default:
		return "", s.id
	}
}

// Message is a single directed message. It is the only persisted entity;
// conversations are derived from sets of messages.
type Message struct {
	ID        string
	To        string
	From      Sender
	Subject   string
	Body      string
	Read      bool
	CreatedAt time.Time
}

type messageJSON struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	FromAdmin string    `json:"fromAdmin,omitempty"`
	FromUser  string    `json:"fromUser,omitempty"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// MarshalJSON encodes the sender with the fromAdmin/fromUser spelling.
func (m Message) MarshalJSON() ([]byte, error) {
	fromAdmin, fromUser := m.From.Fields()
	return json.Marshal(messageJSON{
		ID:        m.ID,
		To:        m.To,
		FromAdmin: fromAdmin,
		FromUser:  fromUser,
		Subject:   m.Subject,
		Body:      m.Body,
		Read:      m.Read,
		CreatedAt: m.CreatedAt,
	})
}

// UnmarshalJSON decodes a message; a malformed sender leaves From zero.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	from, _ := SenderFromFields(raw.FromAdmin, raw.FromUser)
	*m = Message{
		ID:        raw.ID,
		To:        raw.To,
		From:      from,
		Subject:   raw.Subject,
		Body:      raw.Body,
		Read:      raw.Read,
		CreatedAt: raw.CreatedAt,
	}
	return nil
}

// Topology classifies a message by the conversational shape it belongs to.
type Topology string

const (
	TopologySupportInbound  Topology = "support_inbound"
	TopologySupportOutbound Topology = "support_outbound"
	TopologyPeer            Topology = "peer"
)

// TopologyOf classifies a message given the recipient's role.
func TopologyOf(from Sender, recipientRole Role) Topology {
	switch {
	case from.IsAdmin():
		return TopologySupportOutbound
	case recipientRole == RoleAdmin:
		return TopologySupportInbound
	default:
		return TopologyPeer
	}
}

// SendMessageRequest is the request to send a message.
type SendMessageRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// SendSupportMessageRequest is the request to write to the support channel.
type SendSupportMessageRequest struct {
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	AgentEmail string `json:"agentEmail,omitempty"`
}

// MarkReadRequest is the request to change a message's read flag.
type MarkReadRequest struct {
	Read *bool `json:"read,omitempty"`
}

// ReadSweepResult reports a bulk read-marking outcome.
type ReadSweepResult struct {
	Matched  int64 `json:"matched"`
	Modified int64 `json:"modified"`
}

// DeleteConversationResponse reports how many messages were removed.
type DeleteConversationResponse struct {
	Deleted int64 `json:"deleted"`
}

// UnreadCountResponse is the response for the unread badge.
type UnreadCountResponse struct {
	Unread int64 `json:"unread"`
}
