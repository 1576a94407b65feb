package model

import (
	"time"
)

// ConversationSummary is one compacted row per counterpart.
type ConversationSummary struct {
	CounterpartID   string    `json:"counterpartId"`
	CounterpartRole Role      `json:"counterpartRole,omitempty"`
	DisplayName     string    `json:"displayName,omitempty"`
	AvatarRef       string    `json:"avatarRef,omitempty"`
	LastMessageID   string    `json:"lastMessageId"`
	LastSubject     string    `json:"lastSubject"`
	LastSnippet     string    `json:"lastSnippet"`
	LastAt          time.Time `json:"lastAt"`
	LastFromViewer  bool      `json:"lastFromViewer"`
	HasUnread       bool      `json:"hasUnread"`
	UnreadCount     int       `json:"unreadCount"`
}

// ConversationPage is a page of compacted conversations. Total counts
// distinct counterparts, not raw messages.
type ConversationPage struct {
	Items       []ConversationSummary `json:"items"`
	Total       int                   `json:"total"`
	UnreadCount int                   `json:"unreadCount"`
	Page        int                   `json:"page"`
	PageSize    int                   `json:"pageSize"`
	HasMore     bool                  `json:"hasMore"`
}

// ThreadMessage is a message normalised for a viewer.
type ThreadMessage struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"authorId"`
	AuthorRole Role      `json:"authorRole"`
	IsViewer   bool      `json:"isViewer"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ThreadResponse is the response for a thread between two participants.
type ThreadResponse struct {
	CounterpartID string          `json:"counterpartId"`
	Messages      []ThreadMessage `json:"messages"`
}
