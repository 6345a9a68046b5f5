package types

import (
	"errors"
	"time"
)

// Notification is an inbound mention on the social platform
type Notification struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Draft is a generated post or reply waiting to be published.
// It lives only for the duration of one publish call.
type Draft struct {
	Text    string
	MediaID string // empty for text-only posts
}

// HasMedia reports whether the draft carries an uploaded image
func (d Draft) HasMedia() bool {
	return d.MediaID != ""
}

// ChatMessage is an inbound message on the chat relay transport
type ChatMessage struct {
	ChatID    int64
	MessageID int
	Text      string
	Private   bool
	From      string
}

// ErrEmptyResponse is returned when a remote call reports success but
// carries no usable data.
var ErrEmptyResponse = errors.New("empty response")
