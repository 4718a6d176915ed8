// Package model defines data structures for the artifact platform.
package model

import (
	"time"
)

// Visibility controls who may read a conversation.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Conversation represents a conversation thread that generations run within.
type Conversation struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	Title      string     `json:"title"`
	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// CanRead reports whether the given user may read the conversation.
// Session resolution itself is an external concern; this only applies
// the visibility rule to an already-resolved user ID.
func (c *Conversation) CanRead(userID string) bool {
	return c.Visibility == VisibilityPublic || c.OwnerID == userID
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	Title      string     `json:"title"`
	Visibility Visibility `json:"visibility,omitempty"`
}
