// Package domain contains core concepts of the chat relay.
// This file defines Message events and related rules.
// Messages are immutable and validated by the domain.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type Scope string

const (
	ScopePublic  Scope = "public"
	ScopePrivate Scope = "private"
)

// Message represents an immutable chat event.
// A private message carries the ConversationID it belongs to.
type Message struct {
	ID             uuid.UUID
	Content        string
	Sender         Identity
	CreatedAt      time.Time
	Scope          Scope
	ConversationID string
	Color          string
	ImageURL       string
}
