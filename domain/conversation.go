package domain

import (
	"time"

	"chat-relay/errors"

	"github.com/google/uuid"
)

// Conversation pairs exactly two identities for private messaging.
// The participant pair is canonicalized (lexicographic order of ids) so
// repeated lookups for the same two users resolve to the same conversation.
type Conversation struct {
	ID            uuid.UUID
	Participants  [2]string
	LastMessageID *uuid.UUID
	LastMessageAt *time.Time
	CreatedAt     time.Time
}

// CanonicalPair returns the two ids in lexicographic order.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

func NewConversation(a, b string, now time.Time) (Conversation, error) {
	if a == "" || b == "" || a == b {
		return Conversation{}, errors.ErrSelfConversation
	}
	first, second := CanonicalPair(a, b)
	return Conversation{
		ID:           uuid.New(),
		Participants: [2]string{first, second},
		CreatedAt:    now,
	}, nil
}

func (c Conversation) HasParticipant(id string) bool {
	return c.Participants[0] == id || c.Participants[1] == id
}

// OtherParticipant resolves the single recipient of a private message.
// The second return value is false when id is not a participant at all.
func (c Conversation) OtherParticipant(id string) (string, bool) {
	switch id {
	case c.Participants[0]:
		return c.Participants[1], true
	case c.Participants[1]:
		return c.Participants[0], true
	default:
		return "", false
	}
}
