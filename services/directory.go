package services

import (
	"log/slog"

	"chat-relay/domain"
	"chat-relay/repositories"
)

// IConversationDirectory resolves private conversations for the router:
// given two identities it finds (or lazily creates) the stable
// conversation between them, and it guards routing against conversations
// the sender does not belong to.
type IConversationDirectory interface {
	FindOrCreate(userA, userB string) (domain.Conversation, error)
	ResolveByID(id string) (domain.Conversation, error)
	IsParticipant(conversation domain.Conversation, identityID string) bool
	UpdateSummary(conversationID string, message domain.Message) error
	ListForUser(userID string) ([]domain.Conversation, error)
}

type ConversationDirectory struct {
	conversations repositories.IConversationRepository
	log           *slog.Logger
}

func NewConversationDirectory(conversations repositories.IConversationRepository, log *slog.Logger) ConversationDirectory {
	return ConversationDirectory{conversations: conversations, log: log}
}

func (d ConversationDirectory) FindOrCreate(userA, userB string) (domain.Conversation, error) {
	return d.conversations.FindOrCreate(userA, userB)
}

func (d ConversationDirectory) ResolveByID(id string) (domain.Conversation, error) {
	return d.conversations.GetByID(id)
}

func (d ConversationDirectory) IsParticipant(conversation domain.Conversation, identityID string) bool {
	return conversation.HasParticipant(identityID)
}

func (d ConversationDirectory) UpdateSummary(conversationID string, message domain.Message) error {
	return d.conversations.UpdateSummary(conversationID, message.ID, message.CreatedAt)
}

func (d ConversationDirectory) ListForUser(userID string) ([]domain.Conversation, error) {
	return d.conversations.ListForUser(userID)
}
