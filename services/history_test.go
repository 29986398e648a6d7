package services

import (
	"testing"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type stubMessages struct {
	public        []repositories.DiskMessage
	conversations map[string][]repositories.DiskMessage
}

func (s stubMessages) StoreMessage(repositories.DiskMessage) error { return nil }

func (s stubMessages) PublicMessages(int) ([]repositories.DiskMessage, error) {
	return s.public, nil
}

func (s stubMessages) ConversationMessages(conversationID string, _ int) ([]repositories.DiskMessage, error) {
	return s.conversations[conversationID], nil
}

type stubDirectory struct {
	conversations map[string]domain.Conversation
}

func (s stubDirectory) FindOrCreate(userA, userB string) (domain.Conversation, error) {
	return domain.NewConversation(userA, userB, time.Now().UTC())
}

func (s stubDirectory) ResolveByID(id string) (domain.Conversation, error) {
	conversation, ok := s.conversations[id]
	if !ok {
		return domain.Conversation{}, errors.ErrConversationNotFound
	}
	return conversation, nil
}

func (s stubDirectory) IsParticipant(conversation domain.Conversation, identityID string) bool {
	return conversation.HasParticipant(identityID)
}

func (s stubDirectory) UpdateSummary(string, domain.Message) error { return nil }

func (s stubDirectory) ListForUser(string) ([]domain.Conversation, error) { return nil, nil }

func TestHistoryService_PublicHistory_Maps_Disk_Records(t *testing.T) {
	req := require.New(t)
	at := time.Now().UTC()
	messages := stubMessages{public: []repositories.DiskMessage{{
		ID:       uuid.New(),
		SenderID: "u1",
		Sender:   "alice",
		Content:  "hello",
		At:       at,
		Scope:    "public",
	}}}
	service := NewHistoryService(messages, stubDirectory{}, 100)

	history, err := service.PublicHistory()
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("hello", history[0].Content)
	req.Equal("alice", history[0].Sender.DisplayName)
	req.Equal(domain.ScopePublic, history[0].Scope)
}

func TestHistoryService_ConversationHistory_Guards_Participation(t *testing.T) {
	req := require.New(t)
	conversation, err := domain.NewConversation("alice", "bob", time.Now().UTC())
	req.NoError(err)
	conversationID := conversation.ID.String()

	messages := stubMessages{conversations: map[string][]repositories.DiskMessage{
		conversationID: {{ID: uuid.New(), SenderID: "alice", Content: "secret", Scope: "private", ConversationID: conversationID}},
	}}
	directory := stubDirectory{conversations: map[string]domain.Conversation{conversationID: conversation}}
	service := NewHistoryService(messages, directory, 100)

	// A participant reads the history
	history, err := service.ConversationHistory("alice", conversationID)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("secret", history[0].Content)

	// An outsider gets the same answer as for an unknown conversation
	_, err = service.ConversationHistory("mallory", conversationID)
	req.ErrorIs(err, errors.ErrConversationNotFound)
	_, err = service.ConversationHistory("alice", uuid.NewString())
	req.ErrorIs(err, errors.ErrConversationNotFound)
}
