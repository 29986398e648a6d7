package services

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"

	"github.com/samber/lo"
)

type IHistoryService interface {
	PublicHistory() ([]domain.Message, error)
	ConversationHistory(requesterID, conversationID string) ([]domain.Message, error)
}

// HistoryService serves the read path: recent public-room messages and
// participant-guarded private conversation history.
type HistoryService struct {
	messages  repositories.IMessageRepository
	directory IConversationDirectory
	limit     int
}

func NewHistoryService(messages repositories.IMessageRepository, directory IConversationDirectory, limit int) HistoryService {
	return HistoryService{messages: messages, directory: directory, limit: limit}
}

func (s HistoryService) PublicHistory() ([]domain.Message, error) {
	disk, err := s.messages.PublicMessages(s.limit)
	if err != nil {
		return nil, err
	}
	return fromDiskMessages(disk), nil
}

// ConversationHistory refuses to serve a conversation the requester does
// not belong to; an unknown id and a foreign id are indistinguishable to
// the caller so conversation existence never leaks.
func (s HistoryService) ConversationHistory(requesterID, conversationID string) ([]domain.Message, error) {
	conversation, err := s.directory.ResolveByID(conversationID)
	if err != nil {
		return nil, err
	}
	if !s.directory.IsParticipant(conversation, requesterID) {
		return nil, errors.ErrConversationNotFound
	}
	disk, err := s.messages.ConversationMessages(conversationID, s.limit)
	if err != nil {
		return nil, err
	}
	return fromDiskMessages(disk), nil
}

func fromDiskMessages(messages []repositories.DiskMessage) []domain.Message {
	return lo.Map(messages, func(item repositories.DiskMessage, _ int) domain.Message {
		return domain.Message{
			ID:             item.ID,
			Content:        item.Content,
			Sender:         domain.Identity{ID: item.SenderID, DisplayName: item.Sender},
			CreatedAt:      item.At,
			Scope:          domain.Scope(item.Scope),
			ConversationID: item.ConversationID,
			Color:          item.Color,
			ImageURL:       item.ImageURL,
		}
	})
}
