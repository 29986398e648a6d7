package repositories

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

const findOrCreateRetries = 3

type IConversationRepository interface {
	FindOrCreate(userA, userB string) (domain.Conversation, error)
	GetByID(id string) (domain.Conversation, error)
	UpdateSummary(id string, messageID uuid.UUID, at time.Time) error
	ListForUser(userID string) ([]domain.Conversation, error)
}

type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) ConversationRepository {
	return ConversationRepository{db: db, log: log}
}

type diskConversation struct {
	ID            uuid.UUID  `cbor:"id"`
	Participants  [2]string  `cbor:"participants"`
	LastMessageID *uuid.UUID `cbor:"last_message_id,omitempty"`
	LastMessageAt *time.Time `cbor:"last_message_at,omitempty"`
	CreatedAt     time.Time  `cbor:"created_at"`
}

func idKey(id string) []byte {
	return fmt.Appendf(nil, "conv:id:%s", id)
}

// pairKey indexes a conversation by its canonicalized participant pair,
// so FindOrCreate(A,B) and FindOrCreate(B,A) hit the same entry.
func pairKey(userA, userB string) []byte {
	first, second := domain.CanonicalPair(userA, userB)
	return fmt.Appendf(nil, "conv:pair:%s:%s", first, second)
}

// FindOrCreate resolves the conversation for an unordered identity pair,
// creating it lazily on first contact. The read and the conditional write
// run in one badger transaction; on a write conflict (two first-contact
// requests racing) the transaction is retried and the second attempt finds
// the winner's entry, preserving at-most-one conversation per pair.
func (c ConversationRepository) FindOrCreate(userA, userB string) (domain.Conversation, error) {
	var result domain.Conversation

	for attempt := 0; attempt < findOrCreateRetries; attempt++ {
		err := c.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(pairKey(userA, userB))
			if err == nil {
				var id string
				err = item.Value(func(value []byte) error {
					id = string(value)
					return nil
				})
				if err != nil {
					return err
				}
				result, err = getByID(txn, id)
				return err
			}
			if err != badger.ErrKeyNotFound {
				return err
			}

			conversation, err := domain.NewConversation(userA, userB, time.Now().UTC())
			if err != nil {
				return err
			}
			bytes, err := cbor.Marshal(fromConversation(conversation))
			if err != nil {
				return err
			}
			if err = txn.Set(idKey(conversation.ID.String()), bytes); err != nil {
				return err
			}
			if err = txn.Set(pairKey(userA, userB), []byte(conversation.ID.String())); err != nil {
				return err
			}
			result = conversation
			return nil
		})
		if err == badger.ErrConflict {
			c.log.Debug("Conversation creation conflict, retrying", "attempt", attempt+1)
			continue
		}
		return result, err
	}
	return domain.Conversation{}, badger.ErrConflict
}

func (c ConversationRepository) GetByID(id string) (domain.Conversation, error) {
	var result domain.Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		result, err = getByID(txn, id)
		return err
	})
	return result, err
}

// UpdateSummary refreshes the conversation's last-message pointer and
// activity timestamp. A miss maps to ErrConversationNotFound.
func (c ConversationRepository) UpdateSummary(id string, messageID uuid.UUID, at time.Time) error {
	return c.db.Update(func(txn *badger.Txn) error {
		conversation, err := getByID(txn, id)
		if err != nil {
			return err
		}
		conversation.LastMessageID = &messageID
		conversation.LastMessageAt = &at

		bytes, err := cbor.Marshal(fromConversation(conversation))
		if err != nil {
			return err
		}
		return txn.Set(idKey(id), bytes)
	})
}

// ListForUser scans all conversations and keeps the ones the user belongs
// to, most recent activity first. The full scan is fine at this scale; a
// per-user index would be the next step if conversation counts grow.
func (c ConversationRepository) ListForUser(userID string) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		prefix := []byte("conv:id:")
		options := badger.DefaultIteratorOptions
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var disk diskConversation
				if err := cbor.Unmarshal(value, &disk); err != nil {
					return err
				}
				conversation := toConversation(disk)
				if conversation.HasParticipant(userID) {
					conversations = append(conversations, conversation)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(conversations, func(i, j int) bool {
		return lastActivity(conversations[i]).After(lastActivity(conversations[j]))
	})
	return conversations, nil
}

func lastActivity(c domain.Conversation) time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

func getByID(txn *badger.Txn, id string) (domain.Conversation, error) {
	item, err := txn.Get(idKey(id))
	if err == badger.ErrKeyNotFound {
		return domain.Conversation{}, errors.ErrConversationNotFound
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	var disk diskConversation
	err = item.Value(func(value []byte) error {
		return cbor.Unmarshal(value, &disk)
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return toConversation(disk), nil
}

func fromConversation(c domain.Conversation) diskConversation {
	return diskConversation{
		ID:            c.ID,
		Participants:  c.Participants,
		LastMessageID: c.LastMessageID,
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
	}
}

func toConversation(d diskConversation) domain.Conversation {
	return domain.Conversation{
		ID:            d.ID,
		Participants:  d.Participants,
		LastMessageID: d.LastMessageID,
		LastMessageAt: d.LastMessageAt,
		CreatedAt:     d.CreatedAt,
	}
}
