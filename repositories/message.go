package repositories

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	StoreMessage(message DiskMessage) error
	PublicMessages(limit int) ([]DiskMessage, error)
	ConversationMessages(conversationID string, limit int) ([]DiskMessage, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// DiskMessage is the durable, append-only message record.
type DiskMessage struct {
	ID             uuid.UUID `cbor:"id"`
	SenderID       string    `cbor:"sender_id"`
	Sender         string    `cbor:"sender"`
	Content        string    `cbor:"content"`
	At             time.Time `cbor:"at"`
	Scope          string    `cbor:"scope"`
	ConversationID string    `cbor:"conversation_id,omitempty"`
	Color          string    `cbor:"color,omitempty"`
	ImageURL       string    `cbor:"image_url,omitempty"`
}

// messageKey builds "msg:{bucket}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two
//     messages arrive at the same nanosecond.
//
// The bucket is "public" for room traffic or "conv:{id}" for a private
// conversation, so each stream is an independent prefix scan.
func messageKey(message DiskMessage) []byte {
	bucket := "public"
	if message.ConversationID != "" {
		bucket = "conv:" + message.ConversationID
	}
	return fmt.Appendf(nil, "msg:%s:%019d:%s", bucket, message.At.UnixNano(), message.ID)
}

func (m MessageRepository) StoreMessage(message DiskMessage) error {
	bytes, err := cbor.Marshal(message)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message), bytes)
	})
}

func (m MessageRepository) PublicMessages(limit int) ([]DiskMessage, error) {
	return m.latest("msg:public:", limit)
}

func (m MessageRepository) ConversationMessages(conversationID string, limit int) ([]DiskMessage, error) {
	return m.latest(fmt.Sprintf("msg:conv:%s:", conversationID), limit)
}

// latest walks a prefix in reverse to collect the newest messages first,
// then flips the slice so callers render oldest to newest.
func (m MessageRepository) latest(prefixStr string, limit int) ([]DiskMessage, error) {
	var raw [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible key of the prefix, then walk back.
		seekKey := append([]byte{}, prefix...)
		seekKey = append(seekKey, 0xFF)

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(raw) == limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", limit))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte{}, value...))
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

	messages := make([]DiskMessage, 0, len(raw))
	for _, b := range raw {
		var message DiskMessage
		if err = cbor.Unmarshal(b, &message); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return lo.Reverse(messages), nil
}
