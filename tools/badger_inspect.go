package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"chat-relay/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
)

// Standalone inspector for the relay's badger store. Opens the database
// read-only and dumps messages or conversations as a table, depending on
// the prefix.
//
//	go run ./tools -db /var/lib/chat-relay -prefix msg:
//	go run ./tools -db /var/lib/chat-relay -prefix conv:id:

type diskConversation struct {
	ID            uuid.UUID  `cbor:"id"`
	Participants  [2]string  `cbor:"participants"`
	LastMessageAt *time.Time `cbor:"last_message_at,omitempty"`
	CreatedAt     time.Time  `cbor:"created_at"`
}

func main() {
	dbPath := flag.String("db", "", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan (msg: or conv:id:)")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("-db is required")
	}

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	if strings.HasPrefix(*prefix, "conv") {
		table.SetHeader([]string{"Key", "ID", "Participants", "Last Activity", "Created"})
	} else {
		table.SetHeader([]string{"Key", "Scope", "Timestamp", "Sender", "Conversation", "Content"})
	}
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			rawKey := string(item.Key())

			// The pair index holds raw ids, not cbor records
			if strings.HasPrefix(rawKey, "conv:pair:") {
				continue
			}

			err := item.Value(func(v []byte) error {
				if strings.HasPrefix(rawKey, "conv:") {
					appendConversation(table, rawKey, v)
					return nil
				}
				appendMessage(table, rawKey, v)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func appendMessage(table *tablewriter.Table, rawKey string, value []byte) {
	var message repositories.DiskMessage
	if err := cbor.Unmarshal(value, &message); err != nil {
		// Log the broken record and keep scanning
		fmt.Printf("Error unmarshaling key %s: %v\n", rawKey, err)
		return
	}

	content := message.Content
	if len(content) > 60 {
		content = content[:60] + "..."
	}
	if message.ImageURL != "" {
		content += " [image]"
	}

	table.Append([]string{
		rawKey,
		message.Scope,
		message.At.Format("15:04:05"),
		message.Sender,
		shortID(message.ConversationID),
		content,
	})
}

func appendConversation(table *tablewriter.Table, rawKey string, value []byte) {
	var conversation diskConversation
	if err := cbor.Unmarshal(value, &conversation); err != nil {
		fmt.Printf("Error unmarshaling key %s: %v\n", rawKey, err)
		return
	}

	lastActivity := "-"
	if conversation.LastMessageAt != nil {
		lastActivity = conversation.LastMessageAt.Format("15:04:05")
	}

	table.Append([]string{
		rawKey,
		shortID(conversation.ID.String()),
		strings.Join(conversation.Participants[:], ", "),
		lastActivity,
		conversation.CreatedAt.Format("2006-01-02 15:04:05"),
	})
}

// shortID keeps the first 8 characters for readability.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		// Corrupted value log: open once in write mode to truncate, then
		// reopen read-only.
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
