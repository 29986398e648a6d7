package runtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/services"
)

// MessageRouter consumes one inbound frame per call, tags it with the
// sender's authenticated identity, persists it, and delivers it to the
// recipient set: every other live connection for public messages, the
// single other participant for private ones.
//
// Persistence and delivery are decoupled: the durable write runs in its
// own goroutine so user-perceived latency is never coupled to storage
// latency. A persistence failure degrades the relay to ephemeral chat,
// it never blocks or fails delivery.
type MessageRouter struct {
	registry  *ConnectionRegistry
	directory services.IConversationDirectory
	messages  repositories.IMessageRepository
	moderator *moderation.Moderator
	log       *slog.Logger
}

func NewMessageRouter(
	registry *ConnectionRegistry,
	directory services.IConversationDirectory,
	messages repositories.IMessageRepository,
	moderator *moderation.Moderator,
	log *slog.Logger,
) *MessageRouter {
	return &MessageRouter{
		registry:  registry,
		directory: directory,
		messages:  messages,
		moderator: moderator,
		log:       log,
	}
}

// Route handles one inbound application frame from an admitted connection.
// Malformed or invalid frames are dropped with a log line; they never
// tear down the connection or the process.
func (r *MessageRouter) Route(sender contract.Connection, raw []byte) {
	var inbound domain.InboundMessage
	if err := json.Unmarshal(raw, &inbound); err != nil {
		r.log.Warn("Dropping unparseable frame",
			"user_id", sender.Identity().ID, "error", err)
		return
	}
	if err := domain.ValidateInbound(inbound); err != nil {
		r.log.Warn("Dropping invalid frame",
			"user_id", sender.Identity().ID, "error", err)
		return
	}

	// The client-asserted sender, if any, died in unmarshalling; only the
	// authenticated identity tags the message.
	message := inbound.ToMessage(sender.Identity(), time.Now().UTC())

	if message.Scope == domain.ScopePublic && r.moderator != nil {
		message.Content = r.moderator.Censor(message.Content)
	}

	r.log.Debug(fmt.Sprintf("Received %s message", message.Scope),
		"user_id", message.Sender.ID, "message_id", message.ID)

	go r.persist(message)

	if message.Scope == domain.ScopePrivate {
		r.deliverPrivate(sender, message)
		return
	}
	r.broadcast(sender, message)
}

// persist stores the message and, for private traffic, refreshes the
// conversation summary. Both are independent best-effort writes: a stale
// summary after a successful store is acceptable and recoverable.
func (r *MessageRouter) persist(message domain.Message) {
	if err := r.messages.StoreMessage(toDiskMessage(message)); err != nil {
		r.log.Error("Failed to persist message",
			"message_id", message.ID, "error", err)
		return
	}
	if message.Scope != domain.ScopePrivate {
		return
	}
	if err := r.directory.UpdateSummary(message.ConversationID, message); err != nil {
		r.log.Error("Failed to update conversation summary",
			"conversation_id", message.ConversationID, "error", err)
	}
}

// deliverPrivate pushes the message to the other participant, if online.
// Resolution failures (unknown id, sender not a participant) and an
// offline recipient are routing misses, not errors: the message is
// already being persisted and the sender keeps its optimistic copy.
func (r *MessageRouter) deliverPrivate(sender contract.Connection, message domain.Message) {
	conversation, err := r.directory.ResolveByID(message.ConversationID)
	if err != nil {
		r.log.Warn("Private message to unresolvable conversation, delivery skipped",
			"conversation_id", message.ConversationID,
			"user_id", message.Sender.ID, "error", err)
		return
	}
	recipientID, ok := conversation.OtherParticipant(message.Sender.ID)
	if !ok {
		r.log.Warn("Sender is not a participant, delivery skipped",
			"conversation_id", message.ConversationID, "user_id", message.Sender.ID)
		return
	}

	target, ok := r.registry.Lookup(recipientID)
	if !ok || target.State() != contract.StateOpen {
		r.log.Debug("Recipient offline, delivery skipped",
			"recipient_id", recipientID, "message_id", message.ID)
		return
	}
	if target == sender {
		return
	}
	if err := target.Deliver(domain.Deliverable(message)); err != nil {
		r.log.Error("Failed to deliver private message",
			"recipient_id", recipientID, "message_id", message.ID, "error", err)
	}
}

// broadcast delivers to every registered handle except the sender's own.
// A handle that closes mid-iteration fails its own send; the loop keeps
// going so one bad peer never aborts delivery to the rest.
func (r *MessageRouter) broadcast(sender contract.Connection, message domain.Message) {
	outbound := domain.Deliverable(message)
	for _, target := range r.registry.BroadcastTargets(sender) {
		if target.State() != contract.StateOpen {
			continue
		}
		if err := target.Deliver(outbound); err != nil {
			r.log.Error("Failed to deliver broadcast message",
				"recipient_id", target.Identity().ID,
				"message_id", message.ID, "error", err)
		}
	}
}

func toDiskMessage(message domain.Message) repositories.DiskMessage {
	return repositories.DiskMessage{
		ID:             message.ID,
		SenderID:       message.Sender.ID,
		Sender:         message.Sender.DisplayName,
		Content:        message.Content,
		At:             message.CreatedAt,
		Scope:          string(message.Scope),
		ConversationID: message.ConversationID,
		Color:          message.Color,
		ImageURL:       message.ImageURL,
	}
}
