package domain

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// InboundMessage is the JSON frame a connected client sends.
// Any sender-related field a client could assert is absent on purpose:
// the router tags the message with the authenticated identity.
type InboundMessage struct {
	Content        string `json:"content" validate:"required_without=ImageURL,max=4000"`
	Timestamp      string `json:"timestamp,omitempty"`
	Color          string `json:"color,omitempty" validate:"omitempty,hexcolor"`
	ImageURL       string `json:"imageUrl,omitempty" validate:"omitempty,uri"`
	ConversationID string `json:"conversationId,omitempty" validate:"omitempty,uuid"`
	MessageType    string `json:"messageType,omitempty" validate:"omitempty,oneof=public private"`
}

func ValidateInbound(in InboundMessage) error {
	return validate.Struct(in)
}

// IsPrivate classifies scope: private needs both the explicit marker and
// a conversation id, anything else is public room traffic.
func (in InboundMessage) IsPrivate() bool {
	return in.ConversationID != "" && in.MessageType == string(ScopePrivate)
}

// ToMessage tags the payload with the authenticated sender.
// The client timestamp is kept when parseable so optimistic rendering and
// the durable record agree; otherwise server time wins.
func (in InboundMessage) ToMessage(sender Identity, now time.Time) Message {
	at := now
	if parsed, err := time.Parse(time.RFC3339Nano, in.Timestamp); err == nil {
		at = parsed.UTC()
	}
	scope := ScopePublic
	conversationID := ""
	if in.IsPrivate() {
		scope = ScopePrivate
		conversationID = in.ConversationID
	}
	return Message{
		ID:             uuid.New(),
		Content:        in.Content,
		Sender:         sender,
		CreatedAt:      at,
		Scope:          scope,
		ConversationID: conversationID,
		Color:          in.Color,
		ImageURL:       in.ImageURL,
	}
}

// OutboundMessage is the JSON frame pushed to a recipient.
// IsSelf is recipient-relative and always false on the wire: a sender
// renders its own copy locally and never receives an echo.
type OutboundMessage struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	Sender         string    `json:"sender"`
	SenderID       string    `json:"userId"`
	Timestamp      time.Time `json:"timestamp"`
	IsSelf         bool      `json:"isSelf"`
	Color          string    `json:"color,omitempty"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	MessageType    string    `json:"messageType"`
}

func Deliverable(m Message) OutboundMessage {
	return OutboundMessage{
		ID:             m.ID.String(),
		Content:        m.Content,
		Sender:         m.Sender.DisplayName,
		SenderID:       m.Sender.ID,
		Timestamp:      m.CreatedAt,
		IsSelf:         false,
		Color:          m.Color,
		ImageURL:       m.ImageURL,
		ConversationID: m.ConversationID,
		MessageType:    string(m.Scope),
	}
}
