package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"chat-relay/domain"
)

// REST is a thin client for the relay's HTTP surface, used to load
// history and the conversation list before the websocket takes over.
type REST struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewREST(baseURL, token string) REST {
	return REST{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type Conversation struct {
	ID            string     `json:"id"`
	Participants  []string   `json:"participants"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func (c REST) PublicHistory() ([]domain.OutboundMessage, error) {
	var messages []domain.OutboundMessage
	err := c.get("/api/messages", &messages)
	return messages, err
}

func (c REST) ConversationHistory(conversationID string) ([]domain.OutboundMessage, error) {
	var messages []domain.OutboundMessage
	err := c.get(fmt.Sprintf("/api/conversations/%s/messages", conversationID), &messages)
	return messages, err
}

func (c REST) Conversations() ([]Conversation, error) {
	var conversations []Conversation
	err := c.get("/api/conversations", &conversations)
	return conversations, err
}

func (c REST) CreateConversation(participantID string) (Conversation, error) {
	body, err := json.Marshal(map[string]string{"participantId": participantID})
	if err != nil {
		return Conversation{}, err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/conversations", bytes.NewReader(body))
	if err != nil {
		return Conversation{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var conversation Conversation
	err = c.do(req, &conversation)
	return conversation, err
}

func (c REST) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c REST) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
