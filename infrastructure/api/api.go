// Package api exposes the REST surface of the relay: history reads,
// conversation management, image upload, and health.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/runtime/workers"
	"chat-relay/services"

	"github.com/julienschmidt/httprouter"
	"github.com/samber/lo"
)

type API struct {
	verifier       auth.Verifier
	history        services.IHistoryService
	directory      services.IConversationDirectory
	health         *workers.HealthMonitoringWorker
	uploadsDir     string
	maxUploadBytes int64
	log            *slog.Logger
}

func New(verifier auth.Verifier, history services.IHistoryService,
	directory services.IConversationDirectory, health *workers.HealthMonitoringWorker,
	uploadsDir string, maxUploadBytes int64, log *slog.Logger) *API {
	return &API{
		verifier:       verifier,
		history:        history,
		directory:      directory,
		health:         health,
		uploadsDir:     uploadsDir,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

// Routes registers all REST handlers on a fresh router. The websocket
// endpoint is mounted separately by the caller.
func (a *API) Routes() *httprouter.Router {
	router := httprouter.New()
	router.GET("/api/messages", a.authenticated(a.getMessages))
	router.GET("/api/conversations", a.authenticated(a.getConversations))
	router.POST("/api/conversations", a.authenticated(a.postConversation))
	router.GET("/api/conversations/:id/messages", a.authenticated(a.getConversationMessages))
	router.POST("/api/upload", a.authenticated(a.upload))
	router.GET("/api/health", a.getHealth)
	router.ServeFiles("/uploads/*filepath", http.Dir(a.uploadsDir))
	return router
}

// messageResponse mirrors the websocket frame; isSelf is computed for the
// requesting identity, never read from storage.
type messageResponse struct {
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

type conversationResponse struct {
	ID            string     `json:"id"`
	Participants  []string   `json:"participants"`
	LastMessageID *string    `json:"lastMessageId,omitempty"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func (a *API) getMessages(w http.ResponseWriter, _ *http.Request, _ httprouter.Params, identity domain.Identity) {
	messages, err := a.history.PublicHistory()
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "Failed to fetch messages", err)
		return
	}
	a.respond(w, http.StatusOK, toMessageResponses(messages, identity))
}

func (a *API) getConversations(w http.ResponseWriter, _ *http.Request, _ httprouter.Params, identity domain.Identity) {
	conversations, err := a.directory.ListForUser(identity.ID)
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "Failed to fetch conversations", err)
		return
	}
	a.respond(w, http.StatusOK, lo.Map(conversations, func(item domain.Conversation, _ int) conversationResponse {
		return toConversationResponse(item)
	}))
}

func (a *API) postConversation(w http.ResponseWriter, r *http.Request, _ httprouter.Params, identity domain.Identity) {
	var body struct {
		ParticipantID string `json:"participantId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ParticipantID == "" {
		a.fail(w, http.StatusBadRequest, "participantId is required", err)
		return
	}
	if body.ParticipantID == identity.ID {
		a.fail(w, http.StatusBadRequest, "Cannot start a conversation with yourself", nil)
		return
	}
	conversation, err := a.directory.FindOrCreate(identity.ID, body.ParticipantID)
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "Failed to create conversation", err)
		return
	}
	a.respond(w, http.StatusOK, toConversationResponse(conversation))
}

func (a *API) getConversationMessages(w http.ResponseWriter, _ *http.Request, ps httprouter.Params, identity domain.Identity) {
	messages, err := a.history.ConversationHistory(identity.ID, ps.ByName("id"))
	if err == errors.ErrConversationNotFound {
		a.fail(w, http.StatusNotFound, "Conversation not found", nil)
		return
	}
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "Failed to fetch messages", err)
		return
	}
	a.respond(w, http.StatusOK, toMessageResponses(messages, identity))
}

func (a *API) getHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	a.respond(w, http.StatusOK, a.health.Snapshot())
}

func toMessageResponses(messages []domain.Message, viewer domain.Identity) []messageResponse {
	return lo.Map(messages, func(item domain.Message, _ int) messageResponse {
		return messageResponse{
			ID:             item.ID.String(),
			Content:        item.Content,
			Sender:         item.Sender.DisplayName,
			SenderID:       item.Sender.ID,
			Timestamp:      item.CreatedAt,
			IsSelf:         item.Sender.ID == viewer.ID,
			Color:          item.Color,
			ImageURL:       item.ImageURL,
			ConversationID: item.ConversationID,
			MessageType:    string(item.Scope),
		}
	})
}

func toConversationResponse(c domain.Conversation) conversationResponse {
	var lastMessageID *string
	if c.LastMessageID != nil {
		id := c.LastMessageID.String()
		lastMessageID = &id
	}
	return conversationResponse{
		ID:            c.ID.String(),
		Participants:  c.Participants[:],
		LastMessageID: lastMessageID,
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
	}
}

func (a *API) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.log.Error("Failed to encode response", "error", err)
	}
}

func (a *API) fail(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		a.log.Error(message, "error", err)
	}
	a.respond(w, status, map[string]string{"error": message})
}
