package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type stubHistory struct {
	public  []domain.Message
	private map[string][]domain.Message
}

func (s stubHistory) PublicHistory() ([]domain.Message, error) { return s.public, nil }

func (s stubHistory) ConversationHistory(requesterID, conversationID string) ([]domain.Message, error) {
	messages, ok := s.private[requesterID+"/"+conversationID]
	if !ok {
		return nil, errors.ErrConversationNotFound
	}
	return messages, nil
}

type stubDirectory struct {
	conversations map[string]domain.Conversation
	listed        []domain.Conversation
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

func (s stubDirectory) ListForUser(string) ([]domain.Conversation, error) { return s.listed, nil }

type apiFixture struct {
	api      *API
	verifier auth.Verifier
	uploads  string
}

func newAPIFixture(t *testing.T, history stubHistory, directory stubDirectory) apiFixture {
	t.Helper()
	verifier := auth.NewVerifier([]byte("test_secret_key_for_unit_tests_only"))
	uploads := t.TempDir()
	health := workers.NewHealthMonitoringWorker(slog.Default(), runtime.NewConnectionRegistry(), time.Minute)
	return apiFixture{
		api:      New(verifier, history, directory, health, uploads, 1<<20, slog.Default()),
		verifier: verifier,
		uploads:  uploads,
	}
}

func (f apiFixture) tokenFor(t *testing.T, identity domain.Identity) string {
	t.Helper()
	token, err := f.verifier.GenerateToken(identity, time.Hour)
	require.NoError(t, err)
	return token
}

func (f apiFixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	recorder := httptest.NewRecorder()
	f.api.Routes().ServeHTTP(recorder, req)
	return recorder
}

func TestAPI_Rejects_Missing_And_Invalid_Tokens(t *testing.T) {
	req := require.New(t)
	fixture := newAPIFixture(t, stubHistory{}, stubDirectory{})

	request := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	req.Equal(http.StatusUnauthorized, fixture.do(t, request).Code)

	request = httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	request.Header.Set("Authorization", "Bearer not-a-jwt")
	req.Equal(http.StatusUnauthorized, fixture.do(t, request).Code)
}

func TestAPI_Public_History_Computes_IsSelf_Per_Viewer(t *testing.T) {
	req := require.New(t)
	alice := domain.Identity{ID: "u1", DisplayName: "alice"}
	history := stubHistory{public: []domain.Message{
		{ID: uuid.New(), Content: "mine", Sender: alice, Scope: domain.ScopePublic},
		{ID: uuid.New(), Content: "theirs", Sender: domain.Identity{ID: "u2", DisplayName: "bob"}, Scope: domain.ScopePublic},
	}}
	fixture := newAPIFixture(t, history, stubDirectory{})

	request := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	request.Header.Set("Authorization", "Bearer "+fixture.tokenFor(t, alice))
	recorder := fixture.do(t, request)
	req.Equal(http.StatusOK, recorder.Code)

	var body []messageResponse
	req.NoError(json.Unmarshal(recorder.Body.Bytes(), &body))
	req.Len(body, 2)
	req.True(body[0].IsSelf)
	req.False(body[1].IsSelf)
	req.Equal("bob", body[1].Sender)
}

func TestAPI_Foreign_Conversation_History_Is_Not_Found(t *testing.T) {
	req := require.New(t)
	fixture := newAPIFixture(t, stubHistory{}, stubDirectory{})
	identity := domain.Identity{ID: "u1", DisplayName: "alice"}

	request := httptest.NewRequest(http.MethodGet, "/api/conversations/"+uuid.NewString()+"/messages", nil)
	request.Header.Set("Authorization", "Bearer "+fixture.tokenFor(t, identity))
	req.Equal(http.StatusNotFound, fixture.do(t, request).Code)
}

func TestAPI_PostConversation(t *testing.T) {
	req := require.New(t)
	fixture := newAPIFixture(t, stubHistory{}, stubDirectory{})
	identity := domain.Identity{ID: "u1", DisplayName: "alice"}
	token := fixture.tokenFor(t, identity)

	// Starting a conversation with yourself is refused
	request := httptest.NewRequest(http.MethodPost, "/api/conversations",
		bytes.NewBufferString(`{"participantId":"u1"}`))
	request.Header.Set("Authorization", "Bearer "+token)
	req.Equal(http.StatusBadRequest, fixture.do(t, request).Code)

	// A missing participant is refused
	request = httptest.NewRequest(http.MethodPost, "/api/conversations",
		bytes.NewBufferString(`{}`))
	request.Header.Set("Authorization", "Bearer "+token)
	req.Equal(http.StatusBadRequest, fixture.do(t, request).Code)

	// A valid pair creates the conversation
	request = httptest.NewRequest(http.MethodPost, "/api/conversations",
		bytes.NewBufferString(`{"participantId":"u2"}`))
	request.Header.Set("Authorization", "Bearer "+token)
	recorder := fixture.do(t, request)
	req.Equal(http.StatusOK, recorder.Code)

	var body conversationResponse
	req.NoError(json.Unmarshal(recorder.Body.Bytes(), &body))
	req.ElementsMatch([]string{"u1", "u2"}, body.Participants)
}

// A minimal PNG header; content sniffing only needs the magic bytes.
var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func multipartImage(t *testing.T, field string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, "picture.png")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestAPI_Upload_Accepts_Images_Only(t *testing.T) {
	req := require.New(t)
	fixture := newAPIFixture(t, stubHistory{}, stubDirectory{})
	token := fixture.tokenFor(t, domain.Identity{ID: "u1", DisplayName: "alice"})

	// A text payload dressed as an image is sniffed and refused
	body, contentType := multipartImage(t, "image", []byte("definitely not an image"))
	request := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Content-Type", contentType)
	req.Equal(http.StatusBadRequest, fixture.do(t, request).Code)

	// A real image lands on disk and gets a served URL
	body, contentType = multipartImage(t, "image", pngBytes)
	request = httptest.NewRequest(http.MethodPost, "/api/upload", body)
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Content-Type", contentType)
	recorder := fixture.do(t, request)
	req.Equal(http.StatusOK, recorder.Code)

	var response struct {
		Success  bool   `json:"success"`
		ImageURL string `json:"imageUrl"`
		Filename string `json:"filename"`
	}
	req.NoError(json.Unmarshal(recorder.Body.Bytes(), &response))
	req.True(response.Success)
	req.Equal("/uploads/"+response.Filename, response.ImageURL)

	stored, err := os.ReadFile(filepath.Join(fixture.uploads, response.Filename))
	req.NoError(err)
	req.Equal(pngBytes, stored)
}

func TestAPI_Health_Is_Public(t *testing.T) {
	req := require.New(t)
	fixture := newAPIFixture(t, stubHistory{}, stubDirectory{})

	request := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	recorder := fixture.do(t, request)
	req.Equal(http.StatusOK, recorder.Code)

	var stats workers.HealthStats
	req.NoError(json.Unmarshal(recorder.Body.Bytes(), &stats))
}
