package runtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeMessages struct {
	mu     sync.Mutex
	stored []repositories.DiskMessage
	saved  chan repositories.DiskMessage
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{saved: make(chan repositories.DiskMessage, 16)}
}

func (f *fakeMessages) StoreMessage(m repositories.DiskMessage) error {
	f.mu.Lock()
	f.stored = append(f.stored, m)
	f.mu.Unlock()
	f.saved <- m
	return nil
}

func (f *fakeMessages) PublicMessages(int) ([]repositories.DiskMessage, error) {
	return nil, nil
}

func (f *fakeMessages) ConversationMessages(string, int) ([]repositories.DiskMessage, error) {
	return nil, nil
}

func (f *fakeMessages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored)
}

type fakeDirectory struct {
	conversations map[string]domain.Conversation
	summaries     chan string
}

func newFakeDirectory(conversations ...domain.Conversation) *fakeDirectory {
	d := &fakeDirectory{
		conversations: make(map[string]domain.Conversation),
		summaries:     make(chan string, 16),
	}
	for _, c := range conversations {
		d.conversations[c.ID.String()] = c
	}
	return d
}

func (d *fakeDirectory) FindOrCreate(userA, userB string) (domain.Conversation, error) {
	return domain.NewConversation(userA, userB, time.Now().UTC())
}

func (d *fakeDirectory) ResolveByID(id string) (domain.Conversation, error) {
	conversation, ok := d.conversations[id]
	if !ok {
		return domain.Conversation{}, errors.ErrConversationNotFound
	}
	return conversation, nil
}

func (d *fakeDirectory) IsParticipant(conversation domain.Conversation, identityID string) bool {
	return conversation.HasParticipant(identityID)
}

func (d *fakeDirectory) UpdateSummary(conversationID string, _ domain.Message) error {
	d.summaries <- conversationID
	return nil
}

func (d *fakeDirectory) ListForUser(string) ([]domain.Conversation, error) {
	return nil, nil
}

func rawFrame(t *testing.T, in domain.InboundMessage) []byte {
	t.Helper()
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	return raw
}

func waitSaved(t *testing.T, messages *fakeMessages) repositories.DiskMessage {
	t.Helper()
	select {
	case m := <-messages.saved:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("message was never persisted")
		return repositories.DiskMessage{}
	}
}

func TestRouter_Public_Broadcasts_To_Everyone_But_Sender(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	messages := newFakeMessages()
	directory := newFakeDirectory()
	router := NewMessageRouter(registry, directory, messages, nil, slog.Default())

	alice := newFakeConnection(uuid.NewString(), "alice")
	bob := newFakeConnection(uuid.NewString(), "bob")
	clara := newFakeConnection(uuid.NewString(), "clara")
	registry.Register(alice)
	registry.Register(bob)
	registry.Register(clara)

	router.Route(alice, rawFrame(t, domain.InboundMessage{Content: "hello room"}))

	// Every other connection received it, the sender did not
	req.Len(bob.delivered, 1)
	req.Len(clara.delivered, 1)
	req.Empty(alice.delivered)

	// isSelf is recipient-relative, sender is the authenticated identity
	req.False(bob.delivered[0].IsSelf)
	req.Equal("alice", bob.delivered[0].Sender)
	req.Equal(alice.identity.ID, bob.delivered[0].SenderID)

	stored := waitSaved(t, messages)
	req.Equal("hello room", stored.Content)
	req.Equal("public", stored.Scope)
}

func TestRouter_Never_Trusts_Client_Asserted_Sender(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	messages := newFakeMessages()
	router := NewMessageRouter(registry, newFakeDirectory(), messages, nil, slog.Default())

	alice := newFakeConnection(uuid.NewString(), "alice")
	bob := newFakeConnection(uuid.NewString(), "bob")
	registry.Register(alice)
	registry.Register(bob)

	// A hostile frame asserting another sender and isSelf
	raw := []byte(`{"content":"hi","sender":"mallory","userId":"u-666","isSelf":true}`)
	router.Route(alice, raw)

	req.Len(bob.delivered, 1)
	req.Equal("alice", bob.delivered[0].Sender)
	req.Equal(alice.identity.ID, bob.delivered[0].SenderID)
	req.False(bob.delivered[0].IsSelf)
}

func TestRouter_Broadcast_Send_Failure_Is_Isolated(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	messages := newFakeMessages()
	router := NewMessageRouter(registry, newFakeDirectory(), messages, nil, slog.Default())

	alice := newFakeConnection(uuid.NewString(), "alice")
	broken := newFakeConnection(uuid.NewString(), "bob")
	broken.sendErr = errors.ErrSendBufferFull
	closed := newFakeConnection(uuid.NewString(), "clara")
	closed.state = contract.StateClosed
	dave := newFakeConnection(uuid.NewString(), "dave")
	registry.Register(alice)
	registry.Register(broken)
	registry.Register(closed)
	registry.Register(dave)

	router.Route(alice, rawFrame(t, domain.InboundMessage{Content: "hello"}))

	// The failing and closed targets never abort delivery to the rest
	req.Len(dave.delivered, 1)
	req.Empty(closed.delivered)
}

func TestRouter_Private_Delivers_Only_To_Other_Participant(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	messages := newFakeMessages()
	alice := newFakeConnection(uuid.NewString(), "alice")
	bob := newFakeConnection(uuid.NewString(), "bob")
	clara := newFakeConnection(uuid.NewString(), "clara")

	conversation, err := domain.NewConversation(alice.identity.ID, bob.identity.ID, time.Now().UTC())
	req.NoError(err)
	directory := newFakeDirectory(conversation)
	router := NewMessageRouter(registry, directory, messages, nil, slog.Default())

	registry.Register(alice)
	registry.Register(bob)
	registry.Register(clara)

	router.Route(alice, rawFrame(t, domain.InboundMessage{
		Content:        "hi",
		ConversationID: conversation.ID.String(),
		MessageType:    "private",
	}))

	// Only bob gets it; nothing echoes back to alice, nothing leaks to clara
	req.Len(bob.delivered, 1)
	req.Empty(alice.delivered)
	req.Empty(clara.delivered)
	req.Equal("hi", bob.delivered[0].Content)
	req.False(bob.delivered[0].IsSelf)
	req.Equal(conversation.ID.String(), bob.delivered[0].ConversationID)

	// Persisted and summary refreshed
	stored := waitSaved(t, messages)
	req.Equal("private", stored.Scope)
	req.Equal(conversation.ID.String(), stored.ConversationID)
	select {
	case id := <-directory.summaries:
		req.Equal(conversation.ID.String(), id)
	case <-time.After(2 * time.Second):
		t.Fatal("conversation summary was never updated")
	}
}

func TestRouter_Private_Offline_Recipient_Still_Persists(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	messages := newFakeMessages()
	alice := newFakeConnection(uuid.NewString(), "alice")
	bobID := uuid.NewString()

	conversation, err := domain.NewConversation(alice.identity.ID, bobID, time.Now().UTC())
	req.NoError(err)
	router := NewMessageRouter(registry, newFakeDirectory(conversation), messages, nil, slog.Default())
	registry.Register(alice)

	// Bob is offline: no registered connection
	router.Route(alice, rawFrame(t, domain.InboundMessage{
		Content:        "are you there?",
		ConversationID: conversation.ID.String(),
		MessageType:    "private",
	}))

	stored := waitSaved(t, messages)
	req.Equal("are you there?", stored.Content)
	req.Empty(alice.delivered)
}

func TestRouter_Private_Forged_Conversation_Is_Silently_Dropped(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	messages := newFakeMessages()
	alice := newFakeConnection(uuid.NewString(), "alice")
	bob := newFakeConnection(uuid.NewString(), "bob")
	clara := newFakeConnection(uuid.NewString(), "clara")

	// A conversation alice does not belong to
	conversation, err := domain.NewConversation(bob.identity.ID, clara.identity.ID, time.Now().UTC())
	req.NoError(err)
	router := NewMessageRouter(registry, newFakeDirectory(conversation), messages, nil, slog.Default())
	registry.Register(alice)
	registry.Register(bob)
	registry.Register(clara)

	router.Route(alice, rawFrame(t, domain.InboundMessage{
		Content:        "let me in",
		ConversationID: conversation.ID.String(),
		MessageType:    "private",
	}))

	// Persisted but never delivered to anyone
	waitSaved(t, messages)
	req.Empty(bob.delivered)
	req.Empty(clara.delivered)
	req.Empty(alice.delivered)
}

func TestRouter_Unknown_Conversation_Is_Silently_Dropped(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	messages := newFakeMessages()
	alice := newFakeConnection(uuid.NewString(), "alice")
	router := NewMessageRouter(registry, newFakeDirectory(), messages, nil, slog.Default())
	registry.Register(alice)

	router.Route(alice, rawFrame(t, domain.InboundMessage{
		Content:        "hello?",
		ConversationID: uuid.NewString(),
		MessageType:    "private",
	}))

	waitSaved(t, messages)
	req.Empty(alice.delivered)
}

func TestRouter_Invalid_Frames_Are_Dropped_Without_Persistence(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	messages := newFakeMessages()
	alice := newFakeConnection(uuid.NewString(), "alice")
	bob := newFakeConnection(uuid.NewString(), "bob")
	router := NewMessageRouter(registry, newFakeDirectory(), messages, nil, slog.Default())
	registry.Register(alice)
	registry.Register(bob)

	router.Route(alice, []byte("{not json"))
	router.Route(alice, rawFrame(t, domain.InboundMessage{Content: "hi", Color: "blue"}))

	time.Sleep(100 * time.Millisecond)
	req.Zero(messages.count())
	req.Empty(bob.delivered)
}
