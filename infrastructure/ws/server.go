package ws

import (
	"log/slog"
	"net/http"
	"time"

	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/runtime"

	"github.com/gorilla/websocket"
)

// Handler upgrades HTTP requests to websocket sessions.
//
// The bearer credential rides the query string (?token=...). The
// handshake is authenticated before the connection is admitted to the
// registry; a missing or invalid credential gets close code 4001, which
// the client supervisor treats as terminal.
type Handler struct {
	verifier   auth.Verifier
	registry   *runtime.ConnectionRegistry
	router     *runtime.MessageRouter
	bufferSize int
	log        *slog.Logger
	upgrader   websocket.Upgrader
}

func NewHandler(verifier auth.Verifier, registry *runtime.ConnectionRegistry,
	router *runtime.MessageRouter, bufferSize int, log *slog.Logger) *Handler {
	return &Handler{
		verifier:   verifier,
		registry:   registry,
		router:     router,
		bufferSize: bufferSize,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browsers connect from the app origin; cross-origin policy is
			// enforced by the credential, not the Origin header.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	token := r.URL.Query().Get("token")
	identity, err := h.verifier.Verify(token)
	if err != nil {
		h.log.Warn("Websocket connection rejected", "error", err)
		h.refuse(sock, "Authentication required")
		return
	}

	conn := NewConnection(identity, sock, h.bufferSize, h.log)
	if superseded := h.registry.Register(conn); superseded != nil {
		// Last-writer-wins: the old handle is no longer addressable, so
		// close it instead of leaving the socket dangling.
		superseded.Close(contract.CloseSuperseded, "superseded by a newer connection")
	}

	h.log.Info("User connected", "user_id", identity.ID, "display_name", identity.DisplayName)

	go conn.WritePump()
	conn.ReadPump(h.router, h.registry)
}

// refuse closes a never-admitted socket with the auth failure code.
func (h *Handler) refuse(sock *websocket.Conn, reason string) {
	deadline := time.Now().Add(writeWait)
	message := websocket.FormatCloseMessage(contract.CloseAuthFailure, reason)
	_ = sock.WriteControl(websocket.CloseMessage, message, deadline)
	_ = sock.Close()
}
