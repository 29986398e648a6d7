// Package client owns the single outbound connection of a chat client:
// dialing, loss detection, and reconnection with bounded exponential
// backoff while a credential remains valid.
package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/gorilla/websocket"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnectScheduled
	StateAuthFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnectScheduled:
		return "RECONNECT_SCHEDULED"
	case StateAuthFailed:
		return "AUTH_FAILED"
	default:
		return "UNKNOWN"
	}
}

// Transport is the subset of *websocket.Conn the supervisor needs; tests
// drive the state machine with fakes behind it.
type Transport interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type Config struct {
	// URL is the websocket endpoint including the token query parameter.
	URL         string
	BackoffBase time.Duration
	BackoffCap  time.Duration
	MaxAttempts int
}

// BackoffDelay returns the delay before the attempt-th consecutive retry:
// min(base * 2^(attempt-1), cap).
func BackoffDelay(base, capDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		return base
	}
	delay := base << (attempt - 1)
	if delay <= 0 || delay > capDelay {
		return capDelay
	}
	return delay
}

// Supervisor is the per-client connection state machine:
//
//	DISCONNECTED -> CONNECTING -> CONNECTED -> (abnormal close)
//	             -> RECONNECT_SCHEDULED -> CONNECTING -> ...
//
// A close carrying the auth failure code transitions to the terminal
// AUTH_FAILED state instead of scheduling a retry; exhausting the attempt
// budget lands in terminal DISCONNECTED. At most one connection attempt
// is in flight at a time, and the reconnect timer is cancelable.
type Supervisor struct {
	mu         sync.Mutex
	cfg        Config
	dialer     Dialer
	log        *slog.Logger
	onMessage  func(domain.OutboundMessage)
	onState    func(state State, attempt int)
	state      State
	attempt    int
	conn       Transport
	retryTimer *time.Timer
	cancelDial context.CancelFunc

	// generation invalidates stale dial results, read loops, and timers
	// after an explicit Connect or Disconnect.
	generation int

	// schedule is time.AfterFunc, swappable in tests.
	schedule func(d time.Duration, f func()) *time.Timer
}

func NewSupervisor(cfg Config, log *slog.Logger) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		dialer:   wsDialer{},
		log:      log,
		state:    StateDisconnected,
		schedule: time.AfterFunc,
	}
}

// OnMessage registers the delivery callback for inbound frames.
func (s *Supervisor) OnMessage(fn func(domain.OutboundMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = fn
}

// OnStateChange registers the status callback. It is invoked with the
// supervisor lock held; it must not call back into the supervisor.
func (s *Supervisor) OnStateChange(fn func(state State, attempt int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = fn
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Connect starts (or restarts) the connection. A pending scheduled retry
// or in-flight attempt is canceled and replaced rather than run
// concurrently, and the attempt counter starts fresh.
func (s *Supervisor) Connect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidateLocked()
	s.attempt = 0
	s.startLocked()
}

// Disconnect is the explicit, terminal shutdown: it clears any pending
// reconnect timer before closing the live connection, so no reconnect
// can fire after intentional teardown.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidateLocked()
	s.setStateLocked(StateDisconnected)
}

// Send writes one message intent over the live connection. Sending is
// refused while not CONNECTED.
func (s *Supervisor) Send(in domain.InboundMessage) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected || conn == nil {
		return errors.ErrConnectionClosed
	}
	return conn.WriteJSON(in)
}

// invalidateLocked cancels whatever is pending: the retry timer, an
// in-flight dial, and the live connection.
func (s *Supervisor) invalidateLocked() {
	s.generation++
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *Supervisor) startLocked() {
	generation := s.generation
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelDial = cancel
	s.setStateLocked(StateConnecting)

	go func() {
		conn, err := s.dialer.Dial(ctx, s.cfg.URL)

		s.mu.Lock()
		defer s.mu.Unlock()
		if generation != s.generation {
			// Superseded by an explicit Connect or Disconnect.
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		s.cancelDial = nil

		if err != nil {
			s.log.Warn("Connection attempt failed", "error", err)
			s.scheduleRetryLocked()
			return
		}

		s.conn = conn
		s.attempt = 0
		s.setStateLocked(StateConnected)
		go s.readLoop(generation, conn)
	}()
}

// readLoop blocks on the transport until it fails, then routes the close
// through the state machine.
func (s *Supervisor) readLoop(generation int, conn Transport) {
	for {
		var msg domain.OutboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			s.handleClose(generation, err)
			return
		}

		s.mu.Lock()
		deliver := s.onMessage
		stale := generation != s.generation
		s.mu.Unlock()
		if stale {
			return
		}
		if deliver != nil {
			deliver(msg)
		}
	}
}

func (s *Supervisor) handleClose(generation int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return
	}
	s.conn = nil

	if closeErr, ok := err.(*websocket.CloseError); ok && closeErr.Code == contract.CloseAuthFailure {
		// The server refused the credential: reconnecting would loop
		// forever, so invalidate the session instead.
		s.log.Warn("Authentication rejected, not reconnecting", "reason", closeErr.Text)
		s.setStateLocked(StateAuthFailed)
		return
	}

	s.log.Warn("Connection lost", "error", err)
	s.scheduleRetryLocked()
}

func (s *Supervisor) scheduleRetryLocked() {
	s.attempt++
	if s.cfg.MaxAttempts > 0 && s.attempt > s.cfg.MaxAttempts {
		s.log.Error("Reconnect attempts exhausted", "attempts", s.cfg.MaxAttempts)
		s.setStateLocked(StateDisconnected)
		return
	}

	delay := BackoffDelay(s.cfg.BackoffBase, s.cfg.BackoffCap, s.attempt)
	generation := s.generation
	s.setStateLocked(StateReconnectScheduled)
	s.log.Info("Reconnect scheduled",
		"attempt", s.attempt, "max_attempts", s.cfg.MaxAttempts, "delay", delay)

	s.retryTimer = s.schedule(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if generation != s.generation || s.state != StateReconnectScheduled {
			return
		}
		s.retryTimer = nil
		s.startLocked()
	})
}

func (s *Supervisor) setStateLocked(state State) {
	s.state = state
	if s.onState != nil {
		s.onState(state, s.attempt)
	}
}
