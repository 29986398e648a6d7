package contract

import (
	"context"
	"reflect"

	"chat-relay/domain"
)

// Close codes shared by the server transport and the client supervisor.
// CloseAuthFailure must suppress client-side reconnection; every other
// code is treated as transient while a credential remains valid.
const (
	CloseAuthFailure = 4001
	CloseSuperseded  = 4002
)

type ConnectionState int32

const (
	StateOpen ConnectionState = iota
	StateClosing
	StateClosed
)

// Connection is one live bidirectional session through which messages are
// pushed to a single client. Exactly one connection per identity is
// reachable through the registry at any instant.
type Connection interface {
	Identity() domain.Identity
	State() ConnectionState
	// Deliver enqueues an outbound message without blocking the caller.
	Deliver(msg domain.OutboundMessage) error
	// Close signals the peer with a close code, then tears the session down.
	Close(code int, reason string)
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes, avoiding the need
// for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
