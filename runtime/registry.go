// Package runtime routes messages between live connections.
// It orchestrates delivery without containing domain rules.
package runtime

import (
	"sync"

	"chat-relay/contract"
)

// ConnectionRegistry maps each identity to its current connection handle
// and keeps the set of all live handles for public-room broadcast.
//
// Register is last-writer-wins: the requirement is one addressable
// endpoint per identity for delivery purposes, not at most one physical
// connection. Badger-style sharding is unnecessary here; a single RWMutex
// guards both maps because every operation is a point update.
type ConnectionRegistry struct {
	mu         sync.RWMutex
	byIdentity map[string]contract.Connection
	all        map[contract.Connection]struct{}
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		byIdentity: make(map[string]contract.Connection),
		all:        make(map[contract.Connection]struct{}),
	}
}

// Register admits a connection and returns the handle it superseded for
// the same identity, if any. The registry never closes the old handle
// itself; the transport layer decides what to do with it.
func (r *ConnectionRegistry) Register(conn contract.Connection) contract.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.byIdentity[conn.Identity().ID]
	r.byIdentity[conn.Identity().ID] = conn
	r.all[conn] = struct{}{}
	if previous == conn {
		return nil
	}
	return previous
}

// Unregister removes the handle from the broadcast set. The identity
// mapping is only cleared when the handle is still the current one, so a
// late unregister of a superseded connection cannot evict its successor.
func (r *ConnectionRegistry) Unregister(conn contract.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.all, conn)
	if current, ok := r.byIdentity[conn.Identity().ID]; ok && current == conn {
		delete(r.byIdentity, conn.Identity().ID)
	}
}

// Lookup resolves the current handle for an identity, for private delivery.
func (r *ConnectionRegistry) Lookup(identityID string) (contract.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.byIdentity[identityID]
	return conn, ok
}

// BroadcastTargets returns every registered handle except the given one.
func (r *ConnectionRegistry) BroadcastTargets(excluding contract.Connection) []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make([]contract.Connection, 0, len(r.all))
	for conn := range r.all {
		if conn != excluding {
			targets = append(targets, conn)
		}
	}
	return targets
}

func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}
