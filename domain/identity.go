// Package domain contains core concepts of the chat relay.
// This file defines the authenticated Identity attached to a connection.
// No runtime, network, or UI logic should be added here.
package domain

// Identity is the authenticated user reference attached to a connection
// after a successful handshake. It is owned by the account system; the
// relay only reads it.
type Identity struct {
	ID          string
	DisplayName string
}
