package errors

import "fmt"

var (
	ErrMissingToken         = fmt.Errorf("missing token")
	ErrInvalidToken         = fmt.Errorf("invalid or expired token")
	ErrConversationNotFound = fmt.Errorf("conversation not found")
	ErrSelfConversation     = fmt.Errorf("a conversation needs two distinct participants")
	ErrConnectionClosed     = fmt.Errorf("connection closed")
	ErrSendBufferFull       = fmt.Errorf("send buffer full")
	ErrWorkerPanic          = fmt.Errorf("worker panic")
)
