package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatRole represents the author of a chat message
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// Valid reports whether the role is one of the known roles
func (r ChatRole) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// DefaultChatHistoryLimit is how many of the most recent messages are read back
const DefaultChatHistoryLimit = 50

// ChatMessage represents one entry of the append-only chat collection
type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatTurn is a role/content pair handed to the chat flow as history
type ChatTurn struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}
