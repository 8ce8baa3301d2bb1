package message

import (
	"fmt"
	"strings"
	"time"
)

// Role represents the author of a conversation message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the roles a thread accepts.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message represents a single turn in a conversation thread
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a new message with the given role and content, stamped in UTC
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// CloneMessages copies a slice of messages.
func CloneMessages(msgs []Message) []Message {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Transcript renders messages as "ROLE: content" lines under header.
// An empty slice renders as the empty string.
func Transcript(header string, msgs []Message) string {
	if len(msgs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(header)
	for _, msg := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(string(msg.Role)), msg.Content)
	}
	b.WriteString("\n")
	return b.String()
}
