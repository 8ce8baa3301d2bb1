// Package thread keeps per-user conversation history so follow-up questions can be
// answered with the earlier turns in view.
package thread

import (
	"context"
	"maps"
	"time"

	"github.com/sweetpotato0/travel-router/message"
)

// DefaultUser owns threads created without a user id.
const DefaultUser = "default"

// Thread is an append-only conversation.
type Thread struct {
	ID        string            `json:"thread_id"`
	UserID    string            `json:"user_id"`
	CreatedAt time.Time         `json:"created_at"`
	Messages  []message.Message `json:"messages"`
	Metadata  map[string]any    `json:"metadata"`
}

// Clone returns a copy that shares no slices or maps with t.
func (t *Thread) Clone() *Thread {
	if t == nil {
		return nil
	}
	out := *t
	out.Messages = message.CloneMessages(t.Messages)
	out.Metadata = maps.Clone(t.Metadata)
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	return &out
}

// Store persists whole threads. Load returns an error wrapping errors.ErrNotFound for
// unknown ids.
type Store interface {
	Save(ctx context.Context, t *Thread) error
	Load(ctx context.Context, id string) (*Thread, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]string, error)
}
