package thread

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sweetpotato0/travel-router/errors"
	"github.com/sweetpotato0/travel-router/message"
	"github.com/sweetpotato0/travel-router/pkg/logging"
)

// Manager creates threads and serializes writes per thread id.
type Manager struct {
	store  Store
	locks  lockSet
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger overrides the logger used by the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock sets the time source used for creation times and purging.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a manager over store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		now:    time.Now,
		logger: logging.WithComponent("thread"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Create starts an empty thread for userID and returns its id.
func (m *Manager) Create(ctx context.Context, userID string, metadata map[string]any) (string, error) {
	if userID == "" {
		userID = DefaultUser
	}
	t := &Thread{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: m.now().UTC(),
		Metadata:  metadata,
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	if err := m.store.Save(ctx, t); err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	m.logger.Info("thread created", "thread_id", t.ID, "user_id", userID)
	return t.ID, nil
}

// Append adds one message. Appending to an unknown thread logs a warning and does nothing.
func (m *Manager) Append(ctx context.Context, id string, role message.Role, content string) error {
	return m.append(ctx, id, message.NewMessage(role, content))
}

// AppendTurn adds a user message and the assistant reply under a single lock.
func (m *Manager) AppendTurn(ctx context.Context, id, query, answer string) error {
	return m.append(ctx, id,
		message.NewMessage(message.RoleUser, query),
		message.NewMessage(message.RoleAssistant, answer),
	)
}

func (m *Manager) append(ctx context.Context, id string, msgs ...message.Message) error {
	for _, msg := range msgs {
		if !msg.Role.Valid() {
			return fmt.Errorf("%w: message role %q", errors.ErrInvalidInput, msg.Role)
		}
	}

	unlock := m.locks.lock(id)
	defer unlock()

	t, err := m.store.Load(ctx, id)
	if errors.Is(err, errors.ErrNotFound) {
		m.logger.Warn("thread not found", "thread_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load thread %s: %w", id, err)
	}
	t.Messages = append(t.Messages, msgs...)
	if err := m.store.Save(ctx, t); err != nil {
		return fmt.Errorf("save thread %s: %w", id, err)
	}
	m.logger.Debug("messages appended", "thread_id", id, "count", len(msgs))
	return nil
}

// Messages returns the thread history. An unknown thread yields an empty history.
func (m *Manager) Messages(ctx context.Context, id string) ([]message.Message, error) {
	t, err := m.Get(ctx, id)
	if errors.Is(err, errors.ErrNotFound) {
		m.logger.Warn("thread not found", "thread_id", id)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t.Messages, nil
}

// Get returns a copy of the thread.
func (m *Manager) Get(ctx context.Context, id string) (*Thread, error) {
	t, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// Exists reports whether id names a stored thread.
func (m *Manager) Exists(ctx context.Context, id string) (bool, error) {
	_, err := m.store.Load(ctx, id)
	if errors.Is(err, errors.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Delete removes a whole thread. It reports false when the thread did not exist.
func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	ok, err := m.store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete thread %s: %w", id, err)
	}
	if !ok {
		m.logger.Warn("thread not found", "thread_id", id)
		return false, nil
	}
	m.logger.Info("thread deleted", "thread_id", id)
	return true, nil
}

// List returns thread ids ordered by creation time, restricted to userID when it is set.
func (m *Manager) List(ctx context.Context, userID string) ([]string, error) {
	threads, err := m.all(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(threads))
	for _, t := range threads {
		if userID == "" || t.UserID == userID {
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

// PurgeOlderThan deletes threads created more than age ago and returns how many went.
func (m *Manager) PurgeOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := m.now().Add(-age)
	threads, err := m.all(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, t := range threads {
		if !t.CreatedAt.Before(cutoff) {
			continue
		}
		ok, err := m.Delete(ctx, t.ID)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("purged old threads", "removed", removed, "older_than", age)
	}
	return removed, nil
}

func (m *Manager) all(ctx context.Context) ([]*Thread, error) {
	ids, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	threads := make([]*Thread, 0, len(ids))
	for _, id := range ids {
		t, err := m.store.Load(ctx, id)
		if errors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load thread %s: %w", id, err)
		}
		threads = append(threads, t)
	}
	sort.Slice(threads, func(i, j int) bool {
		if threads[i].CreatedAt.Equal(threads[j].CreatedAt) {
			return threads[i].ID < threads[j].ID
		}
		return threads[i].CreatedAt.Before(threads[j].CreatedAt)
	})
	return threads, nil
}
