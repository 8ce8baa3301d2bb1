package thread_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweetpotato0/travel-router/errors"
	"github.com/sweetpotato0/travel-router/message"
	"github.com/sweetpotato0/travel-router/pkg/logging"
	"github.com/sweetpotato0/travel-router/thread"
	"github.com/sweetpotato0/travel-router/thread/store"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newManager(c *clock) *thread.Manager {
	opts := []thread.Option{thread.WithLogger(logging.Discard())}
	if c != nil {
		opts = append(opts, thread.WithClock(c.Now))
	}
	return thread.NewManager(store.NewMemoryStore(), opts...)
}

func TestCreateAndAppend(t *testing.T) {
	ctx := context.Background()
	m := newManager(nil)

	id, err := m.Create(ctx, "", nil)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	th, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, thread.DefaultUser, th.UserID)
	assert.Empty(t, th.Messages)

	require.NoError(t, m.Append(ctx, id, message.RoleUser, "What is the per diem in Mumbai?"))
	require.NoError(t, m.AppendTurn(ctx, id, "And in Delhi?", "3800 INR per day."))

	msgs, err := m.Messages(ctx, id)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, message.RoleUser, msgs[0].Role)
	assert.Equal(t, "And in Delhi?", msgs[1].Content)
	assert.Equal(t, message.RoleAssistant, msgs[2].Role)
}

func TestUnknownThreadIsNoop(t *testing.T) {
	ctx := context.Background()
	m := newManager(nil)

	require.NoError(t, m.Append(ctx, "missing", message.RoleUser, "hi"))
	msgs, err := m.Messages(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = m.Get(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	ok, err := m.Delete(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	exists, err := m.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAppendRejectsUnknownRole(t *testing.T) {
	ctx := context.Background()
	m := newManager(nil)
	id, err := m.Create(ctx, "u1", nil)
	require.NoError(t, err)

	err = m.Append(ctx, id, message.Role("system"), "x")
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestConcurrentAppendsAreNotLost(t *testing.T) {
	ctx := context.Background()
	m := newManager(nil)
	id, err := m.Create(ctx, "u1", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, m.AppendTurn(ctx, id, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)))
		}(i)
	}
	wg.Wait()

	msgs, err := m.Messages(ctx, id)
	require.NoError(t, err)
	require.Len(t, msgs, 80)
	for i := 0; i < len(msgs); i += 2 {
		assert.Equal(t, message.RoleUser, msgs[i].Role)
		assert.Equal(t, message.RoleAssistant, msgs[i+1].Role)
		assert.Equal(t, "a"+msgs[i].Content[1:], msgs[i+1].Content)
	}
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := newManager(c)

	a, err := m.Create(ctx, "alice", nil)
	require.NoError(t, err)
	c.now = c.now.Add(time.Minute)
	b, err := m.Create(ctx, "bob", map[string]any{"channel": "web"})
	require.NoError(t, err)

	all, err := m.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, all)

	bobs, err := m.List(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{b}, bobs)

	th, err := m.Get(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "web", th.Metadata["channel"])

	ok, err := m.Delete(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)
	all, err = m.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{b}, all)
}

func TestPurgeOlderThan(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := newManager(c)

	old, err := m.Create(ctx, "u", nil)
	require.NoError(t, err)
	c.now = c.now.Add(30 * time.Hour)
	fresh, err := m.Create(ctx, "u", nil)
	require.NoError(t, err)

	removed, err := m.PurgeOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	ids, err := m.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{fresh}, ids)
	assert.NotContains(t, ids, old)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := newManager(nil)
	id, err := m.Create(ctx, "u", nil)
	require.NoError(t, err)
	require.NoError(t, m.Append(ctx, id, message.RoleUser, "hi"))

	th, err := m.Get(ctx, id)
	require.NoError(t, err)
	th.Messages[0].Content = "changed"

	msgs, err := m.Messages(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hi", msgs[0].Content)
}
