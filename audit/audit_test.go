package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweetpotato0/travel-router/errors"
	"github.com/sweetpotato0/travel-router/pkg/logging"
)

type memorySink struct {
	queries  []QueryLogEntry
	feedback []Feedback
	err      error
	closed   bool
}

func (m *memorySink) LogQuery(_ context.Context, e QueryLogEntry) error {
	if m.err != nil {
		return m.err
	}
	m.queries = append(m.queries, e)
	return nil
}

func (m *memorySink) SaveFeedback(_ context.Context, f Feedback) error {
	if m.err != nil {
		return m.err
	}
	m.feedback = append(m.feedback, f)
	return nil
}

func (m *memorySink) Close(context.Context) error {
	m.closed = true
	return m.err
}

func TestRecorderQueryFillsDefaults(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, logging.Discard())

	require.NoError(t, r.Query(context.Background(), QueryLogEntry{RequestID: "r1", RouteTaken: "SMALL_TALK"}))
	require.Len(t, sink.queries, 1)
	got := sink.queries[0]
	assert.False(t, got.Timestamp.IsZero())
	assert.NotNil(t, got.ToolsCalled)
	assert.NotNil(t, got.GuardrailsTriggered)
}

func TestRecorderFeedback(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, logging.Discard())
	ctx := context.Background()

	comment := "spot on"
	require.NoError(t, r.Feedback(ctx, Feedback{RequestID: "r1", Feedback: Positive, Comment: &comment}))
	require.Len(t, sink.feedback, 1)
	assert.False(t, sink.feedback[0].Timestamp.IsZero())

	err := r.Feedback(ctx, Feedback{RequestID: "r1", Feedback: "meh"})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	err = r.Feedback(ctx, Feedback{Feedback: Negative})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	assert.Len(t, sink.feedback, 1)
}

func TestMultiWritesEverySink(t *testing.T) {
	ok := &memorySink{}
	failing := &memorySink{err: errors.ErrInternal}
	m := Multi{failing, ok}
	ctx := context.Background()

	err := m.LogQuery(ctx, QueryLogEntry{RequestID: "r1"})
	assert.True(t, errors.Is(err, errors.ErrInternal))
	assert.Len(t, ok.queries, 1)

	err = m.SaveFeedback(ctx, Feedback{RequestID: "r1", Feedback: Positive})
	assert.True(t, errors.Is(err, errors.ErrInternal))
	assert.Len(t, ok.feedback, 1)

	assert.Error(t, m.Close(ctx))
	assert.True(t, ok.closed)
	assert.True(t, failing.closed)
}
