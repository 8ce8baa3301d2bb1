package store

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweetpotato0/travel-router/audit"
)

func entry(id string) audit.QueryLogEntry {
	grounded := true
	return audit.QueryLogEntry{
		Timestamp:           time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC),
		RequestID:           id,
		UserID:              "alice",
		QueryText:           "What is the hotel cap in London?",
		QueryLength:         32,
		RouteTaken:          "FACT_FROM_DOCS",
		RouteConfidence:     0.91,
		RouteReasoning:      "policy question",
		ToolsCalled:         []string{},
		ChunksRetrieved:     3,
		Groundedness:        &grounded,
		AnswerLength:        120,
		LatencyMS:           812.4,
		TotalTokens:         640,
		GuardrailsTriggered: []string{},
	}
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestJSONLSink(t *testing.T) {
	dir := t.TempDir()
	queries := filepath.Join(dir, "logs", "queries.jsonl")
	feedback := filepath.Join(dir, "data", "feedback.jsonl")
	s := NewJSONLSink(queries, feedback)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []string{"r1", "r2", "r3", "r4"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, s.LogQuery(ctx, entry(id)))
		}(id)
	}
	wg.Wait()
	require.NoError(t, s.SaveFeedback(ctx, audit.Feedback{RequestID: "r1", Feedback: audit.Negative, Timestamp: time.Now()}))

	lines := readLines(t, queries)
	require.Len(t, lines, 4)
	assert.Equal(t, "FACT_FROM_DOCS", lines[0]["route_taken"])
	assert.Equal(t, true, lines[0]["groundedness"])
	assert.Equal(t, []any{}, lines[0]["tools_called"])

	fb := readLines(t, feedback)
	require.Len(t, fb, 1)
	assert.Equal(t, "negative", fb[0]["feedback"])
	assert.Nil(t, fb[0]["comment"])
	assert.NoError(t, s.Close(ctx))
}

// TestMongoSink requires a running MongoDB server.
// Set MONGODB_URI to run it.
func TestMongoSink(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set, skipping MongoDB sink tests")
	}
	ctx := context.Background()
	s, err := NewMongoSink(ctx, MongoConfig{URI: uri, Database: "travel_router_test"})
	if err != nil {
		t.Skipf("Failed to connect to MongoDB: %v", err)
	}
	defer s.Close(ctx)

	before, err := s.CountQueries(ctx)
	require.NoError(t, err)
	id := "mongo-" + time.Now().Format("150405.000000")
	require.NoError(t, s.LogQuery(ctx, entry(id)))
	require.NoError(t, s.LogQuery(ctx, entry(id)))
	after, err := s.CountQueries(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)
	require.NoError(t, s.SaveFeedback(ctx, audit.Feedback{RequestID: id, Feedback: audit.Positive, Timestamp: time.Now()}))
}

// TestPostgresSink requires a running PostgreSQL server.
// Set TRAVEL_ROUTER_TEST_PG_DSN to run it.
func TestPostgresSink(t *testing.T) {
	dsn := os.Getenv("TRAVEL_ROUTER_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TRAVEL_ROUTER_TEST_PG_DSN not set, skipping PostgreSQL sink tests")
	}
	ctx := context.Background()
	s, err := NewPostgresSink(ctx, dsn)
	if err != nil {
		t.Skipf("Failed to connect to PostgreSQL: %v", err)
	}
	defer s.Close(ctx)

	id := "pg-" + time.Now().Format("150405.000000")
	require.NoError(t, s.LogQuery(ctx, entry(id)))
	require.NoError(t, s.LogQuery(ctx, entry(id)))
	comment := "helpful"
	require.NoError(t, s.SaveFeedback(ctx, audit.Feedback{RequestID: id, Feedback: audit.Positive, Comment: &comment, Timestamp: time.Now()}))
}
