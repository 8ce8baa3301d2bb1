// Package store provides audit.Sink backends.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sweetpotato0/travel-router/audit"
)

// Default JSON Lines locations.
const (
	DefaultQueryLogPath = "logs/queries.jsonl"
	DefaultFeedbackPath = "data/feedback.jsonl"
)

// JSONLSink appends one JSON object per line.
type JSONLSink struct {
	mu           sync.Mutex
	queryPath    string
	feedbackPath string
}

// NewJSONLSink creates a sink writing to the given files. Empty paths use the defaults.
func NewJSONLSink(queryPath, feedbackPath string) *JSONLSink {
	if queryPath == "" {
		queryPath = DefaultQueryLogPath
	}
	if feedbackPath == "" {
		feedbackPath = DefaultFeedbackPath
	}
	return &JSONLSink{queryPath: queryPath, feedbackPath: feedbackPath}
}

func (s *JSONLSink) LogQuery(_ context.Context, e audit.QueryLogEntry) error {
	return s.append(s.queryPath, e)
}

func (s *JSONLSink) SaveFeedback(_ context.Context, f audit.Feedback) error {
	return s.append(s.feedbackPath, f)
}

func (s *JSONLSink) Close(context.Context) error { return nil }

func (s *JSONLSink) append(path string, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append %s: %w", path, err)
	}
	return f.Close()
}
