package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/sweetpotato0/travel-router/audit"
)

// PostgresSink writes audit records to PostgreSQL.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink opens dsn, pings and creates the tables if needed.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	s := &PostgresSink{db: db}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *PostgresSink) createTables(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS query_logs (
		request_id VARCHAR(64) PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL,
		user_id VARCHAR(255),
		query_text TEXT NOT NULL,
		query_length INTEGER NOT NULL,
		route_taken VARCHAR(32) NOT NULL,
		route_confidence DOUBLE PRECISION NOT NULL,
		route_reasoning TEXT NOT NULL,
		tools_called JSONB NOT NULL,
		chunks_retrieved INTEGER NOT NULL,
		groundedness BOOLEAN,
		answer_length INTEGER NOT NULL,
		latency_ms DOUBLE PRECISION NOT NULL,
		total_tokens BIGINT NOT NULL,
		guardrails_triggered JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_logs_ts ON query_logs(ts);
	CREATE TABLE IF NOT EXISTS feedback (
		id BIGSERIAL PRIMARY KEY,
		request_id VARCHAR(64) NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		feedback VARCHAR(16) NOT NULL,
		comment TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_request_id ON feedback(request_id);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// LogQuery inserts the entry. A repeated request id replaces the earlier row.
func (s *PostgresSink) LogQuery(ctx context.Context, e audit.QueryLogEntry) error {
	tools, err := json.Marshal(nonNil(e.ToolsCalled))
	if err != nil {
		return fmt.Errorf("failed to marshal tools: %w", err)
	}
	guards, err := json.Marshal(nonNil(e.GuardrailsTriggered))
	if err != nil {
		return fmt.Errorf("failed to marshal guardrails: %w", err)
	}
	var userID sql.NullString
	if e.UserID != "" {
		userID = sql.NullString{String: e.UserID, Valid: true}
	}
	var grounded sql.NullBool
	if e.Groundedness != nil {
		grounded = sql.NullBool{Bool: *e.Groundedness, Valid: true}
	}

	query := `
	INSERT INTO query_logs (request_id, ts, user_id, query_text, query_length, route_taken,
		route_confidence, route_reasoning, tools_called, chunks_retrieved, groundedness,
		answer_length, latency_ms, total_tokens, guardrails_triggered)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (request_id) DO UPDATE SET
		ts = EXCLUDED.ts,
		route_taken = EXCLUDED.route_taken,
		route_confidence = EXCLUDED.route_confidence,
		route_reasoning = EXCLUDED.route_reasoning,
		tools_called = EXCLUDED.tools_called,
		chunks_retrieved = EXCLUDED.chunks_retrieved,
		groundedness = EXCLUDED.groundedness,
		answer_length = EXCLUDED.answer_length,
		latency_ms = EXCLUDED.latency_ms,
		total_tokens = EXCLUDED.total_tokens,
		guardrails_triggered = EXCLUDED.guardrails_triggered
	`
	_, err = s.db.ExecContext(ctx, query,
		e.RequestID, e.Timestamp, userID, e.QueryText, e.QueryLength, e.RouteTaken,
		e.RouteConfidence, e.RouteReasoning, tools, e.ChunksRetrieved, grounded,
		e.AnswerLength, e.LatencyMS, e.TotalTokens, guards,
	)
	if err != nil {
		return fmt.Errorf("failed to write query log to PostgreSQL: %w", err)
	}
	return nil
}

// SaveFeedback inserts a feedback row.
func (s *PostgresSink) SaveFeedback(ctx context.Context, f audit.Feedback) error {
	var comment sql.NullString
	if f.Comment != nil {
		comment = sql.NullString{String: *f.Comment, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (request_id, ts, feedback, comment) VALUES ($1, $2, $3, $4)`,
		f.RequestID, f.Timestamp, f.Feedback, comment,
	)
	if err != nil {
		return fmt.Errorf("failed to write feedback to PostgreSQL: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *PostgresSink) Close(context.Context) error {
	return s.db.Close()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
