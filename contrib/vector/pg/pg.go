package pg

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/sweetpotato0/travel-router/vector"
)

// Engine stores generations in one pgvector table keyed by (generation, id).
type Engine struct {
	db        *sql.DB
	tableName string
}

// Config holds pgvector configuration
type Config struct {
	DSN       string
	TableName string // Table name (default: policy_vectors)
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// New connects, enables the extension and creates the table if needed.
func New(ctx context.Context, config Config) (*Engine, error) {
	if config.TableName == "" {
		config.TableName = "policy_vectors"
	}
	if !identifier.MatchString(config.TableName) {
		return nil, fmt.Errorf("invalid table name %q", config.TableName)
	}

	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	e := &Engine{db: db, tableName: config.TableName}
	if err := e.setup(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup pgvector: %w", err)
	}
	return e, nil
}

// setup initializes pgvector and creates necessary tables
func (e *Engine) setup(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTableSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		generation TEXT NOT NULL,
		id INTEGER NOT NULL,
		embedding vector NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (generation, id)
	)`, e.tableName)

	if _, err := e.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

func (e *Engine) Name() string { return "pgvector" }

// Create inserts all vectors of a generation in one transaction.
func (e *Engine) Create(ctx context.Context, generation string, vectors [][]float32) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// a retried attempt may find rows from the failed one
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE generation = $1", e.tableName), generation); err != nil {
		return fmt.Errorf("failed to clear generation: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (generation, id, embedding) VALUES ($1, $2, $3::vector)", e.tableName))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for id, vec := range vectors {
		if _, err := stmt.ExecContext(ctx, generation, id, FormatVector(vec)); err != nil {
			return fmt.Errorf("failed to insert vector %d: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit generation: %w", err)
	}
	return nil
}

// Search returns the k nearest vectors by L2 distance.
func (e *Engine) Search(ctx context.Context, generation string, query []float32, k int) ([]vector.Hit, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query vector cannot be empty")
	}
	if k <= 0 {
		k = 3
	}

	q := fmt.Sprintf(`
	SELECT id, embedding <-> $2::vector AS distance
	FROM %s
	WHERE generation = $1
	ORDER BY embedding <-> $2::vector
	LIMIT $3
	`, e.tableName)

	rows, err := e.db.QueryContext(ctx, q, generation, FormatVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}
	defer rows.Close()

	hits := make([]vector.Hit, 0, k)
	for rows.Next() {
		var (
			id       int
			distance float64
		)
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		hits = append(hits, vector.Hit{ID: id, Distance: float32(distance)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hits: %w", err)
	}
	return hits, nil
}

// Drop deletes every row of a generation.
func (e *Engine) Drop(ctx context.Context, generation string) error {
	_, err := e.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE generation = $1", e.tableName), generation)
	if err != nil {
		return fmt.Errorf("failed to drop generation: %w", err)
	}
	return nil
}

// Close closes the database connection
func (e *Engine) Close() error {
	return e.db.Close()
}

// FormatVector renders a vector in pgvector's text format.
func FormatVector(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// ParseVector reads pgvector's text format.
func ParseVector(str string) ([]float32, error) {
	str = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(str), "["), "]")
	if str == "" {
		return nil, nil
	}
	parts := strings.Split(str, ",")
	vec := make([]float32, 0, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("failed to parse vector component at index %d: %q", i, part)
		}
		vec = append(vec, float32(v))
	}
	return vec, nil
}
