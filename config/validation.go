package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sweetpotato0/travel-router/errors"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for field %q: %s", e.Field, e.Message)
}

// Validator provides configuration validation utilities
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{
		errors: []ValidationError{},
	}
}

func (v *Validator) add(field, format string, args ...any) *Validator {
	v.errors = append(v.errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	return v
}

// RequireNonEmpty validates that a string field is not empty
func (v *Validator) RequireNonEmpty(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		return v.add(field, "value cannot be empty")
	}
	return v
}

// RequirePositive validates that an integer field is greater than 0
func (v *Validator) RequirePositive(field string, value int) *Validator {
	if value <= 0 {
		return v.add(field, "value must be positive, got %d", value)
	}
	return v
}

// RequirePositiveDuration validates that a duration is greater than 0
func (v *Validator) RequirePositiveDuration(field string, value time.Duration) *Validator {
	if value <= 0 {
		return v.add(field, "duration must be positive, got %s", value)
	}
	return v
}

// ValidateRange validates that an integer field is within a range [min, max]
func (v *Validator) ValidateRange(field string, value, min, max int) *Validator {
	if value < min || value > max {
		return v.add(field, "value must be between %d and %d, got %d", min, max, value)
	}
	return v
}

// ValidateFloatRange validates that a float field is within a range [min, max]
func (v *Validator) ValidateFloatRange(field string, value, min, max float64) *Validator {
	if value < min || value > max {
		return v.add(field, "value must be between %.2f and %.2f, got %.2f", min, max, value)
	}
	return v
}

// ValidatePort validates that a port number is valid (1-65535)
func (v *Validator) ValidatePort(field string, port int) *Validator {
	return v.ValidateRange(field, port, 1, 65535)
}

// ValidateDBNumber validates that a database number is valid (0-15 for Redis)
func (v *Validator) ValidateDBNumber(field string, db int) *Validator {
	return v.ValidateRange(field, db, 0, 15)
}

// ValidateOneOf validates that a string value is one of the allowed options
func (v *Validator) ValidateOneOf(field string, value string, allowed ...string) *Validator {
	for _, a := range allowed {
		if a == value {
			return v
		}
	}
	return v.add(field, "value must be one of %v, got %q", allowed, value)
}

// ValidateEachOneOf validates every element of a list against the allowed options
func (v *Validator) ValidateEachOneOf(field string, values []string, allowed ...string) *Validator {
	for i, value := range values {
		v.ValidateOneOf(fmt.Sprintf("%s[%d]", field, i), value, allowed...)
	}
	return v
}

// When runs fn only if cond holds; used for settings that depend on a selected backend.
func (v *Validator) When(cond bool, fn func(*Validator)) *Validator {
	if cond {
		fn(v)
	}
	return v
}

// HasErrors returns true if there are any validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Error returns a combined error or nil if no errors. The result wraps ErrInvalidInput.
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}

	var b strings.Builder
	b.WriteString("configuration validation failed:\n")
	for _, e := range v.errors {
		fmt.Fprintf(&b, "  - %s: %s\n", e.Field, e.Message)
	}
	return fmt.Errorf("%w: %s", errors.ErrInvalidInput, b.String())
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// Validate checks the whole configuration, including the settings of the selected
// backends only.
func (c *Config) Validate() error {
	v := NewValidator()

	v.ValidatePort("server.port", c.Server.Port)
	v.RequirePositiveDuration("server.timeout", c.Server.Timeout)
	v.RequirePositive("server.max_in_flight", c.Server.MaxInFlight)
	v.ValidateOneOf("log.format", c.Log.Format, "json", "text")
	v.ValidateOneOf("log.level", strings.ToLower(c.Log.Level), "debug", "info", "warn", "warning", "error")

	v.ValidateFloatRange("telemetry.sample_ratio", c.Telemetry.SampleRatio, 0, 1)

	v.ValidateOneOf("llm.backend", c.LLM.Backend, "local", "openai", "anthropic")
	v.RequirePositiveDuration("llm.call_timeout", c.LLM.CallTimeout)
	v.When(c.LLM.Backend == "openai", func(v *Validator) {
		v.RequireNonEmpty("llm.openai_api_key", c.LLM.OpenAIAPIKey)
	})
	v.When(c.LLM.Backend == "anthropic", func(v *Validator) {
		v.RequireNonEmpty("llm.anthropic_api_key", c.LLM.AnthropicAPIKey)
	})
	v.When(c.LLM.Backend == "local", func(v *Validator) {
		v.RequireNonEmpty("llm.ollama_base_url", c.LLM.OllamaBaseURL)
	})

	v.ValidateFloatRange("guardrails.confidence_threshold", c.Guardrails.ConfidenceThreshold, 0, 1)
	v.RequirePositive("guardrails.max_query_words", c.Guardrails.MaxQueryWords)
	v.RequirePositive("guardrails.max_query_chars", c.Guardrails.MaxQueryChars)

	v.ValidateOneOf("embedding.backend", c.Embedding.Backend, "local", "openai")
	v.ValidateRange("embedding.dimension", c.Embedding.Dimension, 1, 65535)
	v.When(c.Embedding.Backend == "openai", func(v *Validator) {
		v.RequireNonEmpty("llm.openai_api_key", c.LLM.OpenAIAPIKey)
	})

	v.RequirePositive("rag.top_k", c.RAG.TopK)
	v.RequireNonEmpty("rag.docs_dir", c.RAG.DocsDir)
	v.ValidateOneOf("rag.chunker", c.RAG.Chunker, "word", "markdown")
	v.RequirePositive("rag.chunk_size", c.RAG.ChunkSize)
	v.ValidateRange("rag.chunk_overlap", c.RAG.ChunkOverlap, 0, c.RAG.ChunkSize-1)
	v.When(c.RAG.Watch, func(v *Validator) {
		v.RequirePositiveDuration("rag.watch_debounce", c.RAG.WatchDebounce)
	})

	v.ValidateOneOf("vector.engine", c.Vector.Engine, "memory", "pgvector", "qdrant")
	v.When(c.Vector.Engine == "pgvector", func(v *Validator) {
		v.RequireNonEmpty("vector.pgvector.dsn", c.Vector.PGVector.DSN)
	})
	v.When(c.Vector.Engine == "qdrant", func(v *Validator) {
		v.RequireNonEmpty("vector.qdrant.url", c.Vector.Qdrant.URL)
	})

	v.ValidateOneOf("threads.store", c.Threads.Store, "file", "redis", "memory")
	v.When(c.Threads.Store == "file", func(v *Validator) {
		v.RequireNonEmpty("threads.dir", c.Threads.Dir)
	})
	v.When(c.Threads.Store == "redis", func(v *Validator) {
		v.RequireNonEmpty("threads.redis.addr", c.Threads.Redis.Addr)
		v.ValidateDBNumber("threads.redis.db", c.Threads.Redis.DB)
	})

	v.ValidateEachOneOf("audit.sinks", c.Audit.Sinks, "jsonl", "mongo", "postgres")
	for _, sink := range c.Audit.Sinks {
		switch sink {
		case "jsonl":
			v.RequireNonEmpty("audit.query_log_path", c.Audit.QueryLogPath)
			v.RequireNonEmpty("audit.feedback_path", c.Audit.FeedbackPath)
		case "mongo":
			v.RequireNonEmpty("audit.mongo.uri", c.Audit.Mongo.URI)
		case "postgres":
			v.RequireNonEmpty("audit.postgres_dsn", c.Audit.PostgresDSN)
		}
	}

	return v.Error()
}
