// Package config loads the service configuration from .env, an optional YAML file and
// TRAVEL_ROUTER_* environment variables, in increasing order of precedence.
package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	auditstore "github.com/sweetpotato0/travel-router/audit/store"
	"github.com/sweetpotato0/travel-router/errors"
	"github.com/sweetpotato0/travel-router/pkg/rules"
	"github.com/sweetpotato0/travel-router/router"
	threadstore "github.com/sweetpotato0/travel-router/thread/store"
)

// EnvPrefix prefixes every configuration variable. A double underscore separates
// nesting levels (TRAVEL_ROUTER_THREADS__REDIS__ADDR sets threads.redis.addr); without
// one, the first underscore ends the section name (TRAVEL_ROUTER_RAG_TOP_K sets rag.top_k).
const EnvPrefix = "TRAVEL_ROUTER_"

// DefaultPath is the YAML file read when TRAVEL_ROUTER_CONFIG is unset.
const DefaultPath = "config.yaml"

type Config struct {
	Server     ServerConfig      `koanf:"server"`
	Log        LogConfig         `koanf:"log"`
	Telemetry  TelemetryConfig   `koanf:"telemetry"`
	LLM        LLMConfig         `koanf:"llm"`
	Guardrails GuardrailConfig   `koanf:"guardrails"`
	Routing    router.RuleConfig `koanf:"routing"`
	Embedding  EmbeddingConfig   `koanf:"embedding"`
	RAG        RAGConfig         `koanf:"rag"`
	Vector     VectorConfig      `koanf:"vector"`
	Threads    ThreadConfig      `koanf:"threads"`
	Audit      AuditConfig       `koanf:"audit"`
}

type ServerConfig struct {
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	MaxInFlight int           `koanf:"max_in_flight"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type TelemetryConfig struct {
	Disable     bool    `koanf:"disable"`
	Endpoint    string  `koanf:"endpoint"` // OTLP gRPC collector; empty writes spans to stderr
	Environment string  `koanf:"environment"`
	SampleRatio float64 `koanf:"sample_ratio"`
}

type LLMConfig struct {
	Backend          string        `koanf:"backend"` // local, openai, anthropic
	GovernancePath   string        `koanf:"governance_path"`
	CallTimeout      time.Duration `koanf:"call_timeout"`
	TokenEncoding    string        `koanf:"token_encoding"`
	OpenAIAPIKey     string        `koanf:"openai_api_key"`
	OpenAIBaseURL    string        `koanf:"openai_base_url"`
	AnthropicAPIKey  string        `koanf:"anthropic_api_key"`
	AnthropicBaseURL string        `koanf:"anthropic_base_url"`
	OllamaBaseURL    string        `koanf:"ollama_base_url"`
}

// GuardrailConfig sets the input limits. Nil rule lists keep the built-in banks.
type GuardrailConfig struct {
	ConfidenceThreshold float64      `koanf:"confidence_threshold"`
	MaxQueryWords       int          `koanf:"max_query_words"`
	MaxQueryChars       int          `koanf:"max_query_chars"`
	PII                 []rules.Rule `koanf:"pii"`
	Injection           []rules.Rule `koanf:"injection"`
}

type EmbeddingConfig struct {
	Backend   string `koanf:"backend"` // local, openai
	Model     string `koanf:"model"`
	Dimension int    `koanf:"dimension"`
	BaseURL   string `koanf:"base_url"`
}

type RAGConfig struct {
	TopK          int           `koanf:"top_k"`
	DocsDir       string        `koanf:"docs_dir"`
	IndexPath     string        `koanf:"index_path"`
	Chunker       string        `koanf:"chunker"` // word, markdown
	ChunkSize     int           `koanf:"chunk_size"`
	ChunkOverlap  int           `koanf:"chunk_overlap"`
	Watch         bool          `koanf:"watch"`
	WatchDebounce time.Duration `koanf:"watch_debounce"`
}

type VectorConfig struct {
	Engine   string         `koanf:"engine"` // memory, pgvector, qdrant
	PGVector PGVectorConfig `koanf:"pgvector"`
	Qdrant   QdrantConfig   `koanf:"qdrant"`
}

type PGVectorConfig struct {
	DSN       string `koanf:"dsn"`
	TableName string `koanf:"table_name"`
}

type QdrantConfig struct {
	URL              string `koanf:"url"`
	APIKey           string `koanf:"api_key"`
	CollectionPrefix string `koanf:"collection_prefix"`
}

type ThreadConfig struct {
	Store string                  `koanf:"store"` // file, redis, memory
	Dir   string                  `koanf:"dir"`
	Redis threadstore.RedisConfig `koanf:"redis"`
}

type AuditConfig struct {
	Sinks        []string               `koanf:"sinks"` // jsonl, mongo, postgres
	QueryLogPath string                 `koanf:"query_log_path"`
	FeedbackPath string                 `koanf:"feedback_path"`
	Mongo        auditstore.MongoConfig `koanf:"mongo"`
	PostgresDSN  string                 `koanf:"postgres_dsn"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() map[string]any {
	mongo := auditstore.DefaultMongoConfig()
	return map[string]any{
		"server.port":                     8000,
		"server.timeout":                  "120s",
		"server.max_in_flight":            32,
		"log.level":                       "info",
		"log.format":                      "json",
		"llm.backend":                     "local",
		"llm.governance_path":             "configs/model_config.json",
		"llm.call_timeout":                "30s",
		"llm.token_encoding":              "cl100k_base",
		"llm.ollama_base_url":             "http://localhost:11434",
		"guardrails.confidence_threshold": 0.85,
		"guardrails.max_query_words":      2000,
		"guardrails.max_query_chars":      10000,
		"embedding.backend":               "local",
		"embedding.dimension":             384,
		"rag.top_k":                       3,
		"rag.docs_dir":                    "data/policies",
		"rag.index_path":                  "data/index/policies.json",
		"rag.chunker":                     "word",
		"rag.chunk_size":                  300,
		"rag.chunk_overlap":               75,
		"rag.watch_debounce":              "2s",
		"vector.engine":                   "memory",
		"threads.store":                   "file",
		"threads.dir":                     threadstore.DefaultDir,
		"threads.redis.addr":              "localhost:6379",
		"threads.redis.prefix":            threadstore.DefaultRedisPrefix,
		"audit.sinks":                     []string{"jsonl"},
		"audit.query_log_path":            auditstore.DefaultQueryLogPath,
		"audit.feedback_path":             auditstore.DefaultFeedbackPath,
		"audit.mongo.uri":                 mongo.URI,
		"audit.mongo.database":            mongo.Database,
		"audit.mongo.query_collection":    mongo.QueryCollection,
		"audit.mongo.feedback_collection": mongo.FeedbackCollection,
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads .env (when present), the YAML file named by TRAVEL_ROUTER_CONFIG or
// DefaultPath, and the environment, then validates the result.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	path := os.Getenv(EnvPrefix + "CONFIG")
	if path == "" {
		path = DefaultPath
	}
	return LoadFile(path)
}

// LoadFile is Load without the .env step and with an explicit YAML path.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")
	for key, val := range Defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, err
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	cfg.resolveSecrets()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if strings.Contains(key, "__") {
		return strings.ReplaceAll(key, "__", ".")
	}
	return strings.Replace(key, "_", ".", 1)
}

// resolveSecrets expands ${VAR} references and falls back to the provider SDKs'
// conventional variables.
func (c *Config) resolveSecrets() {
	fields := []struct {
		val      *string
		fallback string
	}{
		{&c.LLM.OpenAIAPIKey, "OPENAI_API_KEY"},
		{&c.LLM.AnthropicAPIKey, "ANTHROPIC_API_KEY"},
		{&c.LLM.OllamaBaseURL, "OLLAMA_BASE_URL"},
		{&c.Vector.Qdrant.APIKey, "QDRANT_API_KEY"},
		{&c.Vector.PGVector.DSN, ""},
		{&c.Threads.Redis.Password, ""},
		{&c.Audit.Mongo.URI, ""},
		{&c.Audit.PostgresDSN, ""},
	}
	for _, f := range fields {
		*f.val = substituteEnvVars(*f.val)
		if *f.val == "" && f.fallback != "" {
			*f.val = os.Getenv(f.fallback)
		}
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
