package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweetpotato0/travel-router/audit"
	auditstore "github.com/sweetpotato0/travel-router/audit/store"
	"github.com/sweetpotato0/travel-router/config"
	"github.com/sweetpotato0/travel-router/contrib/chunking/markdown"
	embedollama "github.com/sweetpotato0/travel-router/contrib/embedder/ollama"
	embedopenai "github.com/sweetpotato0/travel-router/contrib/embedder/openai"
	"github.com/sweetpotato0/travel-router/contrib/provider"
	"github.com/sweetpotato0/travel-router/contrib/tokenizer/tiktoken"
	"github.com/sweetpotato0/travel-router/contrib/vector/inmemory"
	"github.com/sweetpotato0/travel-router/contrib/vector/pg"
	"github.com/sweetpotato0/travel-router/contrib/vector/qdrant"
	"github.com/sweetpotato0/travel-router/guardrail"
	"github.com/sweetpotato0/travel-router/llm"
	"github.com/sweetpotato0/travel-router/orchestrator"
	"github.com/sweetpotato0/travel-router/pkg/retry"
	"github.com/sweetpotato0/travel-router/prompt"
	"github.com/sweetpotato0/travel-router/rag"
	"github.com/sweetpotato0/travel-router/rag/chunking"
	"github.com/sweetpotato0/travel-router/rag/document"
	"github.com/sweetpotato0/travel-router/rag/preprocess"
	"github.com/sweetpotato0/travel-router/router"
	"github.com/sweetpotato0/travel-router/thread"
	threadstore "github.com/sweetpotato0/travel-router/thread/store"
	"github.com/sweetpotato0/travel-router/tool"
	"github.com/sweetpotato0/travel-router/vector"
)

// app holds the wired services of one process.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	index        *vector.Index
	loader       *document.Loader
	threads      *thread.Manager
	recorder     *audit.Recorder
	orchestrator *orchestrator.Orchestrator
	closers      []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	wired := false
	defer func() {
		if !wired {
			a.close()
		}
	}()

	policy := retry.Default()
	policy.Timeout = cfg.LLM.CallTimeout
	policy.Logger = logger.With("component", "retry")

	gateway, err := newGateway(cfg, policy, logger)
	if err != nil {
		return nil, err
	}
	prompts := prompt.Default()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	engine, err := a.newEngine(ctx)
	if err != nil {
		return nil, err
	}
	a.index = vector.NewIndex(embedder, engine,
		vector.WithRetryPolicy(policy),
		vector.WithLogger(logger.With("component", "vector")),
	)

	a.loader = document.NewLoader(cfg.RAG.DocsDir, newChunker(cfg),
		document.WithConverter(".html", preprocess.HTMLToText),
		document.WithConverter(".htm", preprocess.HTMLToText),
		document.WithLoaderLogger(logger.With("component", "loader")),
	)

	threads, closeThreads, err := newThreads(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.threads = threads
	a.closers = append(a.closers, closeThreads)

	sink, err := newAuditSink(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.recorder = audit.NewRecorder(sink, logger.With("component", "audit"))
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.recorder.Close(ctx); err != nil {
			logger.Warn("close audit sinks", "error", err)
		}
	})

	input, err := guardrail.NewInputChain(guardrail.InputConfig{
		MaxChars:       cfg.Guardrails.MaxQueryChars,
		PIIRules:       cfg.Guardrails.PII,
		InjectionRules: cfg.Guardrails.Injection,
	})
	if err != nil {
		return nil, fmt.Errorf("input guardrails: %w", err)
	}

	rules, err := router.NewRuleEngine(cfg.Routing)
	if err != nil {
		return nil, fmt.Errorf("routing rules: %w", err)
	}
	rt, err := router.New(rules, gateway, router.WithPrompts(prompts), router.WithLogger(logger.With("component", "router")))
	if err != nil {
		return nil, err
	}

	pipeline, err := rag.New(a.index, gateway,
		rag.WithTopK(cfg.RAG.TopK),
		rag.WithPrompts(prompts),
		rag.WithLogger(logger.With("component", "rag")),
	)
	if err != nil {
		return nil, err
	}

	registry, err := newRegistry()
	if err != nil {
		return nil, err
	}
	dispatcher, err := tool.NewDispatcher(registry, gateway,
		tool.WithPrompts(prompts),
		tool.WithLogger(logger.With("component", "tool")),
	)
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Input:      input,
		Budget:     guardrail.TokenBudget{MaxWords: cfg.Guardrails.MaxQueryWords},
		Confidence: &guardrail.Confidence{Threshold: cfg.Guardrails.ConfidenceThreshold},
		Router:     rt,
		RAG:        pipeline,
		Tools:      dispatcher,
		Model:      gateway,
		Threads:    a.threads,
		Audit:      a.recorder,
		Prompts:    prompts,
		Logger:     logger.With("component", "orchestrator"),
	})
	if err != nil {
		return nil, err
	}
	a.orchestrator = orch
	wired = true
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// rebuild reindexes the corpus and persists the snapshot when a path is configured.
func (a *app) rebuild(ctx context.Context) (int, error) {
	n, err := a.index.Rebuild(ctx, a.loader.Load)
	if err != nil {
		return 0, err
	}
	if path := a.cfg.RAG.IndexPath; path != "" {
		if n == 0 {
			// an empty corpus leaves no snapshot to reload
			if err := vector.RemoveSnapshot(path); err != nil {
				return n, err
			}
		} else if err := a.index.Persist(path); err != nil {
			return n, fmt.Errorf("persist index: %w", err)
		}
	}
	a.logger.Info("policy index rebuilt", "chunks", n)
	return n, nil
}

// ensureIndex loads the persisted snapshot, building from the corpus when there is none.
// Failures leave the index empty; document questions then get the apology answer.
func (a *app) ensureIndex(ctx context.Context) {
	if path := a.cfg.RAG.IndexPath; path != "" {
		ok, err := a.index.Load(ctx, path)
		if err != nil {
			a.logger.Warn("load persisted index", "path", path, "error", err)
		}
		if ok {
			a.logger.Info("policy index loaded", "path", path, "chunks", a.index.Len())
			return
		}
	}
	if _, err := a.rebuild(ctx); err != nil {
		a.logger.Warn("initial index build failed", "error", err)
	}
}

func (a *app) watch(ctx context.Context) {
	w := document.NewWatcher(a.loader, a.cfg.RAG.WatchDebounce, func(ctx context.Context) error {
		_, err := a.rebuild(ctx)
		return err
	})
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		a.logger.Error("policy watcher stopped", "error", err)
	}
}

func newGateway(cfg *config.Config, policy retry.Policy, logger *slog.Logger) (*llm.Gateway, error) {
	factory := provider.NewFactory(provider.Credentials{
		OpenAIAPIKey:     cfg.LLM.OpenAIAPIKey,
		OpenAIBaseURL:    cfg.LLM.OpenAIBaseURL,
		AnthropicAPIKey:  cfg.LLM.AnthropicAPIKey,
		AnthropicBaseURL: cfg.LLM.AnthropicBaseURL,
		OllamaBaseURL:    cfg.LLM.OllamaBaseURL,
	})

	governance, err := config.LoadGovernance(cfg.LLM.GovernancePath, cfg.LLM.Backend, logger)
	if err != nil {
		return nil, err
	}

	var counter llm.TokenCounter = tiktoken.WordCounter{}
	if tk, err := tiktoken.New(cfg.LLM.TokenEncoding); err != nil {
		logger.Warn("tiktoken unavailable, estimating tokens by words", "encoding", cfg.LLM.TokenEncoding, "error", err)
	} else {
		counter = tk
	}

	return llm.NewGateway(cfg.LLM.Backend, factory,
		llm.WithGovernance(governance),
		llm.WithDefaults(llm.Defaults()),
		llm.WithRetryPolicy(policy),
		llm.WithTokenCounter(counter),
		llm.WithLogger(logger.With("component", "llm")),
	), nil
}

func newEmbedder(cfg *config.Config) (vector.Embedder, error) {
	e := cfg.Embedding
	switch e.Backend {
	case "openai":
		baseURL := e.BaseURL
		if baseURL == "" {
			baseURL = cfg.LLM.OpenAIBaseURL
		}
		return embedopenai.New(cfg.LLM.OpenAIAPIKey, baseURL, e.Model, e.Dimension)
	default:
		baseURL := e.BaseURL
		if baseURL == "" {
			baseURL = cfg.LLM.OllamaBaseURL
		}
		return embedollama.New(baseURL, e.Model, e.Dimension), nil
	}
}

func (a *app) newEngine(ctx context.Context) (vector.Engine, error) {
	v := a.cfg.Vector
	switch v.Engine {
	case "pgvector":
		e, err := pg.New(ctx, pg.Config{DSN: v.PGVector.DSN, TableName: v.PGVector.TableName})
		if err != nil {
			return nil, fmt.Errorf("pgvector: %w", err)
		}
		a.closers = append(a.closers, func() { _ = e.Close() })
		return e, nil
	case "qdrant":
		e, err := qdrant.New(qdrant.Config{URL: v.Qdrant.URL, APIKey: v.Qdrant.APIKey, CollectionPrefix: v.Qdrant.CollectionPrefix})
		if err != nil {
			return nil, fmt.Errorf("qdrant: %w", err)
		}
		a.closers = append(a.closers, func() { _ = e.Close() })
		return e, nil
	default:
		return inmemory.NewFlatL2(), nil
	}
}

func newThreads(cfg *config.Config, logger *slog.Logger) (*thread.Manager, func(), error) {
	var (
		store   thread.Store
		closeFn = func() {}
	)
	switch cfg.Threads.Store {
	case "redis":
		rs := threadstore.NewRedisStore(cfg.Threads.Redis)
		store = rs
		closeFn = func() { _ = rs.Close() }
	case "memory":
		store = threadstore.NewMemoryStore()
	default:
		fs, err := threadstore.NewFileStore(cfg.Threads.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("thread store: %w", err)
		}
		store = fs
	}
	return thread.NewManager(store, thread.WithLogger(logger.With("component", "thread"))), closeFn, nil
}

func newAuditSink(ctx context.Context, cfg *config.Config) (audit.Sink, error) {
	var sinks audit.Multi
	for _, name := range cfg.Audit.Sinks {
		switch name {
		case "jsonl":
			sinks = append(sinks, auditstore.NewJSONLSink(cfg.Audit.QueryLogPath, cfg.Audit.FeedbackPath))
		case "mongo":
			s, err := auditstore.NewMongoSink(ctx, cfg.Audit.Mongo)
			if err != nil {
				_ = sinks.Close(ctx)
				return nil, fmt.Errorf("mongo audit sink: %w", err)
			}
			sinks = append(sinks, s)
		case "postgres":
			s, err := auditstore.NewPostgresSink(ctx, cfg.Audit.PostgresDSN)
			if err != nil {
				_ = sinks.Close(ctx)
				return nil, fmt.Errorf("postgres audit sink: %w", err)
			}
			sinks = append(sinks, s)
		}
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}

func newChunker(cfg *config.Config) document.Chunker {
	words := chunking.NewWordChunker(chunking.WithChunkSize(cfg.RAG.ChunkSize), chunking.WithOverlap(cfg.RAG.ChunkOverlap))
	if cfg.RAG.Chunker == "markdown" {
		return markdown.New(markdown.WithWindow(words))
	}
	return words
}

func newRegistry() (*tool.Registry, error) {
	return tool.NewRegistry(tool.Builtin()...)
}
