// Command travelrouter answers travel-policy questions over HTTP, over MCP or from
// the command line.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sweetpotato0/travel-router/config"
	"github.com/sweetpotato0/travel-router/orchestrator"
	"github.com/sweetpotato0/travel-router/pkg/logging"
	"github.com/sweetpotato0/travel-router/pkg/telemetry"
	"github.com/sweetpotato0/travel-router/runner"
	"github.com/sweetpotato0/travel-router/server"
	"github.com/sweetpotato0/travel-router/tool/mcp"
)

const usage = `usage: travelrouter <command> [flags]

commands:
  serve                 run the HTTP API
  mcp                   expose the lookup tools over MCP on stdio
  ask [-user id] [q..]  answer queries given as arguments or one per stdin line
  index                 rebuild the policy index
  purge -older-than d   delete threads idle for longer than d
`

func main() {
	os.Exit(run0(os.Args[1:]))
}

func run0(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	// stdout belongs to the protocol or the answers outside of serve.
	var out io.Writer = os.Stderr
	if args[0] == "serve" {
		out = os.Stdout
	}
	logger := logging.New(out, cfg.Log.Level, cfg.Log.Format)
	logging.SetLogger(logger)

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "travel-router",
		ServiceVersion: server.Version,
		Environment:    cfg.Telemetry.Environment,
		Endpoint:       cfg.Telemetry.Endpoint,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		Disable:        cfg.Telemetry.Disable || args[0] != "serve",
		Logger:         logger,
	})
	if err != nil {
		logger.Error("telemetry init failed", "error", err)
		return 1
	}
	defer func() { _ = shutdown(context.Background()) }()

	if err := run(ctx, cfg, logger, args[0], args[1:]); err != nil {
		logger.Error("fatal error", "command", args[0], "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, cmd string, args []string) error {
	switch cmd {
	case "serve":
		return serve(ctx, cfg, logger)
	case "mcp":
		return serveMCP(ctx, cfg, logger)
	case "ask":
		return ask(ctx, cfg, logger, args)
	case "index":
		return rebuildIndex(ctx, cfg, logger)
	case "purge":
		return purge(ctx, cfg, logger, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	a.ensureIndex(ctx)
	if cfg.RAG.Watch {
		go a.watch(ctx)
	}

	srv := server.New(cfg.Server.Port, server.Deps{
		Runner:  runner.New(a.orchestrator, cfg.Server.MaxInFlight),
		Audit:   a.recorder,
		Threads: a.threads,
		Rebuild: a.rebuild,
	}, server.WithLogger(logger.With("component", "server")), server.WithTimeout(cfg.Server.Timeout))

	logger.Info("travel-router starting",
		"version", server.Version,
		"port", cfg.Server.Port,
		"llm_backend", cfg.LLM.Backend,
		"vector_engine", cfg.Vector.Engine,
		"thread_store", cfg.Threads.Store,
	)
	return srv.Start(ctx)
}

func serveMCP(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry, err := newRegistry()
	if err != nil {
		return err
	}
	return mcp.Serve(ctx, mcp.NewServer(registry, server.Version, logger.With("component", "mcp")))
}

func ask(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	user := fs.String("user", "", "user id recorded on new threads")
	if err := fs.Parse(args); err != nil {
		return err
	}

	queries := fs.Args()
	if len(queries) == 0 {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				queries = append(queries, line)
			}
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("read queries: %w", err)
		}
	}
	if len(queries) == 0 {
		return fmt.Errorf("no queries given")
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	a.ensureIndex(ctx)

	tasks := make([]*runner.Task, len(queries))
	for i, q := range queries {
		tasks[i] = &runner.Task{ID: fmt.Sprintf("q%d", i+1), Request: orchestrator.Request{Query: q, UserID: *user}}
	}
	pr := runner.NewParallelRunner(runner.New(a.orchestrator, cfg.Server.MaxInFlight))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, res := range pr.RunParallel(ctx, tasks) {
		if res.Error != nil {
			logger.Warn("query failed", "task", res.TaskID, "error", res.Error)
			if err := enc.Encode(map[string]any{"task": res.TaskID, "error": res.Error.Error()}); err != nil {
				return err
			}
			continue
		}
		if err := enc.Encode(res.Response); err != nil {
			return err
		}
	}
	return nil
}

func rebuildIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	n, err := a.rebuild(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d chunks\n", n)
	return nil
}

func purge(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	age := fs.Duration("older-than", 24*time.Hour, "idle age after which a thread is deleted")
	if err := fs.Parse(args); err != nil {
		return err
	}

	threads, closeStore, err := newThreads(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	n, err := threads.PurgeOlderThan(ctx, *age)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d threads\n", n)
	return nil
}
