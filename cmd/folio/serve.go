package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/folio/internal/api"
	"github.com/kalambet/folio/internal/cache"
	"github.com/kalambet/folio/internal/config"
	"github.com/kalambet/folio/internal/editor"
	"github.com/kalambet/folio/internal/engine"
	"github.com/kalambet/folio/internal/executor"
	"github.com/kalambet/folio/internal/planner"
	"github.com/kalambet/folio/internal/role"
	"github.com/kalambet/folio/internal/storage"
	"github.com/kalambet/folio/internal/worker"
	"github.com/kalambet/folio/internal/workspace"
)

const (
	workerPoll    = 500 * time.Millisecond
	shutdownGrace = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the folio server in the foreground",
	RunE: func(cmd *cobra.Command, _ []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func parseLogLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func engineConfig(cfg config.Config) engine.Config {
	return engine.Config{
		Provider:      cfg.Generator.Provider,
		Model:         cfg.Generator.Model,
		BaseURL:       cfg.Generator.BaseURL,
		OllamaBaseURL: cfg.Ollama.BaseURL,
		OpenRouterKey: cfg.Keys.OpenRouter,
		OpenAIKey:     cfg.Keys.OpenAI,
		GeminiKey:     cfg.Keys.Gemini,
	}
}

// buildEditor assembles the planner, the optional role detector and the
// optional Redis plan cache. The returned func releases the cache.
func buildEditor(ctx context.Context, cfg config.Config, backend *engine.Backend, exec *executor.Executor) (*editor.Editor, func(), error) {
	opts := []editor.Option{editor.WithLogger(slog.Default())}
	if cfg.Role.Enabled {
		opts = append(opts, editor.WithRoleDetector(role.NewDetector(backend.Completer, cfg.Role.Model)))
	}

	release := func() {}
	if cfg.Cache.RedisURL != "" {
		plans, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			return nil, nil, fmt.Errorf("opening plan cache: %w", err)
		}
		opts = append(opts, editor.WithCache(plans, cache.Key))
		release = func() {
			if err := plans.Close(); err != nil {
				slog.Warn("closing plan cache", "error", err)
			}
		}
	}

	gen := planner.New(backend.Completer,
		planner.WithTimeout(cfg.Generator.Timeout),
		planner.WithMaxBatchDepth(cfg.Executor.MaxBatchDepth),
	)
	return editor.New(gen, exec, opts...), release, nil
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "folio %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)})))

	token, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}

	pid := pidFileIn(cfg.Storage.DataDir)
	if err := refuseSecondInstance(cfg, pid); err != nil {
		return err
	}
	if err := pid.write(); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer pid.remove()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := engine.Detect(ctx, engineConfig(cfg))
	if err != nil {
		return fmt.Errorf("selecting model backend: %w", err)
	}
	if err := engine.EnsureReady(ctx, backend, os.Stderr, cfg.Role.Model); err != nil {
		return err
	}
	slog.Info("model backend ready", "provider", backend.Provider, "model", backend.Model)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	exec := executor.New(executor.WithMaxBatchDepth(cfg.Executor.MaxBatchDepth))
	ed, releaseCache, err := buildEditor(ctx, cfg, backend, exec)
	if err != nil {
		return err
	}
	defer releaseCache()
	ws := workspace.New(store, ed, workspace.WithExecutor(exec), workspace.WithLogger(slog.Default()))

	srv := &http.Server{
		Addr: fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		Handler: api.NewHandler(api.Deps{
			Workspace:     ws,
			Token:         token,
			MaxBatchDepth: cfg.Executor.MaxBatchDepth,
			Logger:        slog.Default(),
		}),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		worker.NewWorker(store, ws, workerPoll).Run(gctx)
		return nil
	})
	if withMCP {
		tools := api.NewMCPServer(api.MCPDeps{Workspace: ws, Version: version})
		g.Go(func() error {
			slog.Info("serving MCP on stdio")
			if err := server.NewStdioServer(tools).Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server stopped", "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}
