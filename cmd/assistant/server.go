package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/rgitdev/ai-assistant/internal/api"
	"github.com/rgitdev/ai-assistant/internal/config"
	"github.com/rgitdev/ai-assistant/internal/creator"
	"github.com/rgitdev/ai-assistant/internal/extract"
	"github.com/rgitdev/ai-assistant/internal/indexing"
	"github.com/rgitdev/ai-assistant/internal/llm"
	"github.com/rgitdev/ai-assistant/internal/resolve"
	"github.com/rgitdev/ai-assistant/internal/schedule"
	"github.com/rgitdev/ai-assistant/internal/search"
	"github.com/rgitdev/ai-assistant/internal/storage"
	"github.com/rgitdev/ai-assistant/internal/vector"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the memory service (MCP over stdio, foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

// services is the wired object graph shared by the server and the
// one-shot commands.
type services struct {
	store     *storage.Store
	vectors   *vector.SQLiteStore
	provider  llm.Provider // nil when cfg.LLM.Provider is "none"
	embedder  *llm.ResilientEmbedder
	search    *search.Service
	extractor *extract.Extractor
	resolver  *resolve.Resolver
	creator   *creator.Creator
	indexer   *indexing.Indexer
}

func buildServices(cfg config.Config) (*services, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	var provider llm.Provider
	switch cfg.LLM.Provider {
	case "openai":
		provider = llm.NewOpenAIProvider(cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIBaseURL, cfg.LLM.ChatModel, cfg.LLM.EmbedModel)
	case "ollama":
		ollama := llm.NewOllamaProvider(cfg.LLM.OllamaBaseURL, cfg.LLM.ChatModel, cfg.LLM.EmbedModel)
		if !ollama.IsRunning(context.Background()) {
			slog.Warn("ollama is not reachable, embeddings fall back to deterministic vectors",
				"base_url", cfg.LLM.OllamaBaseURL)
		}
		provider = ollama
	case "none":
		slog.Info("no LLM provider configured, using deterministic fallback embeddings")
	}

	vectors := vector.NewSQLiteStore(store.DB())
	embedder := llm.NewResilientEmbedder(provider, cfg.Retrieval.FallbackDims)
	searchSvc := search.NewService(vectors, store, embedder)
	memCreator := creator.NewCreator(store)

	var chatter indexing.Chatter
	if provider != nil {
		chatter = provider
	}
	indexer := indexing.NewIndexer(store, store, vectors, embedder, memCreator, chatter)

	return &services{
		store:     store,
		vectors:   vectors,
		provider:  provider,
		embedder:  embedder,
		search:    searchSvc,
		extractor: extract.NewExtractor(provider),
		resolver:  resolve.NewResolver(searchSvc),
		creator:   memCreator,
		indexer:   indexer,
	}, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Background indexing jobs.
	scheduler := schedule.NewScheduler()
	jobs := svc.indexer.Jobs(indexing.JobSchedules{
		IndexMemories:      cfg.Schedule.IndexMemories,
		IndexConversations: cfg.Schedule.IndexConversations,
		Memorize:           cfg.Schedule.Memorize,
	})
	for _, job := range jobs {
		if err := scheduler.AddJob(job); err != nil {
			return fmt.Errorf("registering job %s: %w", job.Name, err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()
	slog.Info("scheduler started", "jobs", len(jobs))

	var chatter api.Chatter
	if svc.provider != nil {
		chatter = svc.provider
	}
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Searcher:  svc.search,
		Extractor: svc.extractor,
		Resolver:  svc.resolver,
		Creator:   svc.creator,
		Chatter:   chatter,
		Scheduler: scheduler,
	})

	slog.Info("MCP server started (stdio transport)", "data_dir", cfg.Storage.DataDir)
	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}

	fmt.Fprintln(os.Stderr, "shutting down...")
	return nil
}
