// Command blogforge runs the blog generation API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/smallnest/blogforge/agents"
	"github.com/smallnest/blogforge/agents/draft"
	"github.com/smallnest/blogforge/agents/ingest"
	"github.com/smallnest/blogforge/agents/outline"
	"github.com/smallnest/blogforge/agents/refine"
	"github.com/smallnest/blogforge/agents/social"
	"github.com/smallnest/blogforge/cache"
	"github.com/smallnest/blogforge/config"
	"github.com/smallnest/blogforge/llm"
	"github.com/smallnest/blogforge/log"
	"github.com/smallnest/blogforge/project"
	"github.com/smallnest/blogforge/rag"
	ragstore "github.com/smallnest/blogforge/rag/store"
	"github.com/smallnest/blogforge/server"
	"github.com/smallnest/blogforge/store"
	checkpg "github.com/smallnest/blogforge/store/postgres"
	checksqlite "github.com/smallnest/blogforge/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "blogforge:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := log.NewGologLogger(logLevel(cfg.LogLevel))
	log.SetDefaultLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()
	projects := project.NewManager(store)

	jobs := openCache(cfg.Redis)
	defer jobs.Close()

	model, err := llm.NewModel(llm.ProviderOptions{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		return err
	}
	tracked := llm.NewTracked(model, "pipeline",
		llm.WithRecorder(agents.CostRecorder(projects)),
		llm.WithAggregator(new(llm.Aggregator)),
		llm.WithLogger(logger))

	embedder, err := llm.NewOpenAIEmbedder(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.Pipeline.EmbeddingModel)
	if err != nil {
		return err
	}
	vectors := ragstore.NewInMemoryVectorStore(embedder)
	mapper := rag.NewContentMapper(rag.NewHyDERetriever(tracked, vectors, cfg.Pipeline.TopK))

	ingestAgent, err := ingest.New(vectors, projects, ingest.Options{
		ChunkSize:    cfg.Pipeline.ChunkSize,
		ChunkOverlap: cfg.Pipeline.ChunkOverlap,
	})
	if err != nil {
		return err
	}
	outlineAgent, err := outline.New(tracked, projects)
	if err != nil {
		return err
	}
	checkpoints, err := openCheckpoints(ctx, cfg.Store)
	if err != nil {
		return err
	}
	draftAgent, err := draft.New(tracked, mapper, projects, draft.Options{
		QualityThreshold: cfg.Pipeline.QualityThreshold,
		MaxIterations:    cfg.Pipeline.MaxIterations,
		Persona:          cfg.Pipeline.Persona,
		Checkpoints:      checkpoints,
	})
	if err != nil {
		return err
	}
	refineAgent, err := refine.NewWithPersona(tracked, projects, cfg.Pipeline.Persona)
	if err != nil {
		return err
	}

	srv := server.New(cfg.Server, projects, jobs, server.Agents{
		Ingest:  ingestAgent,
		Outline: outlineAgent,
		Draft:   draftAgent,
		Refine:  refineAgent,
		Social:  social.New(tracked, projects),
	}, logger)

	return srv.Run(ctx)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (project.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return project.NewPostgresStore(ctx, cfg.DSN)
	default:
		return project.NewSQLiteStore(cfg.DSN)
	}
}

// openCheckpoints puts graph checkpoints next to the project data: the
// same Postgres database, or a sibling SQLite file.
func openCheckpoints(ctx context.Context, cfg config.StoreConfig) (store.CheckpointStore, error) {
	switch cfg.Driver {
	case "postgres":
		return checkpg.NewPostgresCheckpointStore(ctx, checkpg.Options{ConnString: cfg.DSN})
	default:
		path := cfg.DSN
		if path != "" && path != ":memory:" {
			path += ".checkpoints"
		}
		return checksqlite.NewSqliteCheckpointStore(checksqlite.Options{Path: path})
	}
}

func openCache(cfg config.RedisConfig) cache.Cache {
	if cfg.Addr == "" {
		return cache.NewMemoryCache()
	}
	return cache.NewRedisCache(cache.RedisOptions{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func logLevel(level string) log.LogLevel {
	switch level {
	case "debug":
		return log.LogLevelDebug
	case "warn":
		return log.LogLevelWarn
	case "error":
		return log.LogLevelError
	default:
		return log.LogLevelInfo
	}
}
