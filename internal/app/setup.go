package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/genai"

	"github.com/docket0/docket/db"
	"github.com/docket0/docket/internal/casestudy"
	"github.com/docket0/docket/internal/config"
	"github.com/docket0/docket/internal/llm"
	"github.com/docket0/docket/internal/observability"
	"github.com/docket0/docket/internal/pipeline"
	"github.com/docket0/docket/internal/rag"
	"github.com/docket0/docket/internal/session"
	"github.com/docket0/docket/internal/task"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}

	a := &App{Config: cfg}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				slog.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing first so Genkit's TracerProvider has the exporter before
	// any model call produces spans.
	a.otelCleanup = provideTracing(ctx, cfg)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder, embedOpts, err := provideEmbedder(g, cfg)
	if err != nil {
		return nil, err
	}

	logger := slog.Default()

	client, err := llm.New(g, cfg.FullModelName(), embedder, embedOpts, logger)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}
	a.LLM = client

	sessions, err := session.NewStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating session store: %w", err)
	}
	a.Sessions = sessions

	caseStudies, err := casestudy.NewStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating case study store: %w", err)
	}
	a.CaseStudies = caseStudies

	planner, err := rag.NewPlanner(client, logger)
	if err != nil {
		return nil, fmt.Errorf("creating planner: %w", err)
	}

	retriever, err := rag.NewRetriever(client, caseStudies, cfg.SimilarityThreshold, cfg.RetrievalLimit, logger)
	if err != nil {
		return nil, fmt.Errorf("creating retriever: %w", err)
	}

	synthesizer, err := rag.NewSynthesizer(client, logger)
	if err != nil {
		return nil, fmt.Errorf("creating synthesizer: %w", err)
	}

	summarizer, err := session.NewSummarizer(client, logger)
	if err != nil {
		return nil, fmt.Errorf("creating summarizer: %w", err)
	}

	tasks, err := task.NewRegistry(cfg.TaskWorkers, logger)
	if err != nil {
		return nil, fmt.Errorf("creating task registry: %w", err)
	}
	a.Tasks = tasks

	p, err := pipeline.New(pipeline.Deps{
		Sessions:    sessions,
		Planner:     planner,
		Retriever:   retriever,
		Synthesizer: synthesizer,
		Summarizer:  summarizer,
		Tasks:       tasks,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("assembling pipeline: %w", err)
	}
	a.Pipeline = p

	return a, nil
}

// provideTracing sets up OTLP trace export when enabled and returns the
// teardown. Must run before provideGenkit so the span processor is
// registered on the TracerProvider Genkit instruments against.
//
// Tracing failures never block startup; the app degrades to running
// without traces.
func provideTracing(ctx context.Context, cfg *config.Config) func() {
	if !cfg.Tracing.Enabled {
		return func() {}
	}

	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Environment: cfg.Tracing.Environment,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		slog.Warn("setting up tracing, continuing without", "error", err)
		return func() {}
	}

	//nolint:contextcheck // Independent context: shutdown runs during teardown when parent is canceled
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool creates a PostgreSQL connection pool and runs migrations.
// Pool is configured with sensible defaults for connection management.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports openai (default), gemini, and ollama providers.
// Call ordering in Setup ensures tracing is set up first.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		// Register embedder for RAG
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		slog.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)
		return g, nil

	case config.ProviderGemini, config.ProviderGoogleAI:
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		slog.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
		return g, nil

	default: // "openai"
		g := genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		slog.Info("initialized Genkit with openai provider", "model", cfg.ModelName)
		return g, nil
	}
}

// provideEmbedder looks up the embedder registered by the AI provider
// plugin, along with any provider-specific embed options.
// Each provider registers embedders differently:
//   - openai: auto-registered in Init(), looked up by model name
//   - gemini: GoogleAIEmbedder(g, modelName)
//   - ollama: registered in provideGenkit, keyed by server address
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) (ai.Embedder, any, error) {
	var embedder ai.Embedder
	var embedOpts any

	switch cfg.Provider {
	case config.ProviderOllama:
		embedder = ollama.Embedder(g, cfg.OllamaHost)

	case config.ProviderGemini, config.ProviderGoogleAI:
		embedder = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
		// Gemini embedders default to their native width; the corpus
		// tables declare vector(1536), so pin the output to match.
		dim := int32(casestudy.VectorDimension)
		embedOpts = &genai.EmbedContentConfig{OutputDimensionality: &dim}

	default: // "openai"
		embedder = genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	}

	if embedder == nil {
		return nil, nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}

	return embedder, embedOpts, nil
}
