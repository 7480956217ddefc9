// Package app assembles the full ragent pipeline from configuration.
//
// App is the composition root: it loads configuration, initializes Genkit
// with the Google AI plugin, connects to PostgreSQL (running migrations on
// startup), and wires the analyzer, retriever, reflector, and orchestrator
// together. Library users who want to supply their own components should
// construct them directly instead of going through App.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/ragent-ai/ragent/db"
	"github.com/ragent-ai/ragent/internal/analyzer"
	"github.com/ragent-ai/ragent/internal/config"
	"github.com/ragent-ai/ragent/internal/embedding"
	"github.com/ragent-ai/ragent/internal/knowledge"
	"github.com/ragent-ai/ragent/internal/llm"
	"github.com/ragent-ai/ragent/internal/log"
	"github.com/ragent-ai/ragent/internal/memory"
	"github.com/ragent-ai/ragent/internal/observability"
	"github.com/ragent-ai/ragent/internal/orchestrator"
	"github.com/ragent-ai/ragent/internal/reflector"
	"github.com/ragent-ai/ragent/internal/retrieval"
)

// completionRPS throttles outbound completion calls. The Gemini free tier
// allows 10 requests per second; staying below that leaves headroom for
// embedding traffic on the same key.
const completionRPS = 5

// modelProvider prefixes unqualified model names for Genkit resolution.
const modelProvider = "googleai"

// App is the application container holding every initialized component.
type App struct {
	Config       *config.Config
	Logger       log.Logger
	Genkit       *genkit.Genkit
	Embedder     ai.Embedder
	DBPool       *pgxpool.Pool
	Store        *knowledge.PGStore
	LLM          llm.Client
	Memory       *memory.Registry
	Orchestrator *orchestrator.Orchestrator

	tracingShutdown func(context.Context) error
}

// New loads configuration and assembles a ready-to-use App.
//
// Initialization order matters: tracing first so Genkit picks up the global
// tracer provider, then Genkit, then the database (migrations run before the
// pool opens), then the pipeline components. On any failure the resources
// opened so far are released before returning.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig assembles an App from an already validated configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	logger := log.New(log.Config{
		Level: parseLogLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	tracingShutdown := func(context.Context) error { return nil }
	if cfg.Tracing.Enabled {
		shutdown, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.Tracing.ServiceName,
			Environment: cfg.Tracing.Environment,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("setting up tracing: %w", err)
		}
		tracingShutdown = shutdown
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("failed to initialize Genkit")
	}

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not available", cfg.EmbedderModel)
	}

	pool, err := openDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := knowledge.NewPGStore(pool, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating knowledge store: %w", err)
	}

	client, err := llm.NewGenkitClient(llm.GenkitConfig{
		Genkit:             g,
		ModelName:          qualifyModel(cfg.ModelName),
		Logger:             logger,
		RateLimiter:        rate.NewLimiter(rate.Limit(completionRPS), completionRPS),
		DefaultTemperature: float64(cfg.Temperature),
		DefaultMaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating completion client: %w", err)
	}

	orch, mem, err := buildPipeline(cfg, logger, store, embedder, client)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &App{
		Config:          cfg,
		Logger:          logger,
		Genkit:          g,
		Embedder:        embedder,
		DBPool:          pool,
		Store:           store,
		LLM:             client,
		Memory:          mem,
		Orchestrator:    orch,
		tracingShutdown: tracingShutdown,
	}, nil
}

// Close releases resources in reverse initialization order: the database
// pool first, then the tracing exporter so shutdown spans still flush.
func (a *App) Close(ctx context.Context) error {
	a.Logger.Info("shutting down")

	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database pool closed")
	}

	if a.tracingShutdown != nil {
		if err := a.tracingShutdown(ctx); err != nil {
			return fmt.Errorf("flushing traces: %w", err)
		}
	}
	return nil
}

// buildPipeline wires the model-facing components into an orchestrator.
// Split out from NewWithConfig so tests can assemble the pipeline over mock
// services without a database or a live provider.
func buildPipeline(
	cfg *config.Config,
	logger log.Logger,
	store retrieval.Store,
	embedder ai.Embedder,
	client llm.Client,
) (*orchestrator.Orchestrator, *memory.Registry, error) {
	gateway, err := embedding.New(embedding.Config{
		Embedder:  embedder,
		Logger:    logger,
		Dimension: cfg.EmbedderDimension,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedding gateway: %w", err)
	}

	rerankClient := client
	if !cfg.UseReranking {
		rerankClient = nil
	}
	retriever, err := retrieval.New(retrieval.Config{
		Store:   store,
		Gateway: gateway,
		LLM:     rerankClient,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating retriever: %w", err)
	}

	qa, err := analyzer.New(analyzer.Config{LLM: client, Logger: logger})
	if err != nil {
		return nil, nil, fmt.Errorf("creating analyzer: %w", err)
	}

	refl, err := reflector.New(reflector.Config{LLM: client, Logger: logger})
	if err != nil {
		return nil, nil, fmt.Errorf("creating reflector: %w", err)
	}

	mem := memory.NewRegistry(cfg.MaxMemoryEntries)

	orch, err := orchestrator.New(orchestrator.Config{
		Analyzer:      qa,
		Retriever:     retriever,
		Reflector:     refl,
		LLM:           client,
		Memory:        mem,
		Logger:        logger,
		MaxIterations: cfg.MaxIterations,
		MinConfidence: cfg.MinConfidence,
		Retrieval: retrieval.Options{
			Limit:        cfg.RetrievalLimit,
			MinScore:     cfg.RetrievalMinScore,
			UseReranking: cfg.UseReranking,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating orchestrator: %w", err)
	}
	return orch, mem, nil
}

// openDBPool runs migrations, then opens a connection pool and verifies
// connectivity.
func openDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
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

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// qualifyModel prefixes the provider when the configured name omits it.
func qualifyModel(name string) string {
	if strings.Contains(name, "/") {
		return name
	}
	return modelProvider + "/" + name
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
