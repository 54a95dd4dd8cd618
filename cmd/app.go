package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammad-safakhou/aeoengine/config"
	core "github.com/mohammad-safakhou/aeoengine/internal/agent/core"
	"github.com/mohammad-safakhou/aeoengine/internal/agent/telemetry"
	"github.com/mohammad-safakhou/aeoengine/internal/knowledge"
	"github.com/mohammad-safakhou/aeoengine/internal/logging"
	"github.com/mohammad-safakhou/aeoengine/internal/runtime"
	"github.com/mohammad-safakhou/aeoengine/internal/server"
	"github.com/mohammad-safakhou/aeoengine/internal/store"
	"github.com/mohammad-safakhou/aeoengine/tools/research"
	"github.com/mohammad-safakhou/aeoengine/tools/web_fetch"
	"github.com/mohammad-safakhou/aeoengine/tools/web_search"
	"github.com/redis/go-redis/v9"
)

// app holds the process-lifetime collaborators. Everything is built once here
// and passed down by reference.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	tracing   *runtime.Telemetry
	telemetry *telemetry.Telemetry
	records   *store.Store
	knowledge *knowledge.Store
	orch      *core.Orchestrator
	service   *server.ContentService

	knowledgeDB *sql.DB
	rdb         *redis.Client
}

func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.General.LogLevel, cfg.General.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	ready := false
	defer func() {
		if !ready {
			a.Close(context.WithoutCancel(ctx))
		}
	}()

	var err error
	a.tracing, _, err = runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{ServiceVersion: version})
	if err != nil {
		return nil, err
	}
	a.telemetry = telemetry.NewTelemetry(nil)

	dsn, err := runtime.BuildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	pingTimeout := cfg.Storage.Postgres.Timeout
	if pingTimeout <= 0 {
		pingTimeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	a.records, err = store.NewWithDSN(pingCtx, dsn)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("records database: %w", err)
	}

	llm, err := core.NewLLMProvider(cfg.LLM)
	if err != nil {
		return nil, err
	}

	a.rdb, err = runtime.OpenRedis(ctx, cfg.Storage.Redis)
	if err != nil {
		return nil, err
	}
	var locker knowledge.Locker
	if a.rdb != nil {
		locker = knowledge.RedisLocker{Rdb: a.rdb}
	}

	kdsn, err := runtime.KnowledgeDSN(cfg)
	if err != nil {
		return nil, err
	}
	if kdsn == dsn {
		a.knowledgeDB = a.records.DB
	} else if a.knowledgeDB, err = sql.Open("postgres", kdsn); err != nil {
		return nil, fmt.Errorf("knowledge database: %w", err)
	}
	a.knowledge, err = knowledge.New(ctx, knowledge.Options{
		APIKey:         cfg.LLM.APIKey,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Dimensions:     cfg.Knowledge.EmbeddingDimensions,
		CorpusDir:      cfg.Knowledge.CorpusDir,
		DB:             a.knowledgeDB,
		Embedder:       llm,
		Locker:         locker,
		Telemetry:      a.telemetry,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	deps := core.Dependencies{
		LLM:       llm,
		Knowledge: a.knowledge,
		Telemetry: a.telemetry,
		Logger:    logger,
	}
	if web, err := buildResearch(cfg.Sources.WebSearch, logger); err != nil {
		return nil, err
	} else if web != nil {
		deps.Web = web
	}
	a.orch, err = core.NewOrchestrator(cfg, deps)
	if err != nil {
		return nil, err
	}
	a.service = server.NewContentService(a.records, a.orch, logger)

	logger.Info("engine ready",
		"knowledge_backend", a.knowledge.Backend(),
		"web_research", deps.Web != nil,
		"redis", a.rdb != nil)
	ready = true
	return a, nil
}

// buildResearch returns nil when no search provider is configured.
func buildResearch(cfg config.WebSearchConfig, logger *slog.Logger) (*research.Web, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	searcher, err := web_search.NewWebSearcher(web_search.Provider(cfg.Provider), cfg.APIKey, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	var fetcher web_fetch.WebFetcher
	if cfg.FetchPages > 0 {
		if fetcher, err = web_fetch.NewWebFetcher(web_fetch.FetcherType(cfg.Fetcher), cfg.Timeout, 0); err != nil {
			return nil, err
		}
	}
	return research.New(searcher, fetcher, cfg.MaxResults, cfg.FetchPages, cfg.Policy, logger), nil
}

// Close releases every resource buildApp acquired.
func (a *app) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.knowledge != nil {
		_ = a.knowledge.Close()
	}
	if a.knowledgeDB != nil && (a.records == nil || a.knowledgeDB != a.records.DB) {
		_ = a.knowledgeDB.Close()
	}
	if a.records != nil {
		_ = a.records.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if err := a.tracing.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown", "error", err)
	}
}
