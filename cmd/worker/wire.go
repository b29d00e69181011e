package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"document-intelligence/internal/config"
	"document-intelligence/internal/domain/ports/adapter"
	"document-intelligence/internal/domain/ports/repository"
	aiAdapters "document-intelligence/internal/infra/adapters/ai"
	"document-intelligence/internal/infra/blob"
	"document-intelligence/internal/infra/db/gormstore"
	pg "document-intelligence/internal/infra/db/postgres"
	"document-intelligence/internal/infra/events"
	"document-intelligence/internal/infra/logging"
	"document-intelligence/internal/infra/metrics"
	"document-intelligence/internal/infra/pdftools"
	"document-intelligence/internal/infra/providers"
	red "document-intelligence/internal/infra/redis"
	"document-intelligence/internal/infra/web"
	"document-intelligence/internal/usecase"
)

// app holds the wired process. close releases everything in reverse order.
type app struct {
	cfg     *config.Config
	log     *zerolog.Logger
	pool    *pgxpool.Pool
	redis   red.RedisClient
	jobs    repository.JobRepository
	events  adapter.EventPublisher
	enqueue usecase.EnqueueUseCase
	orch    *usecase.Orchestrator
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func loadConfig() (*config.Config, *zerolog.Logger, error) {
	cfg, err := config.LoadConfig(configPath, devMode)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	return cfg, logger, nil
}

// connectStores opens postgres, redis (optional) and the job queue.
func connectStores(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: logger}

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)

	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			// the section cache works without redis
			logger.Warn().Err(err).Msg("redis unavailable, section cache falls back to postgres")
		} else {
			a.redis = rc
			a.closers = append(a.closers, func() { _ = rc.Close() })
		}
	}

	switch cfg.Queue.Driver {
	case "gorm":
		db, err := gorm.Open(sqlite.Open(cfg.Queue.DSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("open gorm queue: %w", err)
		}
		store := gormstore.NewJobStore(db)
		if err := store.Migrate(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("migrate gorm queue: %w", err)
		}
		a.jobs = store
	default:
		a.jobs = pg.NewJobRepo(pool)
	}
	a.enqueue = usecase.NewEnqueueUseCase(a.jobs, cfg.Queue.MaxAttempts, logger)
	return a, nil
}

// wirePipelines builds providers, AI adapters and both use cases on top of
// the stores opened by connectStores.
func (a *app) wirePipelines(ctx context.Context) error {
	cfg, logger := a.cfg, a.log

	ai, err := buildAI(ctx, cfg, logger)
	if err != nil {
		return err
	}
	tokens := aiAdapters.NewTokenCounter(cfg.AI.TokenizerEncoder, logger)
	store := blob.NewStore(cfg.Storage, nil)

	runner := pdftools.NewExecRunner(logger)
	ocrProviders := []adapter.OCRProvider{}
	if cfg.Providers.OCR.URL != "" {
		ocrProviders = append(ocrProviders, providers.NewHTTPOCR(cfg.Providers.OCR))
	}
	if cfg.HasLLM() && cfg.AI.Models.Vision != "" {
		ocrProviders = append(ocrProviders, providers.NewVisionOCR(ai, cfg.AI.Models.Vision))
	}
	var ocr adapter.OCRProvider
	if len(ocrProviders) > 0 {
		ocr = providers.NewOCRChain(logger, ocrProviders...)
	}

	var primary, secondary adapter.LayoutProvider
	if cfg.Providers.A.URL != "" {
		primary = providers.NewAsyncLayout(cfg.Providers.A)
	}
	if cfg.Providers.B.URL != "" {
		secondary = providers.NewSyncLayout(cfg.Providers.B)
	}
	chain := usecase.NewProviderChain(primary, secondary, providers.NewLocalParser(logger), cfg.Providers.A, logger)

	pool := a.pool
	docs := pg.NewDocumentRepo(pool)
	pages := pg.NewPageRepo(pool)
	blocks := pg.NewBlockRepo(pool)
	chunks := pg.NewChunkRepo(pool)
	var cache repository.SectionCacheRepository = pg.NewSectionCacheRepo(pool)
	if a.redis != nil {
		cache = pg.NewSectionCacheDecorator(cache, a.redis, cfg.Redis.TTL, logger)
	}

	ingest := usecase.NewIngestUseCase(
		usecase.ExtractionStores{
			Docs:   docs,
			Pages:  pages,
			Blocks: blocks,
			Chunks: chunks,
			Jobs:   a.jobs,
			Tx:     pg.NewTxManager(pool),
		},
		usecase.ExtractionTools{
			Blob:    store,
			Toolkit: pdftools.NewPoppler(runner, cfg.Extraction.PreviewWidth),
			Office:  pdftools.NewOffice(runner),
			OCR:     ocr,
			Chain:   chain,
			Engine:  usecase.NewPageEngine(store, ocr, cfg.Extraction, cfg.Storage.SignedURLTTL, logger),
		},
		cfg.Extraction, cfg.Queue.MaxAttempts, cfg.Storage.SignedURLTTL, logger,
	)

	retriever := usecase.NewRetriever(ai, pg.NewEmbeddingRepo(pool), tokens, cfg.AI.Models.Embedding,
		cfg.AI.Embeddings, cfg.AI.EmbeddingTopN, cfg.RAG.MaxChunksPerSection, logger)
	var vision *usecase.VisionFollowUp
	if cfg.HasLLM() && cfg.AI.Models.Vision != "" {
		vision = usecase.NewVisionFollowUp(blocks, store, ai, cfg.AI.Models.Vision, cfg.Vision.MaxItems, logger)
	}
	explain := usecase.NewExplainUseCase(
		usecase.ExplainStores{
			Docs:    docs,
			Pages:   pages,
			Blocks:  blocks,
			Chunks:  chunks,
			Outputs: pg.NewOutputRepo(pool),
			Cache:   cache,
		},
		ai, retriever, vision, tokens, cfg.AI.Models, cfg.RAG, cfg.HasLLM(), logger,
	)

	a.orch = usecase.NewOrchestrator(ingest, explain, logger)

	if cfg.Kafka.Enabled {
		pub := events.NewKafkaPublisher(cfg.Kafka, logger)
		a.events = pub
		a.closers = append(a.closers, func() { _ = pub.Close() })
	} else {
		a.events = events.NoopPublisher{}
	}
	return nil
}

// buildAI routes models to the configured providers behind a concurrency cap.
// With no credentials it returns the noop adapter and explain jobs complete
// with an unavailable artifact.
func buildAI(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.AIServiceAdapter, error) {
	byProvider := map[string]adapter.AIServiceAdapter{}
	if cfg.AI.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.Models.Section, cfg.AI.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("openai adapter: %w", err)
		}
		byProvider["openai"] = oa
	}
	if cfg.AI.GeminiKey != "" {
		ga, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.Models.Section, cfg.AI.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("gemini adapter: %w", err)
		}
		byProvider["gemini"] = ga
	}
	if len(byProvider) == 0 {
		logger.Warn().Msg("no AI provider configured; explain jobs will complete without generation")
		return aiAdapters.NewNoopAIAdapter(), nil
	}
	logger.Info().
		Str("default_provider", cfg.AI.DefaultProvider).
		Str("openai_key", logging.Redact(cfg.AI.OpenAIKey, cfg.Runtime.Dev)).
		Str("gemini_key", logging.Redact(cfg.AI.GeminiKey, cfg.Runtime.Dev)).
		Msg("AI adapters ready")
	multi := aiAdapters.NewMultiAIAdapter(cfg.AI.DefaultProvider, byProvider, nil)
	return aiAdapters.NewLimitedAI(multi, cfg.AI.ConcurrentLimit), nil
}

// readiness pings postgres and, when connected, redis.
func (a *app) readiness() map[string]web.Check {
	checks := map[string]web.Check{
		"postgres": func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return a.pool.Ping(ctx)
		},
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return a.redis.Ping(ctx)
		}
	}
	return checks
}

func (a *app) poolStats() (total, idle, acquired, max int32) {
	st := a.pool.Stat()
	return st.TotalConns(), st.IdleConns(), st.AcquiredConns(), st.MaxConns()
}

func init() {
	metrics.MustRegister()
}
