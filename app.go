package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/adapters/filestore"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/config"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/database"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/handlers"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/llm"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/logging"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/queue"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/repositories"
	sqliterepo "github.com/ekaya-inc/ekaya-bucketer/pkg/repositories/sqlite"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/services"
)

// memoryQueueCapacity bounds requests buffered in-process when Redis is off.
const memoryQueueCapacity = 256

// app holds the dependencies shared by every command.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	workbookRepo repositories.WorkbookRepository
	jobRepo      repositories.JobRepository
	analysisRepo repositories.AnalysisRepository

	store       filestore.FileStore
	redis       *redis.Client
	jobQueue    queue.JobQueue
	publisher   queue.ProgressPublisher
	llmFactory  *llm.ClientFactory
	classifiers services.ClassifierProvider
	workbooks   services.WorkbookService
	runner      *services.ClassificationRunner

	healthChecks map[string]handlers.HealthCheck
	closers      []func()
}

// loadConfig reads configuration and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFile(configPath, Version)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

// newApp connects storage, queue and providers. Close releases them.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:          cfg,
		logger:       logger,
		healthChecks: make(map[string]handlers.HealthCheck),
	}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	if err := a.openDatabase(ctx); err != nil {
		return err
	}

	store, err := filestore.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open file store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, func() { _ = store.Close() })

	if err := a.openQueue(ctx); err != nil {
		return err
	}

	a.llmFactory = llm.NewClientFactory(llm.ProviderSettings{
		OpenAI: llm.Config{
			Endpoint: cfg.AI.OpenAIEndpoint,
			Model:    cfg.AI.OpenAIModel,
			APIKey:   cfg.AI.OpenAIAPIKey,
			JSONMode: true,
		},
		Anthropic: llm.AnthropicConfig{
			Model:     cfg.AI.ClaudeModel,
			APIKey:    cfg.AI.AnthropicAPIKey,
			MaxTokens: cfg.AI.ClaudeMaxToken,
		},
		Gemini: llm.GeminiConfig{
			Model:    cfg.AI.GeminiModel,
			APIKey:   cfg.AI.GeminiAPIKey,
			JSONMode: true,
		},
	}, logger)
	a.closers = append(a.closers, func() { _ = a.llmFactory.Close() })
	a.classifiers = services.NewClassifierProvider(a.llmFactory, llm.DefaultCircuitBreakerConfig(), logger)

	a.workbooks = services.NewWorkbookService(a.workbookRepo, a.store, cfg.Classification, logger)
	a.runner = services.NewClassificationRunner(a.workbooks, a.jobRepo, a.analysisRepo, a.classifiers, a.publisher, cfg.Classification, logger)
	return nil
}

func (a *app) openDatabase(ctx context.Context) error {
	switch a.cfg.Database.Type {
	case "sqlite":
		db, err := database.OpenSQLite(ctx, a.cfg.Database.SQLitePath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := database.RunMigrations(db, database.DialectSQLite, a.logger); err != nil {
			return err
		}
		a.workbookRepo = sqliterepo.NewWorkbookRepository(db)
		a.jobRepo = sqliterepo.NewJobRepository(db)
		a.analysisRepo = sqliterepo.NewAnalysisRepository(db)
		a.healthChecks["database"] = func(ctx context.Context) error { return db.PingContext(ctx) }
		a.logger.Info("Using SQLite", zap.String("path", a.cfg.Database.SQLitePath))
		return nil

	default:
		db, err := database.NewConnection(ctx, &database.Config{
			URL:            a.cfg.Database.ConnectionString(),
			MaxConnections: a.cfg.Database.MaxConnections,
		}, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		if err := migratePostgres(db.SQLDB(), a.logger); err != nil {
			return err
		}
		a.workbookRepo = repositories.NewWorkbookRepository(db)
		a.jobRepo = repositories.NewJobRepository(db)
		a.analysisRepo = repositories.NewAnalysisRepository(db)
		a.healthChecks["database"] = func(ctx context.Context) error { return db.Ping(ctx) }
		a.logger.Info("Connected to PostgreSQL",
			zap.String("host", a.cfg.Database.Host),
			zap.String("database", a.cfg.Database.Database))
		return nil
	}
}

func migratePostgres(db *sql.DB, logger *zap.Logger) error {
	if err := database.RunMigrations(db, database.DialectPostgres, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (a *app) openQueue(ctx context.Context) error {
	rdb, err := database.NewRedisClient(ctx, &a.cfg.Redis)
	if err != nil {
		return err
	}
	if rdb == nil {
		a.logger.Info("Redis disabled, using in-process job queue")
		mq := queue.NewMemoryQueue(memoryQueueCapacity)
		a.jobQueue = mq
		a.publisher = queue.NopPublisher{}
		a.closers = append(a.closers, func() { _ = mq.Close() })
		return nil
	}

	a.redis = rdb
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	a.jobQueue = queue.NewRedisQueue(rdb, a.cfg.Redis.QueueKey, a.logger)
	a.publisher = queue.NewRedisProgressPublisher(rdb, a.cfg.Redis.ProgressChannel)
	a.healthChecks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	a.logger.Info("Connected to Redis", zap.String("addr", a.cfg.Redis.Addr()))
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
