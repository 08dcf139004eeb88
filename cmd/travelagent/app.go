package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aschepis/backscratcher/travel/agent"
	"github.com/aschepis/backscratcher/travel/config"
	"github.com/aschepis/backscratcher/travel/llm"
	"github.com/aschepis/backscratcher/travel/memory"
	memollama "github.com/aschepis/backscratcher/travel/memory/ollama"
	memopenai "github.com/aschepis/backscratcher/travel/memory/openai"
	"github.com/aschepis/backscratcher/travel/metrics"
	"github.com/aschepis/backscratcher/travel/migrations"
	"github.com/aschepis/backscratcher/travel/runtime"
	"github.com/aschepis/backscratcher/travel/session"
	"github.com/aschepis/backscratcher/travel/tools"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	db        *sql.DB
	metrics   *metrics.Metrics
	store     *memory.Store
	assembler *agent.Assembler
	sessions  *session.Registry
	tools     *tools.Registry
	agent     *agent.Agent
	scheduler *runtime.Scheduler
	closers   []func()
}

// Close releases everything opened by newApp, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openDB opens the SQLite database and applies migrations.
func openDB(path string, logger zerolog.Logger) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	}
	logger.Info().Str("path", path).Msg("Opening database")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := migrations.RunMigrations(db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// newEmbedder builds the configured embedder, or nil when embeddings are
// disabled.
func newEmbedder(cfg *config.Config, logger zerolog.Logger) (memory.Embedder, func(), error) {
	var (
		base memory.Embedder
		err  error
	)
	switch cfg.Embeddings.Provider {
	case "", "none":
		logger.Info().Msg("Embeddings disabled, similarity search falls back to recency")
		return nil, func() {}, nil
	case llm.ProviderOllama:
		base, err = memollama.NewEmbedder(cfg.Ollama.Host, memollama.Model(cfg.Embeddings.Model))
	case llm.ProviderOpenAI:
		base, err = memopenai.NewEmbedder(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.Embeddings.Model)
	default:
		return nil, nil, fmt.Errorf("unsupported embeddings provider: %s", cfg.Embeddings.Provider)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s embedder: %w", cfg.Embeddings.Provider, err)
	}
	if cfg.Embeddings.CacheSize <= 0 {
		return base, func() {}, nil
	}
	cached, err := memory.NewCachingEmbedder(base, cfg.Embeddings.CacheSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return cached, cached.Close, nil
}

// newSummaryGenerator picks the text generator used for summary folds: the
// native Ollama generate endpoint for Ollama, the chat client otherwise.
func newSummaryGenerator(cfg *config.Config, key *llm.ClientKey, logger zerolog.Logger, m *metrics.Metrics) (memory.Generator, error) {
	model := cfg.Memory.SummaryModel
	if model == "" {
		model = key.Model
	}
	if key.Provider == llm.ProviderOllama {
		return memollama.NewGenerator(key.Host, model)
	}
	client, err := agent.NewClient(key, logger)
	if err != nil {
		return nil, err
	}
	return &llm.TextGenerator{
		Client:    llm.WrapWithMiddleware(client, agent.NewObservingMiddleware(logger, m)),
		Model:     model,
		MaxTokens: 512,
	}, nil
}

// newStorage opens the database, metrics and a memory store without any
// model client. It backs the maintenance commands.
func newStorage(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a, err := openStorage(cfg, logger)
	if err != nil {
		return nil, err
	}
	store, err := memory.NewStore(a.db, nil, logger, memory.WithMetrics(a.metrics))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store
	return a, nil
}

// openStorage opens the database and metrics registry. The memory store is
// left to the caller.
func openStorage(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New("travel", reg)

	db, err := openDB(cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, func() { _ = db.Close() })
	return a, nil
}

// newApp wires the full chat stack.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a, err := openStorage(cfg, logger)
	if err != nil {
		return nil, err
	}
	db := a.db

	providers := llm.NewProviderRegistry(cfg.ProviderConfig(), cfg.LLM.Providers)
	key, err := providers.Resolve(cfg.Preferences())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to resolve llm provider: %w", err)
	}
	logger.Info().Str("client", key.String()).Msg("Resolved chat model")

	embedder, closeEmbedder, err := newEmbedder(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeEmbedder)

	gen, err := newSummaryGenerator(cfg, key, logger, a.metrics)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create summary generator: %w", err)
	}

	store, err := memory.NewStore(db, embedder, logger,
		memory.WithSummarizer(memory.NewSummarizer(gen, cfg.Memory.GenerationTimeout, logger)),
		memory.WithMetrics(a.metrics),
		memory.WithEmbedTimeout(cfg.Memory.EmbedTimeout),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create memory store: %w", err)
	}
	a.store = store

	a.tools = tools.NewRegistry(logger, a.metrics)
	a.tools.RegisterBookingTools(tools.NewBookingStore(db))
	a.tools.RegisterFAQTool(tools.NewFAQ(ctx, embedder, tools.DefaultFAQEntries, logger))
	a.tools.RegisterSearchTools(tools.NewSearchClient(cfg.Search.SerpAPIKey, cfg.Search.Endpoint))

	a.assembler = agent.NewAssembler(store, agent.AssemblerConfig{
		RecallTurns:      cfg.Memory.RecallMaxTurns,
		HistoryTurns:     cfg.Memory.HistoryLimit,
		SummaryThreshold: cfg.Memory.SummaryThreshold,
	}, logger)

	a.sessions = session.NewRegistry(cfg.Session.IdleTimeout, logger, session.WithMetrics(a.metrics))
	a.sessions.SetExpireHook(func(s session.Session) {
		fctx, cancel := context.WithTimeout(context.Background(), cfg.Memory.GenerationTimeout+5*time.Second)
		defer cancel()
		if _, err := a.assembler.Finalize(fctx, s.ID); err != nil {
			logger.Warn().Err(err).Str("session_id", s.ID).Msg("final summary for expired session failed")
		}
	})

	chatClient, err := agent.NewChatClient(key, logger, a.metrics, cfg.Agent.MaxContextChars)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create chat client: %w", err)
	}
	a.agent, err = agent.New(logger, chatClient, agent.Config{
		Model:         key.Model,
		MaxTokens:     cfg.Agent.MaxTokens,
		Temperature:   key.Temperature,
		ChatTimeout:   cfg.Agent.ChatTimeout,
		MaxToolRounds: cfg.Agent.MaxToolRounds,
	}, a.assembler, a.sessions, a.tools, a.tools, a.metrics)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	a.scheduler = runtime.NewScheduler(logger)
	if err := a.scheduler.Add("memory-retention", cfg.Memory.CleanupSchedule,
		runtime.RetentionJob(store, cfg.Memory.RetentionDays, logger)); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// startBackground runs the session janitor and scheduled jobs until ctx is
// done.
func (a *app) startBackground(ctx context.Context) {
	a.sessions.StartJanitor(ctx, a.cfg.Session.JanitorInterval)
	go a.scheduler.Start(ctx)
}
