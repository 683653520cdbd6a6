// Package app assembles the service: configuration in, wired pipeline and
// HTTP server out. Optional integrations (redis, kafka, telegram, chatgpt)
// are enabled only when configured; the pipeline treats missing ones as nil.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"VoiceScribe/internal/config"
	"VoiceScribe/internal/extract"
	"VoiceScribe/internal/fetcher"
	"VoiceScribe/internal/httpapi"
	"VoiceScribe/internal/infrastructure/blob"
	"VoiceScribe/internal/infrastructure/cache"
	"VoiceScribe/internal/infrastructure/events"
	"VoiceScribe/internal/infrastructure/llm"
	"VoiceScribe/internal/infrastructure/scheduler"
	"VoiceScribe/internal/infrastructure/storage"
	"VoiceScribe/internal/infrastructure/telegram"
	"VoiceScribe/internal/infrastructure/tts/google"
	"VoiceScribe/internal/ports"
	"VoiceScribe/internal/synthesis"
	"VoiceScribe/internal/usecase"
	"VoiceScribe/pkg/metrics"
)

// App holds the assembled service and its closable resources.
type App struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *sql.DB
	pipeline *usecase.Pipeline
	sweeper  *usecase.Sweeper
	server   *httpapi.Server
	events   *events.KafkaPublisher
	cache    *cache.ArticleCache
}

// New wires every component from configuration.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	repo := storage.NewPostgresRepository(db)

	store, err := blob.NewFileStore(cfg.Audio.Dir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("audio store: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	var articleCache ports.ArticleCache
	var redisCache *cache.ArticleCache
	if cfg.Redis.Addr != "" {
		c, err := cache.New(cfg.Redis, logger)
		if err != nil {
			logger.Warn("redis unavailable, article cache disabled", "error", err)
		} else {
			articleCache = c
			redisCache = c
		}
	}

	var publisher ports.EventPublisher
	var kafkaPublisher *events.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher = events.NewKafkaPublisher(cfg.Kafka, logger)
		publisher = kafkaPublisher
	}

	var cleaner ports.ContentCleaner
	if cfg.ChatGPT.APIKey != "" {
		cleaner = llm.NewChatGPTCleaner(cfg.ChatGPT)
	}

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.BotToken != "" {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram)
	}

	synth := google.NewClient(cfg.TTS, logger)

	pipeline := usecase.New(usecase.Deps{
		Repo:            repo,
		Store:           store,
		Fetcher:         fetcher.New(&http.Client{Timeout: cfg.Fetcher.Timeout}, cfg.Fetcher, logger),
		Extractor:       extract.New(cfg.Extractor, logger),
		Chunker:         synthesis.NewChunker(cfg.Synthesis.MaxChunkBytes, logger),
		Pool:            synthesis.NewPool(synth, cfg.Synthesis, logger, m),
		Assembler:       synthesis.NewAssembler(logger),
		Cleaner:         cleaner,
		Notifier:        notifier,
		Publisher:       publisher,
		Cache:           articleCache,
		Metrics:         m,
		Logger:          logger,
		PendingDeadline: cfg.Synthesis.PendingDeadline,
	})

	sweeper := usecase.NewSweeper(pipeline,
		scheduler.NewTickerScheduler(cfg.Synthesis.SweepInterval), logger)

	server := httpapi.New(cfg.Server, pipeline, cfg.Metrics.Enabled, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		pipeline: pipeline,
		sweeper:  sweeper,
		server:   server,
		events:   kafkaPublisher,
		cache:    redisCache,
	}, nil
}

// Run starts the sweeper and the HTTP server and blocks until ctx is
// cancelled, then shuts everything down in order.
func (a *App) Run(ctx context.Context) error {
	if err := a.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.server.Start()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown failed", "error", err)
	}
	if err := a.sweeper.Stop(shutdownCtx); err != nil {
		a.logger.Error("sweeper stop failed", "error", err)
	}
	a.pipeline.Close()
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.logger.Error("kafka close failed", "error", err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("redis close failed", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("database close failed", "error", err)
	}
	return nil
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
