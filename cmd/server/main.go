package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/augmenthq/compete/internal/analysis"
	"github.com/augmenthq/compete/internal/api"
	"github.com/augmenthq/compete/internal/auth"
	"github.com/augmenthq/compete/internal/briefing"
	"github.com/augmenthq/compete/internal/cloudsql"
	"github.com/augmenthq/compete/internal/config"
	"github.com/augmenthq/compete/internal/content"
	"github.com/augmenthq/compete/internal/database"
	"github.com/augmenthq/compete/internal/ingest"
	"github.com/augmenthq/compete/internal/llm"
	"github.com/augmenthq/compete/internal/logging"
	"github.com/augmenthq/compete/internal/metrics"
	"github.com/augmenthq/compete/internal/profile"
	"github.com/augmenthq/compete/internal/scheduler"
	"github.com/augmenthq/compete/internal/server"
	_ "github.com/lib/pq"
	"log/slog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting compete")

	// Connect to database (supports both local DATABASE_URL and Cloud SQL)
	dbURL, err := cloudsql.ResolveURL(cfg.Database.URL)
	if err != nil {
		logger.Error("failed to resolve database URL", "error", err)
		os.Exit(1)
	}
	logger.Info("connecting to database", "connection", cloudsql.Describe(dbURL))

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// Run pending migrations (non-fatal to allow app to start even if migrations fail)
	if err := database.RunMigrations(db, "./migrations", logger); err != nil {
		logger.Warn("failed to run migrations, continuing anyway", "error", err)
	}

	// Create repositories
	sourceRepo := database.NewPostgresSourceRepository(db)
	itemRepo := database.NewPostgresItemRepository(db)
	checkRunRepo := database.NewPostgresCheckRunRepository(db)
	cardRepo := database.NewPostgresCardRepository(db)
	competitorRepo := database.NewPostgresCompetitorRepository(db)
	selfRepo := database.NewPostgresSelfProfileRepository(db)
	briefingRepo := database.NewPostgresBriefingRepository(db)
	contentRepo := database.NewPostgresContentRepository(db)
	suggestionRepo := database.NewPostgresSuggestionRepository(db)
	userRepo := database.NewPostgresUserRepository(db)

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	// Chat client shared by every model-backed stage
	llmConfig := llm.DefaultConfig()
	llmConfig.APIKey = cfg.OpenAI.APIKey
	llmConfig.Model = cfg.OpenAI.Model
	llmConfig.MaxRetries = cfg.OpenAI.MaxRetries
	llmConfig.Timeout = cfg.OpenAI.Timeout
	chat := llm.NewOpenAIClient(llmConfig, logger)
	if cfg.OpenAI.APIKey == "" {
		logger.Warn("OPENAI_API_KEY not set, analysis and generation will fail")
	}

	// Fetchers, one per source type
	rssFetcher := ingest.NewRSSFetcher(logger, cfg.Ingest.PerSourceTimeout)
	scrapeFetcher := ingest.NewScrapeFetcher(ingest.ChromeRenderer{}, logger)
	twitterClient := ingest.NewTwitterClient(cfg.Twitter.BearerToken, logger)
	twitterFetcher := ingest.NewTwitterFetcher(twitterClient, logger)
	if cfg.Twitter.BearerToken == "" {
		logger.Warn("TWITTER_BEARER_TOKEN not set, twitter sources will fail")
	}
	fetchers := []ingest.Fetcher{rssFetcher, scrapeFetcher, twitterFetcher}

	retryPolicy := ingest.DefaultRetryPolicy()
	retryPolicy.MaxRetries = cfg.Ingest.FetchMaxRetries
	retryPolicy.InitialBackoff = cfg.Ingest.FetchBackoff

	coordinator := ingest.NewCoordinator(fetchers, sourceRepo, itemRepo, logger, ingest.CoordinatorConfig{
		ConcurrentFetches: cfg.Ingest.ConcurrentFetches,
		PerSourceTimeout:  cfg.Ingest.PerSourceTimeout,
		RetryPolicy:       retryPolicy,
	})
	relevanceFilter := ingest.NewRelevanceFilter(itemRepo, cfg.Ingest.MinContentLength, logger)

	analyzer := analysis.NewAnalyzer(
		llm.Instrument(chat, "analysis", collector),
		itemRepo, sourceRepo, cardRepo, competitorRepo, selfRepo, checkRunRepo,
		logger,
		analysis.Config{Metrics: collector},
	)
	briefingGenerator := briefing.NewGenerator(
		llm.Instrument(chat, "briefing", collector), briefingRepo, cardRepo, logger)

	runner := ingest.NewRunner(coordinator, relevanceFilter, checkRunRepo, analyzer, briefingGenerator, logger)
	runner.Metrics = collector

	// Content generation and publishing
	contentGenerator := content.NewGenerator(
		llm.Instrument(chat, "content", collector),
		contentRepo, competitorRepo, cardRepo, selfRepo, logger)
	docStore := content.NewHTTPDocStore(cfg.Docs.BaseURL, cfg.Docs.APIKey, cfg.Docs.Timeout)
	publisher := content.NewPublisher(docStore, contentRepo, cfg.Docs.FolderID, logger)
	staleChecker := content.NewStaleChecker(contentRepo, competitorRepo, cardRepo)
	if cfg.Docs.BaseURL == "" {
		logger.Warn("DOCS_BASE_URL not set, publishing will fail")
	}

	profileReviewer := profile.NewReviewer(
		llm.Instrument(chat, "profile_review", collector),
		competitorRepo, cardRepo, selfRepo, suggestionRepo,
		logger, profile.DefaultConfig())

	sourceTester := ingest.NewSourceTester(fetchers, cfg.Ingest.PerSourceTimeout)

	authConfig := auth.Config{
		JWTSecret:     cfg.Auth.JWTSecret,
		TokenDuration: cfg.Auth.TokenDuration,
	}
	logger.Info("auth configured", "token_duration", authConfig.TokenDuration)

	// HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", collector.Handler())

	api.SetupRoutes(mux, api.Handlers{
		Auth:        api.NewAuthHandler(userRepo, authConfig, logger),
		Sources:     api.NewSourceHandler(sourceRepo, sourceTester, twitterClient, logger),
		System:      api.NewSystemHandler(runner, profileReviewer, checkRunRepo, logger),
		Cards:       api.NewCardHandler(cardRepo, logger),
		Briefings:   api.NewBriefingHandler(briefingRepo, briefingGenerator, logger),
		Content:     api.NewContentHandler(contentRepo, contentGenerator, publisher, staleChecker, logger),
		Competitors: api.NewCompetitorHandler(competitorRepo, logger),
		Suggestions: api.NewSuggestionHandler(suggestionRepo, profileReviewer, logger),
	}, authConfig, logger)

	// Schedulers
	schedCtx, cancelSchedulers := context.WithCancel(context.Background())
	checkScheduler := scheduler.NewCheckScheduler(
		runner, cfg.Scheduler.CheckInterval, cfg.Scheduler.BriefingTime, logger)
	go checkScheduler.Start(schedCtx)

	reviewScheduler := scheduler.NewProfileReviewScheduler(
		profileReviewer,
		scheduler.ParseWeekday(cfg.Scheduler.ProfileReviewWeekday),
		cfg.Scheduler.ProfileReviewTime,
		logger)
	go reviewScheduler.Start(schedCtx)

	// Start server
	srv := server.New(cfg.Server, logger, collector.InstrumentHandler(mux))

	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("compete started successfully")
	logger.Info("API available", "url", fmt.Sprintf("http://localhost:%s", cfg.Server.Port))

	waitForSignal(logger)

	logger.Info("shutting down")
	cancelSchedulers()
	checkScheduler.Stop()
	reviewScheduler.Stop()
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
	close(c)
}
