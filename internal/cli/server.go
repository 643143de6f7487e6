package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"perk-quiz-service/internal/app"
	"perk-quiz-service/internal/config"
	"perk-quiz-service/internal/infra/memory"
	pginfra "perk-quiz-service/internal/infra/postgres"
	redisinfra "perk-quiz-service/internal/infra/redis"
	"perk-quiz-service/internal/infra/rewards"
	"perk-quiz-service/internal/logger"
	"perk-quiz-service/internal/metrics"
	transport "perk-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Options{Mode: cfg.Server.Mode, Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	quizzes, err := cfg.Quizzes()
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(quizzes)
	if pool != nil {
		pgLoader := pginfra.NewQuizLoader(pool)
		if err := pgLoader.SeedQuizzes(ctx, quizzes); err != nil {
			return err
		}
		loader = pgLoader
	}

	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	var catalog app.QuizCatalog
	if redisClient != nil {
		catalog = redisinfra.NewQuizCatalog(redisClient, loader, quizTTL)
	} else {
		catalog = memory.NewQuizCatalog(loader, quizTTL)
	}

	sessionTTL := config.Duration(cfg.Session.TTL, 24*time.Hour)
	var sessions app.SessionRepository
	if redisClient != nil {
		sessions = redisinfra.NewSessionStore(redisClient, sessionTTL)
	} else {
		sessions = memory.NewSessionStore(sessionTTL)
	}

	var completions app.CompletionRepository
	switch {
	case pool != nil:
		completions = pginfra.NewCompletionStore(pool)
	case redisClient != nil:
		completions = redisinfra.NewCompletionStore(redisClient)
	default:
		completions = memory.NewCompletionStore()
	}

	rewardsClient, err := rewards.NewClient(rewards.Options{
		BaseURL:     cfg.Rewards.BaseURL,
		APIKey:      cfg.Rewards.APIKey,
		Timeout:     config.Duration(cfg.Rewards.Timeout, 10*time.Second),
		MaxAttempts: cfg.Rewards.MaxAttempts,
	})
	if err != nil {
		return err
	}

	actionSource := cfg.Rewards.ActionSource
	if actionSource == "" {
		actionSource = rewards.DefaultActionSource
	}

	m := metrics.New()
	service := app.NewQuizService(catalog, sessions, completions, rewardsClient, app.Options{
		Logger:       log,
		Observer:     m,
		ActionSource: actionSource,
	})

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := transport.NewRouter(service, transport.RouterOptions{
		Logger:          log,
		Metrics:         m,
		RateLimit:       cfg.RateLimit.MaxRequests,
		RateLimitWindow: config.Duration(cfg.RateLimit.Window, time.Minute),
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info("starting quiz relay", zap.String("port", finalPort), zap.Int("quizzes", len(quizzes)))
	return serve(ctx, server, log)
}

// serve runs server until a signal, ctx cancellation or a listen failure.
func serve(ctx context.Context, server *http.Server, log *zap.Logger) error {
	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-serveErr:
		log.Error("failed to start server", zap.Error(err))
		return err
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
