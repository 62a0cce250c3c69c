package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scraping_service/internal/config"
	rescrapeListings "scraping_service/internal/http-server/handlers/scrape/rescrape"
	startScrape "scraping_service/internal/http-server/handlers/scrape/start"
	passStatus "scraping_service/internal/http-server/handlers/scrape/status"
	"scraping_service/internal/lib/jwt"
	sl "scraping_service/internal/lib/logger"
	authMiddlware "scraping_service/internal/middleware/auth"
	"scraping_service/internal/models"
	"scraping_service/internal/notifier"
	"scraping_service/internal/pipeline"
	"scraping_service/internal/rabbitmq"
	"scraping_service/internal/scraper/amazonau"
	"scraping_service/internal/storage/postgres"
	"scraping_service/internal/storage/redis"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting scraping service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	jwtParser := jwt.New(cfg.JWTSecret)

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		log.Error("failed to connect redis", sl.Err(err))
		os.Exit(1)
	}
	defer redisClient.Close()

	postgresClient, err := postgres.New(ctx, log, cfg.Postgres)
	if err != nil {
		log.Error("failed to connect postgres", sl.Err(err))
		os.Exit(1)
	}
	defer postgresClient.Close()

	rabbitMQClient, err := rabbitmq.New(log, cfg.RabbitMQ)
	if err != nil {
		log.Error("failed to connect rabbitMQ", sl.Err(err))
		os.Exit(1)
	}
	defer rabbitMQClient.Close()

	browser := amazonau.NewSession(log, cfg.Browser.PostalCode, cfg.Browser.Headless, cfg.Browser.PageTimeout)
	if err := browser.Start(); err != nil {
		log.Error("failed to start browser", sl.Err(err))
		os.Exit(1)
	}
	defer browser.Close()

	notify := notifier.New(cfg.Notifier, rabbitMQClient, cfg.RabbitMQ.EventQueue)

	pl, err := pipeline.New(log, cfg, postgresClient, redisClient, notify, browser)
	if err != nil {
		log.Error("failed to build pipeline", sl.Err(err))
		os.Exit(1)
	}

	go func() {
		err := rabbitMQClient.ConsumeRescrapes(ctx, cfg.RabbitMQ.RescrapeQueue, cfg.RabbitMQ.WorkerPoolSize,
			func(ctx context.Context, req models.RescrapeRequest) error {
				_, err := pl.Rescrape(ctx, req)
				if errors.Is(err, pipeline.ErrNoRescrapeCandidates) {
					return nil
				}
				return err
			})
		if err != nil {
			log.Error("rescrape consumer stopped", sl.Err(err))
		}
	}()

	requestValidator := validator.New()

	router := setupRouter(log, requestValidator, pl, redisClient, jwtParser)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("http server listening", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", sl.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", sl.Err(err))
	}

	log.Info("scraping service stopped")
}

func setupRouter(
	log *slog.Logger,
	validate *validator.Validate,
	pl *pipeline.Pipeline,
	redisClient *redis.Storage,
	jwtParser *jwt.JWTParser,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.URLFormat)

	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(authMiddlware.New(jwtParser))

		r.Post("/scrape", startScrape.New(log, pl, validate))
		r.Post("/rescrape", rescrapeListings.New(log, pl, validate))
		r.Get("/scrape/{session_id}", passStatus.New(log, redisClient))
	})

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
