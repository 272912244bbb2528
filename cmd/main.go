package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/eventsphere/engine/internal/config"
	"github.com/eventsphere/engine/internal/database"
	"github.com/eventsphere/engine/internal/handler"
	"github.com/eventsphere/engine/internal/notify"
	"github.com/eventsphere/engine/internal/repository"
	"github.com/eventsphere/engine/internal/service"
	"github.com/eventsphere/engine/internal/token"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}
	log.Info("database ready")

	tokens, closeTokens, err := buildTokenStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to token store")
	}
	defer closeTokens()

	notifier, closeNotifier := buildNotifier(cfg, log)
	defer closeNotifier()

	store := repository.NewPostgresStore(pool)
	services := service.New(store, tokens, notifier, log, service.Options{
		GraceWindow: cfg.Engine.GraceWindow,
		SeatRetries: cfg.Engine.SeatRetries,
	})

	h := handler.New(services, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      h.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
		os.Exit(1)
	}
	log.Info("server stopped")
}

// buildTokenStore returns the Redis-backed token store when an address
// is configured, otherwise the in-process store.
func buildTokenStore(ctx context.Context, cfg *config.Config, log *logrus.Logger) (token.Store, func(), error) {
	if cfg.Redis.Addr == "" {
		log.Info("using in-memory check-in token store")
		return token.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store, err := token.NewRedisStore(ctx, client)
	if err != nil {
		return nil, nil, err
	}
	log.WithField("addr", cfg.Redis.Addr).Info("using redis check-in token store")
	return store, func() { _ = client.Close() }, nil
}

// buildNotifier returns the RabbitMQ notifier when a broker URL is
// configured. Broker connection failures degrade to log-only delivery
// rather than aborting startup.
func buildNotifier(cfg *config.Config, log *logrus.Logger) (notify.Notifier, func()) {
	if cfg.RabbitMQ.URL == "" {
		return &notify.LogNotifier{Log: log}, func() {}
	}

	n, err := notify.NewRabbitMQNotifier(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, log)
	if err != nil {
		log.WithError(err).Warn("rabbitmq unavailable, falling back to log notifier")
		return &notify.LogNotifier{Log: log}, func() {}
	}
	log.WithField("queue", cfg.RabbitMQ.Queue).Info("rabbitmq notifier connected")
	return n, func() { n.Close() }
}
