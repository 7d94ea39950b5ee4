package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/storefront/internal/api"
	"github.com/example/storefront/internal/auth"
	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/event"
	"github.com/example/storefront/internal/infrastructure/kafka"
	"github.com/example/storefront/internal/infrastructure/shopapi"
	"github.com/example/storefront/internal/infrastructure/storage"
	"github.com/example/storefront/internal/logger"
	"github.com/example/storefront/internal/session"
)

const (
	evictInterval  = 5 * time.Minute
	sessionMaxIdle = 2 * time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(nil).Fatal("Failed to load configuration", zap.Error(err))
	}

	log := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}).Named("api")
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("Starting storefront",
		zap.String("env", cfg.App.Env),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("api", cfg.API.BaseURL),
		zap.Bool("kafka", cfg.Kafka.Enabled))

	kv, closeStorage, err := storage.Open(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal("Failed to open storage", zap.Error(err))
	}
	defer func() {
		if err := closeStorage(); err != nil {
			log.Warn("Failed to close storage", zap.Error(err))
		}
	}()

	var publisher event.Publisher = event.Nop{}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		defer producer.Close()
		publisher = producer
		log.Info("Publishing events to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}

	client := shopapi.New(cfg.API.BaseURL, cfg.API.Timeout, shopapi.WithLogger(log))

	sessions := session.NewManager(kv, client, publisher, log, session.OptionsFromConfig(cfg))
	go sessions.RunEvictor(ctx, evictInterval, sessionMaxIdle)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.TokenTTL,
		auth.WithIssuer(cfg.JWT.Issuer),
		auth.WithLeeway(cfg.JWT.Leeway))

	router := api.NewRouter(api.RouterConfig{
		Handlers:     api.NewHandlers(log),
		Sessions:     sessions,
		JWTService:   jwtService,
		Logger:       log,
		WebDir:       cfg.App.WebDir,
		SecureCookie: cfg.IsProduction(),
	})

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server started", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Graceful shutdown failed", zap.Error(err))
	}
}
