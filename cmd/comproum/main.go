// Package main запускает HTTP-сервер сервиса Comproum.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/comproum/internal/activity"
	"github.com/mmeshcher/comproum/internal/address"
	"github.com/mmeshcher/comproum/internal/advisory"
	"github.com/mmeshcher/comproum/internal/config"
	"github.com/mmeshcher/comproum/internal/feed"
	"github.com/mmeshcher/comproum/internal/handler"
	"github.com/mmeshcher/comproum/internal/middleware"
	"github.com/mmeshcher/comproum/internal/repository"
	"github.com/mmeshcher/comproum/internal/repository/memory"
	"github.com/mmeshcher/comproum/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		sugar.Warnw("failed to load .env", "error", err.Error())
	}

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	history, closeHistory, err := openHistory(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalw("offer history initialization error", "error", err.Error())
	}
	defer closeHistory()

	svc := service.NewService(repo, feed.NewBroker(), history, logger)
	defer svc.Close()

	if cfg.JWTSecret == "" {
		sugar.Warn("JWT_SECRET is empty, sessions will not survive a restart")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret, cfg.TokenTTL)

	var advisor handler.PriceAdvisor
	if cfg.AdvisoryURL != "" {
		advisor = advisory.NewClient(cfg.AdvisoryURL)
	}

	h := handler.NewHandler(svc, logger, authMiddleware,
		address.NewClient(cfg.AddressLookupURL), advisor, cfg.RefreshInterval)

	r := h.SetupRouter()

	// WriteTimeout не задаётся: потоки событий держат соединение открытым.
	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting comproum server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func openRepository(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (service.Repository, error) {
	if cfg.DatabaseURI == "" {
		sugar.Warn("DATABASE_URI is empty, using in-memory storage")
		return memory.New(), nil
	}
	return repository.NewPostgresRepository(ctx, cfg.DatabaseURI)
}

func openHistory(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (activity.Log, func(), error) {
	if cfg.MongoURI == "" {
		return activity.NewMemoryLog(), func() {}, nil
	}

	client, err := activity.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return nil, nil, err
	}

	history := activity.NewMongoLog(client)
	if err := history.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}

	return history, func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			sugar.Warnw("mongo disconnect error", "error", err.Error())
		}
	}, nil
}
