package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apkaapna007-a11y/nelson-gpt/internal/config"
	"github.com/apkaapna007-a11y/nelson-gpt/internal/db"
	"github.com/apkaapna007-a11y/nelson-gpt/internal/httpapi"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	var database *sql.DB
	if cfg.PersistenceEnabled() {
		openCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		database, err = db.Open(openCtx, cfg)
		cancel()
		if err != nil {
			logger.Fatal("open db", zap.Error(err))
		}
		defer database.Close()
	} else {
		logger.Warn("TURSO_DATABASE_URL not set; chats will not be persisted")
	}
	if cfg.MistralAPIKey == "" {
		logger.Warn("NELSON_API_KEY/MISTRAL_API_KEY not set; chat requests will fail")
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddress(),
		Handler:      httpapi.NewRouter(cfg, database, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api listening", zap.String("addr", cfg.ListenAddress()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.Environment == "production" {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
