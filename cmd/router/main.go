package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/mirrorfx/router/internal/config"
	"github.com/mirrorfx/router/internal/service"
)

// Exit codes per the ops runbook: 1 config, 2 pool, 3 store.
const (
	exitOK               = 0
	exitConfigInvalid    = 1
	exitPoolUnreachable  = 2
	exitStoreUnreachable = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Optional; real deployments inject env directly.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.WithError(err).Error("failed to load config")
		return exitConfigInvalid
	}

	logger := newLogger(cfg.Environment.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, err := service.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("startup failed")
		switch {
		case errors.Is(err, service.ErrConfigInvalid):
			return exitConfigInvalid
		case errors.Is(err, service.ErrPoolUnreachable):
			return exitPoolUnreachable
		case errors.Is(err, service.ErrStoreUnreachable):
			return exitStoreUnreachable
		default:
			return exitConfigInvalid
		}
	}

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("router exited with error")
		return 1
	}
	return exitOK
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}
