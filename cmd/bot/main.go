package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"feedrelay/internal/bot"
	"feedrelay/internal/config"
	"feedrelay/internal/engine"
	"feedrelay/internal/feed"
	"feedrelay/internal/format"
	"feedrelay/internal/kv"
	"feedrelay/internal/scheduler"
	"feedrelay/internal/server"
	"feedrelay/internal/store"
	"feedrelay/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	kvStore, err := kv.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = kvStore.Close() }()

	subs := store.New(kvStore)

	tg, err := telegram.New(cfg.TelegramBotToken, log)
	if err != nil {
		log.Error("create telegram client", "error", err)
		os.Exit(1)
	}

	formatter, err := format.New(cfg.Timezone)
	if err != nil {
		log.Error("create formatter", "error", err)
		os.Exit(1)
	}

	fetcher := feed.New(http.DefaultClient)
	eng := engine.New(subs, fetcher, tg, formatter, cfg, log)
	router := bot.NewRouter(subs, tg, log)
	srv := server.New(router, eng, cfg.CronSecret, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.SyncSchedule != "" {
		sched := scheduler.New(ctx, cfg.SyncSchedule, eng, log)
		if err := sched.Start(); err != nil {
			log.Error("start scheduler", "spec", cfg.SyncSchedule, "error", err)
			os.Exit(1)
		}
		defer sched.Stop()
		log.Info("internal scheduler started", "spec", cfg.SyncSchedule)
	}

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(); err != nil {
			log.Error("shutdown server", "error", err)
		}
	}()

	log.Info("starting server", "addr", cfg.ListenAddr)
	if err := srv.Listen(cfg.ListenAddr); err != nil {
		log.Error("serve", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
