package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/park285/quiz-duel/internal/api"
	appcfg "github.com/park285/quiz-duel/internal/config"
	"github.com/park285/quiz-duel/internal/obslog"
	"github.com/park285/quiz-duel/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.RequireServer(); err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv("logs/duel-server.log"); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []store.Option{}
	var repo *store.Repository
	if cfg.DatabaseURL != "" {
		repo, err = store.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("archive init error: %v", err)
		}
		defer func() { _ = repo.Close() }()
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = repo.EnsureSchema(sctx)
		cancel()
		if err != nil {
			log.Fatalf("archive schema error: %v", err)
		}
		opts = append(opts, store.WithArchive(repo))
	} else {
		logger.Warn("archive_disabled", zap.String("reason", "DATABASE_URL not set"))
	}

	octx, cancel := context.WithTimeout(ctx, 10*time.Second)
	st, err := store.Open(octx, cfg.RedisURL, store.Config{
		MaxStrikes:  cfg.MaxStrikes,
		FinishGrace: cfg.FinishGrace(),
		TTL:         cfg.SessionTTL(),
		BoardSize:   cfg.BoardSize,
	}, opts...)
	cancel()
	if err != nil {
		log.Fatalf("session store init error: %v", err)
	}
	defer func() { _ = st.Close() }()

	srv := api.NewServer(st, logger)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("duel_server_listen", zap.String("addr", cfg.ListenAddr))
		return srv.ListenAndServe(cfg.ListenAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("duel_server_exit", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("duel_server_stopped")
}
