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

	"account-verifier/internal/auth"
	"account-verifier/internal/classify"
	"account-verifier/internal/config"
	"account-verifier/internal/httpapi"
	"account-verifier/internal/monitor"
	"account-verifier/internal/orchestrator"
	"account-verifier/internal/queue"
	"account-verifier/internal/settings"
	"account-verifier/internal/telephony"
	"account-verifier/internal/verify"
	"account-verifier/pkg/logger"
	"account-verifier/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local development convenience; the file is optional.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	store := verify.NewPostgresStore(db)
	settingsStore := settings.NewRedisStore(rdb)
	runtime := settings.NewRuntime(settingsStore, cfg, log)

	selector := telephony.NewSelector(runtime, telephony.NewFactory(cfg, log), log)
	mon := monitor.New(0, log)

	orch := orchestrator.New(
		store,
		selector,
		runtime,
		classify.NewKeywordClassifier(),
		mon,
		rdb,
		log,
	)

	processor := queue.NewProcessor(store, orch, runtime, log)
	supervisor := queue.NewSupervisor(processor)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	handlers := httpapi.Handlers{
		Auth:       authManager,
		Store:      store,
		Orch:       orch,
		Supervisor: supervisor,
		Monitor:    mon,
		Providers:  selector,
		Settings:   settingsStore,
		Log:        log,
	}
	registerRoutes(r, handlers, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "simulated", cfg.Calls.Simulated)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		// Stop the queue first so the in-flight call is hung up before the
		// webhook listener goes away.
		if err := supervisor.Shutdown(shutdownCtx); err != nil {
			log.Error("queue shutdown failed", "err", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("service exited with error", "err", err)
		os.Exit(1)
	}
}
