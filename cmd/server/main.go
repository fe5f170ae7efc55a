package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/cefr-exam-engine/internal/config"
	"github.com/stemsi/cefr-exam-engine/internal/database"
	"github.com/stemsi/cefr-exam-engine/internal/handler"
	"github.com/stemsi/cefr-exam-engine/internal/logger"
	"github.com/stemsi/cefr-exam-engine/internal/middleware"
	"github.com/stemsi/cefr-exam-engine/internal/repository"
	"github.com/stemsi/cefr-exam-engine/internal/router"
	"github.com/stemsi/cefr-exam-engine/internal/service"
	"github.com/stemsi/cefr-exam-engine/internal/validator"
	ws "github.com/stemsi/cefr-exam-engine/internal/websocket"
	"github.com/stemsi/cefr-exam-engine/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("proctoring_mode", cfg.ProctoringMode).
		Msg("Starting CEFR Exam Engine")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis (optional) ───────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	sessionRepo := repository.NewExamSessionRepository(pool)
	recordingRepo := repository.NewRecordingRepository(pool)
	certRepo := repository.NewCertificationRepository(pool)
	settingRepo := repository.NewSettingRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool)

	// ─── Realtime ──────────────────────────────────────────────────────
	hub := ws.NewHub(monitorRepo, cfg.TimerTickInterval, log)
	var notifier service.Notifier = hub
	var relay *ws.RedisRelay
	if rdb != nil {
		relay = ws.NewRedisRelay(rdb, hub, log)
		notifier = relay
	}

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	defaults := service.DefaultSystemConfig(cfg)
	settingService := service.NewSettingService(settingRepo, defaults, log)
	videoService := service.NewVideoService(sessionRepo, recordingRepo, cfg.VideoDir, cfg.MaxChunkBytes, log)
	certService := service.NewCertificationService(certRepo, log)

	hooks := service.NewPostCommitHooks(log,
		service.CertificateHook(certService),
		service.VideoAssemblyHook(videoService),
	)
	postCommit := worker.NewPostCommitWorker(hooks, worker.PostCommitQueueSize, log)

	sessionService := service.NewExamSessionService(
		sessionRepo, questionRepo, userRepo,
		settingService, defaults,
		notifier, postCommit, log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Exam:    handler.NewExamHandler(sessionService, log),
		Video:   handler.NewVideoHandler(videoService, cfg.MaxChunkBytes, log),
		WS:      handler.NewWSHandler(hub, log, cfg.AllowedOrigins),
		Setting: handler.NewSettingHandler(settingService, log),
		Health:  handler.NewHealthHandler(healthChecks(pool.Ping, rdb != nil, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}), log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	spawn := func(run func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(workerCtx)
		}()
	}

	var lease worker.Lease
	var limiter *middleware.RateLimiter
	if rdb != nil {
		lease = worker.NewRedisLease(rdb, cfg.SweepInterval)
		limiter = middleware.NewRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, log)
		spawn(relay.Run)
	}
	spawn(hub.Run)
	spawn(postCommit.Start)
	spawn(worker.NewExpirySweeper(sessionService, lease, cfg.SweepInterval, log).Start)
	spawn(worker.NewVideoCleaner(videoService.Root(), cfg.VideoRetention, cfg.VideoCleanupInterval, log).Start)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(router.Dependencies{
		Auth:        authService,
		Settings:    settingService,
		RateLimiter: limiter,
		Log:         log,
	}, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers; the post-commit queue drains before Start returns.
	workerCancel()
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	if err := postCommit.Wait(drainCtx); err != nil {
		log.Warn().Err(err).Msg("post-commit queue not fully drained")
	}

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-drainCtx.Done():
		log.Warn().Msg("background workers did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

func healthChecks(pgPing handler.HealthCheck, withRedis bool, redisPing handler.HealthCheck) map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{"postgres": pgPing}
	if withRedis {
		checks["redis"] = redisPing
	}
	return checks
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
