package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aimerfeng/ContribChain/internal/auth"
	"github.com/aimerfeng/ContribChain/internal/badge"
	"github.com/aimerfeng/ContribChain/internal/config"
	"github.com/aimerfeng/ContribChain/internal/contribution"
	"github.com/aimerfeng/ContribChain/internal/database"
	"github.com/aimerfeng/ContribChain/internal/ledger"
	"github.com/aimerfeng/ContribChain/internal/logging"
	"github.com/aimerfeng/ContribChain/internal/middleware"
	"github.com/aimerfeng/ContribChain/internal/monitoring"
	"github.com/aimerfeng/ContribChain/internal/project"
	"github.com/aimerfeng/ContribChain/internal/reward"
	"github.com/aimerfeng/ContribChain/internal/server"
	"github.com/aimerfeng/ContribChain/internal/store"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logging
	logging.Setup(&cfg.Logging, cfg.Server.Env)

	log.Info().
		Str("env", cfg.Server.Env).
		Str("database", cfg.Database.Driver).
		Msg("Starting ContribChain API server")

	ctx := context.Background()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Initialize Prometheus metrics
	monitoring.Init()
	if err := monitoring.RegisterDBStats(db.DB, cfg.Database.Driver); err != nil {
		log.Warn().Err(err).Msg("Failed to register database metrics")
	}

	st := store.New(db)

	// Ledger queue: Redis Streams when configured. Without it tokens stay pending
	// until a queue is configured and the redispatch job picks them up.
	var (
		dispatcher ledger.Dispatcher = ledger.NopDispatcher{}
		queue      *ledger.QueueDispatcher
		publisher  *ledger.RedisPublisher
		ledgerPing server.Pinger
	)
	if cfg.Redis.URL != "" {
		client, err := ledger.NewRedisClient(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid REDIS_URL")
		}
		publisher = ledger.NewRedisPublisher(client, cfg.Redis.Stream, ledger.DefaultBreakerConfig())
		if err := publisher.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Ledger queue unreachable at startup")
		}
		queue = ledger.NewQueueDispatcher(publisher, cfg.Reward.DispatchBuffer)
		queue.Start()
		dispatcher = queue
		ledgerPing = publisher
		log.Info().Str("stream", cfg.Redis.Stream).Msg("Ledger queue enabled")
	} else {
		log.Warn().Msg("REDIS_URL not set, mint requests will not be dispatched")
	}

	issuer := auth.NewIssuer(&cfg.JWT)
	authService := auth.NewService(st, issuer)
	policy, err := reward.PolicyFromMultipliers(cfg.Reward.Multipliers)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid REWARD_MULTIPLIERS")
	}
	rewards := reward.NewEngine(st, reward.WithDispatcher(dispatcher), reward.WithAmountPolicy(policy))

	var scheduler *reward.Scheduler
	if queue != nil {
		scheduler, err = reward.NewScheduler(rewards, &cfg.Reward)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create redispatch scheduler")
		}
		if err := scheduler.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start redispatch scheduler")
		}
	}

	loginLimiter := middleware.NewRateLimiter(cfg.RateLimit.LoginPerMinute, cfg.RateLimit.LoginBurst)
	stopCleanup := make(chan struct{})
	loginLimiter.StartCleanup(time.Minute, stopCleanup)

	srv := server.NewAPIServer(cfg, server.Services{
		Store:         st,
		Auth:          authService,
		Contributions: contribution.NewManager(st, rewards),
		Rewards:       rewards,
		Badges:        badge.NewService(st),
		Projects:      project.NewService(st),
		Guard:         middleware.NewGuard(issuer, st),
		LoginLimiter:  loginLimiter,
		Ledger:        ledgerPing,
		Scheduler:     scheduler,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Msg("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().
		Str("signal", sig.String()).
		Msg("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	close(stopCleanup)
	if scheduler != nil {
		if err := scheduler.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop redispatch scheduler")
		}
	}
	if queue != nil {
		if err := queue.Close(shutdownCtx); err != nil {
			log.Error().Err(err).Int("pending", queue.Pending()).Msg("Ledger queue not drained")
		}
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close ledger connection")
		}
	}

	log.Info().Msg("Server exited gracefully")
}
