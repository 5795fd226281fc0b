package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prediction-trade-gateway/config"
	"prediction-trade-gateway/internal/adapter/rpc"
	"prediction-trade-gateway/internal/adapter/settlement"
	pgStorage "prediction-trade-gateway/internal/adapter/storage/postgres"
	redisStorage "prediction-trade-gateway/internal/adapter/storage/redis"
	"prediction-trade-gateway/internal/core/ports"
	"prediction-trade-gateway/internal/service"
	"prediction-trade-gateway/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Prediction Trade Gateway")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	userRepo := pgStorage.NewUserRepo(pool)
	apiKeyRepo := pgStorage.NewAPIKeyRepo(pool)
	orderRepo := pgStorage.NewOrderRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	accessCodeStore := redisStorage.NewAccessCodeStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services. A missing or malformed custody master key
	// aborts startup: signing must never run without it.
	encSvc, err := service.NewAESEncryptionService(cfg.Custody.MasterKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize custody encryption service")
	}
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Settlement / market data client
	settlementClient := settlement.NewClient(cfg.Settlement, log)

	// Initialize business services
	credentialSvc := service.NewCredentialService(userRepo, apiKeyRepo, accessCodeStore, hashSvc, tokenSvc, log)
	walletSvc := service.NewWalletService(userRepo, encSvc, settlementClient, log)
	tradingSvc := service.NewTradingService(
		orderRepo,
		idempotencyCache,
		walletSvc,
		settlementClient,
		settlementClient,
		transactor,
		log,
	)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with the RPC endpoint
	router := rpc.SetupRouter(rpc.RouterDeps{
		CredentialSvc:  credentialSvc,
		WalletSvc:      walletSvc,
		TradingSvc:     tradingSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
