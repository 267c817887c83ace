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

	"marketplace-ledger/config"
	httpHandler "marketplace-ledger/internal/adapter/http/handler"
	pgStorage "marketplace-ledger/internal/adapter/storage/postgres"
	redisStorage "marketplace-ledger/internal/adapter/storage/redis"
	"marketplace-ledger/internal/core/ports"
	"marketplace-ledger/internal/service"
	"marketplace-ledger/internal/worker"
	"marketplace-ledger/pkg/logger"

	"golang.org/x/sync/errgroup"
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
		Msg("Starting Marketplace Ledger")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// Apply embedded schema migrations
	if err := pgStorage.RunMigrations(pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	log.Info().Msg("Migrations applied")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// Initialize repositories
	merchantRepo := pgStorage.NewMerchantRepo(pool)
	ledgerRepo := pgStorage.NewLedgerEntryRepo(pool)
	orderRepo := pgStorage.NewOrderRepo(pool)
	productRepo := pgStorage.NewProductRepo(pool)
	rechargeRepo := pgStorage.NewRechargeRepo(pool)
	withdrawalRepo := pgStorage.NewWithdrawalRepo(pool)
	vipRepo := pgStorage.NewVipRepo(pool)
	attendanceRepo := pgStorage.NewAttendanceRepo(pool)
	idempotencyRepo := pgStorage.NewIdempotencyRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)
	verifier := service.NewBcryptFundsPasswordVerifier(cfg.Ledger.BcryptCost)

	// Initialize business services
	ledgerSvc := service.NewLedgerService(merchantRepo, ledgerRepo, transactor, log)
	orderSvc := service.NewOrderService(orderRepo, merchantRepo, productRepo, ledgerSvc, transactor, cfg.Ledger.CompletionDays, log)
	rechargeSvc := service.NewRechargeService(rechargeRepo, merchantRepo, ledgerSvc, idempotencyRepo, idempotencyCache, transactor, log)
	withdrawalSvc := service.NewWithdrawalService(withdrawalRepo, merchantRepo, ledgerSvc, verifier, idempotencyRepo, idempotencyCache, transactor, log)
	vipSvc := service.NewVipService(vipRepo, merchantRepo, ledgerSvc, verifier, transactor, log)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, merchantRepo, ledgerSvc, transactor, cfg.Ledger.SignInReward, log)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		LedgerSvc:      ledgerSvc,
		OrderSvc:       orderSvc,
		RechargeSvc:    rechargeSvc,
		WithdrawalSvc:  withdrawalSvc,
		VipSvc:         vipSvc,
		AttendanceSvc:  attendanceSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	sweeper := worker.NewSweeper(orderSvc, cfg.Sweeper.Interval, log)

	// Run server and sweeper until a signal arrives
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := sweeper.Run(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("sweeper: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Shutdown with error")
	}
	log.Info().Msg("Server exited")
}
