package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/josh-kwaku/wallet-ledger/internal/auth"
	"github.com/josh-kwaku/wallet-ledger/internal/config"
	"github.com/josh-kwaku/wallet-ledger/internal/events"
	"github.com/josh-kwaku/wallet-ledger/internal/fx"
	"github.com/josh-kwaku/wallet-ledger/internal/handler"
	"github.com/josh-kwaku/wallet-ledger/internal/idempotency"
	"github.com/josh-kwaku/wallet-ledger/internal/ledger"
	"github.com/josh-kwaku/wallet-ledger/internal/logging"
	"github.com/josh-kwaku/wallet-ledger/internal/metrics"
	"github.com/josh-kwaku/wallet-ledger/internal/middleware"
	"github.com/josh-kwaku/wallet-ledger/internal/repository"
	"github.com/josh-kwaku/wallet-ledger/internal/service"
	"github.com/josh-kwaku/wallet-ledger/internal/service/orchestrator"
	"github.com/josh-kwaku/wallet-ledger/internal/service/reconciliation"
)

const version = "1.0.0"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("wallet-ledger", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	defaultLimit, err := decimal.NewFromString(cfg.DefaultDailyLimit)
	if err != nil {
		slog.Error("invalid DEFAULT_DAILY_LIMIT", "value", cfg.DefaultDailyLimit, "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector()

	walletRepo := repository.NewWalletRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	userRepo := repository.NewUserRepository(db)
	reportRepo := repository.NewReportRepository(db)
	idemRepo := repository.NewIdempotencyRepository(db)

	balances := ledger.NewBalanceEngine(ledgerRepo)
	rates := fx.NewRateService()
	guard := idempotency.NewGuard(idemRepo, cfg.IdempotencyTTL)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTExpiry)

	money := orchestrator.NewService(walletRepo, ledgerRepo, txRepo, outboxRepo, balances, rates, guard, collector, db)
	recon := reconciliation.NewService(walletRepo, ledgerRepo, balances, outboxRepo, collector, db)
	wallets := service.NewWalletService(walletRepo, db, defaultLimit)
	users := service.NewUserService(userRepo, walletRepo, issuer, db, defaultLimit, cfg.JWTExpiry)
	reports := service.NewReportService(walletRepo, txRepo, ledgerRepo, reportRepo)

	if err := users.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		slog.Error("failed to seed admin user", "error", err)
		os.Exit(1)
	}

	// A ledger that does not balance at startup is reported, not fatal:
	// operators need the admin endpoints to investigate it.
	if err := recon.RequireBalancedLedger(ctx); err != nil {
		slog.Error("ledger failed startup verification", "error", err)
	}

	health := handler.NewHealthHandler(db, version)

	var sink events.Sink = events.NewLogSink(logger)
	if cfg.RedisURL != "" {
		rdb, err := newRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			slog.Warn("redis unavailable, events will be logged only", "error", err)
		} else {
			defer rdb.Close()
			streamSink := events.NewRedisStreamSink(rdb, cfg.EventStream, cfg.EventStreamMaxLen)
			sink = streamSink
			health.WithCheck("event_stream", streamSink)
		}
	}

	dispatcher := events.NewDispatcher(outboxRepo, sink, db, logger.With("component", "outbox"), collector, events.DispatcherConfig{
		Interval:    cfg.OutboxPollInterval,
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.OutboxMaxAttempts,
	})

	var workers sync.WaitGroup
	startWorker := func(run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(ctx)
		}()
	}
	startWorker(dispatcher.Start)
	startWorker(func(ctx context.Context) {
		guard.StartJanitor(ctx, logger.With("component", "idempotency"), cfg.IdempotencySweep)
	})
	if cfg.FXLiveEnabled {
		refresher := fx.NewRefresher(rates, fx.NewLiveSource(cfg.FXAPIURL), logger.With("component", "fx"), cfg.FXRefreshInterval)
		startWorker(refresher.Start)
	}

	mux := http.NewServeMux()
	registerRoutes(mux, routes{
		issuer:    issuer,
		health:    health,
		auth:      handler.NewAuthHandler(users),
		users:     handler.NewUserHandler(users),
		wallets:   handler.NewWalletHandler(wallets),
		transfers: handler.NewTransferHandler(money, wallets),
		history:   handler.NewHistoryHandler(reports, wallets),
		fx:        handler.NewFXHandler(rates),
		admin:     handler.NewAdminHandler(recon, reports, users),
		metrics:   collector.Handler(),
	})

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", idempotency.Header, "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Location"},
		AllowCredentials: false,
		MaxAge:           300,
	})

	var root http.Handler = mux
	root = middleware.Metrics(collector)(root)
	root = middleware.Idempotency(root)
	root = middleware.Logging(root)
	root = middleware.RequestID(root)
	root = middleware.Recovery(collector)(root)
	root = corsHandler(root)
	root = otelhttp.NewHandler(root, "wallet-ledger")

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	workers.Wait()
	slog.Info("server stopped")
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("newRedisClient: parse url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("newRedisClient: ping: %w", err)
	}
	return client, nil
}
