// Command paywall-server starts the paywall HTTP API.
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

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/and161185/paywall/internal/chain"
	"github.com/and161185/paywall/internal/config"
	"github.com/and161185/paywall/internal/limiter"
	"github.com/and161185/paywall/internal/migrate"
	"github.com/and161185/paywall/internal/repository"
	"github.com/and161185/paywall/internal/repository/memory"
	"github.com/and161185/paywall/internal/repository/postgres"
	"github.com/and161185/paywall/internal/server/httpserver"
	"github.com/and161185/paywall/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, wires the ledger, chain source and services, and serves HTTP.
func main() {
	var cfg config.Config
	if err := cfg.PopulateFromEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cfg.OutputUsage()
		os.Exit(2)
	}

	logger := newLogger(cfg.Dev)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("store", cfg.Store),
		zap.String("chain", cfg.ChainBackend),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ledger store and login limiter
	var (
		ledger repository.Ledger
		lim    limiter.Limiter
		ready  func(context.Context) error
	)
	switch cfg.Store {
	case config.StorePostgresql:
		applied, err := migrate.Up(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		logger.Info("migrations applied", zap.Int64s("versions", applied))
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("pgxpool.New", zap.Error(err))
		}
		defer pool.Close()
		ledger = postgres.NewLedger(&postgres.DB{Pool: pool}, cfg.ActivityCap)
		lim = limiter.NewPG(pool, limiter.DefaultWindow, limiter.DefaultMaxFails, limiter.DefaultBlockFor)
		ready = pool.Ping
	default:
		ledger = memory.NewLedger(cfg.ActivityCap)
		lim = limiter.NewMemory(limiter.DefaultWindow, limiter.DefaultMaxFails, limiter.DefaultBlockFor)
	}

	src, err := chainSource(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("chain source", zap.Error(err))
	}
	verifier := chain.NewVerifier(src, cfg.TokenDecimals, cfg.ChainTimeout, logger)

	// Services
	stats := service.NewStatsService(ledger.Articles, ledger.Payments, ledger.Stats)
	access := service.NewAccessService(ledger.Articles, ledger.Payments, verifier, stats, service.AccessConfig{
		Creator:            cfg.CreatorAddress,
		Recipient:          cfg.RecipientAddress,
		Currency:           cfg.Currency,
		Network:            cfg.Network,
		ChainID:            cfg.ChainID,
		PersistChainGrants: cfg.PersistChainGrants,
	}, logger)
	sched := service.NewScheduler()
	defer sched.Stop()
	payments := service.NewPaymentService(ledger, stats, access, sched, service.PaymentConfig{
		ConfirmDelay: cfg.ConfirmDelay,
		PendingTTL:   cfg.PendingTTL,
		Currency:     cfg.Currency,
	}, logger)
	nonces := service.NewNonceStore(cfg.NonceTTL)
	defer nonces.Close()
	auth := service.NewAuthService(service.AuthConfig{
		Domain:     cfg.SIWEDomain,
		ChainID:    cfg.ChainID,
		SignKey:    []byte(cfg.SessionKey),
		SessionTTL: cfg.SessionTTL,
	}, nonces, lim, logger)

	if cfg.Seed {
		n, err := service.Seed(ctx, ledger.Articles, stats)
		if err != nil {
			logger.Fatal("seed articles", zap.Error(err))
		}
		logger.Info("seeded articles", zap.Int("count", n))
	}

	sweeper, err := service.NewSweeper(cfg.SweepSchedule, payments, logger)
	if err != nil {
		logger.Fatal("sweeper", zap.Error(err))
	}
	sweeper.Start()
	defer sweeper.Stop()

	if !cfg.Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	api := httpserver.New(httpserver.Services{
		Access:   access,
		Payments: payments,
		Articles: service.NewArticleService(ledger.Articles, stats, logger),
		Auth:     auth,
		Stats:    stats,
		Activity: service.NewActivityService(ledger.Activities),
		Users:    service.NewUserService(ledger.Users),
		Chain:    verifier,
		Ready:    ready,
	}, httpserver.Config{
		Creator:             cfg.CreatorAddress,
		Recipient:           cfg.RecipientAddress,
		Currency:            cfg.Currency,
		Network:             cfg.Network,
		SessionTTL:          cfg.SessionTTL,
		SecureCookie:        !cfg.Dev,
		ReadRequiresSession: cfg.ReadRequiresSession,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown", zap.Error(err))
			_ = srv.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}

func newLogger(dev bool) *zap.Logger {
	build := zap.NewProduction
	if dev {
		build = zap.NewDevelopment
	}
	logger, err := build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// chainSource builds the transfer source selected by the chain backend.
func chainSource(ctx context.Context, cfg config.Config, log *zap.Logger) (chain.Source, error) {
	switch cfg.ChainBackend {
	case config.ChainExplorer:
		return chain.NewExplorerSource(cfg.ExplorerURL, cfg.ExplorerAPIKey, cfg.TokenContract,
			chain.WithRetries(cfg.ChainRetries, 500*time.Millisecond),
			chain.WithLogger(log.Named("explorer")),
		), nil
	case config.ChainRPC:
		client, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial rpc: %w", err)
		}
		return chain.NewRPCSource(client, cfg.TokenContract, cfg.TokenDecimals), nil
	default:
		return chain.Disabled{}, nil
	}
}
