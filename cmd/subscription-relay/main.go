// Package main provides the entry point for the subscription relay server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sipico/subscription-relay/internal/admin"
	"github.com/sipico/subscription-relay/internal/api"
	"github.com/sipico/subscription-relay/internal/auth"
	"github.com/sipico/subscription-relay/internal/config"
	"github.com/sipico/subscription-relay/internal/ledger"
	"github.com/sipico/subscription-relay/internal/logging"
	"github.com/sipico/subscription-relay/internal/metrics"
	"github.com/sipico/subscription-relay/internal/middleware"
	"github.com/sipico/subscription-relay/internal/relay"
	"github.com/sipico/subscription-relay/internal/solana"
)

const version = "0.1.0"

// shutdownTimeout bounds graceful shutdown; in-flight sends may need a full
// confirmation window.
const shutdownTimeout = 45 * time.Second

// serverComponents holds everything built from the configuration.
type serverComponents struct {
	logger       *slog.Logger
	logLevel     *slog.LevelVar
	registry     *prometheus.Registry
	ledger       *ledger.Client
	relay        *relay.Service
	tokens       *auth.TokenIssuer
	adminHandler *admin.Handler
	writeLimiter *middleware.RateLimiter
	mainRouter   http.Handler
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "subscription-relay: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration, wires the server and blocks until shutdown.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	components, err := initializeComponents(cfg, os.Stdout)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, components)
}

// initializeComponents builds the logger, ledger client, relay and routers.
func initializeComponents(cfg *config.Config, logOut io.Writer) (*serverComponents, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logLevel := new(slog.LevelVar)
	logLevel.Set(level)
	logger := logging.New(logOut, cfg.LogFormat, logLevel)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Init(registry); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("PROGRAM_ID: %w", err)
	}
	treasury, err := solana.PublicKeyFromBase58(cfg.TreasuryPubkey)
	if err != nil {
		return nil, fmt.Errorf("TREASURY_PUBKEY: %w", err)
	}
	commitment, err := ledger.ParseCommitment(cfg.Commitment)
	if err != nil {
		return nil, err
	}
	keys, err := relay.ParseKeyring(cfg.SigningKeys()...)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing keys: %w", err)
	}

	ledgerClient := ledger.NewClient(cfg.SolanaRPCURL,
		ledger.WithHTTPClient(&http.Client{
			Timeout: 30 * time.Second,
			Transport: &ledger.LoggingTransport{
				Transport: http.DefaultTransport,
				Logger:    logger,
				Prefix:    "LEDGER",
			},
		}),
		ledger.WithCommitment(commitment),
		ledger.WithConfirmTimeout(cfg.ConfirmTimeout),
		ledger.WithLogger(logger),
	)

	service := relay.NewService(ledgerClient, keys, relay.Config{
		ProgramID: programID,
		Treasury:  treasury,
	}, logger)

	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret))
	authenticator := auth.NewAuthenticator(tokens)

	adminHandler := admin.NewHandler(service, logLevel, logger)
	if err := adminHandler.SetAdminToken(cfg.AdminToken); err != nil {
		return nil, fmt.Errorf("failed to hash admin token: %w", err)
	}

	writeLimiter := middleware.NewRateLimiter(cfg.WriteRateLimit, cfg.WriteRateBurst, api.OwnerKey)

	handler := api.NewHandler(service, authenticator, logger)
	mainRouter := api.NewRouter(handler, api.RouterConfig{
		Authorizer:         &auth.BearerAuthorizer{Tokens: tokens},
		WriteLimiter:       writeLimiter,
		Admin:              adminHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger)

	logger.Info("relay configured",
		"version", version,
		"program_id", programID.String(),
		"treasury", treasury.String(),
		"commitment", string(commitment),
		"signing_keys", len(keys.PublicKeys()),
		"admin_api", cfg.AdminToken != "",
	)

	return &serverComponents{
		logger:       logger,
		logLevel:     logLevel,
		registry:     registry,
		ledger:       ledgerClient,
		relay:        service,
		tokens:       tokens,
		adminHandler: adminHandler,
		writeLimiter: writeLimiter,
		mainRouter:   mainRouter,
	}, nil
}

// serve runs the relay and metrics listeners until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, c *serverComponents) error {
	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           c.mainRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsListenAddr,
		Handler:           metrics.HandlerFor(c.registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	c.writeLimiter.StartCleanup(time.Minute, stopCleanup)

	errCh := make(chan error, 2)
	go func() {
		c.logger.Info("metrics listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	go func() {
		c.logger.Info("relay listening", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("relay server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		c.logger.Info("shutting down")
	case serveErr = <-errCh:
		c.logger.Error("server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		c.logger.Error("relay shutdown failed", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		c.logger.Error("metrics shutdown failed", "error", err)
	}
	c.logger.Info("stopped")
	return serveErr
}
