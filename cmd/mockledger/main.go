// Package main implements a standalone mock ledger node for local end-to-end runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sipico/subscription-relay/internal/logging"
	"github.com/sipico/subscription-relay/internal/solana"
	"github.com/sipico/subscription-relay/internal/storage"
	"github.com/sipico/subscription-relay/internal/testutil/mockledger"
)

// getPort returns the port from the PORT environment variable or the default.
func getPort() string {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8899"
	}
	return port
}

// getDBPath returns the sqlite path; the default keeps state in memory.
func getDBPath() string {
	path := os.Getenv("LEDGER_DB_PATH")
	if path == "" {
		return ":memory:"
	}
	return path
}

// createServer creates a mock ledger backed by the store at dbPath, reading
// PROGRAM_ID and FIXED_PARAMETERS from the environment.
func createServer(dbPath string, logger *slog.Logger) (*mockledger.Server, *storage.SQLiteStorage, error) {
	store, err := storage.New(dbPath)
	if err != nil {
		return nil, nil, err
	}

	opts := []mockledger.Option{
		mockledger.WithStorage(store),
		mockledger.WithLogger(logger),
		mockledger.WithClock(time.Now),
	}
	if id := os.Getenv("PROGRAM_ID"); id != "" {
		programID, err := solana.PublicKeyFromBase58(id)
		if err != nil {
			_ = store.Close() //nolint:errcheck
			return nil, nil, fmt.Errorf("PROGRAM_ID: %w", err)
		}
		opts = append(opts, mockledger.WithProgramID(programID))
	}
	if v := os.Getenv("FIXED_PARAMETERS"); v != "" {
		fixed, err := strconv.ParseBool(v)
		if err != nil {
			_ = store.Close() //nolint:errcheck
			return nil, nil, fmt.Errorf("FIXED_PARAMETERS: invalid boolean %q", v)
		}
		if fixed {
			opts = append(opts, mockledger.WithFixedParameters())
		}
	}

	server, err := mockledger.NewServer(opts...)
	if err != nil {
		_ = store.Close() //nolint:errcheck
		return nil, nil, err
	}
	return server, store, nil
}

// createHTTPServer creates an http.Server with the given port and handler.
func createHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// runHealthCheck performs an HTTP health check against the local server.
// Returns 0 on success, 1 on failure. Used by container HEALTHCHECK.
func runHealthCheck() int {
	return doHealthCheck("http://localhost:" + getPort() + "/admin/clock")
}

// doHealthCheck performs the actual health check HTTP request.
// Extracted for testability.
func doHealthCheck(url string) int {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return 1
	}
	//nolint:errcheck // Response body close errors are unrecoverable in health check
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}

func main() {
	// Handle health check subcommand for distroless container health checks
	if len(os.Args) > 1 && os.Args[1] == "health" {
		os.Exit(runHealthCheck())
	}

	level := new(slog.LevelVar)
	if l, err := logging.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		level.Set(l)
	}
	logger := logging.New(os.Stderr, "text", level)

	if err := run(logger); err != nil {
		logger.Error("mockledger failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	server, store, err := createServer(getDBPath(), logger)
	if err != nil {
		return err
	}
	defer func() {
		server.Close()
		_ = store.Close() //nolint:errcheck
	}()

	port := getPort()
	httpServer := createHTTPServer(port, server)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("shutting down mockledger")
		//nolint:errcheck
		httpServer.Close()
	}()

	logger.Info("mockledger listening", "port", port, "program_id", server.ProgramID().String())
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	logger.Info("mockledger stopped")
	return nil
}
