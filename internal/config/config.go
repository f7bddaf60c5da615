// Package config provides configuration loading and validation from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sipico/subscription-relay/internal/ledger"
	"github.com/sipico/subscription-relay/internal/logging"
	"github.com/sipico/subscription-relay/internal/solana"
)

// MinJWTSecretLength is the shortest accepted HS256 secret.
const MinJWTSecretLength = 32

// Defaults for optional settings.
const (
	DefaultServerHost     = "127.0.0.1"
	DefaultServerPort     = 8080
	DefaultMetricsAddr    = "localhost:9090"
	DefaultRPCURL         = "https://api.devnet.solana.com"
	DefaultProgramID      = "BE8PNroWQBpof1qctnwzftcFKRRVuqbYQ5Xv1LnREQBc"
	DefaultTreasury       = "3WCHd9Z57YfUFb9kaUkq5nyQjyWMVLVHigvYfvSfsHEG"
	DefaultConfirmTimeout = 30 * time.Second
)

// Config holds all relay configuration.
type Config struct {
	LogLevel           string // debug, info, warn, error
	LogFormat          string // json or text
	ServerHost         string
	ServerPort         int
	MetricsListenAddr  string // Metrics listener address (e.g., "localhost:9090")
	SolanaRPCURL       string
	ProgramID          string
	TreasuryPubkey     string
	JWTSecret          string   // Required: HS256 secret for session tokens
	PhantomPrivateKey  string   // Required: base58 64-byte keypair
	CustodialKeys      []string // Extra base58 keypairs the relay may sign for
	Commitment         string
	ConfirmTimeout     time.Duration
	WriteRateLimit     float64 // per-owner writes per second
	WriteRateBurst     int
	CORSAllowedOrigins []string
	AdminToken         string // Empty disables the admin API
}

// Load parses configuration from environment variables, after loading an
// optional .env file from the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		LogLevel:           getenv("LOG_LEVEL", "info"),
		LogFormat:          getenv("LOG_FORMAT", "json"),
		ServerHost:         getenv("SERVER_HOST", DefaultServerHost),
		MetricsListenAddr:  getenv("METRICS_LISTEN_ADDR", DefaultMetricsAddr),
		SolanaRPCURL:       getenv("SOLANA_RPC_URL", DefaultRPCURL),
		ProgramID:          getenv("PROGRAM_ID", DefaultProgramID),
		TreasuryPubkey:     getenv("TREASURY_PUBKEY", DefaultTreasury),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		PhantomPrivateKey:  strings.TrimSpace(os.Getenv("PHANTOM_PRIVATE_KEY")),
		CustodialKeys:      splitList(os.Getenv("CUSTODIAL_KEYS")),
		Commitment:         getenv("COMMITMENT", string(ledger.CommitmentConfirmed)),
		CORSAllowedOrigins: splitList(getenv("CORS_ALLOWED_ORIGINS", "*")),
		AdminToken:         os.Getenv("ADMIN_TOKEN"),
	}

	var err error
	if cfg.ServerPort, err = getInt("SERVER_PORT", DefaultServerPort); err != nil {
		return nil, err
	}
	if cfg.WriteRateBurst, err = getInt("WRITE_RATE_BURST", 5); err != nil {
		return nil, err
	}
	if cfg.WriteRateLimit, err = getFloat("WRITE_RATE_LIMIT", 1); err != nil {
		return nil, err
	}
	if cfg.ConfirmTimeout, err = getDuration("CONFIRM_TIMEOUT", DefaultConfirmTimeout); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks all configuration constraints.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT out of range: %d", c.ServerPort)
	}
	if c.SolanaRPCURL == "" {
		return errors.New("SOLANA_RPC_URL is required")
	}
	if _, err := solana.PublicKeyFromBase58(c.ProgramID); err != nil {
		return fmt.Errorf("PROGRAM_ID: %w", err)
	}
	if _, err := solana.PublicKeyFromBase58(c.TreasuryPubkey); err != nil {
		return fmt.Errorf("TREASURY_PUBKEY: %w", err)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	if len(c.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", MinJWTSecretLength)
	}
	if c.PhantomPrivateKey == "" {
		return errors.New("PHANTOM_PRIVATE_KEY environment variable is required")
	}
	if _, err := solana.KeypairFromBase58(c.PhantomPrivateKey); err != nil {
		return fmt.Errorf("PHANTOM_PRIVATE_KEY: %w", err)
	}
	for i, k := range c.CustodialKeys {
		if _, err := solana.KeypairFromBase58(k); err != nil {
			return fmt.Errorf("CUSTODIAL_KEYS[%d]: %w", i, err)
		}
	}
	if _, err := ledger.ParseCommitment(c.Commitment); err != nil {
		return fmt.Errorf("COMMITMENT: %w", err)
	}
	if c.ConfirmTimeout <= 0 {
		return errors.New("CONFIRM_TIMEOUT must be positive")
	}
	if c.WriteRateLimit <= 0 || c.WriteRateBurst <= 0 {
		return errors.New("WRITE_RATE_LIMIT and WRITE_RATE_BURST must be positive")
	}
	return nil
}

// ListenAddr returns the host:port the relay serves on.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.ServerHost, strconv.Itoa(c.ServerPort))
}

// SigningKeys returns every keypair the relay signs with, the primary first.
func (c *Config) SigningKeys() []string {
	return append([]string{c.PhantomPrivateKey}, c.CustodialKeys...)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, v)
	}
	return f, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
