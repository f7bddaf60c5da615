package config

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sipico/subscription-relay/internal/solana"
)

var envKeys = []string{
	"LOG_LEVEL", "LOG_FORMAT", "SERVER_HOST", "SERVER_PORT", "METRICS_LISTEN_ADDR",
	"SOLANA_RPC_URL", "PROGRAM_ID", "TREASURY_PUBKEY", "JWT_SECRET", "PHANTOM_PRIVATE_KEY",
	"CUSTODIAL_KEYS", "COMMITMENT", "CONFIRM_TIMEOUT", "WRITE_RATE_LIMIT", "WRITE_RATE_BURST",
	"CORS_ALLOWED_ORIGINS", "ADMIN_TOKEN",
}

// clearEnv blanks every config variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func newKeypairString(t *testing.T) string {
	t.Helper()
	kp, err := solana.NewKeypair(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate keypair: %v", err)
	}
	return kp.String()
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	clearEnv(t)
	t.Setenv("JWT_SECRET", strings.Repeat("s", MinJWTSecretLength))
	t.Setenv("PHANTOM_PRIVATE_KEY", newKeypairString(t))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	return cfg
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Errorf("log settings = %q/%q, want info/json", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.ListenAddr() != "127.0.0.1:8080" {
		t.Errorf("ListenAddr() = %q, want 127.0.0.1:8080", cfg.ListenAddr())
	}
	if cfg.MetricsListenAddr != DefaultMetricsAddr {
		t.Errorf("MetricsListenAddr = %q", cfg.MetricsListenAddr)
	}
	if cfg.SolanaRPCURL != DefaultRPCURL || cfg.ProgramID != DefaultProgramID || cfg.TreasuryPubkey != DefaultTreasury {
		t.Errorf("unexpected ledger defaults: %+v", cfg)
	}
	if cfg.Commitment != "confirmed" || cfg.ConfirmTimeout != 30*time.Second {
		t.Errorf("unexpected confirmation defaults: %q %s", cfg.Commitment, cfg.ConfirmTimeout)
	}
	if cfg.WriteRateLimit != 1 || cfg.WriteRateBurst != 5 {
		t.Errorf("unexpected rate defaults: %v/%d", cfg.WriteRateLimit, cfg.WriteRateBurst)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Errorf("unexpected CORS default: %v", cfg.CORSAllowedOrigins)
	}
	if cfg.AdminToken != "" || len(cfg.CustodialKeys) != 0 {
		t.Error("expected admin token and custodial keys to be empty")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SERVER_HOST", "0.0.0.0")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("SOLANA_RPC_URL", "http://mockledger:8899")
	t.Setenv("CUSTODIAL_KEYS", " a, ,b ")
	t.Setenv("COMMITMENT", "finalized")
	t.Setenv("CONFIRM_TIMEOUT", "5s")
	t.Setenv("WRITE_RATE_LIMIT", "0.5")
	t.Setenv("WRITE_RATE_BURST", "2")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.ListenAddr() != "0.0.0.0:9000" {
		t.Errorf("ListenAddr() = %q", cfg.ListenAddr())
	}
	if cfg.SolanaRPCURL != "http://mockledger:8899" {
		t.Errorf("SolanaRPCURL = %q", cfg.SolanaRPCURL)
	}
	if len(cfg.CustodialKeys) != 2 || cfg.CustodialKeys[0] != "a" || cfg.CustodialKeys[1] != "b" {
		t.Errorf("CustodialKeys = %v", cfg.CustodialKeys)
	}
	if cfg.Commitment != "finalized" || cfg.ConfirmTimeout != 5*time.Second {
		t.Errorf("unexpected confirmation settings: %q %s", cfg.Commitment, cfg.ConfirmTimeout)
	}
	if cfg.WriteRateLimit != 0.5 || cfg.WriteRateBurst != 2 {
		t.Errorf("unexpected rate settings: %v/%d", cfg.WriteRateLimit, cfg.WriteRateBurst)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Errorf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoad_InvalidNumbers(t *testing.T) {
	tests := []struct{ key, value string }{
		{"SERVER_PORT", "eighty"},
		{"WRITE_RATE_BURST", "1.5"},
		{"WRITE_RATE_LIMIT", "fast"},
		{"CONFIRM_TIMEOUT", "30"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Errorf("Load() error = %v, want error naming %s", err, tt.key)
			}
		})
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("JWT_SECRET")
	t.Cleanup(func() { os.Unsetenv("JWT_SECRET") })

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_SECRET=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if cfg.JWTSecret != "from-dotenv" {
		t.Errorf("JWTSecret = %q, want value from .env", cfg.JWTSecret)
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg := validConfig(t)
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v, want nil", err)
		}
		if keys := cfg.SigningKeys(); len(keys) != 1 || keys[0] != cfg.PhantomPrivateKey {
			t.Errorf("SigningKeys() = %v", keys)
		}
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
		{"bad port", func(c *Config) { c.ServerPort = 70000 }, "SERVER_PORT"},
		{"missing rpc url", func(c *Config) { c.SolanaRPCURL = "" }, "SOLANA_RPC_URL"},
		{"bad program id", func(c *Config) { c.ProgramID = "xyz" }, "PROGRAM_ID"},
		{"bad treasury", func(c *Config) { c.TreasuryPubkey = "0OIl" }, "TREASURY_PUBKEY"},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET"},
		{"short secret", func(c *Config) { c.JWTSecret = "short" }, "JWT_SECRET"},
		{"missing key", func(c *Config) { c.PhantomPrivateKey = "" }, "PHANTOM_PRIVATE_KEY"},
		{"bad key", func(c *Config) { c.PhantomPrivateKey = "abc" }, "PHANTOM_PRIVATE_KEY"},
		{"bad custodial key", func(c *Config) { c.CustodialKeys = []string{"abc"} }, "CUSTODIAL_KEYS[0]"},
		{"bad commitment", func(c *Config) { c.Commitment = "rooted" }, "COMMITMENT"},
		{"zero timeout", func(c *Config) { c.ConfirmTimeout = 0 }, "CONFIRM_TIMEOUT"},
		{"zero rate", func(c *Config) { c.WriteRateLimit = 0 }, "WRITE_RATE_LIMIT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.want)
			}
		})
	}
}
