package main

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sipico/subscription-relay/internal/auth"
	"github.com/sipico/subscription-relay/internal/config"
	"github.com/sipico/subscription-relay/internal/program"
	"github.com/sipico/subscription-relay/internal/solana"
)

const secretAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "relayctl",
		Short: "Subscription relay tooling",
		Long:  `relayctl signs login challenges, generates secrets and keys, and derives subscription addresses.`,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load .env: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	root.AddCommand(
		newSignChallengeCommand(),
		newGenSecretCommand(),
		newDeriveAddressCommand(),
		newKeygenCommand(),
	)
	return root
}

func newSignChallengeCommand() *cobra.Command {
	var (
		timestamp int64
		loginURL  string
	)
	cmd := &cobra.Command{
		Use:   "sign-challenge",
		Short: "Sign the login challenge with PHANTOM_PRIVATE_KEY",
		Long: `Sign "Sign in to Subscription Manager: <timestamp>" with the keypair in
PHANTOM_PRIVATE_KEY and print the POST /auth body. With --login the body is
posted to the relay and the response printed instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kp, err := solana.KeypairFromBase58(strings.TrimSpace(os.Getenv("PHANTOM_PRIVATE_KEY")))
			if err != nil {
				return fmt.Errorf("PHANTOM_PRIVATE_KEY: %w", err)
			}
			if timestamp == 0 {
				timestamp = time.Now().Unix()
			}
			req := signChallenge(kp, timestamp)

			if loginURL == "" {
				return writeJSON(cmd.OutOrStdout(), req)
			}
			return login(cmd.OutOrStdout(), loginURL, req)
		},
	}
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "Unix timestamp to sign (default: now)")
	cmd.Flags().StringVar(&loginURL, "login", "", "Relay base URL to log in against")
	return cmd
}

func signChallenge(kp solana.Keypair, ts int64) auth.Request {
	sig := kp.Sign([]byte(auth.ChallengeMessage(ts)))
	return auth.Request{
		PublicKey: kp.PublicKey().String(),
		Signature: sig.String(),
		Timestamp: &ts,
	}
}

func login(out io.Writer, baseURL string, req auth.Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(strings.TrimRight(baseURL, "/")+"/auth", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	//nolint:errcheck
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	_, err = out.Write(respBody)
	return err
}

func newGenSecretCommand() *cobra.Command {
	var length int
	cmd := &cobra.Command{
		Use:   "gen-secret",
		Short: "Generate a JWT_SECRET line for .env",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if length < config.MinJWTSecretLength {
				return fmt.Errorf("length must be at least %d", config.MinJWTSecretLength)
			}
			secret, err := generateSecret(rand.Reader, length)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "JWT_SECRET=%s\n", secret)
			return err
		},
	}
	cmd.Flags().IntVar(&length, "length", config.MinJWTSecretLength, "Secret length")
	return cmd
}

func generateSecret(r io.Reader, length int) (string, error) {
	limit := big.NewInt(int64(len(secretAlphabet)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(r, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate secret: %w", err)
		}
		b[i] = secretAlphabet[n.Int64()]
	}
	return string(b), nil
}

func newDeriveAddressCommand() *cobra.Command {
	var (
		owner     string
		planID    uint64
		programID string
	)
	cmd := &cobra.Command{
		Use:   "derive-address",
		Short: "Print the subscription address and bump for an owner and plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ownerPK, err := solana.PublicKeyFromBase58(owner)
			if err != nil {
				return fmt.Errorf("--owner: %w", err)
			}
			if programID == "" {
				programID = os.Getenv("PROGRAM_ID")
			}
			if programID == "" {
				programID = config.DefaultProgramID
			}
			programPK, err := solana.PublicKeyFromBase58(programID)
			if err != nil {
				return fmt.Errorf("--program: %w", err)
			}

			addr, bump, err := program.SubscriptionAddress(programPK, ownerPK, planID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "address: %s\nbump: %d\n", addr, bump)
			return err
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner public key (base58)")
	cmd.Flags().Uint64Var(&planID, "plan", 0, "Plan id")
	cmd.Flags().StringVar(&programID, "program", "", "Program id (default: PROGRAM_ID or the devnet deployment)")
	//nolint:errcheck
	cmd.MarkFlagRequired("owner")
	return cmd
}

func newKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a keypair in the base58 format wallets export",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kp, err := solana.NewKeypair(rand.Reader)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "public_key: %s\nprivate_key: %s\n", kp.PublicKey(), kp)
			return err
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
