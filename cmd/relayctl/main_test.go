package main

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipico/subscription-relay/internal/auth"
	"github.com/sipico/subscription-relay/internal/solana"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDeriveAddress(t *testing.T) {
	t.Setenv("PROGRAM_ID", "")
	tests := []struct {
		plan     string
		wantAddr string
		wantBump string
	}{
		{"1", "BZGFJDoUX4LKHPMJzmJb4hH1jqy3PH78h9FRrt7JhmXm", "251"},
		{"2", "2tUuF5TDXYvnM2J6CdynJmSR9rbZx4JGFYysCKve7W5H", "255"},
	}
	for _, tt := range tests {
		t.Run("plan "+tt.plan, func(t *testing.T) {
			out, err := execute(t, "derive-address",
				"--owner", "3WCHd9Z57YfUFb9kaUkq5nyQjyWMVLVHigvYfvSfsHEG", "--plan", tt.plan)
			require.NoError(t, err)
			assert.Equal(t, "address: "+tt.wantAddr+"\nbump: "+tt.wantBump+"\n", out)
		})
	}
}

func TestDeriveAddress_Errors(t *testing.T) {
	_, err := execute(t, "derive-address", "--plan", "1")
	assert.Error(t, err, "owner is required")

	_, err = execute(t, "derive-address", "--owner", "nope!", "--plan", "1")
	assert.Error(t, err)
}

func TestGenSecret(t *testing.T) {
	out, err := execute(t, "gen-secret")
	require.NoError(t, err)
	secret := strings.TrimPrefix(strings.TrimSpace(out), "JWT_SECRET=")
	assert.Len(t, secret, 32)
	for _, c := range secret {
		assert.True(t, strings.ContainsRune(secretAlphabet, c), "unexpected rune %q", c)
	}

	_, err = execute(t, "gen-secret", "--length", "8")
	assert.Error(t, err)
}

func TestKeygen(t *testing.T) {
	out, err := execute(t, "keygen")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	kp, err := solana.KeypairFromBase58(strings.TrimPrefix(lines[1], "private_key: "))
	require.NoError(t, err)
	assert.Equal(t, "public_key: "+kp.PublicKey().String(), lines[0])
}

func newTestKey(t *testing.T) solana.Keypair {
	t.Helper()
	kp, err := solana.NewKeypair(rand.Reader)
	require.NoError(t, err)
	t.Setenv("PHANTOM_PRIVATE_KEY", kp.String())
	return kp
}

func TestSignChallenge(t *testing.T) {
	kp := newTestKey(t)

	out, err := execute(t, "sign-challenge", "--timestamp", "1700000000")
	require.NoError(t, err)

	var req auth.Request
	require.NoError(t, json.Unmarshal([]byte(out), &req))
	require.NotNil(t, req.Timestamp)
	assert.Equal(t, int64(1700000000), *req.Timestamp)
	assert.Equal(t, kp.PublicKey().String(), req.PublicKey)

	sig, err := solana.SignatureFromBase58(req.Signature)
	require.NoError(t, err)
	assert.True(t, solana.Verify(kp.PublicKey(), []byte(auth.ChallengeMessage(1700000000)), sig))
}

func TestSignChallenge_MissingKey(t *testing.T) {
	t.Setenv("PHANTOM_PRIVATE_KEY", "")
	_, err := execute(t, "sign-challenge")
	assert.ErrorContains(t, err, "PHANTOM_PRIVATE_KEY")
}

func TestSignChallenge_Login(t *testing.T) {
	kp := newTestKey(t)
	tokens := auth.NewTokenIssuer([]byte(strings.Repeat("k", 32)))
	authenticator := auth.NewAuthenticator(tokens)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req auth.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp, err := authenticator.Authenticate(req)
		if err != nil {
			http.Error(w, auth.Message(err), http.StatusUnauthorized)
			return
		}
		//nolint:errcheck
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	out, err := execute(t, "sign-challenge", "--login", srv.URL+"/")
	require.NoError(t, err)

	var resp auth.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, kp.PublicKey().String(), resp.PublicKey)
	owner, err := tokens.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey().String(), owner)

	// A stale timestamp is refused by the relay
	_, err = execute(t, "sign-challenge", "--login", srv.URL, "--timestamp", "1")
	assert.ErrorContains(t, err, "status 401")
}
