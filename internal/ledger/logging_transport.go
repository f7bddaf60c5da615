package ledger

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// LoggingTransport wraps an http.RoundTripper and logs every JSON-RPC round
// trip at debug level. API keys in the endpoint query string are redacted.
type LoggingTransport struct {
	Transport http.RoundTripper
	Logger    *slog.Logger
	Prefix    string // e.g., "MOCK" or "DEVNET"
}

// RoundTrip implements http.RoundTripper interface
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.Logger.Enabled(req.Context(), slog.LevelDebug) {
		return t.transport().RoundTrip(req)
	}

	start := time.Now()

	var reqBodyBytes []byte
	if req.Body != nil {
		var err error
		reqBodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(reqBodyBytes))
	}

	method := rpcMethod(reqBodyBytes)
	endpoint := redactURL(req.URL)

	t.Logger.Debug("ledger rpc request",
		"prefix", t.Prefix,
		"rpc_method", method,
		"url", endpoint,
		"body_bytes", len(reqBodyBytes),
	)

	resp, err := t.transport().RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		t.Logger.Debug("ledger rpc failed",
			"prefix", t.Prefix,
			"rpc_method", method,
			"url", endpoint,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(respBodyBytes))

	t.Logger.Debug("ledger rpc response",
		"prefix", t.Prefix,
		"rpc_method", method,
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
		"body", string(respBodyBytes),
	)

	return resp, nil
}

// transport returns the underlying transport or DefaultTransport if nil
func (t *LoggingTransport) transport() http.RoundTripper {
	if t.Transport != nil {
		return t.Transport
	}
	return http.DefaultTransport
}

func rpcMethod(body []byte) string {
	var req struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.Method == "" {
		return "unknown"
	}
	return req.Method
}

// redactURL masks query values that commonly carry provider API keys.
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	q := u.Query()
	if len(q) == 0 {
		return u.String()
	}
	for _, key := range []string{"api-key", "api_key", "apikey", "token"} {
		if v := q.Get(key); v != "" {
			q.Set(key, redactSensitiveData(v))
		}
	}
	redacted := *u
	redacted.RawQuery = q.Encode()
	return redacted.String()
}

// redactSensitiveData redacts secrets showing only first 4 and last 4 chars.
// Values with fewer than 12 characters are completely redacted with "****".
func redactSensitiveData(key string) string {
	if len(key) < 12 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
