package mockledger

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// LoggingMiddleware logs every request with its JSON-RPC method.
// Only active when logger is provided (non-nil).
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if logger == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()

			var reqBody []byte
			if r.Body != nil {
				var err error
				reqBody, err = io.ReadAll(r.Body)
				if err != nil {
					logger.Error("Failed to read request body", "error", err)
					http.Error(w, "Failed to read request body", http.StatusInternalServerError)
					return
				}
				// Restore body for handler
				r.Body = io.NopCloser(bytes.NewReader(reqBody))
			}

			rec := &responseRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           new(bytes.Buffer),
			}

			next.ServeHTTP(rec, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status_code", rec.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if m := rpcMethodOf(reqBody); m != "" {
				attrs = append(attrs, "rpc_method", m)
			}
			if code := rpcErrorCode(rec.body.Bytes()); code != 0 {
				attrs = append(attrs, "rpc_error", code)
			}
			logger.Info("MockLedger handled request", attrs...)
		})
	}
}

// responseRecorder captures response details for logging.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

// WriteHeader captures the status code and writes it to the response.
func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Write captures the response body and writes it to the response.
func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b) // Capture for logging
	return r.ResponseWriter.Write(b)
}

// rpcMethodOf extracts the method name from a JSON-RPC request body.
// Transactions and signatures in params are never logged.
func rpcMethodOf(body []byte) string {
	var req struct {
		Method string `json:"method"`
	}
	if json.Unmarshal(body, &req) != nil {
		return ""
	}
	return req.Method
}

func rpcErrorCode(body []byte) int {
	var resp struct {
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &resp) != nil || resp.Error == nil {
		return 0
	}
	return resp.Error.Code
}
