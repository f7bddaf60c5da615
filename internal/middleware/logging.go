package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/sipico/subscription-relay/internal/logging"
)

// maxLoggedBody caps how much of a request or response body is captured.
const maxLoggedBody = 16 << 10

// HTTPLogging logs each request and its response as one debug entry with
// masked headers and bodies. JSON body fields outside allowlist are redacted;
// a nil allowlist logs bodies as they are. Below debug level it is a
// pass-through.
func HTTPLogging(logger *slog.Logger, allowlist []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !logger.Enabled(r.Context(), slog.LevelDebug) {
				next.ServeHTTP(w, r)
				return
			}

			reqBody := peekBody(r)
			rec := &bodyRecorder{ResponseWriter: w, status: http.StatusOK}

			start := time.Now()
			next.ServeHTTP(rec, r)

			logger.LogAttrs(r.Context(), slog.LevelDebug, "http exchange",
				slog.String("request_id", GetRequestID(r.Context())),
				slog.Group("request",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("query", r.URL.RawQuery),
					slog.Any("headers", maskHeaders(r.Header)),
					slog.String("body", maskBody(reqBody, allowlist)),
				),
				slog.Group("response",
					slog.Int("status_code", rec.status),
					slog.Any("headers", maskHeaders(rec.Header())),
					slog.String("body", maskBody(rec.body.Bytes(), allowlist)),
				),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

// peekBody reads up to maxLoggedBody bytes of the request body and puts them
// back in front of the unread remainder.
func peekBody(r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	head, err := io.ReadAll(io.LimitReader(r.Body, maxLoggedBody))
	r.Body = readCloser{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}
	if err != nil {
		return nil
	}
	return head
}

type readCloser struct {
	io.Reader
	io.Closer
}

func maskHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) > 0 {
			out[name] = logging.MaskHeader(name, values[0])
		}
	}
	return out
}

func maskBody(body []byte, allowlist []string) string {
	switch {
	case len(body) == 0:
		return ""
	case !utf8.Valid(body):
		return logging.FormatBinaryData(body)
	default:
		return string(logging.MaskJSONBody(body, allowlist))
	}
}

// bodyRecorder passes writes through while keeping the status and a bounded
// copy of the body.
type bodyRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *bodyRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	if room := maxLoggedBody - r.body.Len(); room > 0 {
		r.body.Write(b[:min(len(b), room)])
	}
	return r.ResponseWriter.Write(b)
}

func (r *bodyRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
