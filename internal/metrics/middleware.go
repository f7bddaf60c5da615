package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// statusRecorder remembers the first status code written.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
		r.ResponseWriter.WriteHeader(code)
	}
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Middleware records request count and latency by method, normalized path
// and status code. A panicking handler is counted as 500 and the panic is
// re-raised for the recoverer further out.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()

		defer func() {
			p := recover()
			status := rec.status
			switch {
			case p != nil:
				status = http.StatusInternalServerError
			case status == 0:
				status = http.StatusOK
			}
			path := normalizePath(r.URL.Path)
			code := strconv.Itoa(status)
			RecordRequest(r.Method, path, code)
			RecordRequestDuration(r.Method, path, code, time.Since(start).Seconds())
			if p != nil {
				panic(p)
			}
		}()

		next.ServeHTTP(rec, r)
	})
}

// normalizePath replaces numeric path segments with ":id" to keep label
// cardinality bounded.
//
//	/api/subscriptions/7/renew -> /api/subscriptions/:id/renew
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		if s != "" && isDigits(s) {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
