package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMaxBodySize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"under limit", `{"plan_id":1}`, false},
		{"at limit", strings.Repeat("x", 32), false},
		{"over limit", strings.Repeat("x", 33), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var readErr error
			var n int
			handler := MaxBodySize(32)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				b, err := io.ReadAll(r.Body)
				n, readErr = len(b), err
			}))
			handler.ServeHTTP(httptest.NewRecorder(),
				httptest.NewRequest(http.MethodPost, "/api/subscriptions", strings.NewReader(tt.body)))

			var maxErr *http.MaxBytesError
			if got := errors.As(readErr, &maxErr); got != tt.wantErr {
				t.Errorf("MaxBytesError = %v, want %v (err %v)", got, tt.wantErr, readErr)
			}
			if !tt.wantErr && n != len(tt.body) {
				t.Errorf("read %d bytes, want %d", n, len(tt.body))
			}
		})
	}
}
