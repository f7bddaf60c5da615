package admin

import (
	"errors"
	"net/http"
	"strings"
)

// TokenAuthMiddleware requires "Authorization: Bearer <admin token>".
// When no admin token is configured every request gets 404, so the API
// does not advertise itself.
func (h *Handler) TokenAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		err := h.verifyToken(token)
		switch {
		case errors.Is(err, ErrAdminDisabled):
			WriteError(w, http.StatusNotFound, ErrCodeNotFound, "Admin API is disabled")
			return
		case token == "":
			WriteError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "missing admin token")
			return
		case err != nil:
			h.logger.Warn("invalid admin token attempt", "remote_addr", r.RemoteAddr)
			WriteError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
