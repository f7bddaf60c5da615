package admin

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sipico/subscription-relay/internal/logging"
)

// SetLogLevelRequest is the body of POST /api/loglevel.
type SetLogLevelRequest struct {
	Level string `json:"level"`
}

// LogLevelResponse reports the active log level.
type LogLevelResponse struct {
	Level string `json:"level"`
}

// WhoamiResponse describes the authenticated admin caller.
type WhoamiResponse struct {
	Role     string `json:"role"`
	LogLevel string `json:"log_level"`
}

// HandleWhoami handles GET /api/whoami
func (h *Handler) HandleWhoami(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, WhoamiResponse{Role: "admin", LogLevel: h.levelName()})
}

// HandleGetLogLevel handles GET /api/loglevel
func (h *Handler) HandleGetLogLevel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, LogLevelResponse{Level: h.levelName()})
}

// HandleSetLogLevel handles POST /api/loglevel
func (h *Handler) HandleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req SetLogLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON")
		return
	}

	level, err := logging.ParseLevel(req.Level)
	if err != nil {
		WriteErrorWithHint(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"Invalid level", "must be one of: debug, info, warn, error")
		return
	}

	h.logLevel.Set(level)
	h.logger.Info("log level changed", "new_level", h.levelName())
	writeJSON(w, http.StatusOK, LogLevelResponse{Level: h.levelName()})
}

func (h *Handler) levelName() string {
	return strings.ToLower(h.logLevel.Level().String())
}
