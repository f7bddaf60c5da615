package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sipico/subscription-relay/internal/relay"
)

// CreateSubscriptionRequest is the body of POST /api/subscriptions.
// Pointer fields let validation tell a missing field from an explicit zero.
type CreateSubscriptionRequest struct {
	PlanID   *uint64 `json:"plan_id" validate:"required"`
	Duration *uint64 `json:"duration" validate:"required"`
	Amount   *uint64 `json:"amount" validate:"required"`
}

// UpdateSubscriptionRequest is the body of PUT /api/subscriptions/{plan_id}.
type UpdateSubscriptionRequest struct {
	Duration *uint64 `json:"duration" validate:"required"`
	Amount   *uint64 `json:"amount" validate:"required"`
}

// ConfirmationResponse carries the signature of a confirmed transaction.
type ConfirmationResponse struct {
	ConfirmationID string `json:"confirmation_id"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names in validation errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a strict JSON body into dst and validates it. On failure it
// writes the error response and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, relay.KindBadRequest, "Request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, relay.KindBadRequest, decodeMessage(err))
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, relay.KindBadRequest, "Request body must contain a single JSON object")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, relay.KindBadRequest, validationMessage(err))
		return false
	}
	return true
}

func decodeMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr):
		return fmt.Sprintf("Invalid value for %s", typeErr.Field)
	case errors.Is(err, io.EOF):
		return "Request body is empty"
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return "Unknown field " + strings.TrimPrefix(err.Error(), "json: unknown field ")
	default:
		return "Invalid JSON"
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			msgs = append(msgs, fe.Field()+" is required")
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
