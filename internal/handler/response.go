package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError so the frontend always
// sees the same shapes:
//   success: whatever the endpoint documents, e.g. {"output": "..."}
//   failure: {"error": "validation_error", "message": "unsupported language \"cobol\""}

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/tomato-slides/internal/apperror"
)

// statusClientClosedRequest is nginx's code for a client that disconnected
// before the response was ready.
const statusClientClosedRequest = 499

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending input field, for validation errors
}

// writeJSON sends a JSON response with the given status code.
// Headers must be set before WriteHeader; anything set afterwards is ignored.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
// Services return apperror sentinels and never know about HTTP. This is the one
// place they become status codes. errors.Is walks the whole chain, so a sentinel
// wrapped by fmt.Errorf("...: %w", err) still matches.
//
//	ErrValidation   -> 400   ErrUnauthorized -> 401   ErrForbidden -> 403
//	ErrNotFound     -> 404   ErrConflict     -> 409   ErrUnavailable -> 503
//	context.Canceled -> 499, the client is gone and nobody reads the body
//	anything else   -> 500 with a generic message
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.Canceled) {
		slog.Debug("client went away", slog.String("error", err.Error()))
		writeJSON(w, statusClientClosedRequest, ErrorResponse{
			Error:   "canceled",
			Message: "Request cancelled",
		})
		return
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, errorType := statusFor(err)
		if status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "2")
		}
		resp := ErrorResponse{Error: errorType, Message: appErr.Message}
		if status == http.StatusBadRequest {
			resp.Field = appErr.Field
		}
		if status == http.StatusInternalServerError {
			// Storage and launch errors carry host paths and daemon messages.
			slog.Error("request failed", slog.String("error", err.Error()))
			resp.Message = "An internal error occurred"
		}
		writeJSON(w, status, resp)
		return
	}

	// Unknown error: never expose its text to the client.
	slog.Error("unhandled error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decodeJSON reads a JSON request body into dst. Malformed bodies become
// validation errors so they flow through writeError like any other 400.
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "request body must be valid JSON")
	}
	return nil
}
