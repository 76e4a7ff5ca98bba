package handler

// RESPONSE HELPERS:
// Every handler answers with writeJSON or writeError, so every error body has
// the same shape:
//
//	{"error": "not_found", "message": "document not found with id abc123"}
//
// The frontend can switch on "error" and show "message" as is.
//
// Mutations on progress and events follow the retain-on-failure rule: the
// change stays applied in memory even when saving fails. Those handlers use
// writeRetained, which returns the new state alongside the error so the
// client can render what the user sees.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/auth"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable kind, e.g. "not_found"
	Message string `json:"message"` // human-readable description
	// State is the in-memory result of a mutation whose save failed.
	State any `json:"state,omitempty"`
}

// writeJSON sends a JSON response with the given status code. Headers must
// be set before WriteHeader, so the order here matters.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are already sent, only logging is left
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and sends it.
//
// errors.Is walks the whole chain, so an AppError wrapped by a service with
// fmt.Errorf("...: %w", err) still maps to its kind.
func writeError(w http.ResponseWriter, err error) {
	writeErrorState(w, err, nil)
}

// writeRetained answers a mutation. A persistence failure is reported with
// the retained state; any other error is a plain error response.
func writeRetained(w http.ResponseWriter, status int, state any, err error) {
	if err == nil {
		writeJSON(w, status, state)
		return
	}
	if errors.Is(err, apperror.ErrPersistence) {
		writeErrorState(w, err, state)
		return
	}
	writeError(w, err)
}

func writeErrorState(w http.ResponseWriter, err error, state any) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		// Never expose raw errors: they can carry SQL or file paths.
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status, kind := statusOf(err)
	writeJSON(w, status, ErrorResponse{
		Error:   kind,
		Message: appErr.Message,
		State:   state,
	})
}

func statusOf(err error) (int, string) {
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
	case errors.Is(err, apperror.ErrInsufficientPoints):
		return http.StatusUnprocessableEntity, "insufficient_points"
	case errors.Is(err, apperror.ErrPersistence):
		return http.StatusInternalServerError, "persistence_error"
	case errors.Is(err, apperror.ErrCorrupt):
		return http.StatusInternalServerError, "corrupt_data"
	case errors.Is(err, apperror.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decodeJSON reads a bounded JSON body into dst. Unknown fields are
// rejected so typos in field names surface as 400s.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("body", "request body is empty")
		}
		return apperror.ValidationFailed("body", fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

// currentUser returns the authenticated user ID. Routes behind
// auth.RequireAuth always have one; the error covers misrouted handlers.
func currentUser(r *http.Request) (string, error) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return "", apperror.Unauthorized("sign in required")
	}
	return userID, nil
}

// pathParam returns a decoded URL parameter. chi matches on RawPath when the
// request has one, and only then are its parameters still escaped.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}
