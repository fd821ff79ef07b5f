package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ahstewart/signal-snapshot/internal/analytics"
	"github.com/ahstewart/signal-snapshot/internal/crypto"
	"github.com/ahstewart/signal-snapshot/internal/snapshot"
	"github.com/ahstewart/signal-snapshot/internal/source"
)

// APIError is the JSON error body returned by every failing endpoint.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WriteJSON writes the error response.
func (e *APIError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus)

	type errorResponse struct {
		Error *APIError `json:"error"`
	}
	if err := json.NewEncoder(w).Encode(errorResponse{Error: e}); err != nil {
		// Response is already committed, nothing sane left to do.
		return
	}
}

// TranslateError maps engine errors to API error responses.
func TranslateError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, crypto.ErrMissingKey):
		return &APIError{
			Code:       "missing_key",
			Message:    "the snapshot is encrypted and no secret was provided",
			HTTPStatus: http.StatusUnprocessableEntity,
		}
	case errors.Is(err, crypto.ErrInvalidKeyFormat):
		return &APIError{
			Code:       "invalid_key_format",
			Message:    "the secret is not valid hexadecimal key material",
			HTTPStatus: http.StatusBadRequest,
		}
	case errors.Is(err, crypto.ErrDecryptionExhausted):
		var exhausted *crypto.ExhaustedError
		msg := "no key and cipher combination produced a valid snapshot"
		if errors.As(err, &exhausted) {
			msg = exhausted.Error()
		}
		return &APIError{
			Code:       "decryption_exhausted",
			Message:    msg,
			HTTPStatus: http.StatusUnprocessableEntity,
		}
	case errors.Is(err, snapshot.ErrSnapshotCorrupt):
		return &APIError{
			Code:       "snapshot_corrupt",
			Message:    "the snapshot is not a readable messaging database",
			HTTPStatus: http.StatusUnprocessableEntity,
		}
	case errors.Is(err, source.ErrNotFound):
		return &APIError{
			Code:       "source_not_found",
			Message:    "the snapshot location does not exist",
			HTTPStatus: http.StatusNotFound,
		}
	case errors.Is(err, analytics.ErrAggregationFailed):
		return &APIError{
			Code:       "aggregation_failed",
			Message:    "the report could not be computed from this snapshot",
			HTTPStatus: http.StatusUnprocessableEntity,
		}
	}

	return &APIError{
		Code:       "internal_error",
		Message:    "internal error",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Predefined API errors
var (
	ErrSessionNotFound = &APIError{
		Code:       "session_not_found",
		Message:    "no open snapshot with that id (it may have expired)",
		HTTPStatus: http.StatusNotFound,
	}

	ErrSnapshotTooLarge = &APIError{
		Code:       "snapshot_too_large",
		Message:    "the snapshot exceeds the configured size limit",
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}

	ErrMissingSnapshot = &APIError{
		Code:       "missing_snapshot",
		Message:    "provide a snapshot file upload or a location to fetch",
		HTTPStatus: http.StatusBadRequest,
	}
)
