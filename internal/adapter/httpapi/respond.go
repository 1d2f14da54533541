package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"scribe-ai/internal/domain"
)

// maxBodyBytes caps JSON request bodies. The API's requests are small;
// anything bigger is abuse.
const maxBodyBytes = 1 << 20 // 1 MiB

type errorBody struct {
	Error string           `json:"error"`
	Code  domain.ErrorCode `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code domain.ErrorCode, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// writeDomainError maps an error from the usecase or store layer to an
// HTTP status and JSON body.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrThreadNotFound),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrProviderNotFound):
		status = http.StatusNotFound
	case domain.IsProviderFailure(err), errors.Is(err, domain.ErrMaxIterations):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	writeError(w, status, domain.ErrorCodeOf(err), err.Error())
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body too large (max 1MB)")
		}
		return fmt.Errorf("invalid JSON: %v", err)
	}
	return nil
}
