package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/crm-extract/internal/apperr"
)

type errorBody struct {
	Message string              `json:"message"`
	Kind    apperr.Kind         `json:"kind"`
	Errors  []apperr.FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConfiguration:
		return http.StatusServiceUnavailable
	case apperr.KindExtractionFailed, apperr.KindExternalAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.String("kind", string(kind)), zap.Error(err))
	}
	writeJSON(w, status, errorBody{
		Message: err.Error(),
		Kind:    kind,
		Errors:  apperr.FieldsOf(err),
	})
}
