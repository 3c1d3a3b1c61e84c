// Package handlers exposes the engine over HTTP.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/meridianmed/insight-engine/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// statusForKind maps a classified error kind to an HTTP status.
func statusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation, apperrors.KindSyntax, apperrors.KindSemantic, apperrors.KindAmbiguous:
		return http.StatusBadRequest
	case apperrors.KindPermission:
		return http.StatusForbidden
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindRateLimit:
		return http.StatusTooManyRequests
	case apperrors.KindTimeout:
		return http.StatusGatewayTimeout
	case apperrors.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError classifies err and writes it as JSON.
func WriteError(w http.ResponseWriter, err error) error {
	appErr := apperrors.AsError(err)
	return ErrorResponse(w, statusForKind(appErr.Kind), string(appErr.Kind), appErr.Message)
}
