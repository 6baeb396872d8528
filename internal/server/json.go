package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"uwave/internal/models"
)

type errorBody struct {
	Kind    models.ErrorKind `json:"kind,omitempty"`
	Message string           `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Warnw("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Message: msg})
}

// writeAPIError reports err as {kind, message} with the status for its kind.
func writeAPIError(w http.ResponseWriter, err error) {
	var e *models.Error
	if !errors.As(err, &e) {
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, statusForKind(e.Kind), errorBody{Kind: e.Kind, Message: e.Message})
}

func statusForKind(k models.ErrorKind) int {
	switch k {
	case models.KindMissingParameter, models.KindInvalidParameter:
		return http.StatusBadRequest
	case models.KindNoActivePlayback, models.KindCancelled:
		return http.StatusConflict
	case models.KindNoPlayableStream:
		return http.StatusUnprocessableEntity
	case models.KindIOError, models.KindExtractionError, models.KindEngineError:
		return http.StatusBadGateway
	case models.KindTransportError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.NewError(models.KindInvalidParameter, "invalid request body")
	}
	return nil
}
