package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/replay"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/contracts"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// StatusFor maps a replay error to an HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, contracts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, replay.ErrStaleSession):
		return http.StatusConflict
	case errors.Is(err, contracts.ErrUpstreamUnavailable), errors.Is(err, replay.ErrLoadFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Warn("error encoding response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}

// respondErr logs err and writes it with its mapped status
func respondErr(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Info("request rejected", "status", status, "error", err)
	}
	respondError(w, status, err.Error())
}

func parseIntParam(r *http.Request, param string, defaultValue int) int {
	valueStr := r.URL.Query().Get(param)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func parseBoolParam(r *http.Request, param string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(param))
	return err == nil && v
}
