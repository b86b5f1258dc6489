package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"trainlog/internal/activity"
	"trainlog/internal/fitnesssyncer"
	"trainlog/internal/oauth"
	"trainlog/internal/storage"
	"trainlog/internal/strava"
	"trainlog/internal/workbook"
)

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// classify maps a failure to a status and an error code. Caller mistakes
// keep their message; upstream failures get a generic one.
func classify(err error) (status int, code string, expose bool) {
	var (
		validation *activity.ValidationError
		cfgErr     *oauth.ConfigError
		refreshErr *oauth.RefreshError
		fsErr      *fitnesssyncer.APIError
		stravaErr  *strava.APIError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, "validation_failed", true
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest, "config_missing", true
	case errors.Is(err, workbook.ErrNoDataSources):
		return http.StatusBadRequest, "no_data_source", true
	case errors.Is(err, workbook.ErrNotFound):
		return http.StatusNotFound, "not_found", true
	case errors.As(err, &refreshErr):
		return http.StatusInternalServerError, "token_refresh_failed", false
	case errors.As(err, &fsErr), errors.As(err, &stravaErr):
		return http.StatusInternalServerError, "provider_error", false
	case storage.IsStoreError(err):
		return http.StatusInternalServerError, "store_error", false
	default:
		return http.StatusInternalServerError, "server_error", false
	}
}

// fail logs err and writes the mapped response. failure is shown to the
// caller when the error itself is not.
func fail(w http.ResponseWriter, logger *log.Logger, failure string, err error) {
	status, code, expose := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error(failure, "code", code, "err", err)
	} else {
		logger.Warn(failure, "code", code, "err", err)
	}
	message := failure
	if expose {
		message = err.Error()
	}
	writeError(w, status, code, message)
}
