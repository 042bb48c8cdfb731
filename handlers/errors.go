package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/you/alarmchain/internal/dataset"
	"github.com/you/alarmchain/internal/query"
	"github.com/you/alarmchain/models"
)

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to status codes. An unknown cache key is a
// 404 telling the client to re-upload, never an empty 200.
func writeError(w http.ResponseWriter, logger *logrus.Logger, cacheKey string, err error) {
	var (
		vErr        *models.ValidationError
		pErr        *dataset.ParseError
		maxBytesErr *http.MaxBytesError
	)

	switch {
	case errors.Is(err, query.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error: "Data not found",
			Details: map[string]interface{}{
				"cache_key": cacheKey,
				"action":    "re-upload",
			},
		})
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: vErr.Error(),
			Details: map[string]interface{}{
				"field": vErr.Field,
			},
		})
	case errors.As(err, &pErr):
		details := map[string]interface{}{"reason": pErr.Reason}
		if pErr.File != "" {
			details["file"] = pErr.File
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Failed to parse upload",
			Details: details,
		})
	case errors.As(err, &maxBytesErr):
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: "Upload too large",
			Details: map[string]interface{}{
				"limit_bytes": maxBytesErr.Limit,
			},
		})
	default:
		logger.WithError(err).WithField("cache_key", cacheKey).Error("Request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "Internal server error",
			Details: map[string]interface{}{
				"internal": err.Error(),
			},
		})
	}
}
