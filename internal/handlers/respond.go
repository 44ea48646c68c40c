package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DocExplain/DocExplain-app/internal/quota"
	"github.com/DocExplain/DocExplain-app/internal/services"
	"github.com/DocExplain/DocExplain-app/internal/utils"
)

// DeviceHeader identifies the installation whose quota and history apply.
const DeviceHeader = "X-Device-ID"

// ModelHeader reports which backend produced a result.
const ModelHeader = "X-Model-Used"

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type quotaBody struct {
	Error     string         `json:"error"`
	Decision  quota.Decision `json:"decision"`
	Options   []quota.Option `json:"options,omitempty"`
	Remaining int            `json:"remaining"`
}

func respondJSON(logger *utils.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
	}
}

func respondError(logger *utils.Logger, w http.ResponseWriter, err error) {
	var (
		appErr   *utils.AppError
		quotaErr *services.QuotaError
	)
	switch {
	case errors.As(err, &quotaErr):
		logger.Info("Quota refused request", "decision", quotaErr.Result.Decision)
		respondJSON(logger, w, quotaErr.StatusCode(), quotaBody{
			Error:     quotaErr.Error(),
			Decision:  quotaErr.Result.Decision,
			Options:   quotaErr.Result.Options,
			Remaining: quotaErr.Result.Remaining,
		})
	case errors.As(err, &appErr):
		if appErr.StatusCode >= http.StatusInternalServerError {
			logger.Error("Request error", "status", appErr.StatusCode, "error", appErr.Error())
		} else {
			logger.Warn("Request error", "status", appErr.StatusCode, "error", appErr.Error())
		}
		respondJSON(logger, w, appErr.StatusCode, errorBody{Error: appErr.Message, Details: appErr.Details})
	default:
		logger.Error("Request error", "status", http.StatusInternalServerError, "error", err)
		respondJSON(logger, w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &utils.AppError{StatusCode: http.StatusRequestEntityTooLarge, Message: "Request body is too large"}
		}
		return utils.NewBadRequestError("Invalid JSON body").WithCause(err)
	}
	return nil
}
