package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AlexZinkM/local-keystore/internal/model"
)

// codeStatus maps model.ErrorCode values to HTTP statuses
var codeStatus = map[string]int{
	"DUPLICATE_ACCOUNT":           http.StatusConflict,
	"DECRYPTION_FAILED":           http.StatusUnprocessableEntity,
	"ACCOUNT_NOT_FOUND":           http.StatusNotFound,
	"SIGNING_FAILED":              http.StatusUnprocessableEntity,
	"PASSWORD_PERSISTENCE_FAILED": http.StatusInternalServerError,
	"PROTECTION_UNAVAILABLE":      http.StatusServiceUnavailable,
	"IMPORT_FAILED":               http.StatusBadRequest,
	"INVALID_INPUT":               http.StatusBadRequest,
	"UNAVAILABLE":                 http.StatusServiceUnavailable,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("Failed to write response: %v", err)
	}
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: msg, Code: "INVALID_INPUT"})
}

// writeError derives the status from the error code so both always name
// the same error kind.
func writeError(w http.ResponseWriter, err error) {
	code := model.ErrorCode(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		code = "UNAVAILABLE"
	}

	status, ok := codeStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status == http.StatusInternalServerError {
		log.Errorf("Request failed: %v", err)
	}
	writeJSON(w, status, model.ErrorResponse{Error: err.Error(), Code: code})
}
