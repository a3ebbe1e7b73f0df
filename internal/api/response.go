package api

import (
	"encoding/json"
	"net/http"

	"github.com/azure/brand-visibility-bot/internal/models"
	"github.com/sirupsen/logrus"
)

// Envelope wraps every API response
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

// writeError reports err with its code. Partial data, when present, is
// returned alongside the error.
func writeError(w http.ResponseWriter, err error, data interface{}) {
	code, status := models.ErrorCode(err)
	if status >= http.StatusInternalServerError {
		logrus.WithField("code", code).Errorf("Request failed: %v", err)
	}
	writeJSON(w, status, Envelope{
		Success: false,
		Data:    data,
		Error:   &ErrorBody{Code: code, Message: err.Error()},
	})
}
