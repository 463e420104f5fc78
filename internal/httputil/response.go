// Package httputil holds the JSON response helpers shared by the HTTP
// handlers of the results server.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/monitoring"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/storage/sqlite"
)

const contentTypeJSON = "application/json"

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteJSONError writes {"error": msg} with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorBody{Error: msg}); err != nil {
		monitoring.Logf("[HTTP] failed to encode %d error body: %v", status, err)
	}
}

// WriteJSON encodes data with the given status code. An encoding failure
// after the header is sent can only be logged.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("[HTTP] failed to encode %T response: %v", data, err)
	}
}

func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

func MethodNotAllowed(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

func InternalServerError(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusInternalServerError, msg)
}

func NotFound(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusNotFound, msg)
}

// StoreError maps a results-store error to a response: sqlite.ErrNotFound
// becomes 404 with "<what> not found", anything else a 500.
func StoreError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, sqlite.ErrNotFound) {
		NotFound(w, what+" not found")
		return
	}
	monitoring.Logf("[HTTP] %s: %v", what, err)
	InternalServerError(w, fmt.Sprintf("Failed to retrieve %s: %v", what, err))
}
