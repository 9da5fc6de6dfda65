package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ternarybob/inferd/internal/models"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a standard success JSON response.
func WriteSuccess(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteErrorResponse writes the caller-facing error object using its code as the HTTP status.
func WriteErrorResponse(w http.ResponseWriter, resp *models.ErrorResponse) error {
	return WriteJSON(w, resp.Code, resp)
}

// QueryValue returns the first query value for key, matching the key case-insensitively.
func QueryValue(r *http.Request, key string) string {
	query := r.URL.Query()
	if v := query.Get(key); v != "" {
		return v
	}
	for k, values := range query {
		if strings.EqualFold(k, key) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// PathParam returns the path remainder after prefix, without surrounding slashes.
func PathParam(r *http.Request, prefix string) string {
	return strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
}

// isJSONObject reports whether data is a JSON object
func isJSONObject(data []byte) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal(data, &obj) == nil && obj != nil
}
