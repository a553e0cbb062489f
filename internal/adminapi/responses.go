package adminapi

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes a JSON response with the given status code.
// Adapted from the teacher's internal/api/responses.go WriteJSON.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
