package handler

import (
	"net/http"
	"time"
)

// HandleHealth reports that the process is up.
//
// HTTP: GET /health → {"status":"OK","timestamp":"2024-05-01T09:00:00Z"}
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
