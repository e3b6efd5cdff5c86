package api

import (
	"net/http"
	"time"
)

// healthResponse is the payload for the liveness endpoints.
type healthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// home reports service status at the root path.
func home(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Message:   "Cloud Case Study RAG API is running successfully!",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// health is a simple health check endpoint for Docker/Kubernetes probes.
func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}
