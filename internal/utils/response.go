package utils

import (
	"encoding/json"
	"log"
	"net/http"

	"CapIot.readings/internal/models"
)

// RespondWithError sends a JSON error response using the APIError model.
// It sets the HTTP status code from the APIError and encodes the entire struct.
func RespondWithError(writer http.ResponseWriter, apiErr models.APIError) {
	RespondWithJSON(writer, apiErr.StatusCode, apiErr)
}

// RespondWithJSON sends a JSON response. Headers must be set before
// WriteHeader, after which they are ignored.
func RespondWithJSON(writer http.ResponseWriter, statusCode int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
		http.Error(writer, "Failed to send JSON response", http.StatusInternalServerError)
		return
	}
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(statusCode)
	_, _ = writer.Write(body)
}
