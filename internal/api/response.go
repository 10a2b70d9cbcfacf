/**
 * @description
 * Small helpers for writing JSON responses and errors. All handlers in this
 * package go through these so the wire format stays uniform.
 */

package api

import (
	"encoding/json"
	"log"
	"net/http"
)

// writeJSON marshals the payload and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" error=%q", err)
	}
}

// writeError writes a JSON error body of the form {"error": "..."}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
