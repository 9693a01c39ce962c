// Package server wires admission, consensus, extraction, and execution
// into the HTTP/WebSocket surface a validator submits archives against
// and polls for results.
package server

import (
	"encoding/json"
	"net/http"
)

// apiVersion is reported by GET /status. Bumped on externally visible
// contract changes, not on every commit.
const apiVersion = "1.0.0"

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes the stable {code, message} shape spec.md §7 requires
// at the HTTP boundary — never an internal error string or stack trace.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

// corsMiddleware mirrors the teacher's permissive CORS handling; this
// service is polled by validator tooling, not browsers, but the shape is
// kept for parity with the rest of the stack's HTTP layer.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Hotkey, X-Nonce, X-Signature")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
