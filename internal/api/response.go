package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

// errorResponse is the uniform error envelope.
type errorResponse struct {
	Error     string    `json:"error"`
	Code      int       `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// writeJSON encodes v into a buffer before touching the response so an
// encoding failure can still produce a clean 500 instead of a half
// written body.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		s.logger.Error("encoding response", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{
		Error:     message,
		Code:      status,
		Timestamp: time.Now().UTC(),
	})
}
