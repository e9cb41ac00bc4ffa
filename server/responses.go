package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) unauthorized(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: message})
}

// rejectSession is the unauthorized response for failures tied to the
// presented session itself. The cookie is cleared so the client stops
// replaying a session that can never succeed.
func (s *Server) rejectSession(w http.ResponseWriter, message string) {
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: message})
}

func (s *Server) internalError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func (s *Server) badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: message})
}
