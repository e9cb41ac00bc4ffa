package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-session-service/sessions"
)

func (s *Server) readSessionCookie(r *http.Request) (uuid.UUID, error) {
	cookie, err := r.Cookie(s.config.GetSessionCookieName())
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "[readSessionCookie] r.Cookie")
	}
	sessionID, err := uuid.Parse(cookie.Value)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "[readSessionCookie] uuid.Parse")
	}
	return sessionID, nil
}

// writeSessionCookie binds the session to the client. The cookie is HttpOnly
// so scripts never see the session ID; the access key travels separately.
func (s *Server) writeSessionCookie(w http.ResponseWriter, session sessions.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetSessionCookieName(),
		Value:    session.ID.String(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessions.Lifetime(s.config.GetSessionLifeTime()).Seconds()),
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetSessionCookieName(),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
