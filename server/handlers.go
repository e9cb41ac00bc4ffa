package server

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jrsteele09/go-session-service/auth"
	apperrors "github.com/jrsteele09/go-session-service/internal/errors"
	"github.com/jrsteele09/go-session-service/roles"
	"github.com/jrsteele09/go-session-service/users"
)

type loginPayload struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Device   string `json:"device"`
}

type loginResponse struct {
	User           users.Info `json:"user"`
	Role           string     `json:"role"`
	Audiences      []string   `json:"audiences"`
	AccessKey      string     `json:"access_key"`
	ExpirationDate string     `json:"expiration_date"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.badRequest(w, "invalid payload")
		return
	}

	fingerprint := r.Header.Get(s.config.GetFingerprintHeaderName())
	if fingerprint == "" {
		s.unauthorized(w, "missing fingerprint")
		return
	}

	result, err := s.auth.Login(r.Context(), payload.Login, payload.Password, clientIP(r), fingerprint, payload.Device)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrAuth) {
			s.unauthorized(w, "invalid credentials")
			return
		}
		s.internalError(w)
		return
	}

	s.writeSessionCookie(w, result.Session)
	writeJSON(w, http.StatusOK, loginResponse{
		User:           result.User,
		Role:           result.Role.String(),
		Audiences:      result.Audiences,
		AccessKey:      result.AccessKey,
		ExpirationDate: result.Session.KeyExpirationTime.Format(time.RFC3339),
	})
}

type updateKeyResponse struct {
	AccessKey string `json:"access_key"`
}

func (s *Server) handleUpdateKey(w http.ResponseWriter, r *http.Request) {
	sc, ok := SessionFromContext(r.Context())
	if !ok {
		s.unauthorized(w, "no session")
		return
	}

	accessKey, err := s.auth.UpdateAccessKey(r.Context(), sc.Session, sc.Fingerprint)
	if err != nil {
		switch {
		case apperrors.Is(err, apperrors.ErrWrongFingerprint):
			s.rejectSession(w, "fingerprint mismatch")
		case apperrors.Is(err, apperrors.ErrSessionExpired), apperrors.Is(err, apperrors.ErrSessionNotFound):
			s.rejectSession(w, "session expired")
		case apperrors.Is(err, apperrors.ErrAuth):
			s.unauthorized(w, "invalid credentials")
		default:
			s.internalError(w)
		}
		return
	}

	s.writeSessionCookie(w, sc.Session)
	writeJSON(w, http.StatusOK, updateKeyResponse{AccessKey: accessKey})
}

type passwordPayload struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	sc, ok := SessionFromContext(r.Context())
	if !ok {
		s.unauthorized(w, "no session")
		return
	}

	var payload passwordPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.badRequest(w, "invalid payload")
		return
	}

	if err := s.auth.ChangePassword(r.Context(), sc.Session, payload.OldPassword, payload.NewPassword); err != nil {
		if apperrors.Is(err, apperrors.ErrAuth) {
			s.unauthorized(w, "invalid credentials")
			return
		}
		s.internalError(w)
		return
	}

	// Every session died with the old password, this client's included.
	s.clearSessionCookie(w)
	w.WriteHeader(http.StatusOK)
}

type createUserPayload struct {
	Username  string   `json:"username"`
	Password  string   `json:"password"`
	Name      string   `json:"name"`
	Surname1  string   `json:"surname1"`
	Surname2  string   `json:"surname2"`
	Role      string   `json:"role"`
	Audiences []string `json:"audiences"`
	Avatar    string   `json:"avatar"`
	Phones    []string `json:"phones"`
	Email     string   `json:"email"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var payload createUserPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.badRequest(w, "invalid payload")
		return
	}
	if payload.Username == "" || payload.Password == "" {
		s.badRequest(w, "username and password are required")
		return
	}

	info, err := s.auth.Register(r.Context(), authRegisterParams(payload))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrUsernameTaken) {
			writeJSON(w, http.StatusConflict, errorResponse{Error: "username already taken"})
			return
		}
		s.internalError(w)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "administrator access granted"})
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	sc, ok := SessionFromContext(r.Context())
	if !ok {
		s.unauthorized(w, "no session")
		return
	}

	if err := s.auth.ExitFromSession(r.Context(), sc.Session.ID); err != nil {
		s.internalError(w)
		return
	}
	s.clearSessionCookie(w)
	w.WriteHeader(http.StatusOK)
}

type sessionPayload struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleExitFrom(w http.ResponseWriter, r *http.Request) {
	var payload sessionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.badRequest(w, "invalid payload")
		return
	}
	sessionID, err := uuid.Parse(payload.SessionID)
	if err != nil {
		s.badRequest(w, "invalid session id")
		return
	}

	if err := s.auth.ExitFromSession(r.Context(), sessionID); err != nil {
		s.internalError(w)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type exitAllResponse struct {
	Terminated int64 `json:"terminated"`
}

func (s *Server) handleExitAll(w http.ResponseWriter, r *http.Request) {
	sc, ok := SessionFromContext(r.Context())
	if !ok {
		s.unauthorized(w, "no session")
		return
	}

	count, err := s.auth.ExitFromAllSessions(r.Context(), sc.Session.ID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSessionNotFound) {
			s.rejectSession(w, "unknown session")
			return
		}
		s.internalError(w)
		return
	}
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, exitAllResponse{Terminated: count})
}

type userUpdatePayload struct {
	UserID    string   `json:"user_id,omitempty"`
	Name      string   `json:"name"`
	Surname1  string   `json:"surname1"`
	Surname2  string   `json:"surname2"`
	Avatar    string   `json:"avatar"`
	Phones    []string `json:"phones"`
	Email     string   `json:"email"`
	Role      string   `json:"role,omitempty"`
	Audiences []string `json:"audiences,omitempty"`
	Active    bool     `json:"is_active,omitempty"`
}

// handleUpdateUserInfo lets users edit their own profile. Privileged fields
// in the payload are ignored for non-administrators.
func (s *Server) handleUpdateUserInfo(w http.ResponseWriter, r *http.Request) {
	s.updateUser(w, r, false)
}

// handleUpdateUserByAdmin lets administrators edit any user, privileged
// fields included.
func (s *Server) handleUpdateUserByAdmin(w http.ResponseWriter, r *http.Request) {
	s.updateUser(w, r, true)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request, byAdmin bool) {
	sc, ok := SessionFromContext(r.Context())
	if !ok {
		s.unauthorized(w, "no session")
		return
	}

	var payload userUpdatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.badRequest(w, "invalid payload")
		return
	}

	targetID := sc.Session.UserID
	if byAdmin && payload.UserID != "" {
		parsed, err := uuid.Parse(payload.UserID)
		if err != nil {
			s.badRequest(w, "invalid user id")
			return
		}
		targetID = parsed
	}

	info, err := s.auth.UpdateUserInfo(r.Context(), sc.Session.UserID, targetID, users.User{
		Name:      payload.Name,
		Surname1:  payload.Surname1,
		Surname2:  payload.Surname2,
		Avatar:    payload.Avatar,
		Phones:    payload.Phones,
		Email:     payload.Email,
		Role:      roles.Parse(payload.Role),
		Audiences: payload.Audiences,
		Active:    payload.Active,
	})
	if err != nil {
		switch {
		case apperrors.Is(err, apperrors.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "user not found"})
		case apperrors.Is(err, apperrors.ErrAuth):
			s.unauthorized(w, "not allowed")
		default:
			s.internalError(w)
		}
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func authRegisterParams(p createUserPayload) auth.RegisterParams {
	return auth.RegisterParams{
		Username:  p.Username,
		Password:  p.Password,
		Name:      p.Name,
		Surname1:  p.Surname1,
		Surname2:  p.Surname2,
		Role:      roles.Parse(p.Role),
		Audiences: p.Audiences,
		Avatar:    p.Avatar,
		Phones:    p.Phones,
		Email:     p.Email,
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
