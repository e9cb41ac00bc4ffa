// Package server exposes the authentication service over HTTP. Routes sit
// behind a two-phase gate: a session cookie proves an established session,
// and a bearer access key proves the caller's role and audiences.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-session-service/auth"
	"github.com/jrsteele09/go-session-service/internal/config"
	"github.com/jrsteele09/go-session-service/roles"
	"github.com/jrsteele09/go-session-service/sessions"
	"github.com/jrsteele09/go-session-service/token"
)

type Server struct {
	config       config.Config
	auth         *auth.AuthenticationService
	sessionStore sessions.Store
	tokenManager *token.Manager
	router       chi.Router
	nowTime      func() time.Time
}

type Option func(*Server)

// WithNowTime replaces the clock used for session expiry checks, primarily
// for testing. The same clock is passed through to the auth service.
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

func New(cfg config.Config, repos auth.Repos, tokenManager *token.Manager, options ...Option) (*Server, error) {
	s := &Server{
		config:       cfg,
		sessionStore: repos.Sessions,
		tokenManager: tokenManager,
		nowTime:      time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	authService, err := auth.NewAuthenticationService(repos, tokenManager, auth.Settings{
		SessionLifeTimeDays:        cfg.GetSessionLifeTime(),
		AccessKeyLifetimeMinutes:   cfg.GetAccessKeyLifetime(),
		UpdateSessionTimeOnRequest: cfg.GetUpdateSessionTimeOnRequest(),
	}, auth.WithNowTime(s.nowTime))
	if err != nil {
		return nil, errors.Wrap(err, "[server.New] auth.NewAuthenticationService")
	}
	s.auth = authService
	s.router = s.buildRouter()
	return s, nil
}

// Router returns the mounted HTTP routes.
func (s *Server) Router() chi.Router {
	return s.router
}

// buildRouter mounts the HTTP routes. Renewal only needs a live session;
// every other protected route additionally requires a valid access key.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(s.LoggingMiddleware)
	r.Use(s.RecoverMiddleware)
	r.Use(s.CorsMiddleware)

	userRoles := []roles.Role{roles.User, roles.Administrator}

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/create_user", s.handleCreateUser)

	r.With(s.Gate(CheckSession, userRoles, nil)).Get("/auth/update_key", s.handleUpdateKey)

	r.With(s.Gate(CheckAll, userRoles, nil)).Post("/auth/change_password", s.handleChangePassword)
	r.With(s.Gate(CheckAll, userRoles, nil)).Get("/auth/exit", s.handleExit)
	r.With(s.Gate(CheckAll, userRoles, nil)).Post("/auth/exit_from", s.handleExitFrom)
	r.With(s.Gate(CheckAll, userRoles, nil)).Get("/auth/exit_all", s.handleExitAll)
	r.With(s.Gate(CheckAll, userRoles, nil)).Post("/auth/update_user_info", s.handleUpdateUserInfo)

	r.With(s.Gate(CheckAll, []roles.Role{roles.Administrator}, nil)).Get("/auth/admin", s.handleAdmin)
	r.With(s.Gate(CheckAll, []roles.Role{roles.Administrator}, nil)).Post("/auth/update_user", s.handleUpdateUserByAdmin)

	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
