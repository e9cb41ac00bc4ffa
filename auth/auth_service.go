// Package auth implements the authentication service: login, access-key
// renewal, password management and session termination. It composes the user
// directory, the session store and the access-key manager.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jrsteele09/go-session-service/internal/errors"
	"github.com/jrsteele09/go-session-service/roles"
	"github.com/jrsteele09/go-session-service/sessions"
	"github.com/jrsteele09/go-session-service/token"
	"github.com/jrsteele09/go-session-service/users"
)

// Repos holds the repository dependencies for the AuthenticationService.
type Repos struct {
	Users    users.UserRepo
	Sessions sessions.Store
}

// Settings carries the session and access-key tuning the service needs.
type Settings struct {
	SessionLifeTimeDays        int
	AccessKeyLifetimeMinutes   int
	UpdateSessionTimeOnRequest bool
}

// AuthenticationService provides the login, renewal and logout operations.
type AuthenticationService struct {
	repos        Repos
	tokenCreator *token.Manager
	settings     Settings
	nowTime      func() time.Time
}

type AuthenticationServiceOption func(*AuthenticationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthenticationServiceOption {
	return func(as *AuthenticationService) {
		as.nowTime = nowFunc
	}
}

func NewAuthenticationService(
	repos Repos,
	tokenCreator *token.Manager,
	settings Settings,
	options ...AuthenticationServiceOption,
) (*AuthenticationService, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewAuthenticationService] Users repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewAuthenticationService] Sessions store is required")
	}
	if tokenCreator == nil {
		return nil, errors.New("[NewAuthenticationService] tokenCreator is required")
	}

	authService := &AuthenticationService{
		repos:        repos,
		tokenCreator: tokenCreator,
		settings:     settings,
		nowTime:      time.Now,
	}
	for _, opt := range options {
		opt(authService)
	}
	return authService, nil
}

// LoginResult is returned on a successful login: the session the caller
// should bind to a cookie, a fresh access key, and the sanitized user info.
type LoginResult struct {
	Session   sessions.Session
	AccessKey string
	User      users.Info
	Role      roles.Role
	Audiences []string
}

// Login authenticates username/password and establishes a session. Unknown
// users, inactive accounts and wrong passwords all surface as ErrAuth so the
// caller cannot probe which usernames exist.
func (as *AuthenticationService) Login(ctx context.Context, username, password, ipAddr, fingerprint, device string) (LoginResult, error) {
	user, err := as.repos.Users.GetByUsername(ctx, username)
	if err != nil {
		return LoginResult{}, errors.Wrap(err, "[Login] Users.GetByUsername")
	}
	if user == nil || !user.Active || !users.CheckPasswordHash(password, user.ID, user.PasswordHash) {
		return LoginResult{}, apperrors.ErrAuth
	}

	session, err := as.repos.Sessions.CreateOrRotate(ctx, user.ID, as.settings.SessionLifeTimeDays, ipAddr, fingerprint, device)
	if err != nil {
		return LoginResult{}, errors.Wrap(err, "[Login] Sessions.CreateOrRotate")
	}

	accessKey, err := as.tokenCreator.Issue(user.ID, user.Role, user.Audiences, as.settings.AccessKeyLifetimeMinutes)
	if err != nil {
		return LoginResult{}, errors.Wrap(err, "[Login] tokenCreator.Issue")
	}

	log.Debug().Str("username", username).Msg("user logged in")
	return LoginResult{
		Session:   session,
		AccessKey: accessKey,
		User:      user.Info(),
		Role:      user.Role,
		Audiences: user.Audiences,
	}, nil
}

// UpdateAccessKey issues a fresh access key for an established session. The
// presented fingerprint must match the one the session was created with; on a
// mismatch the session is destroyed and ErrWrongFingerprint returned, forcing
// a new login.
func (as *AuthenticationService) UpdateAccessKey(ctx context.Context, session sessions.Session, fingerprint string) (string, error) {
	if session.Fingerprint != fingerprint {
		log.Warn().
			Str("sessionID", session.ID.String()).
			Str("userID", session.UserID.String()).
			Msg("fingerprint mismatch on key renewal, destroying session")
		if err := as.repos.Sessions.Delete(ctx, session.ID); err != nil {
			return "", errors.Wrap(err, "[UpdateAccessKey] Sessions.Delete")
		}
		return "", apperrors.ErrWrongFingerprint
	}

	user, err := as.repos.Users.GetByID(ctx, session.UserID)
	if err != nil {
		return "", errors.Wrap(err, "[UpdateAccessKey] Users.GetByID")
	}
	if user == nil || !user.Active {
		return "", apperrors.ErrAuth
	}

	accessKey, err := as.tokenCreator.Issue(user.ID, user.Role, user.Audiences, as.settings.AccessKeyLifetimeMinutes)
	if err != nil {
		return "", errors.Wrap(err, "[UpdateAccessKey] tokenCreator.Issue")
	}

	if as.settings.UpdateSessionTimeOnRequest {
		if err := as.repos.Sessions.UpdateKey(ctx, session.ID, as.settings.SessionLifeTimeDays); err != nil {
			return "", errors.Wrap(err, "[UpdateAccessKey] Sessions.UpdateKey")
		}
	}
	return accessKey, nil
}

// RegisterParams are the fields accepted when creating a user account.
type RegisterParams struct {
	Username  string
	Password  string
	Name      string
	Surname1  string
	Surname2  string
	Role      roles.Role
	Audiences []string
	Avatar    string
	Phones    []string
	Email     string
}

// Register creates a new active user account.
func (as *AuthenticationService) Register(ctx context.Context, params RegisterParams) (users.Info, error) {
	taken, err := as.repos.Users.UsernameTaken(ctx, params.Username)
	if err != nil {
		return users.Info{}, errors.Wrap(err, "[Register] Users.UsernameTaken")
	}
	if taken {
		return users.Info{}, apperrors.ErrUsernameTaken
	}

	userID := uuid.New()
	user := &users.User{
		ID:           userID,
		Username:     params.Username,
		PasswordHash: users.HashPassword(params.Password, userID),
		Name:         params.Name,
		Surname1:     params.Surname1,
		Surname2:     params.Surname2,
		Role:         params.Role,
		Audiences:    params.Audiences,
		Active:       true,
		Avatar:       params.Avatar,
		Phones:       params.Phones,
		Email:        params.Email,
	}
	if err := as.repos.Users.Create(ctx, user); err != nil {
		return users.Info{}, errors.Wrap(err, "[Register] Users.Create")
	}
	return user.Info(), nil
}

// ChangePassword verifies the caller's current password before replacing it.
// Every session of the user is terminated afterwards so stolen cookies die
// with the old password; the caller must log in again.
func (as *AuthenticationService) ChangePassword(ctx context.Context, currentSession sessions.Session, oldPassword, newPassword string) error {
	user, err := as.repos.Users.GetByID(ctx, currentSession.UserID)
	if err != nil {
		return errors.Wrap(err, "[ChangePassword] Users.GetByID")
	}
	if user == nil || !users.CheckPasswordHash(oldPassword, user.ID, user.PasswordHash) {
		return apperrors.ErrAuth
	}

	if err := as.repos.Users.UpdatePassword(ctx, user.ID, users.HashPassword(newPassword, user.ID)); err != nil {
		return errors.Wrap(err, "[ChangePassword] Users.UpdatePassword")
	}

	if _, err := as.repos.Sessions.DeleteAll(ctx, user.ID); err != nil {
		return errors.Wrap(err, "[ChangePassword] Sessions.DeleteAll")
	}
	return nil
}

// UpdateUserInfo updates the caller's own profile fields. Role, audiences
// and active status are only honoured when the caller is an administrator.
func (as *AuthenticationService) UpdateUserInfo(ctx context.Context, callerID, targetID uuid.UUID, updated users.User) (users.Info, error) {
	caller, err := as.repos.Users.GetByID(ctx, callerID)
	if err != nil {
		return users.Info{}, errors.Wrap(err, "[UpdateUserInfo] Users.GetByID caller")
	}
	if caller == nil {
		return users.Info{}, apperrors.ErrAuth
	}

	isAdmin := caller.Role == roles.Administrator
	if !isAdmin && targetID != callerID {
		return users.Info{}, apperrors.ErrAuth
	}

	target, err := as.repos.Users.GetByID(ctx, targetID)
	if err != nil {
		return users.Info{}, errors.Wrap(err, "[UpdateUserInfo] Users.GetByID target")
	}
	if target == nil {
		return users.Info{}, apperrors.ErrNotFound
	}

	target.Name = updated.Name
	target.Surname1 = updated.Surname1
	target.Surname2 = updated.Surname2
	target.Avatar = updated.Avatar
	target.Phones = updated.Phones
	target.Email = updated.Email
	if isAdmin {
		target.Role = updated.Role
		target.Audiences = updated.Audiences
		target.Active = updated.Active
	}

	if err := as.repos.Users.Update(ctx, target); err != nil {
		return users.Info{}, errors.Wrap(err, "[UpdateUserInfo] Users.Update")
	}
	return target.Info(), nil
}

// ExitFromSession terminates a single session by ID.
func (as *AuthenticationService) ExitFromSession(ctx context.Context, sessionID uuid.UUID) error {
	if err := as.repos.Sessions.Delete(ctx, sessionID); err != nil {
		return errors.Wrap(err, "[ExitFromSession] Sessions.Delete")
	}
	return nil
}

// ExitFromAllSessions terminates every session belonging to the owner of the
// given session, the given one included. Returns the number removed.
func (as *AuthenticationService) ExitFromAllSessions(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	session, err := as.repos.Sessions.Get(ctx, sessionID)
	if err != nil {
		return 0, errors.Wrap(err, "[ExitFromAllSessions] Sessions.Get")
	}
	count, err := as.repos.Sessions.DeleteAll(ctx, session.UserID)
	if err != nil {
		return 0, errors.Wrap(err, "[ExitFromAllSessions] Sessions.DeleteAll")
	}
	return count, nil
}
