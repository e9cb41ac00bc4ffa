// Package token issues and verifies the signed access keys that accompany a
// session. Keys are short-lived JWTs signed with the service's RSA key.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-session-service/internal/errors"
	"github.com/jrsteele09/go-session-service/roles"
)

// Claims is the verified content of an access key.
type Claims struct {
	Subject   uuid.UUID
	Role      roles.Role
	Audiences []string
	ExpiresAt time.Time
	ID        string
}

type Manager struct {
	signer  Signer
	issuer  string
	nowTime func() time.Time
}

type ManagerOption func(*Manager)

// WithNowTime replaces the clock, used by unit tests.
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

func NewManager(signer Signer, issuer string, options ...ManagerOption) *Manager {
	m := &Manager{
		signer:  signer,
		issuer:  issuer,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Issue creates a signed access key for the given subject. The key carries
// the user's role and audiences so resource handlers can authorize without a
// directory lookup.
func (m *Manager) Issue(subject uuid.UUID, role roles.Role, audiences []string, lifetimeMinutes int) (string, error) {
	now := m.nowTime()
	claims := jwt.MapClaims{
		"iss":  m.issuer,
		"sub":  subject.String(),
		"role": role.String(),
		"aud":  audiences,
		"iat":  now.Unix(),
		"exp":  now.Add(time.Duration(lifetimeMinutes) * time.Minute).Unix(),
		"jti":  uuid.New().String(),
	}

	signedToken, err := m.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.Issue]")
	}
	return signedToken, nil
}

// Verify parses and validates an access key. The key must verify against the
// signing key, be unexpired, and name expectedSubject as its subject. An
// empty allowedRoles or allowedAudiences slice accepts any role or audience;
// otherwise the key's role must be listed and, when the key carries
// audiences, at least one must intersect the allowlist. A key without
// audiences is unscoped and passes any audience check. All failures surface
// as ErrCredential so callers cannot distinguish why a key was rejected.
func (m *Manager) Verify(tokenString string, expectedSubject uuid.UUID, allowedRoles []roles.Role, allowedAudiences []string) (Claims, error) {
	parsed, err := jwt.Parse(tokenString, m.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{m.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(m.nowTime),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, apperrors.ErrCredential
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, apperrors.ErrCredential
	}

	claims, err := claimsFromMap(mapClaims)
	if err != nil {
		return Claims{}, apperrors.ErrCredential
	}

	if claims.Subject != expectedSubject {
		return Claims{}, apperrors.ErrCredential
	}
	if len(allowedRoles) > 0 && !roleAllowed(claims.Role, allowedRoles) {
		return Claims{}, apperrors.ErrCredential
	}
	if len(claims.Audiences) > 0 && len(allowedAudiences) > 0 && !audienceAllowed(claims.Audiences, allowedAudiences) {
		return Claims{}, apperrors.ErrCredential
	}

	return claims, nil
}

func claimsFromMap(mapClaims jwt.MapClaims) (Claims, error) {
	subjectString, err := mapClaims.GetSubject()
	if err != nil {
		return Claims{}, err
	}
	subject, err := uuid.Parse(subjectString)
	if err != nil {
		return Claims{}, err
	}

	expiresAt, err := mapClaims.GetExpirationTime()
	if err != nil || expiresAt == nil {
		return Claims{}, errors.New("missing exp claim")
	}

	audiences, err := mapClaims.GetAudience()
	if err != nil {
		return Claims{}, err
	}

	roleString, _ := mapClaims["role"].(string)
	jti, _ := mapClaims["jti"].(string)

	return Claims{
		Subject:   subject,
		Role:      roles.Parse(roleString),
		Audiences: audiences,
		ExpiresAt: expiresAt.Time,
		ID:        jti,
	}, nil
}

func roleAllowed(role roles.Role, allowed []roles.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

func audienceAllowed(audiences, allowed []string) bool {
	for _, aud := range audiences {
		for _, a := range allowed {
			if aud == a {
				return true
			}
		}
	}
	return false
}
