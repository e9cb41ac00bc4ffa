package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session service
var (
	// Authentication errors. Bad username, bad password and inactive
	// accounts all collapse to ErrAuth so responses cannot be used to
	// enumerate usernames.
	ErrAuth = errors.New("invalid credentials")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired, log in again")

	// Fingerprint errors
	ErrWrongFingerprint = errors.New("session fingerprint mismatch")

	// Access credential errors
	ErrCredential = errors.New("invalid access credential")

	// User errors
	ErrUsernameTaken = errors.New("username already taken")

	// General errors
	ErrNotFound = errors.New("not found")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
