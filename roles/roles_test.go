package roles_test

import (
	"testing"

	"github.com/jrsteele09/go-session-service/roles"
	"github.com/stretchr/testify/require"
)

func TestParseKnownRoles(t *testing.T) {
	require.Equal(t, roles.Administrator, roles.Parse("Administrator"))
	require.Equal(t, roles.User, roles.Parse("User"))
	require.Equal(t, roles.NonPrivileged, roles.Parse("NonPrivileged"))
}

func TestParseUnknownFallsBackToNonPrivileged(t *testing.T) {
	require.Equal(t, roles.NonPrivileged, roles.Parse("Root"))
	require.Equal(t, roles.NonPrivileged, roles.Parse(""))
}
