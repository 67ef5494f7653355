package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/caldora-recur/server/auth"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.AddUser("alice", "secret", "acme", "initech"))
	assert.Error(t, s.AddUser("alice", "other"))
	assert.Error(t, s.AddUser("", "x"))

	p, err := s.Authenticate(ctx, auth.Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "initech"}, p.Organizations)

	for _, creds := range []auth.Credentials{{Username: "alice", Password: "nope"}, {Username: "bob", Password: "secret"}} {
		_, err := s.Authenticate(ctx, creds)
		var authErr *auth.Error
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, auth.ErrInvalidCredentials, authErr.Type)
	}

	assert.NoError(t, s.ValidateAccess(ctx, p, "initech"))
	var authErr *auth.Error
	require.ErrorAs(t, s.ValidateAccess(ctx, p, "globex"), &authErr)
	assert.Equal(t, auth.ErrForbidden, authErr.Type)
	require.ErrorAs(t, s.ValidateAccess(ctx, nil, "acme"), &authErr)
	assert.Equal(t, auth.ErrUnauthorized, authErr.Type)
}

func TestParseUser(t *testing.T) {
	u, err := ParseUser("alice:s3cret:acme,globex")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "s3cret", u.Password)
	assert.Equal(t, []string{"acme", "globex"}, u.Organizations)

	u, err = ParseUser("bob:pw:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, u.Organizations)

	for _, bad := range []string{"alice", "alice:pw", ":pw:acme", "alice:pw:"} {
		_, err := ParseUser(bad)
		assert.Error(t, err, bad)
	}
}
