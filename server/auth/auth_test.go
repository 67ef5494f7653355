package auth

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBasicAuth(t *testing.T) {
	enc := func(s string) string { return "Basic " + base64.StdEncoding.EncodeToString([]byte(s)) }

	creds, err := parseBasicAuth(enc("alice:pa:ss"))
	require.NoError(t, err)
	assert.Equal(t, Credentials{Username: "alice", Password: "pa:ss"}, creds)

	for _, header := range []string{"Bearer x", "Basic !!!", enc("nocolon")} {
		_, err := parseBasicAuth(header)
		var authErr *Error
		require.ErrorAs(t, err, &authErr, header)
		assert.Equal(t, ErrInvalidCredentials, authErr.Type)
	}
}

func TestOrganizationFromPath(t *testing.T) {
	assert.Equal(t, "acme", OrganizationFromPath("/acme/rooms/1"))
	assert.Equal(t, "acme", OrganizationFromPath("/acme"))
	assert.Equal(t, "", OrganizationFromPath("/"))
}

func TestPrincipal(t *testing.T) {
	p := &Principal{ID: "alice", Organizations: []string{"acme"}}
	assert.True(t, p.CanRead("acme"))
	assert.False(t, p.CanRead("globex"))
	assert.True(t, (&Principal{Organizations: []string{"*"}}).CanRead("globex"))
	assert.False(t, (*Principal)(nil).CanRead("acme"))

	assert.Nil(t, GetPrincipalFromContext(context.Background()))
	ctx := context.WithValue(context.Background(), PrincipalContextKey, p)
	assert.Same(t, p, GetPrincipalFromContext(ctx))
}
