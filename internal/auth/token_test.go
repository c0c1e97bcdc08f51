package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	identity := Identity{UserID: "user-1", Email: "ravi@site.com", Role: RoleClient, Level: 3}
	token, err := tm.CreateToken(identity)
	require.NoError(t, err)

	got, err := tm.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, identity, got)
}

func TestVerifyToken_Expired(t *testing.T) {
	tm := NewTokenManager("test-secret", -time.Minute)

	token, err := tm.CreateToken(Identity{UserID: "user-1"})
	require.NoError(t, err)

	_, err = tm.VerifyToken(token)
	require.Error(t, err)
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	token, err := NewTokenManager("secret-a", time.Hour).
		CreateToken(Identity{UserID: "user-1"})
	require.NoError(t, err)

	_, err = NewTokenManager("secret-b", time.Hour).VerifyToken(token)
	require.Error(t, err)
}

func TestVerifyToken_Garbage(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)

	_, err := tm.VerifyToken("not.a.token")
	require.Error(t, err)
}
