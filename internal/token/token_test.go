package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	i := NewIssuer([]byte("secret"), 0, 0)

	access, err := i.Issue(KindAccess, "u1", "sid1")
	require.NoError(t, err)

	claims, err := i.Parse(KindAccess, access)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "sid1", claims.SID)
	assert.Equal(t, KindAccess, claims.Kind)
}

func TestKindMismatch(t *testing.T) {
	i := NewIssuer([]byte("secret"), 0, 0)

	refresh, err := i.Issue(KindRefresh, "u1", "sid1")
	require.NoError(t, err)

	_, err = i.Parse(KindAccess, refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiry(t *testing.T) {
	i := NewIssuer([]byte("secret"), 15*time.Minute, 7*24*time.Hour)
	now := time.Unix(1700000000, 0)
	i.now = func() time.Time { return now }

	access, err := i.Issue(KindAccess, "u1", "sid1")
	require.NoError(t, err)
	refresh, err := i.Issue(KindRefresh, "u1", "sid1")
	require.NoError(t, err)

	now = now.Add(16 * time.Minute)
	_, err = i.Parse(KindAccess, access)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// The refresh token outlives the access token.
	_, err = i.Parse(KindRefresh, refresh)
	assert.NoError(t, err)

	now = now.Add(8 * 24 * time.Hour)
	_, err = i.Parse(KindRefresh, refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestWrongSecret(t *testing.T) {
	a := NewIssuer([]byte("secret-a"), 0, 0)
	b := NewIssuer([]byte("secret-b"), 0, 0)

	tok, err := a.Issue(KindAccess, "u1", "sid1")
	require.NoError(t, err)

	_, err = b.Parse(KindAccess, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGarbageToken(t *testing.T) {
	i := NewIssuer([]byte("secret"), 0, 0)
	_, err := i.Parse(KindAccess, "not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
