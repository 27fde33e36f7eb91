package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeystoreSign(t *testing.T) {
	k := NewKeystore()
	k.Add("web", []byte("secret"))

	got, err := k.Sign("web", []byte("message"))
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("message"))
	assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), got)

	// Repeated signing must work: the enclave survives being opened.
	again, err := k.Sign("web", []byte("message"))
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestKeystoreWipesSecretOnAdd(t *testing.T) {
	secret := []byte("secret")
	k := NewKeystore()
	k.Add("web", secret)
	assert.Equal(t, make([]byte, len(secret)), secret)
}

func TestKeystoreUnknownKey(t *testing.T) {
	k := NewKeystore()
	assert.False(t, k.Has("ghost"))
	_, err := k.Sign("ghost", []byte("m"))
	assert.ErrorIs(t, err, ErrUnknownKeyID)
}
