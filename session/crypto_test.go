package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgxcyu/ledgerd/cache/memory"
	"github.com/pgxcyu/ledgerd/crypto"
)

func TestEstablishKeysAndCipher(t *testing.T) {
	store := NewStore(memory.NewStore(), 0)
	cc := NewCryptoContext(store)
	ctx := context.Background()

	cliPriv, cliPub, err := crypto.GenerateSM2KeyPair()
	require.NoError(t, err)

	svrPub, err := cc.EstablishKeys(ctx, "sid1", cliPub)
	require.NoError(t, err)
	assert.Len(t, svrPub, 128)

	cipher, err := cc.Cipher(ctx, "sid1")
	require.NoError(t, err)

	// Server-to-client: the client's private key opens it.
	ct, err := cipher.EncryptString("alice")
	require.NoError(t, err)
	pt, err := crypto.DecryptSM2(cliPriv, ct, crypto.OrderAuto)
	require.NoError(t, err)
	assert.Equal(t, "alice", string(pt))

	// Client-to-server: encrypted under the session's server key.
	inbound, err := crypto.EncryptSM2(svrPub, []byte("secret field"), crypto.OrderC1C3C2, true)
	require.NoError(t, err)
	got, err := cipher.Decrypt(inbound)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret field"), got)
}

func TestEstablishKeysAcceptsMarkedClientKey(t *testing.T) {
	store := NewStore(memory.NewStore(), 0)
	cc := NewCryptoContext(store)
	ctx := context.Background()

	_, cliPub, err := crypto.GenerateSM2KeyPair()
	require.NoError(t, err)

	_, err = cc.EstablishKeys(ctx, "sid1", "04"+cliPub)
	require.NoError(t, err)

	// Stored normalized, without the marker.
	stored, err := store.Get(ctx, "sid1", FieldClientPubKey)
	require.NoError(t, err)
	assert.Equal(t, cliPub, stored)
}

func TestEstablishKeysRejectsBadKey(t *testing.T) {
	store := NewStore(memory.NewStore(), 0)
	cc := NewCryptoContext(store)

	_, err := cc.EstablishKeys(context.Background(), "sid1", "not hex")
	assert.Error(t, err)
}

func TestCipherUnavailableWithoutKeys(t *testing.T) {
	store := NewStore(memory.NewStore(), 0)
	cc := NewCryptoContext(store)

	_, err := cc.Cipher(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrCryptoContextUnavailable)
}

func TestReLoginRotatesKeys(t *testing.T) {
	store := NewStore(memory.NewStore(), 0)
	cc := NewCryptoContext(store)
	ctx := context.Background()

	_, cliPub, err := crypto.GenerateSM2KeyPair()
	require.NoError(t, err)

	pub1, err := cc.EstablishKeys(ctx, "sid1", cliPub)
	require.NoError(t, err)
	pub2, err := cc.EstablishKeys(ctx, "sid2", cliPub)
	require.NoError(t, err)
	assert.NotEqual(t, pub1, pub2)
}

func TestCipherConfiguredOrder(t *testing.T) {
	store := NewStore(memory.NewStore(), 0)
	cc := NewCryptoContext(store,
		WithCiphertextOrder(crypto.OrderC1C2C3),
		WithPointMarker(true))
	ctx := context.Background()

	cliPriv, cliPub, err := crypto.GenerateSM2KeyPair()
	require.NoError(t, err)
	_, err = cc.EstablishKeys(ctx, "sid1", cliPub)
	require.NoError(t, err)

	cipher, err := cc.Cipher(ctx, "sid1")
	require.NoError(t, err)
	ct, err := cipher.EncryptString("payload")
	require.NoError(t, err)

	pt, err := crypto.DecryptSM2(cliPriv, ct, crypto.OrderC1C2C3)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(pt))
}
