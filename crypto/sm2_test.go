package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSM2KeyPair(t *testing.T) {
	priv, pub, err := GenerateSM2KeyPair()
	require.NoError(t, err)
	assert.Len(t, priv, 64)
	assert.Len(t, pub, 128)
	assert.Equal(t, strings.ToUpper(priv), priv)
	assert.False(t, strings.HasPrefix(pub, "04") && len(pub) == 130)

	require.NoError(t, ValidateSM2KeyPair(priv, pub))
}

func TestValidateSM2KeyPairMismatch(t *testing.T) {
	priv1, _, err := GenerateSM2KeyPair()
	require.NoError(t, err)
	_, pub2, err := GenerateSM2KeyPair()
	require.NoError(t, err)

	assert.Error(t, ValidateSM2KeyPair(priv1, pub2))
}

func TestCleanHex(t *testing.T) {
	got, err := CleanHex("  0xAB12\n")
	require.NoError(t, err)
	assert.Equal(t, "AB12", got)

	got, err = CleanHex(`"ab12"`)
	require.NoError(t, err)
	assert.Equal(t, "ab12", got)

	_, err = CleanHex("abc") // odd length
	assert.Error(t, err)
	_, err = CleanHex("zz")
	assert.Error(t, err)
	_, err = CleanHex("")
	assert.Error(t, err)
}

func TestNormalizePublicKeyHex(t *testing.T) {
	_, pub, err := GenerateSM2KeyPair()
	require.NoError(t, err)

	// With and without the uncompressed-point marker.
	got, err := NormalizePublicKeyHex("04" + pub)
	require.NoError(t, err)
	assert.Equal(t, pub, got)

	got, err = NormalizePublicKeyHex(pub)
	require.NoError(t, err)
	assert.Equal(t, pub, got)

	_, err = NormalizePublicKeyHex(pub[:100])
	assert.Error(t, err)
}

func TestSM2RoundTrip(t *testing.T) {
	priv, pub, err := GenerateSM2KeyPair()
	require.NoError(t, err)

	plaintext := []byte("ledger secret value")

	for _, tc := range []struct {
		name       string
		order      Order
		withMarker bool
	}{
		{"C1C3C2 with marker", OrderC1C3C2, true},
		{"C1C3C2 without marker", OrderC1C3C2, false},
		{"C1C2C3 with marker", OrderC1C2C3, true},
		{"C1C2C3 without marker", OrderC1C2C3, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ct, err := EncryptSM2(pub, plaintext, tc.order, tc.withMarker)
			require.NoError(t, err)

			// Explicit order.
			pt, err := DecryptSM2(priv, ct, tc.order)
			require.NoError(t, err)
			assert.Equal(t, plaintext, pt)

			// Auto-probing must also succeed.
			pt, err = DecryptSM2(priv, ct, OrderAuto)
			require.NoError(t, err)
			assert.Equal(t, plaintext, pt)
		})
	}
}

func TestSM2DecryptWrongKey(t *testing.T) {
	_, pub, err := GenerateSM2KeyPair()
	require.NoError(t, err)
	otherPriv, _, err := GenerateSM2KeyPair()
	require.NoError(t, err)

	ct, err := EncryptSM2(pub, []byte("x"), OrderC1C3C2, true)
	require.NoError(t, err)

	_, err = DecryptSM2(otherPriv, ct, OrderAuto)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestSM2DecryptTooShort(t *testing.T) {
	priv, _, err := GenerateSM2KeyPair()
	require.NoError(t, err)

	_, err = DecryptSM2(priv, "04ab12", OrderAuto)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestEncryptSM2AcceptsMarkedPublicKey(t *testing.T) {
	priv, pub, err := GenerateSM2KeyPair()
	require.NoError(t, err)

	ct, err := EncryptSM2("04"+pub, []byte("x"), OrderC1C3C2, true)
	require.NoError(t, err)
	pt, err := DecryptSM2(priv, ct, OrderAuto)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), pt)
}

func TestOrderString(t *testing.T) {
	assert.Equal(t, "auto", OrderAuto.String())
	assert.Equal(t, "C1C3C2", OrderC1C3C2.String())
	assert.Equal(t, "C1C2C3", OrderC1C2C3.String())
}
