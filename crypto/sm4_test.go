package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSM4KeySize(t *testing.T) {
	_, err := NewSM4(make([]byte, 16))
	require.NoError(t, err)
	_, err = NewSM4(make([]byte, 15))
	assert.Error(t, err)

	_, err = NewSM4FromHex("00112233445566778899aabbccddeeff")
	require.NoError(t, err)
	_, err = NewSM4FromHex("not hex")
	assert.Error(t, err)
}

func TestSM4CBCRoundTrip(t *testing.T) {
	s, err := NewSM4FromHex("00112233445566778899aabbccddeeff")
	require.NoError(t, err)

	plaintext := []byte("refresh-token-payload")
	ctHex, ivHex, err := s.EncryptCBC(plaintext)
	require.NoError(t, err)
	assert.Len(t, ivHex, 32)

	got, err := s.DecryptCBC(ctHex, ivHex)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)

	// A fresh IV every call means distinct ciphertexts.
	ctHex2, ivHex2, err := s.EncryptCBC(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, ctHex, ctHex2)
	assert.NotEqual(t, ivHex, ivHex2)
}

func TestSM4CBCExactBlock(t *testing.T) {
	s, err := NewSM4FromHex("00112233445566778899aabbccddeeff")
	require.NoError(t, err)

	// 16-byte input gains a full padding block.
	plaintext := []byte("0123456789abcdef")
	ctHex, ivHex, err := s.EncryptCBC(plaintext)
	require.NoError(t, err)
	raw, err := hex.DecodeString(ctHex)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	got, err := s.DecryptCBC(ctHex, ivHex)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestSM4CBCDecryptErrors(t *testing.T) {
	s, err := NewSM4FromHex("00112233445566778899aabbccddeeff")
	require.NoError(t, err)

	_, err = s.DecryptCBC("zz", "00000000000000000000000000000000")
	assert.Error(t, err)
	_, err = s.DecryptCBC("00112233445566778899aabbccddeeff", "abcd")
	assert.Error(t, err)
	_, err = s.DecryptCBC("0011", "00000000000000000000000000000000")
	assert.Error(t, err)
}

func TestSM4ECBRoundTrip(t *testing.T) {
	s, err := NewSM4FromHex("00112233445566778899aabbccddeeff")
	require.NoError(t, err)

	plaintext := []byte("legacy client payload")
	ctHex, err := s.EncryptECB(plaintext)
	require.NoError(t, err)

	got, err := s.DecryptECB(ctHex)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)

	// ECB is deterministic.
	ctHex2, err := s.EncryptECB(plaintext)
	require.NoError(t, err)
	assert.Equal(t, ctHex, ctHex2)
}
