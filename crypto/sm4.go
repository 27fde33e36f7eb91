package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	smcipher "github.com/emmansun/gmsm/cipher"
	"github.com/emmansun/gmsm/padding"
	"github.com/emmansun/gmsm/sm4"
)

// SM4 wraps a 128-bit SM4 key for CBC and ECB block encryption with
// PKCS#7 padding. Ciphertexts and IVs travel as hex strings.
type SM4 struct {
	block cipher.Block
}

// NewSM4 creates an SM4 wrapper. The key must be exactly 16 bytes.
func NewSM4(key []byte) (*SM4, error) {
	if len(key) != sm4.BlockSize {
		return nil, fmt.Errorf("sm4 key must be %d bytes, got %d", sm4.BlockSize, len(key))
	}
	block, err := sm4.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("initializing sm4: %w", err)
	}
	return &SM4{block: block}, nil
}

// NewSM4FromHex creates an SM4 wrapper from a 32-hex-char key.
func NewSM4FromHex(keyHex string) (*SM4, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("decoding sm4 key: %w", err)
	}
	return NewSM4(key)
}

var pkcs7 = padding.NewPKCS7Padding(sm4.BlockSize)

// EncryptCBC encrypts plaintext in CBC mode under a random IV and returns
// (ciphertext hex, iv hex).
func (s *SM4) EncryptCBC(plaintext []byte) (cipherHex, ivHex string, err error) {
	iv := make([]byte, sm4.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", "", fmt.Errorf("generating iv: %w", err)
	}
	padded := pkcs7.Pad(plaintext)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(s.block, iv).CryptBlocks(out, padded)
	return hex.EncodeToString(out), hex.EncodeToString(iv), nil
}

// DecryptCBC reverses EncryptCBC.
func (s *SM4) DecryptCBC(cipherHex, ivHex string) ([]byte, error) {
	ct, err := hex.DecodeString(cipherHex)
	if err != nil {
		return nil, fmt.Errorf("decoding ciphertext: %w", err)
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, fmt.Errorf("decoding iv: %w", err)
	}
	if len(iv) != sm4.BlockSize {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", sm4.BlockSize, len(iv))
	}
	if len(ct) == 0 || len(ct)%sm4.BlockSize != 0 {
		return nil, errors.New("ciphertext is not a whole number of blocks")
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(s.block, iv).CryptBlocks(out, ct)
	return pkcs7.Unpad(out)
}

// EncryptECB encrypts plaintext in ECB mode. ECB leaks block-level
// structure; it exists only for interop with clients that require it.
func (s *SM4) EncryptECB(plaintext []byte) (string, error) {
	padded := pkcs7.Pad(plaintext)
	out := make([]byte, len(padded))
	smcipher.NewECBEncrypter(s.block).CryptBlocks(out, padded)
	return hex.EncodeToString(out), nil
}

// DecryptECB reverses EncryptECB.
func (s *SM4) DecryptECB(cipherHex string) ([]byte, error) {
	ct, err := hex.DecodeString(cipherHex)
	if err != nil {
		return nil, fmt.Errorf("decoding ciphertext: %w", err)
	}
	if len(ct) == 0 || len(ct)%sm4.BlockSize != 0 {
		return nil, errors.New("ciphertext is not a whole number of blocks")
	}
	out := make([]byte, len(ct))
	smcipher.NewECBDecrypter(s.block).CryptBlocks(out, ct)
	return pkcs7.Unpad(out)
}
