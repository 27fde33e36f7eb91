// Package crypto wraps the SM2 and SM4 primitives used for session-bound
// field-level encryption. All key and ciphertext material crosses package
// boundaries as hex strings, matching the wire format clients speak.
package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/emmansun/gmsm/sm2"
)

const (
	privKeyHexLen = 64  // 32-byte scalar
	pubKeyHexLen  = 128 // X||Y, no point marker
	pointMarker   = "04"
	c3HexLen      = 64 // SM3 tag
)

// Order selects the SM2 ciphertext splicing order. Client libraries
// disagree on the layout, so encryption is configurable and decryption
// can probe both.
type Order int

const (
	// OrderAuto decrypts by trying C1C3C2 first, then C1C2C3. For
	// encryption it behaves as OrderC1C3C2.
	OrderAuto Order = iota
	// OrderC1C3C2 is the GB/T 32918.4 layout: point, tag, masked body.
	OrderC1C3C2
	// OrderC1C2C3 is the legacy layout: point, masked body, tag.
	OrderC1C2C3
)

func (o Order) String() string {
	switch o {
	case OrderC1C3C2:
		return "C1C3C2"
	case OrderC1C2C3:
		return "C1C2C3"
	default:
		return "auto"
	}
}

func (o Order) encrypterOpts() *sm2.EncrypterOpts {
	if o == OrderC1C2C3 {
		return sm2.NewPlainEncrypterOpts(sm2.MarshalUncompressed, sm2.C1C2C3)
	}
	return sm2.NewPlainEncrypterOpts(sm2.MarshalUncompressed, sm2.C1C3C2)
}

func (o Order) decrypterOpts() *sm2.DecrypterOpts {
	if o == OrderC1C2C3 {
		return sm2.NewPlainDecrypterOpts(sm2.C1C2C3)
	}
	return sm2.NewPlainDecrypterOpts(sm2.C1C3C2)
}

// ErrDecryptFailed indicates no candidate splicing order yielded a valid
// plaintext.
var ErrDecryptFailed = errors.New("sm2 decrypt failed")

// CleanHex strips surrounding whitespace, quotes and an optional 0x prefix,
// then validates that the remainder is even-length hex.
func CleanHex(s string) (string, error) {
	h := strings.TrimSpace(s)
	h = strings.Trim(h, `"'`)
	h = strings.NewReplacer(" ", "", "\n", "", "\r", "").Replace(h)
	h = strings.TrimPrefix(strings.TrimPrefix(h, "0x"), "0X")
	if len(h) == 0 || len(h)%2 != 0 {
		return "", fmt.Errorf("invalid hex length %d", len(h))
	}
	if _, err := hex.DecodeString(h); err != nil {
		return "", fmt.Errorf("invalid hex: %w", err)
	}
	return h, nil
}

// NormalizePublicKeyHex returns the 128-hex X||Y form of an SM2 public
// key, accepting input with or without the uncompressed-point marker.
func NormalizePublicKeyHex(s string) (string, error) {
	h, err := CleanHex(s)
	if err != nil {
		return "", err
	}
	if len(h) == pubKeyHexLen+2 && strings.HasPrefix(h, pointMarker) {
		h = h[2:]
	}
	if len(h) != pubKeyHexLen {
		return "", fmt.Errorf("public key must be %d hex chars, got %d", pubKeyHexLen, len(h))
	}
	return h, nil
}

// GenerateSM2KeyPair returns a fresh keypair as (priv 64 hex, pub 128 hex)
// uppercase, public key without the point marker.
func GenerateSM2KeyPair() (privHex, pubHex string, err error) {
	priv, err := sm2.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generating sm2 key: %w", err)
	}
	d := priv.D.FillBytes(make([]byte, 32))
	x := priv.PublicKey.X.FillBytes(make([]byte, 32))
	y := priv.PublicKey.Y.FillBytes(make([]byte, 32))
	return strings.ToUpper(hex.EncodeToString(d)),
		strings.ToUpper(hex.EncodeToString(x) + hex.EncodeToString(y)),
		nil
}

// ValidateSM2KeyPair checks that pubHex is the public key derived from
// privHex.
func ValidateSM2KeyPair(privHex, pubHex string) error {
	priv, err := parsePrivateKey(privHex)
	if err != nil {
		return err
	}
	want, err := NormalizePublicKeyHex(pubHex)
	if err != nil {
		return err
	}
	x := priv.PublicKey.X.FillBytes(make([]byte, 32))
	y := priv.PublicKey.Y.FillBytes(make([]byte, 32))
	derived := hex.EncodeToString(x) + hex.EncodeToString(y)
	if !strings.EqualFold(derived, want) {
		return errors.New("keypair mismatch: public key not derived from private key")
	}
	return nil
}

func parsePublicKey(pubHex string) (*ecdsa.PublicKey, error) {
	h, err := NormalizePublicKeyHex(pubHex)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return nil, err
	}
	pub, err := sm2.NewPublicKey(append([]byte{0x04}, raw...))
	if err != nil {
		return nil, fmt.Errorf("parsing sm2 public key: %w", err)
	}
	return pub, nil
}

func parsePrivateKey(privHex string) (*sm2.PrivateKey, error) {
	h, err := CleanHex(privHex)
	if err != nil {
		return nil, err
	}
	if len(h) != privKeyHexLen {
		return nil, fmt.Errorf("private key must be %d hex chars, got %d", privKeyHexLen, len(h))
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return nil, err
	}
	priv, err := sm2.NewPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing sm2 private key: %w", err)
	}
	return priv, nil
}

// EncryptSM2 encrypts plaintext to the given public key and returns the
// hex ciphertext in the requested splicing order. withMarker controls the
// leading uncompressed-point byte on C1.
func EncryptSM2(pubHex string, plaintext []byte, order Order, withMarker bool) (string, error) {
	pub, err := parsePublicKey(pubHex)
	if err != nil {
		return "", err
	}
	ct, err := sm2.Encrypt(rand.Reader, pub, plaintext, order.encrypterOpts())
	if err != nil {
		return "", fmt.Errorf("sm2 encrypt: %w", err)
	}
	h := hex.EncodeToString(ct)
	if !withMarker {
		h = strings.TrimPrefix(h, pointMarker)
	}
	return h, nil
}

// DecryptSM2 decrypts hex ciphertext with the given private key. Input may
// arrive with or without the C1 point marker and in either splicing order;
// OrderAuto probes C1C3C2 before C1C2C3 and returns ErrDecryptFailed only
// after both fail.
func DecryptSM2(privHex, cipherHex string, order Order) ([]byte, error) {
	priv, err := parsePrivateKey(privHex)
	if err != nil {
		return nil, err
	}
	h, err := CleanHex(cipherHex)
	if err != nil {
		return nil, err
	}
	// A leading 04 is normally the point marker, but X itself may start
	// with that byte, so a marker-less ciphertext can be ambiguous. Both
	// interpretations are probed.
	candidates := []string{pointMarker + h}
	if strings.HasPrefix(h, pointMarker) {
		candidates = []string{h, pointMarker + h}
	}

	orders := []Order{order}
	if order == OrderAuto {
		orders = []Order{OrderC1C3C2, OrderC1C2C3}
	}
	var lastErr error
	for _, c := range candidates {
		if len(c) < 2+pubKeyHexLen+c3HexLen {
			lastErr = fmt.Errorf("ciphertext too short (%d hex chars)", len(c))
			continue
		}
		ct, err := hex.DecodeString(c)
		if err != nil {
			return nil, err
		}
		for _, o := range orders {
			pt, err := priv.Decrypt(rand.Reader, ct, o.decrypterOpts())
			if err == nil {
				return pt, nil
			}
			lastErr = err
		}
	}
	return nil, fmt.Errorf("%w: tried %v: %v", ErrDecryptFailed, orders, lastErr)
}
