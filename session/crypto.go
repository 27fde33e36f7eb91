package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/pgxcyu/ledgerd/crypto"
)

// ErrCryptoContextUnavailable indicates the session's key material is
// missing, typically because the session expired.
var ErrCryptoContextUnavailable = errors.New("crypto context unavailable")

// CryptoContext issues the per-session SM2 keypair and derives request
// ciphers from it. One keypair per session: a new login, token refresh
// with a new session, or role switch gets a new session id and therefore
// fresh keys. The private key never leaves the session store.
type CryptoContext struct {
	store      *Store
	order      crypto.Order
	withMarker bool
}

// CryptoOption configures a CryptoContext.
type CryptoOption func(*CryptoContext)

// WithCiphertextOrder sets the splicing order used when encrypting for
// the client.
func WithCiphertextOrder(order crypto.Order) CryptoOption {
	return func(c *CryptoContext) { c.order = order }
}

// WithPointMarker controls whether encrypted output carries the leading
// uncompressed-point byte.
func WithPointMarker(with bool) CryptoOption {
	return func(c *CryptoContext) { c.withMarker = with }
}

// NewCryptoContext creates a CryptoContext over the session store. The
// default output layout is C1C3C2 without the point marker.
func NewCryptoContext(store *Store, opts ...CryptoOption) *CryptoContext {
	c := &CryptoContext{
		store: store,
		order: crypto.OrderC1C3C2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EstablishKeys stores the client's public key, generates the server-side
// keypair for sid, and returns the server public key for the client. Any
// previous key material under sid is overwritten.
func (c *CryptoContext) EstablishKeys(ctx context.Context, sid, clientPubHex string) (string, error) {
	clientPub, err := crypto.NormalizePublicKeyHex(clientPubHex)
	if err != nil {
		return "", fmt.Errorf("client public key: %w", err)
	}
	svrPriv, svrPub, err := crypto.GenerateSM2KeyPair()
	if err != nil {
		return "", err
	}
	if err := c.store.Set(ctx, sid, FieldClientPubKey, clientPub); err != nil {
		return "", err
	}
	if err := c.store.Set(ctx, sid, FieldServerPrivKey, svrPriv); err != nil {
		return "", err
	}
	return svrPub, nil
}

// Cipher loads the session's key material and returns a request-scoped
// cipher. Missing keys mean the session expired.
func (c *CryptoContext) Cipher(ctx context.Context, sid string) (*Cipher, error) {
	clientPub, err := c.store.Get(ctx, sid, FieldClientPubKey)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("session %s: %w", sid, ErrCryptoContextUnavailable)
	}
	if err != nil {
		return nil, err
	}
	svrPriv, err := c.store.Get(ctx, sid, FieldServerPrivKey)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("session %s: %w", sid, ErrCryptoContextUnavailable)
	}
	if err != nil {
		return nil, err
	}
	return &Cipher{
		clientPub:  clientPub,
		serverPriv: svrPriv,
		order:      c.order,
		withMarker: c.withMarker,
	}, nil
}

// Cipher encrypts response fields for the session's client and decrypts
// request fields sent to the server.
type Cipher struct {
	clientPub  string
	serverPriv string
	order      crypto.Order
	withMarker bool
}

// Encrypt produces hex ciphertext under the client's public key.
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	return crypto.EncryptSM2(c.clientPub, plaintext, c.order, c.withMarker)
}

// EncryptString is Encrypt for string payloads.
func (c *Cipher) EncryptString(plaintext string) (string, error) {
	return c.Encrypt([]byte(plaintext))
}

// Decrypt opens hex ciphertext with the server's private key, probing
// both splicing orders.
func (c *Cipher) Decrypt(cipherHex string) ([]byte, error) {
	return crypto.DecryptSM2(c.serverPriv, cipherHex, crypto.OrderAuto)
}
