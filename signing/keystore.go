package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
)

// Keystore maps key ids to shared HMAC secrets. Secrets live in memguard
// enclaves so raw key material is encrypted at rest in process memory and
// only decrypted for the duration of a single MAC computation.
type Keystore struct {
	mu   sync.RWMutex
	keys map[string]*memguard.Enclave
}

// NewKeystore creates an empty Keystore.
func NewKeystore() *Keystore {
	return &Keystore{keys: make(map[string]*memguard.Enclave)}
}

// Add registers a shared secret under keyID. The secret slice is wiped
// as a side effect of sealing it.
func (k *Keystore) Add(keyID string, secret []byte) {
	enclave := memguard.NewEnclave(secret)
	k.mu.Lock()
	k.keys[keyID] = enclave
	k.mu.Unlock()
}

// Has reports whether a secret is registered for keyID.
func (k *Keystore) Has(keyID string) bool {
	k.mu.RLock()
	_, ok := k.keys[keyID]
	k.mu.RUnlock()
	return ok
}

// Sign computes base64(HMAC-SHA256(secret, message)) for the secret
// registered under keyID. This is the same primitive clients use to
// produce X-Signature, so it also serves test helpers and outbound calls.
func (k *Keystore) Sign(keyID string, message []byte) (string, error) {
	k.mu.RLock()
	enclave, ok := k.keys[keyID]
	k.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%q: %w", keyID, ErrUnknownKeyID)
	}

	buf, err := enclave.Open()
	if err != nil {
		return "", fmt.Errorf("opening signing secret %q: %w", keyID, err)
	}
	defer buf.Destroy()

	mac := hmac.New(sha256.New, buf.Bytes())
	mac.Write(message)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
