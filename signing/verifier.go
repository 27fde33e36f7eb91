package signing

import (
	"context"
	"crypto/hmac"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultSignatureWindow is the maximum allowed skew between the client
// timestamp and server time.
const DefaultSignatureWindow = 180 * time.Second

// Verifier runs the signature verification state machine. Every step is
// terminal on failure; a rejected request must be resent with a fresh
// nonce and timestamp.
type Verifier struct {
	keys   *Keystore
	replay *ReplayGuard
	window time.Duration
	now    func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithSignatureWindow overrides the timestamp window.
func WithSignatureWindow(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.window = d }
}

// WithVerifierClock overrides the clock, for tests.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a Verifier over the given keystore and replay guard.
func NewVerifier(keys *Keystore, replay *ReplayGuard, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		keys:   keys,
		replay: replay,
		window: DefaultSignatureWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks req in the fixed order: timestamp parse, timestamp window,
// replay decision, key lookup, canonical build with body-hash cross-check,
// constant-time HMAC comparison. It returns nil only if every step passed.
func (v *Verifier) Verify(ctx context.Context, req Request) error {
	ts, err := strconv.ParseInt(req.Timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%q: %w", req.Timestamp, ErrInvalidTimestamp)
	}

	skew := v.now().Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > v.window {
		return fmt.Errorf("skew %ds: %w", skew, ErrTimestampExpired)
	}

	if err := v.replay.Check(ctx, req.KeyID, req.Nonce, req.Method, req.IdempotencyKey); err != nil {
		return err
	}

	if !v.keys.Has(req.KeyID) {
		return fmt.Errorf("%q: %w", req.KeyID, ErrUnknownKeyID)
	}

	bodyHash, err := v.effectiveBodyHash(req)
	if err != nil {
		return err
	}

	canonical := CanonicalString(
		req.Method, req.Path, CanonicalQuery(req.RawQuery),
		bodyHash, req.Timestamp, req.Nonce, req.IdempotencyKey, req.KeyID,
	)
	expected, err := v.keys.Sign(req.KeyID, []byte(canonical))
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(req.Signature)) {
		return ErrSignatureInvalid
	}
	return nil
}

// effectiveBodyHash resolves the body hash that enters the canonical
// string. For non-GET requests the server recomputes the hash and, when
// the client supplied one, requires agreement before the signature is
// even compared. The client's spelling wins when both agree, since it is
// what the client signed.
func (v *Verifier) effectiveBodyHash(req Request) (string, error) {
	if req.Method == http.MethodGet {
		return req.BodyHash, nil
	}
	computed := CanonicalBodyHash(req.Body)
	if req.BodyHash != "" && !strings.EqualFold(req.BodyHash, computed) {
		return "", fmt.Errorf("client %q server %q: %w", req.BodyHash, computed, ErrBodyHashMismatch)
	}
	if req.BodyHash != "" {
		return req.BodyHash, nil
	}
	return computed, nil
}
