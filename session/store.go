// Package session manages server-side session state in the shared cache:
// a single active session per user, per-session key-value fields, and the
// per-session SM2 crypto context.
package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pgxcyu/ledgerd/cache"
)

// DefaultTTL is the stock session lifetime.
const DefaultTTL = 30 * 24 * time.Hour

// Session fields stored under sess:{sid}:{field}.
const (
	FieldUser          = "user"
	FieldRefreshToken  = "refresh_token"
	FieldRefreshIV     = "refresh_iv"
	FieldClientPubKey  = "cli_pubkey"
	FieldServerPrivKey = "svr_privkey"
)

// knownFields enumerates every field a session may own, so Delete and
// Touch can operate without scanning the backend.
var knownFields = []string{
	FieldUser,
	FieldRefreshToken,
	FieldRefreshIV,
	FieldClientPubKey,
	FieldServerPrivKey,
}

// ErrNotFound is returned when a session field does not exist or has expired.
var ErrNotFound = errors.New("session: not found")

// NewSessionID returns a fresh 32-char hex session id.
func NewSessionID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// Store reads and writes session state. All keys carry the session TTL;
// Touch slides the whole session forward.
type Store struct {
	cache cache.Store
	ttl   time.Duration
}

// NewStore creates a session store. A non-positive ttl falls back to
// DefaultTTL.
func NewStore(c cache.Store, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{cache: c, ttl: ttl}
}

// TTL returns the configured session lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

func sessKey(sid, field string) string {
	return "sess:" + sid + ":" + field
}

func activeSIDKey(uid string) string {
	return "user:" + uid + ":active_sid"
}

// Set writes one session field with the session TTL.
func (s *Store) Set(ctx context.Context, sid, field, value string) error {
	if err := s.cache.Set(ctx, sessKey(sid, field), value, s.ttl); err != nil {
		return fmt.Errorf("writing session field %s: %w", field, err)
	}
	return nil
}

// Get reads one session field.
func (s *Store) Get(ctx context.Context, sid, field string) (string, error) {
	v, err := s.cache.Get(ctx, sessKey(sid, field))
	if errors.Is(err, cache.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading session field %s: %w", field, err)
	}
	return v, nil
}

// Touch refreshes the TTL of every field the session owns.
func (s *Store) Touch(ctx context.Context, sid string) error {
	for _, field := range knownFields {
		if err := s.cache.Expire(ctx, sessKey(sid, field), s.ttl); err != nil {
			return fmt.Errorf("refreshing session field %s: %w", field, err)
		}
	}
	return nil
}

// Delete removes every field the session owns.
func (s *Store) Delete(ctx context.Context, sid string) error {
	for _, field := range knownFields {
		if err := s.cache.Delete(ctx, sessKey(sid, field)); err != nil {
			return fmt.Errorf("deleting session field %s: %w", field, err)
		}
	}
	return nil
}

// SetActiveSID points the user's single active session at sid and binds
// the reverse user field on the session.
func (s *Store) SetActiveSID(ctx context.Context, uid, sid string) error {
	if err := s.cache.Set(ctx, activeSIDKey(uid), sid, s.ttl); err != nil {
		return fmt.Errorf("writing active sid: %w", err)
	}
	return s.Set(ctx, sid, FieldUser, uid)
}

// ActiveSID returns the user's active session id, or ErrNotFound.
func (s *Store) ActiveSID(ctx context.Context, uid string) (string, error) {
	v, err := s.cache.Get(ctx, activeSIDKey(uid))
	if errors.Is(err, cache.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading active sid: %w", err)
	}
	return v, nil
}

// ClearActiveSID removes the user's active-session pointer.
func (s *Store) ClearActiveSID(ctx context.Context, uid string) error {
	if err := s.cache.Delete(ctx, activeSIDKey(uid)); err != nil {
		return fmt.Errorf("clearing active sid: %w", err)
	}
	return nil
}

// Revoke tears down a session completely: its fields and, if it is the
// user's active session, the pointer to it.
func (s *Store) Revoke(ctx context.Context, sid string) error {
	uid, err := s.Get(ctx, sid, FieldUser)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := s.Delete(ctx, sid); err != nil {
		return err
	}
	if uid == "" {
		return nil
	}
	active, err := s.ActiveSID(ctx, uid)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if active == sid {
		return s.ClearActiveSID(ctx, uid)
	}
	return nil
}
