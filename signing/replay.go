package signing

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pgxcyu/ledgerd/cache"
)

// ReplayPolicy holds the replay-tolerance windows and record TTLs. The
// defaults are tuned for token-refresh retry storms; deployments with
// different client behavior can override them.
type ReplayPolicy struct {
	// GETRecordTTL is how long a GET nonce stays marked as seen.
	GETRecordTTL time.Duration
	// MutatingRecordTTL is how long a mutating-method nonce stays marked.
	MutatingRecordTTL time.Duration
	// GETRetryWindow tolerates network-level duplicate GETs.
	GETRetryWindow time.Duration
	// MutatingRetryWindow tolerates duplicate mutating requests that carry
	// no idempotency key.
	MutatingRetryWindow time.Duration
	// IdempotencyMarkerTTL is the lifetime of the retry marker set for
	// mutating requests that do carry an idempotency key.
	IdempotencyMarkerTTL time.Duration
}

// DefaultReplayPolicy returns the stock windows.
func DefaultReplayPolicy() ReplayPolicy {
	return ReplayPolicy{
		GETRecordTTL:         60 * time.Second,
		MutatingRecordTTL:    300 * time.Second,
		GETRetryWindow:       5 * time.Second,
		MutatingRetryWindow:  30 * time.Second,
		IdempotencyMarkerTTL: 30 * time.Second,
	}
}

// ReplayGuard tracks (key id, nonce) pairs and idempotency markers in the
// shared cache to distinguish replay attacks from legitimate retries.
type ReplayGuard struct {
	store  cache.Store
	policy ReplayPolicy
	now    func() time.Time
}

// GuardOption configures a ReplayGuard.
type GuardOption func(*ReplayGuard)

// WithPolicy overrides the default replay policy.
func WithPolicy(p ReplayPolicy) GuardOption {
	return func(g *ReplayGuard) { g.policy = p }
}

// WithGuardClock overrides the clock, for tests.
func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *ReplayGuard) { g.now = now }
}

// NewReplayGuard creates a guard backed by the shared cache.
func NewReplayGuard(store cache.Store, opts ...GuardOption) *ReplayGuard {
	g := &ReplayGuard{
		store:  store,
		policy: DefaultReplayPolicy(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func replayKey(keyID, nonce string) string {
	return "sig:" + keyID + ":" + nonce
}

func markerKey(idemKey string) string {
	return "sig:retry:" + idemKey
}

func (g *ReplayGuard) recordTTL(method string) time.Duration {
	if method == http.MethodGet {
		return g.policy.GETRecordTTL
	}
	return g.policy.MutatingRecordTTL
}

// Seen returns the first-seen time for (keyID, nonce) if the pair is
// marked in the cache.
func (g *ReplayGuard) Seen(ctx context.Context, keyID, nonce string) (time.Time, bool, error) {
	v, err := g.store.Get(ctx, replayKey(keyID, nonce))
	if err == cache.ErrNotFound {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		// Unparseable record: treat as seen-just-now, which fails closed
		// into the narrow retry windows.
		return g.now(), true, nil
	}
	return time.Unix(sec, 0), true, nil
}

// Mark records (keyID, nonce) as seen with the given TTL. It reports
// whether this call created the record, i.e. whether the nonce was fresh.
func (g *ReplayGuard) Mark(ctx context.Context, keyID, nonce string, ttl time.Duration) (bool, error) {
	now := strconv.FormatInt(g.now().Unix(), 10)
	return g.store.SetNX(ctx, replayKey(keyID, nonce), now, ttl)
}

// HasIdempotencyMarker reports whether a retry marker exists for idemKey.
func (g *ReplayGuard) HasIdempotencyMarker(ctx context.Context, idemKey string) (bool, error) {
	_, err := g.store.Get(ctx, markerKey(idemKey))
	if err == cache.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkIdempotency sets a short-lived retry marker for idemKey.
func (g *ReplayGuard) MarkIdempotency(ctx context.Context, idemKey string, ttl time.Duration) error {
	return g.store.Set(ctx, markerKey(idemKey), "1", ttl)
}

// Check runs the replay decision for one request. A nil return means the
// request is either the first use of the nonce or a tolerated retry; the
// record TTL is refreshed and, for mutating requests with an idempotency
// key, the retry marker is set. Cache failures propagate so callers can
// fail closed.
func (g *ReplayGuard) Check(ctx context.Context, keyID, nonce, method, idemKey string) error {
	ttl := g.recordTTL(method)
	mutating := method != http.MethodGet

	created, err := g.Mark(ctx, keyID, nonce, ttl)
	if err != nil {
		return fmt.Errorf("marking nonce: %w", err)
	}
	if created {
		if mutating && idemKey != "" {
			if err := g.MarkIdempotency(ctx, idemKey, g.policy.IdempotencyMarkerTTL); err != nil {
				return fmt.Errorf("marking idempotency retry: %w", err)
			}
		}
		return nil
	}

	firstSeen, seen, err := g.Seen(ctx, keyID, nonce)
	if err != nil {
		return fmt.Errorf("reading replay record: %w", err)
	}
	if !seen {
		// Record expired between SetNX and Get; re-mark and treat as first use.
		if _, err := g.Mark(ctx, keyID, nonce, ttl); err != nil {
			return fmt.Errorf("re-marking nonce: %w", err)
		}
		return nil
	}

	elapsed := g.now().Sub(firstSeen)
	switch {
	case !mutating:
		if elapsed > g.policy.GETRetryWindow {
			return fmt.Errorf("nonce %q reused after %s: %w", nonce, elapsed, ErrReplayDetected)
		}
	case idemKey != "":
		ok, err := g.HasIdempotencyMarker(ctx, idemKey)
		if err != nil {
			return fmt.Errorf("reading idempotency marker: %w", err)
		}
		if !ok {
			return fmt.Errorf("nonce %q reused without matching idempotency context: %w", nonce, ErrReplayDetected)
		}
	default:
		if elapsed > g.policy.MutatingRetryWindow {
			return fmt.Errorf("nonce %q reused after %s: %w", nonce, elapsed, ErrReplayDetected)
		}
	}

	// Tolerated retry: extend the replay record and keep the marker alive.
	if err := g.store.Expire(ctx, replayKey(keyID, nonce), ttl); err != nil {
		return fmt.Errorf("refreshing replay record: %w", err)
	}
	if mutating && idemKey != "" {
		if err := g.MarkIdempotency(ctx, idemKey, g.policy.IdempotencyMarkerTTL); err != nil {
			return fmt.Errorf("marking idempotency retry: %w", err)
		}
	}
	return nil
}
