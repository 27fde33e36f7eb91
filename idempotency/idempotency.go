// Package idempotency deduplicates side-effecting requests with a
// processing/done state machine persisted in the shared cache.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgxcyu/ledgerd/cache"
)

var (
	// ErrMissingKey indicates a route that requires idempotency was called
	// without an Idempotency-Key header.
	ErrMissingKey = errors.New("missing idempotency key")
	// ErrConflict indicates the same idempotency key arrived with a
	// different request body.
	ErrConflict = errors.New("idempotency key conflict")
	// ErrInProgress indicates an earlier request with this key is still
	// being processed; the client should retry later, not resend work.
	ErrInProgress = errors.New("idempotent request is processing")
)

const (
	statusProcessing = "processing"
	statusDone       = "done"
)

// record is the cache value for idemp:{userId}:{path}:{idemKey}.
type record struct {
	Status          string          `json:"status"`
	RequestBodyHash string          `json:"request_body_hash"`
	StartedAt       int64           `json:"started_at"`
	Response        json.RawMessage `json:"response,omitempty"`
	HTTPStatus      int             `json:"http_status,omitempty"`
	CompletedAt     int64           `json:"completed_at,omitempty"`
}

// Replay is a previously committed response, replayed verbatim.
type Replay struct {
	Response   json.RawMessage
	HTTPStatus int
}

// Token identifies a reserved processing slot. It is returned by Begin and
// consumed by exactly one of Commit or Abort.
type Token struct {
	key      string
	bodyHash string
}

// Coordinator implements the per-(user, path, key) state machine. The
// atomic SetNX on the shared cache guarantees at most one caller wins the
// absent → processing transition.
type Coordinator struct {
	store         cache.Store
	processingTTL time.Duration
	doneTTL       time.Duration
	now           func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTTLs overrides the processing and done record lifetimes.
func WithTTLs(processing, done time.Duration) Option {
	return func(c *Coordinator) {
		c.processingTTL = processing
		c.doneTTL = done
	}
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a Coordinator with the stock TTLs: processing
// slots expire after 60s as a safety net against crashed handlers, done
// records replay for 10 minutes.
func NewCoordinator(store cache.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:         store,
		processingTTL: 60 * time.Second,
		doneTTL:       600 * time.Second,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func recordKey(userID, path, idemKey string) string {
	return "idemp:" + userID + ":" + path + ":" + idemKey
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Begin reserves the processing slot for (userID, path, idemKey). On the
// first call it returns a token and a nil replay; the caller must finish
// with exactly one of Commit or Abort. A repeated call with the same body
// returns the committed response for verbatim replay, or ErrInProgress if
// the first call has not finished. A repeated call with a different body
// returns ErrConflict.
func (c *Coordinator) Begin(ctx context.Context, userID, path, idemKey string, body []byte) (Token, *Replay, error) {
	if idemKey == "" {
		return Token{}, nil, ErrMissingKey
	}

	tok := Token{
		key:      recordKey(userID, path, idemKey),
		bodyHash: hashBody(body),
	}
	payload, err := json.Marshal(record{
		Status:          statusProcessing,
		RequestBodyHash: tok.bodyHash,
		StartedAt:       c.now().Unix(),
	})
	if err != nil {
		return Token{}, nil, fmt.Errorf("encoding idempotency record: %w", err)
	}

	// Two attempts: if the existing record expires between SetNX and Get,
	// the second round claims the slot instead of failing spuriously.
	for attempt := 0; attempt < 2; attempt++ {
		created, err := c.store.SetNX(ctx, tok.key, string(payload), c.processingTTL)
		if err != nil {
			return Token{}, nil, fmt.Errorf("reserving idempotency slot: %w", err)
		}
		if created {
			return tok, nil, nil
		}

		raw, err := c.store.Get(ctx, tok.key)
		if errors.Is(err, cache.ErrNotFound) {
			continue
		}
		if err != nil {
			return Token{}, nil, fmt.Errorf("reading idempotency record: %w", err)
		}

		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return Token{}, nil, fmt.Errorf("decoding idempotency record: %w", err)
		}
		if rec.RequestBodyHash != tok.bodyHash {
			return Token{}, nil, ErrConflict
		}
		if rec.Status == statusDone && rec.Response != nil {
			status := rec.HTTPStatus
			if status == 0 {
				status = 200
			}
			return tok, &Replay{Response: rec.Response, HTTPStatus: status}, nil
		}
		return Token{}, nil, ErrInProgress
	}
	return Token{}, nil, ErrInProgress
}

// Commit transitions the slot to done, capturing the response and HTTP
// status for verbatim replay. Business-level failures are committed too,
// so a client that double-submits sees the same error instead of
// re-executing the work.
func (c *Coordinator) Commit(ctx context.Context, tok Token, response json.RawMessage, httpStatus int) error {
	if tok.key == "" {
		return nil
	}
	payload, err := json.Marshal(record{
		Status:          statusDone,
		RequestBodyHash: tok.bodyHash,
		Response:        response,
		HTTPStatus:      httpStatus,
		CompletedAt:     c.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("encoding idempotency record: %w", err)
	}
	if err := c.store.Set(ctx, tok.key, string(payload), c.doneTTL); err != nil {
		return fmt.Errorf("committing idempotency record: %w", err)
	}
	return nil
}

// Abort deletes the slot after a system-level failure so a legitimate
// retry can proceed immediately.
func (c *Coordinator) Abort(ctx context.Context, tok Token) error {
	if tok.key == "" {
		return nil
	}
	if err := c.store.Delete(ctx, tok.key); err != nil {
		return fmt.Errorf("releasing idempotency slot: %w", err)
	}
	return nil
}
