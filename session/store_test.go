package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgxcyu/ledgerd/cache/memory"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Unix(1700000000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestNewSessionID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestStoreSetGet(t *testing.T) {
	s := NewStore(memory.NewStore(), 0)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "sid1", FieldUser, "u1"))
	got, err := s.Get(ctx, "sid1", FieldUser)
	require.NoError(t, err)
	assert.Equal(t, "u1", got)

	_, err = s.Get(ctx, "sid1", FieldRefreshToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreTTLAndTouch(t *testing.T) {
	clk := newTestClock()
	s := NewStore(memory.NewStoreWithClock(clk.Now), time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "sid1", FieldUser, "u1"))

	// Touch just before expiry slides the whole session forward.
	clk.Advance(59 * time.Minute)
	require.NoError(t, s.Touch(ctx, "sid1"))
	clk.Advance(59 * time.Minute)
	_, err := s.Get(ctx, "sid1", FieldUser)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = s.Get(ctx, "sid1", FieldUser)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActiveSID(t *testing.T) {
	s := NewStore(memory.NewStore(), 0)
	ctx := context.Background()

	_, err := s.ActiveSID(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetActiveSID(ctx, "u1", "sid1"))
	sid, err := s.ActiveSID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "sid1", sid)

	// SetActiveSID also binds the reverse user field.
	uid, err := s.Get(ctx, "sid1", FieldUser)
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	// A second login replaces the pointer.
	require.NoError(t, s.SetActiveSID(ctx, "u1", "sid2"))
	sid, err = s.ActiveSID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "sid2", sid)
}

func TestRevoke(t *testing.T) {
	s := NewStore(memory.NewStore(), 0)
	ctx := context.Background()

	require.NoError(t, s.SetActiveSID(ctx, "u1", "sid1"))
	require.NoError(t, s.Set(ctx, "sid1", FieldRefreshToken, "tok"))

	require.NoError(t, s.Revoke(ctx, "sid1"))

	_, err := s.Get(ctx, "sid1", FieldRefreshToken)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.ActiveSID(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRevokeSupersededSessionKeepsPointer(t *testing.T) {
	s := NewStore(memory.NewStore(), 0)
	ctx := context.Background()

	require.NoError(t, s.SetActiveSID(ctx, "u1", "sid1"))
	require.NoError(t, s.SetActiveSID(ctx, "u1", "sid2"))

	// Revoking the old session must not clear the new session's pointer.
	require.NoError(t, s.Revoke(ctx, "sid1"))
	sid, err := s.ActiveSID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "sid2", sid)
}

func TestRevokeUnknownSession(t *testing.T) {
	s := NewStore(memory.NewStore(), 0)
	assert.NoError(t, s.Revoke(context.Background(), "ghost"))
}
