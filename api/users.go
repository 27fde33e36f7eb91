package api

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/pgxcyu/ledgerd/internal/util"
)

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// User is the identity the HTTP layer needs; the relational schema behind
// it is out of scope here.
type User struct {
	UserID       string
	Username     string
	PasswordHash string // bcrypt
	Role         string
}

// CheckPassword verifies a candidate password against the stored hash.
func (u User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}

// HashPassword produces a bcrypt hash for seeding user records.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// UserStore resolves users for authentication.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (User, error)
	FindByID(ctx context.Context, userID string) (User, error)
}

// MemoryUserStore is a thread-safe in-memory UserStore for tests, demos
// and single-process deployments. Usernames are NFKD-normalized so
// visually identical logins resolve to the same account.
type MemoryUserStore struct {
	mu         sync.RWMutex
	byUsername map[string]User
	byID       map[string]User
}

var _ UserStore = (*MemoryUserStore)(nil)

// NewMemoryUserStore creates an empty MemoryUserStore.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byUsername: make(map[string]User),
		byID:       make(map[string]User),
	}
}

// Add registers or replaces a user.
func (s *MemoryUserStore) Add(u User) {
	s.mu.Lock()
	s.byUsername[util.Normalize(u.Username)] = u
	s.byID[u.UserID] = u
	s.mu.Unlock()
}

func (s *MemoryUserStore) FindByUsername(_ context.Context, username string) (User, error) {
	s.mu.RLock()
	u, ok := s.byUsername[util.Normalize(username)]
	s.mu.RUnlock()
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *MemoryUserStore) FindByID(_ context.Context, userID string) (User, error) {
	s.mu.RLock()
	u, ok := s.byID[userID]
	s.mu.RUnlock()
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}
