// Package postgres persists users and ledger entries in PostgreSQL.
//
// Entity fields are stored as individual columns rather than JSON blobs
// so listings can be served with a plain index scan. Usernames are
// NFKD-normalized before storage and lookup, matching the in-memory
// store's behaviour.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgxcyu/ledgerd/api"
	"github.com/pgxcyu/ledgerd/internal/util"
)

// Store implements api.UserStore and api.TransactionStore backed by
// PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ api.UserStore        = (*Store)(nil)
	_ api.TransactionStore = (*Store)(nil)
)

// NewStore returns a Store backed by the given pgx connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewStoreFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Store.
func NewStoreFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewStore(pool), nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// ---------------------------------------------------------------------------
// api.UserStore implementation
// ---------------------------------------------------------------------------

// AddUser inserts a user, or updates the stored credentials if the
// username is already registered. Used for seeding accounts at startup.
func (s *Store) AddUser(ctx context.Context, u api.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (user_id, username, password_hash, role)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (username)
		 DO UPDATE SET password_hash = $3, role = $4`,
		u.UserID, util.Normalize(u.Username), u.PasswordHash, u.Role)
	return err
}

func (s *Store) FindByUsername(ctx context.Context, username string) (api.User, error) {
	return s.findUser(ctx,
		`SELECT user_id, username, password_hash, role FROM users WHERE username = $1`,
		util.Normalize(username))
}

func (s *Store) FindByID(ctx context.Context, userID string) (api.User, error) {
	return s.findUser(ctx,
		`SELECT user_id, username, password_hash, role FROM users WHERE user_id = $1`,
		userID)
}

func (s *Store) findUser(ctx context.Context, query, arg string) (api.User, error) {
	var u api.User
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&u.UserID, &u.Username, &u.PasswordHash, &u.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return api.User{}, api.ErrUserNotFound
	}
	if err != nil {
		return api.User{}, err
	}
	return u, nil
}

// ---------------------------------------------------------------------------
// api.TransactionStore implementation
// ---------------------------------------------------------------------------

func (s *Store) Create(ctx context.Context, rec api.TransactionRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transactions (transaction_id, user_id, amount, currency, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.TransactionID, rec.UserID, rec.Amount, rec.Currency, rec.Description, rec.CreatedAt)
	return err
}

func (s *Store) Get(ctx context.Context, transactionID string) (api.TransactionRecord, error) {
	var rec api.TransactionRecord
	err := s.pool.QueryRow(ctx,
		`SELECT transaction_id, user_id, amount, currency, description, created_at
		 FROM transactions WHERE transaction_id = $1`,
		transactionID).Scan(
		&rec.TransactionID, &rec.UserID, &rec.Amount, &rec.Currency, &rec.Description, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return api.TransactionRecord{}, api.ErrTransactionNotFound
	}
	if err != nil {
		return api.TransactionRecord{}, err
	}
	return rec, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]api.TransactionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT transaction_id, user_id, amount, currency, description, created_at
		 FROM transactions WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.TransactionRecord
	for rows.Next() {
		var rec api.TransactionRecord
		if err := rows.Scan(&rec.TransactionID, &rec.UserID, &rec.Amount,
			&rec.Currency, &rec.Description, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
