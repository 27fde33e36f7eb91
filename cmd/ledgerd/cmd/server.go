package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pgxcyu/ledgerd/api"
	"github.com/pgxcyu/ledgerd/cache"
	boltcache "github.com/pgxcyu/ledgerd/cache/bolt"
	rediscache "github.com/pgxcyu/ledgerd/cache/redis"
	"github.com/pgxcyu/ledgerd/internal/util"
	"github.com/pgxcyu/ledgerd/signing"
	"github.com/pgxcyu/ledgerd/storage/postgres"
)

var (
	port         int
	dataDir      string
	redisURL     string
	postgresDSN  string
	signingKeys  []string
	tokenSecret  string
	preLoginPriv string
	preLoginPub  string
	refreshKey   string
	seedUsers    []string
	tlsCert      string
	tlsKey       string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the ledger backend server",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openCache(cmd.Context())
		if err != nil {
			return err
		}
		if closeStore != nil {
			defer closeStore()
		}

		keys, err := parseSigningKeys(signingKeys)
		if err != nil {
			return err
		}

		secret := firstNonEmpty(tokenSecret, os.Getenv("LEDGERD_TOKEN_SECRET"))
		if secret == "" {
			return fmt.Errorf("token secret is required (--token-secret or LEDGERD_TOKEN_SECRET)")
		}

		seeds, err := parseSeedUsers(seedUsers)
		if err != nil {
			return err
		}

		var (
			users        api.UserStore
			transactions api.TransactionStore
		)
		if dsn := firstNonEmpty(postgresDSN, os.Getenv("LEDGERD_POSTGRES_DSN")); dsn != "" {
			pg, err := postgres.NewStoreFromDSN(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			defer pg.Close()
			for _, u := range seeds {
				if err := pg.AddUser(cmd.Context(), u); err != nil {
					return fmt.Errorf("seeding user %s: %w", u.Username, err)
				}
			}
			users, transactions = pg, pg
		} else {
			mem := api.NewMemoryUserStore()
			for _, u := range seeds {
				mem.Add(u)
			}
			users = mem
		}

		a, err := api.New(api.Config{
			Cache:           store,
			Users:           users,
			Transactions:    transactions,
			SigningKeys:     keys,
			TokenSecret:     []byte(secret),
			PreLoginPrivKey: firstNonEmpty(preLoginPriv, os.Getenv("LEDGERD_SM2_PRIVATE_KEY")),
			PreLoginPubKey:  firstNonEmpty(preLoginPub, os.Getenv("LEDGERD_SM2_PUBLIC_KEY")),
			RefreshTokenKey: firstNonEmpty(refreshKey, os.Getenv("LEDGERD_REFRESH_TOKEN_KEY")),
		})
		if err != nil {
			return err
		}

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())

		var tlsConfig *tls.Config
		if tlsCert != "" && tlsKey != "" {
			cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			tlsConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		} else {
			cert, err := util.GenerateSelfSignedCert()
			if err != nil {
				return fmt.Errorf("failed to generate self-signed certificate: %w", err)
			}
			tlsConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
			fmt.Println("Using self-signed runtime generated certificate for TLS")
		}

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on port %d (data: %s)...\n", port, dataDir)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

// openCache picks the shared TTL store: Redis when a URL is given,
// otherwise a bbolt file under the data directory.
func openCache(ctx context.Context) (cache.Store, func() error, error) {
	url := firstNonEmpty(redisURL, os.Getenv("LEDGERD_REDIS_URL"))
	if url != "" {
		store, err := rediscache.NewStoreFromURL(ctx, url)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return store, store.Close, nil
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := boltcache.NewStoreFromFile(dataDir+"/cache.db", nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open cache storage: %w", err)
	}
	return store, store.Close, nil
}

// parseSigningKeys turns repeated "kid=secret" flags into a keystore.
// Falls back to LEDGERD_SIGNING_KEYS, a comma-separated list.
func parseSigningKeys(pairs []string) (*signing.Keystore, error) {
	if len(pairs) == 0 {
		if env := os.Getenv("LEDGERD_SIGNING_KEYS"); env != "" {
			pairs = strings.Split(env, ",")
		}
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("at least one signing key is required (--signing-key or LEDGERD_SIGNING_KEYS)")
	}

	keys := signing.NewKeystore()
	for _, pair := range pairs {
		kid, secret, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || kid == "" || secret == "" {
			return nil, fmt.Errorf("invalid signing key %q, expected kid=secret", pair)
		}
		keys.Add(kid, []byte(secret))
	}
	return keys, nil
}

// parseSeedUsers turns "username:password" flags into user records
// ready for whichever store backs the server.
func parseSeedUsers(pairs []string) ([]api.User, error) {
	var users []api.User
	for _, pair := range pairs {
		username, password, ok := strings.Cut(pair, ":")
		if !ok || username == "" || password == "" {
			return nil, fmt.Errorf("invalid user %q, expected username:password", pair)
		}
		hash, err := api.HashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("hashing password for %s: %w", username, err)
		}
		users = append(users, api.User{
			UserID:       uuid.NewString(),
			Username:     username,
			PasswordHash: hash,
			Role:         "user",
		})
	}
	return users, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 8443, "Port to listen on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
	serverCmd.Flags().StringVar(&redisURL, "redis-url", "", "Redis URL for the shared cache (defaults to local bbolt)")
	serverCmd.Flags().StringVar(&postgresDSN, "postgres-dsn", "", "PostgreSQL DSN for users and ledger entries (defaults to in-memory)")
	serverCmd.Flags().StringArrayVar(&signingKeys, "signing-key", nil, "Request signing key as kid=secret (repeatable)")
	serverCmd.Flags().StringVar(&tokenSecret, "token-secret", "", "Secret used to sign access and refresh tokens")
	serverCmd.Flags().StringVar(&preLoginPriv, "sm2-private-key", "", "Hex SM2 private key for pre-login credential decryption")
	serverCmd.Flags().StringVar(&preLoginPub, "sm2-public-key", "", "Hex SM2 public key published to login clients")
	serverCmd.Flags().StringVar(&refreshKey, "refresh-token-key", "", "Hex SM4 key wrapping refresh tokens at rest")
	serverCmd.Flags().StringArrayVar(&seedUsers, "user", nil, "Seed user as username:password (repeatable)")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
}
