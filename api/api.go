// Package api exposes the ledger backend's HTTP surface: session-bootstrap
// auth endpoints and signed, idempotent transaction endpoints, glued
// together by the signing, idempotency and session packages.
package api

import (
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/pgxcyu/ledgerd/cache"
	"github.com/pgxcyu/ledgerd/crypto"
	"github.com/pgxcyu/ledgerd/idempotency"
	"github.com/pgxcyu/ledgerd/internal/token"
	"github.com/pgxcyu/ledgerd/session"
	"github.com/pgxcyu/ledgerd/signing"
)

//go:embed openapi.yaml
var openapiSpec []byte

// Config wires the API's collaborators and policy knobs.
type Config struct {
	// Cache is the shared TTL store backing replay records, idempotency
	// records and sessions.
	Cache cache.Store
	// Users resolves login credentials and user identity.
	Users UserStore
	// Transactions is the ledger store. Defaults to in-memory.
	Transactions TransactionStore
	// SigningKeys maps key ids to shared HMAC secrets.
	SigningKeys *signing.Keystore
	// TokenSecret signs access and refresh JWTs.
	TokenSecret []byte
	// AccessTokenTTL / RefreshTokenTTL override the token lifetimes.
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	// SessionTTL overrides the session lifetime.
	SessionTTL time.Duration
	// PreLoginPrivKey / PreLoginPubKey form the static SM2 keypair that
	// protects credentials before a session exists.
	PreLoginPrivKey string
	PreLoginPubKey  string
	// RefreshTokenKey, when set (32 hex chars), SM4-wraps refresh tokens
	// at rest in the session store.
	RefreshTokenKey string
	// ReplayPolicy overrides the stock replay windows.
	ReplayPolicy *signing.ReplayPolicy
	// Logger receives access and audit logs. Defaults to JSON on stderr.
	Logger *slog.Logger
}

// API holds the dependencies needed by the HTTP handlers.
type API struct {
	users         UserStore
	transactions  TransactionStore
	verifier      *signing.Verifier
	idem          *idempotency.Coordinator
	sessions      *session.Store
	sessionCrypto *session.CryptoContext
	tokens        *token.Issuer
	preLoginPriv  string
	refreshSM4    *crypto.SM4
	limiter       *fixedWindowLimiter
	logger        *slog.Logger
	audit         *auditLogger
}

// New creates an API instance from cfg.
func New(cfg Config) (*API, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("api: Cache is required")
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("api: Users is required")
	}
	if cfg.SigningKeys == nil {
		return nil, fmt.Errorf("api: SigningKeys is required")
	}
	if len(cfg.TokenSecret) == 0 {
		return nil, fmt.Errorf("api: TokenSecret is required")
	}
	if cfg.PreLoginPrivKey != "" && cfg.PreLoginPubKey != "" {
		if err := crypto.ValidateSM2KeyPair(cfg.PreLoginPrivKey, cfg.PreLoginPubKey); err != nil {
			return nil, fmt.Errorf("api: pre-login keypair: %w", err)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}

	var guardOpts []signing.GuardOption
	if cfg.ReplayPolicy != nil {
		guardOpts = append(guardOpts, signing.WithPolicy(*cfg.ReplayPolicy))
	}
	guard := signing.NewReplayGuard(cfg.Cache, guardOpts...)

	transactions := cfg.Transactions
	if transactions == nil {
		transactions = NewMemoryTransactionStore()
	}

	var refreshSM4 *crypto.SM4
	if cfg.RefreshTokenKey != "" {
		var err error
		refreshSM4, err = crypto.NewSM4FromHex(cfg.RefreshTokenKey)
		if err != nil {
			return nil, fmt.Errorf("api: refresh token key: %w", err)
		}
	}

	sessions := session.NewStore(cfg.Cache, cfg.SessionTTL)
	return &API{
		users:         cfg.Users,
		transactions:  transactions,
		verifier:      signing.NewVerifier(cfg.SigningKeys, guard),
		idem:          idempotency.NewCoordinator(cfg.Cache),
		sessions:      sessions,
		sessionCrypto: session.NewCryptoContext(sessions),
		tokens:        token.NewIssuer(cfg.TokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		preLoginPriv:  cfg.PreLoginPrivKey,
		refreshSM4:    refreshSM4,
		limiter:       newFixedWindowLimiter(rateLimitTimes, rateLimitWindow),
		logger:        logger,
		audit:         newAuditLogger(logger),
	}, nil
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(a.RequestContextMiddleware)
	r.Use(SecurityHeaders)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	docs := middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil)
	r.Handle("/docs*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", cspDocs)
		docs.ServeHTTP(w, r)
	}))

	r.With(a.RateLimit).Post("/auth/login", a.Login)
	r.With(a.RateLimit).Post("/auth/refresh", a.Refresh)
	r.With(a.AuthMiddleware).Post("/auth/logout", a.Logout)
	r.With(a.AuthMiddleware).Get("/auth/me", a.Me)

	r.Route("/transactions", func(r chi.Router) {
		r.Use(a.AuthMiddleware)
		r.Use(a.RequireSignature)
		r.With(a.RateLimit).Get("/records", a.ListTransactions)
		r.Get("/{transactionID}", a.GetTransaction)
		r.With(a.Idempotent).Post("/", a.CreateTransaction)
	})

	return r
}
