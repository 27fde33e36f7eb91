package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pgxcyu/ledgerd/internal/token"
	"github.com/pgxcyu/ledgerd/session"
)

// AuthMiddleware authenticates the bearer access token and checks the
// token's session is still the user's active one, so a superseded login
// is cut off even before its token expires.
func (a *API) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeUnauthorized(w, "missing bearer token")
			return
		}
		claims, err := a.tokens.Parse(token.KindAccess, strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			writeUnauthorized(w, "invalid access token")
			return
		}

		active, err := a.sessions.ActiveSID(r.Context(), claims.Subject)
		if errors.Is(err, session.ErrNotFound) || (err == nil && active != claims.SID) {
			writeUnauthorized(w, "session expired")
			return
		}
		if err != nil {
			mapError(w, err)
			return
		}

		rc := requestContextFrom(r.Context())
		rc.UserID = claims.Subject
		rc.SID = claims.SID
		next.ServeHTTP(w, r)
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
