package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pgxcyu/ledgerd/crypto"
	"github.com/pgxcyu/ledgerd/internal/token"
	"github.com/pgxcyu/ledgerd/session"
)

// Login handles POST /auth/login. Credentials arrive SM2-encrypted under
// the static pre-login keypair; a successful login kicks any previous
// session, establishes the per-session SM2 keys, and returns tokens plus
// the server public key.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := requestContextFrom(ctx)

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, codeBadRequest, "malformed request body")
		return
	}

	username, password, err := a.decryptCredentials(req.Username, req.Password)
	if err != nil {
		writeFail(w, codeBadRequest, "malformed credentials")
		return
	}

	user, err := a.users.FindByUsername(ctx, username)
	if err == nil {
		err = user.CheckPassword(password)
	}
	if err != nil {
		a.audit.log(ctx, NewAuditRecord(AuditLoginFailure).
			WithRequest(rc).
			WithReason("invalid credentials"))
		writeFail(w, codeUnauthorized, "invalid username or password")
		return
	}

	// Single active session: a new login supersedes the previous one.
	if prev, err := a.sessions.ActiveSID(ctx, user.UserID); err == nil {
		if err := a.sessions.Delete(ctx, prev); err != nil {
			mapError(w, err)
			return
		}
		a.audit.log(ctx, NewAuditRecord(AuditSessionRevoked).
			WithUser(user.UserID).
			WithReason("superseded by new login"))
	} else if !errors.Is(err, session.ErrNotFound) {
		mapError(w, err)
		return
	}

	sid := session.NewSessionID()
	if err := a.sessions.SetActiveSID(ctx, user.UserID, sid); err != nil {
		mapError(w, err)
		return
	}
	svrPub, err := a.sessionCrypto.EstablishKeys(ctx, sid, req.CliPubKey)
	if err != nil {
		writeFail(w, codeBadRequest, "invalid client public key")
		return
	}

	access, refresh, err := a.issueTokens(ctx, user.UserID, sid)
	if err != nil {
		mapError(w, err)
		return
	}

	rc.UserID = user.UserID
	rc.SID = sid
	a.audit.log(ctx, NewAuditRecord(AuditLoginSuccess).WithRequest(rc))
	a.audit.log(ctx, NewAuditRecord(AuditSessionCreated).WithRequest(rc))
	writeOK(w, LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		SvrPubKey:    svrPub,
	})
}

// Refresh handles POST /auth/refresh. The presented refresh token must
// belong to the user's active session and match the stored copy; rotation
// invalidates the old token.
func (a *API) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := requestContextFrom(ctx)

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, codeBadRequest, "malformed request body")
		return
	}

	claims, err := a.tokens.Parse(token.KindRefresh, req.RefreshToken)
	if err != nil {
		writeFail(w, codeUnauthorized, "invalid refresh token")
		return
	}
	uid, sid := claims.Subject, claims.SID

	active, err := a.sessions.ActiveSID(ctx, uid)
	if errors.Is(err, session.ErrNotFound) || (err == nil && active != sid) {
		writeFail(w, codeUnauthorized, "session expired")
		return
	}
	if err != nil {
		mapError(w, err)
		return
	}

	stored, err := a.loadRefreshToken(ctx, sid)
	if err != nil || stored != req.RefreshToken {
		a.audit.log(ctx, NewAuditRecord(AuditLoginFailure).
			WithUser(uid).
			WithReason("refresh token mismatch"))
		writeFail(w, codeUnauthorized, "invalid refresh token")
		return
	}

	access, refresh, err := a.issueTokens(ctx, uid, sid)
	if err != nil {
		mapError(w, err)
		return
	}
	if err := a.sessions.Touch(ctx, sid); err != nil {
		mapError(w, err)
		return
	}

	rc.UserID = uid
	rc.SID = sid
	a.audit.log(ctx, NewAuditRecord(AuditTokenRefreshed).WithRequest(rc))
	writeOK(w, RefreshResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	})
}

// Logout handles POST /auth/logout.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := requestContextFrom(ctx)
	if err := a.sessions.Revoke(ctx, rc.SID); err != nil {
		mapError(w, err)
		return
	}
	a.audit.log(ctx, NewAuditRecord(AuditLogout).WithRequest(rc))
	writeOK(w, nil)
}

// Me handles GET /auth/me. The username travels SM2-encrypted for the
// session's client key.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := requestContextFrom(ctx)

	user, err := a.users.FindByID(ctx, rc.UserID)
	if err != nil {
		writeFail(w, codeNotFound, "user not found")
		return
	}
	cipher, err := a.sessionCrypto.Cipher(ctx, rc.SID)
	if err != nil {
		mapError(w, err)
		return
	}
	encUsername, err := cipher.EncryptString(user.Username)
	if err != nil {
		mapError(w, err)
		return
	}
	writeOK(w, MeResponse{
		UserID:   user.UserID,
		Username: encUsername,
		Role:     user.Role,
	})
}

// decryptCredentials opens the SM2-wrapped login fields. With no
// pre-login key configured the fields are taken as plaintext, which keeps
// development setups workable.
func (a *API) decryptCredentials(username, password string) (string, string, error) {
	if a.preLoginPriv == "" {
		return username, password, nil
	}
	u, err := crypto.DecryptSM2(a.preLoginPriv, username, crypto.OrderAuto)
	if err != nil {
		return "", "", err
	}
	p, err := crypto.DecryptSM2(a.preLoginPriv, password, crypto.OrderAuto)
	if err != nil {
		return "", "", err
	}
	return string(u), string(p), nil
}

// issueTokens mints the access/refresh pair for (uid, sid) and stores the
// refresh token, SM4-wrapped when a wrapping key is configured.
func (a *API) issueTokens(ctx context.Context, uid, sid string) (access, refresh string, err error) {
	access, err = a.tokens.Issue(token.KindAccess, uid, sid)
	if err != nil {
		return "", "", err
	}
	refresh, err = a.tokens.Issue(token.KindRefresh, uid, sid)
	if err != nil {
		return "", "", err
	}

	stored, iv := refresh, ""
	if a.refreshSM4 != nil {
		stored, iv, err = a.refreshSM4.EncryptCBC([]byte(refresh))
		if err != nil {
			return "", "", err
		}
	}
	if err := a.sessions.Set(ctx, sid, session.FieldRefreshToken, stored); err != nil {
		return "", "", err
	}
	if iv != "" {
		if err := a.sessions.Set(ctx, sid, session.FieldRefreshIV, iv); err != nil {
			return "", "", err
		}
	}
	return access, refresh, nil
}

// loadRefreshToken reads the stored refresh token, unwrapping SM4 when
// configured.
func (a *API) loadRefreshToken(ctx context.Context, sid string) (string, error) {
	stored, err := a.sessions.Get(ctx, sid, session.FieldRefreshToken)
	if err != nil {
		return "", err
	}
	if a.refreshSM4 == nil {
		return stored, nil
	}
	iv, err := a.sessions.Get(ctx, sid, session.FieldRefreshIV)
	if err != nil {
		return "", err
	}
	plain, err := a.refreshSM4.DecryptCBC(stored, iv)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
