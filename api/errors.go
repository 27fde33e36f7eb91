package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pgxcyu/ledgerd/cache"
	"github.com/pgxcyu/ledgerd/idempotency"
	"github.com/pgxcyu/ledgerd/session"
	"github.com/pgxcyu/ledgerd/signing"
)

// Business error codes carried in the response envelope. Signing and
// replay failures share 40101 so clients can treat the whole family as
// "resend with fresh nonce and timestamp"; 409 means "do not resend".
const (
	codeOK            = 0
	codeBadRequest    = 400
	codeUnauthorized  = 401
	codeSignature     = 40101
	codeConflict      = 409
	codeNotFound      = 404
	codeInternal      = 500
	codeCacheDown     = 503
	codeCryptoContext = 40102

	// codeTooManyRequests rides on an HTTP 429, unlike the business codes.
	codeTooManyRequests = 429
)

// R is the uniform response envelope. Signing and idempotency failures
// surface here as business-level failures, not transport errors.
type R struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeOK wraps data in a success envelope.
func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, R{Code: codeOK, Message: "ok", Data: data})
}

// writeFail writes a business failure envelope with HTTP 200.
func writeFail(w http.ResponseWriter, code int, message string) {
	writeJSON(w, http.StatusOK, R{Code: code, Message: message})
}

// writeUnauthorized is the one transport-level failure: missing or invalid
// bearer credentials.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, R{Code: codeUnauthorized, Message: message})
}

// mapError translates sentinel errors from the core packages into the
// stable envelope codes clients dispatch on.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, signing.ErrInvalidTimestamp),
		errors.Is(err, signing.ErrTimestampExpired),
		errors.Is(err, signing.ErrReplayDetected),
		errors.Is(err, signing.ErrUnknownKeyID),
		errors.Is(err, signing.ErrBodyHashMismatch),
		errors.Is(err, signing.ErrSignatureInvalid):
		writeFail(w, codeSignature, rootMessage(err))
	case errors.Is(err, idempotency.ErrMissingKey):
		writeFail(w, codeBadRequest, "missing Idempotency-Key")
	case errors.Is(err, idempotency.ErrConflict):
		writeFail(w, codeConflict, "Idempotency-Key conflict")
	case errors.Is(err, idempotency.ErrInProgress):
		writeFail(w, codeConflict, "idempotent request is processing")
	case errors.Is(err, session.ErrCryptoContextUnavailable):
		writeFail(w, codeCryptoContext, "crypto context unavailable")
	case errors.Is(err, cache.ErrUnavailable):
		// Fail closed: a cache outage rejects the request rather than
		// skipping its security checks.
		writeFail(w, codeCacheDown, "service temporarily unavailable")
	default:
		writeFail(w, codeInternal, "internal error")
	}
}

// rootMessage unwraps to the terminal sentinel so envelopes carry the
// stable message, not the wrapped diagnostic chain.
func rootMessage(err error) string {
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err.Error()
		}
		err = unwrapped
	}
}
