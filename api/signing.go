package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/pgxcyu/ledgerd/signing"
)

// Signed-request headers.
const (
	headerKeyID          = "X-Key-Id"
	headerTimestamp      = "X-Timestamp"
	headerNonce          = "X-Nonce"
	headerBodyHash       = "X-Body-Hash"
	headerSignature      = "X-Signature"
	headerIdempotencyKey = "Idempotency-Key"
)

// RequireSignature verifies the request signature before any business
// logic runs. Verification failures terminate the request with the 40101
// family envelope; the client must resend with a fresh nonce and timestamp.
func (a *API) RequireSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keyID := r.Header.Get(headerKeyID)
		timestamp := r.Header.Get(headerTimestamp)
		nonce := r.Header.Get(headerNonce)
		sig := r.Header.Get(headerSignature)
		if keyID == "" || timestamp == "" || nonce == "" || sig == "" {
			writeFail(w, codeBadRequest, "missing signature headers")
			return
		}

		body, err := readBody(r)
		if err != nil {
			writeFail(w, codeBadRequest, "unreadable request body")
			return
		}

		req := signing.Request{
			Method:         r.Method,
			Path:           r.URL.Path,
			RawQuery:       r.URL.RawQuery,
			Body:           body,
			KeyID:          keyID,
			Timestamp:      timestamp,
			Nonce:          nonce,
			BodyHash:       r.Header.Get(headerBodyHash),
			Signature:      sig,
			IdempotencyKey: r.Header.Get(headerIdempotencyKey),
		}
		if err := a.verifier.Verify(r.Context(), req); err != nil {
			event := AuditSignatureRejected
			if errors.Is(err, signing.ErrReplayDetected) {
				event = AuditReplayDetected
			}
			a.audit.log(r.Context(), NewAuditRecord(event).
				WithRequest(requestContextFrom(r.Context())).
				WithKeyID(keyID).
				WithReason(rootMessage(err)))
			mapError(w, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// readBody consumes the request body and puts an identical reader back so
// downstream middleware and handlers can read it again.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
