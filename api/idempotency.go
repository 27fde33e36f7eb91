package api

import (
	"bytes"
	"net/http"

	"github.com/pgxcyu/ledgerd/idempotency"
)

// Idempotent wraps a mutating handler in the idempotency state machine.
// The reservation happens strictly after signature verification and
// strictly before the handler runs. Committed responses replay verbatim;
// system-level failures (panics, 5xx) release the slot so a legitimate
// retry can proceed, while business-level failures commit like successes
// so clients never double-submit.
func (a *API) Idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rc := requestContextFrom(ctx)
		idemKey := r.Header.Get(headerIdempotencyKey)

		body, err := readBody(r)
		if err != nil {
			writeFail(w, codeBadRequest, "unreadable request body")
			return
		}

		tok, replay, err := a.idem.Begin(ctx, rc.UserID, r.URL.Path, idemKey, body)
		if err != nil {
			if err == idempotency.ErrConflict {
				a.audit.log(ctx, NewAuditRecord(AuditIdempotencyConflict).
					WithRequest(rc).
					WithReason(idemKey))
			}
			mapError(w, err)
			return
		}
		if replay != nil {
			a.audit.log(ctx, NewAuditRecord(AuditIdempotencyReplay).
				WithRequest(rc).
				WithReason(idemKey))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(replay.HTTPStatus)
			w.Write(replay.Response)
			return
		}

		rec := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		committed := false
		defer func() {
			if committed {
				return
			}
			// Panics and any other abnormal exit release the slot.
			a.idem.Abort(ctx, tok)
			if p := recover(); p != nil {
				panic(p)
			}
		}()

		next.ServeHTTP(rec, r)

		if rec.status >= http.StatusInternalServerError {
			// Leave committed=false: the deferred Abort frees the slot.
			return
		}
		if err := a.idem.Commit(ctx, tok, rec.buf.Bytes(), rec.status); err != nil {
			// The response already reached the client; the processing
			// record will expire on its own.
			a.logger.WarnContext(ctx, "idempotency commit failed", "error", err)
		}
		committed = true
	})
}

// captureWriter tees the response so the coordinator can store it for
// verbatim replay.
type captureWriter struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *captureWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	return w.ResponseWriter.Write(p)
}
