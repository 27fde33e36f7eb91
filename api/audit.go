package api

import (
	"context"
	"log/slog"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLoginSuccess        AuditEvent = "login_success"
	AuditLoginFailure        AuditEvent = "login_failure"
	AuditTokenRefreshed      AuditEvent = "token_refreshed"
	AuditLogout              AuditEvent = "logout"
	AuditSessionCreated      AuditEvent = "session_created"
	AuditSessionRevoked      AuditEvent = "session_revoked"
	AuditSignatureRejected   AuditEvent = "signature_rejected"
	AuditReplayDetected      AuditEvent = "replay_detected"
	AuditIdempotencyConflict AuditEvent = "idempotency_conflict"
	AuditIdempotencyReplay   AuditEvent = "idempotency_replay"
	AuditTransactionCreated  AuditEvent = "transaction_created"
)

// AuditRecord is a typed audit entry built incrementally with the With*
// methods. Optional fields stay empty rather than accumulating in an
// untyped map.
type AuditRecord struct {
	Event      AuditEvent
	UserID     string
	SID        string
	RequestID  string
	Resource   string
	ResourceID string
	KeyID      string
	Reason     string
}

// NewAuditRecord starts a record for event.
func NewAuditRecord(event AuditEvent) AuditRecord {
	return AuditRecord{Event: event}
}

// WithRequest copies identity from the request context.
func (r AuditRecord) WithRequest(rc *RequestContext) AuditRecord {
	r.UserID = rc.UserID
	r.SID = rc.SID
	r.RequestID = rc.RequestID
	return r
}

// WithUser sets the acting user.
func (r AuditRecord) WithUser(userID string) AuditRecord {
	r.UserID = userID
	return r
}

// WithResource names the affected resource.
func (r AuditRecord) WithResource(resource, id string) AuditRecord {
	r.Resource = resource
	r.ResourceID = id
	return r
}

// WithKeyID records which signing key the request presented.
func (r AuditRecord) WithKeyID(keyID string) AuditRecord {
	r.KeyID = keyID
	return r
}

// WithReason records why the action failed or was rejected.
func (r AuditRecord) WithReason(reason string) AuditRecord {
	r.Reason = reason
	return r
}

// auditLogger wraps slog.Logger for structured security audit logging.
type auditLogger struct {
	logger *slog.Logger
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{logger: logger.With("component", "audit")}
}

// log emits one structured entry; empty optional fields are omitted.
func (al *auditLogger) log(ctx context.Context, rec AuditRecord) {
	attrs := []slog.Attr{slog.String("event", string(rec.Event))}
	add := func(key, val string) {
		if val != "" {
			attrs = append(attrs, slog.String(key, val))
		}
	}
	add("user_id", rec.UserID)
	add("sid", rec.SID)
	add("request_id", rec.RequestID)
	add("resource", rec.Resource)
	add("resource_id", rec.ResourceID)
	add("key_id", rec.KeyID)
	add("reason", rec.Reason)
	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}
