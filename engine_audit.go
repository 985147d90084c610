package goSession

import (
	"context"
	"errors"
	"time"
)

// Audit event types.
const (
	AuditSessionIssued = "session_issued"
	AuditRotateSuccess = "rotate_success"
	AuditRotateFailure = "rotate_failure"
	AuditReuseDetected = "refresh_reuse_detected"
	AuditLogout        = "logout"
	AuditLogoutAll     = "logout_all"
	AuditRateLimited   = "rate_limited"
)

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID, tokenID string, err error, metadata func() map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		TokenID:   tokenID,
		IP:        ClientIPFromContext(ctx),
		Success:   success,
	}
	if err != nil {
		event.Error = auditErrorCode(err)
	}
	if metadata != nil {
		event.Metadata = metadata()
	}
	e.audit.Emit(ctx, event)
}

// auditErrorCode maps an engine error to a stable code. Order matters:
// ErrPrincipalNotFound also matches ErrInvalidCredential.
func auditErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrPrincipalNotFound):
		return "principal_not_found"
	case errors.Is(err, ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(err, ErrTransientStore):
		return "transient_store"
	case errors.Is(err, ErrSessionLimitExceeded):
		return "session_limit_exceeded"
	case errors.Is(err, ErrInvalidPrincipal):
		return "invalid_principal"
	case errors.Is(err, ErrTokenClockSkew):
		return "token_clock_skew"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal_error"
	}
}

func retryAfter(at, now time.Time) time.Duration {
	if d := at.Sub(now); d > 0 {
		return d
	}
	return 0
}
