package authkit

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess           = "login_success"
	auditEventLoginRejected          = "login_rejected"
	auditEventLoginLockedOut         = "login_locked_out"
	auditEventLoginTwoFactorRequired = "login_two_factor_required"
	auditEventExternalSignedIn       = "external_login_signed_in"
	auditEventExternalNeedsLinking   = "external_login_needs_linking"
	auditEventExternalNotAllowed     = "external_login_not_allowed"
	auditEventExternalLockedOut      = "external_login_locked_out"
	auditEventExternalLinkAdded      = "external_link_added"
	auditEventExternalRegister       = "external_register"
	auditEventRegisterSuccess        = "register_success"
	auditEventRegisterDuplicate      = "register_duplicate"
	auditEventRegisterFailure        = "register_failure"
	auditEventPasswordChangeSuccess  = "password_change_success"
	auditEventPasswordChangeFailure  = "password_change_failure"
	auditEventEmailConfirmRequest    = "email_confirmation_request"
	auditEventEmailConfirmSuccess    = "email_confirmation_success"
	auditEventEmailConfirmFailure    = "email_confirmation_failure"
	auditEventPasswordResetRequest   = "password_reset_request"
	auditEventPasswordResetSuccess   = "password_reset_success"
	auditEventPasswordResetFailure   = "password_reset_failure"
	auditEventEmailSendFailure       = "email_send_failure"
	auditEventEmailChanged           = "email_changed"
	auditEventHashtagAdded           = "hashtag_added"
)

// AuditErrorCode is the stable error label recorded on audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrAccountUnverified  AuditErrorCode = "account_unverified"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrValidation         AuditErrorCode = "validation_failed"
	auditErrVersionConflict    AuditErrorCode = "version_conflict"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// errAccountLockedAudit never escapes the engine; it only feeds the audit
// error-code mapping for locked-out outcomes.
var errAccountLockedAudit = errors.New("account locked")

// errAccountUnverifiedAudit likewise labels unconfirmed-email denials.
var errAccountUnverifiedAudit = errors.New("account email unverified")

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var verr ValidationErrors
	if errors.As(err, &verr) {
		return auditErrValidation
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, errAccountLockedAudit):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, errAccountUnverifiedAudit):
		return auditErrAccountUnverified
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrAccountExists),
		errors.Is(err, ErrLinkExists):
		return auditErrDuplicate
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrVersionConflict):
		return auditErrVersionConflict
	case errors.Is(err, ErrDependencyUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
