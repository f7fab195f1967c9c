package authkit

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"
)

// RequestEmailConfirmation issues a fresh confirmation token for the
// account and mails it. Requesting for an already-confirmed account is a
// no-op. A mail delivery failure is audited but does not revoke the token
// or fail the call.
func (e *Engine) RequestEmailConfirmation(ctx context.Context, accountID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	account, err := e.directory.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	if account.EmailConfirmed {
		return nil
	}

	return e.sendEmailConfirmation(ctx, account)
}

func (e *Engine) sendEmailConfirmation(ctx context.Context, account *Account) error {
	token, err := e.tokens.Issue(ctx, purposeConfirmEmail, account.ID, e.config.Recovery.ConfirmEmailTTL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	e.metricInc(MetricEmailConfirmRequest)
	e.emitAudit(ctx, auditEventEmailConfirmRequest, true, account.ID, nil, nil)

	if err := e.mailer.SendEmailConfirmation(ctx, account.Email, token); err != nil {
		// The token stays valid; the holder can request again.
		e.metricInc(MetricEmailSendFailure)
		e.emitAudit(ctx, auditEventEmailSendFailure, false, account.ID, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err), func() map[string]string {
			return map[string]string{"kind": "confirmation"}
		})
		log.Printf("authkit: confirmation email send: %v", err)
	}

	return nil
}

// ConfirmEmail redeems a confirmation token and marks the email confirmed.
// Every token failure, including replay and expiry, collapses to
// ErrInvalidToken.
func (e *Engine) ConfirmEmail(ctx context.Context, accountID, token string) error {
	if err := e.ready(); err != nil {
		return err
	}

	if accountID == "" || token == "" {
		return ErrInvalidToken
	}

	if err := e.tokens.Consume(ctx, purposeConfirmEmail, accountID, token); err != nil {
		if errors.Is(err, errTokenStoreUnavailable) {
			return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
		}
		e.metricInc(MetricEmailConfirmFailure)
		e.emitAudit(ctx, auditEventEmailConfirmFailure, false, accountID, ErrInvalidToken, nil)
		return ErrInvalidToken
	}

	if _, err := e.updateAccount(ctx, accountID, func(a *Account) error {
		a.EmailConfirmed = true
		return nil
	}); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrInvalidToken
		}
		return err
	}

	e.metricInc(MetricEmailConfirmSuccess)
	e.emitAudit(ctx, auditEventEmailConfirmSuccess, true, accountID, nil, nil)

	return nil
}

// RequestPasswordReset issues a reset token for the account behind the
// given email. The call returns nil whether or not the account exists or
// is confirmed; the random delay keeps the timing indistinguishable too.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}

	defer e.sleepEnumerationDelay(ctx)

	account, err := e.directory.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricPasswordResetRequest)
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", ErrAccountNotFound, nil)
			return nil
		}
		return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	if !account.EmailConfirmed {
		e.metricInc(MetricPasswordResetRequest)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, account.ID, errAccountUnverifiedAudit, nil)
		return nil
	}

	token, err := e.tokens.Issue(ctx, purposeResetPassword, account.ID, e.config.Recovery.PasswordResetTTL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, account.ID, nil, nil)

	if err := e.mailer.SendPasswordReset(ctx, account.Email, token); err != nil {
		e.metricInc(MetricEmailSendFailure)
		e.emitAudit(ctx, auditEventEmailSendFailure, false, account.ID, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err), func() map[string]string {
			return map[string]string{"kind": "reset"}
		})
		log.Printf("authkit: reset email send: %v", err)
	}

	return nil
}

// ResetPassword redeems a reset token and installs the new password. An
// unknown email returns nil after the enumeration delay. The password
// policy runs before the token is consumed so a policy failure leaves the
// token redeemable.
func (e *Engine) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}

	account, err := e.directory.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.sleepEnumerationDelay(ctx)
			e.emitAudit(ctx, auditEventPasswordResetFailure, false, "", ErrAccountNotFound, nil)
			return nil
		}
		return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	if err := e.checkPasswordPolicy(newPassword); err != nil {
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, account.ID, err, nil)
		return err
	}

	if err := e.tokens.Consume(ctx, purposeResetPassword, account.ID, token); err != nil {
		if errors.Is(err, errTokenStoreUnavailable) {
			return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
		}
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, account.ID, ErrInvalidToken, nil)
		return ErrInvalidToken
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if _, err := e.updateAccount(ctx, account.ID, func(a *Account) error {
		a.PasswordHash = hash
		return nil
	}); err != nil {
		return err
	}

	// Best effort: a stale counter should not keep the holder out after a
	// proven reset.
	if err := e.lockouts.Reset(ctx, account.ID); err != nil {
		log.Printf("authkit: lockout reset after password reset: %v", err)
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetSuccess, true, account.ID, nil, nil)

	return nil
}

// sleepEnumerationDelay blocks for a random duration inside the configured
// bounds, or until ctx is done.
func (e *Engine) sleepEnumerationDelay(ctx context.Context) {
	min := e.config.Recovery.EnumerationDelayMin
	max := e.config.Recovery.EnumerationDelayMax
	if min <= 0 && max <= 0 {
		return
	}

	d := min
	if max > min {
		if n, err := rand.Int(rand.Reader, big.NewInt(int64(max-min))); err == nil {
			d += time.Duration(n.Int64())
		}
	}
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
