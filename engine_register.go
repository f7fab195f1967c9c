package authkit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Register creates a local-credential account. The account starts with an
// unconfirmed email; a confirmation token is issued and mailed before
// Register returns.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	// Trim and dedupe before validation so padded tags are cleaned up
	// rather than rejected, matching AddHashtag.
	req.Hashtags = normalizeHashtags(req.Hashtags)

	if err := e.validateStruct(req); err != nil {
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, nil)
		return "", err
	}
	if err := e.checkPasswordPolicy(req.Password); err != nil {
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, nil)
		return "", err
	}

	email := strings.TrimSpace(req.Email)

	if _, err := e.directory.FindByEmail(ctx, email); err == nil {
		e.metricInc(MetricRegisterDuplicate)
		e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", ErrAccountExists, nil)
		return "", ErrAccountExists
	} else if !errors.Is(err, ErrAccountNotFound) {
		return "", fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return "", err
	}

	account := &Account{
		ID:           uuid.NewString(),
		Username:     email,
		Email:        email,
		PasswordHash: hash,
		Hashtags:     req.Hashtags,
	}

	if err := e.directory.Create(ctx, account); err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", ErrAccountExists, nil)
			return "", ErrAccountExists
		}
		return "", fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, account.ID, nil, nil)

	e.sendEmailConfirmation(ctx, account)

	return account.ID, nil
}

// ChangePassword swaps the local credential after verifying the old one.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
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

	if account.PasswordHash == "" {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, account.ID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(oldPassword, account.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, account.ID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if oldPassword == newPassword {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, account.ID, ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	if err := e.checkPasswordPolicy(newPassword); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, account.ID, err, nil)
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if _, err := e.updateAccount(ctx, accountID, func(a *Account) error {
		a.PasswordHash = hash
		return nil
	}); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, account.ID, nil, nil)

	return nil
}

func normalizeHashtags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
