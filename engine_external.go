package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ExternalLogin decides a provider-verified identity assertion. An
// assertion for an unknown provider/key pair yields ExternalNeedsLinking;
// the caller then collects consent and calls RegisterExternal or
// LinkExternal. Two-factor is not consulted: the provider assertion
// stands in for the second factor.
func (e *Engine) ExternalLogin(ctx context.Context, assertion ExternalAssertion) (ExternalLoginResult, error) {
	if err := e.ready(); err != nil {
		return ExternalLoginResult{}, err
	}

	if verr := validateAssertionPair(assertion.Provider, assertion.Key); verr != nil {
		return ExternalLoginResult{}, verr
	}

	account, err := e.directory.FindByLogin(ctx, assertion.Provider, assertion.Key)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricExternalLoginNeedsLinking)
			e.emitAudit(ctx, auditEventExternalNeedsLinking, false, "", nil, providerMetadata(assertion.Provider))
			return ExternalLoginResult{Outcome: ExternalNeedsLinking}, nil
		}
		return ExternalLoginResult{}, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	locked, err := e.lockouts.IsLocked(ctx, account.ID)
	if err != nil {
		return ExternalLoginResult{}, err
	}
	if locked {
		e.metricInc(MetricExternalLoginLockedOut)
		e.emitAudit(ctx, auditEventExternalLockedOut, false, account.ID, errAccountLockedAudit, providerMetadata(assertion.Provider))
		return ExternalLoginResult{Outcome: ExternalLockedOut, AccountID: account.ID}, nil
	}

	// Only a verified claim for the account's own address stands in for a
	// confirmed email; a claim for some other address proves nothing about
	// this account.
	verifiedMatch := assertion.EmailVerified && strings.EqualFold(assertion.Email, account.Email)

	if e.config.Policy.RequireConfirmedEmail && !account.EmailConfirmed && !verifiedMatch {
		e.metricInc(MetricExternalLoginNotAllowed)
		e.emitAudit(ctx, auditEventExternalNotAllowed, false, account.ID, errAccountUnverifiedAudit, providerMetadata(assertion.Provider))
		return ExternalLoginResult{Outcome: ExternalNotAllowed, AccountID: account.ID}, nil
	}

	// The flag only ever flips false to true here.
	if verifiedMatch && !account.EmailConfirmed {
		account, err = e.updateAccount(ctx, account.ID, func(a *Account) error {
			a.EmailConfirmed = true
			return nil
		})
		if err != nil {
			return ExternalLoginResult{}, err
		}
	}

	token, err := e.sessions.CreateSession(account.ID, false)
	if err != nil {
		return ExternalLoginResult{}, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	e.metricInc(MetricExternalLoginSignedIn)
	e.emitAudit(ctx, auditEventExternalSignedIn, true, account.ID, nil, providerMetadata(assertion.Provider))

	return ExternalLoginResult{Outcome: ExternalSignedIn, AccountID: account.ID, SessionToken: token}, nil
}

// RegisterExternal creates an account from an assertion that previously
// came back ExternalNeedsLinking. A verified email claim seeds the account
// with EmailConfirmed already set.
func (e *Engine) RegisterExternal(ctx context.Context, assertion ExternalAssertion) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	verr := ValidationErrors{}
	if strings.TrimSpace(assertion.Provider) == "" {
		verr.add("provider", "must not be empty")
	}
	if strings.TrimSpace(assertion.Key) == "" {
		verr.add("key", "must not be empty")
	}
	if err := e.validate.Var(assertion.Email, "required,email,max=254"); err != nil {
		verr.add("email", "must be a valid email address")
	}
	if len(verr) > 0 {
		return "", verr
	}

	if _, err := e.directory.FindByLogin(ctx, assertion.Provider, assertion.Key); err == nil {
		return "", ErrLinkExists
	} else if !errors.Is(err, ErrAccountNotFound) {
		return "", fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	if _, err := e.directory.FindByEmail(ctx, assertion.Email); err == nil {
		e.metricInc(MetricRegisterDuplicate)
		e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", ErrAccountExists, providerMetadata(assertion.Provider))
		return "", ErrAccountExists
	} else if !errors.Is(err, ErrAccountNotFound) {
		return "", fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	account := &Account{
		ID:             uuid.NewString(),
		Username:       assertion.Email,
		Email:          assertion.Email,
		EmailConfirmed: assertion.EmailVerified,
		Logins:         []ProviderLink{{Provider: assertion.Provider, Key: assertion.Key}},
	}

	if err := e.directory.Create(ctx, account); err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricRegisterDuplicate)
			return "", ErrAccountExists
		}
		return "", fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	e.metricInc(MetricExternalRegisterSuccess)
	e.emitAudit(ctx, auditEventExternalRegister, true, account.ID, nil, providerMetadata(assertion.Provider))

	if !account.EmailConfirmed {
		e.sendEmailConfirmation(ctx, account)
	}

	return account.ID, nil
}

// LinkExternal attaches a provider/key pair to an existing account.
// Linking the same pair to the same account again is a no-op; a pair
// already held by another account yields ErrLinkExists.
func (e *Engine) LinkExternal(ctx context.Context, accountID, provider, key string) error {
	if err := e.ready(); err != nil {
		return err
	}

	if verr := validateAssertionPair(provider, key); verr != nil {
		return verr
	}

	if existing, err := e.directory.FindByLogin(ctx, provider, key); err == nil {
		if existing.ID == accountID {
			return nil
		}
		return ErrLinkExists
	} else if !errors.Is(err, ErrAccountNotFound) {
		return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	if _, err := e.updateAccount(ctx, accountID, func(a *Account) error {
		if a.HasLogin(provider, key) {
			return nil
		}
		a.Logins = append(a.Logins, ProviderLink{Provider: provider, Key: key})
		return nil
	}); err != nil {
		return err
	}

	e.metricInc(MetricExternalLinkAdded)
	e.emitAudit(ctx, auditEventExternalLinkAdded, true, accountID, nil, providerMetadata(provider))

	return nil
}

func validateAssertionPair(provider, key string) error {
	verr := ValidationErrors{}
	if strings.TrimSpace(provider) == "" {
		verr.add("provider", "must not be empty")
	}
	if strings.TrimSpace(key) == "" {
		verr.add("key", "must not be empty")
	}
	if len(verr) == 0 {
		return nil
	}
	return verr
}

func providerMetadata(provider string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"provider": provider}
	}
}
