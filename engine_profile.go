package authkit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// AddHashtag appends a hashtag to the account's set. Adding a tag the
// account already carries is a no-op.
func (e *Engine) AddHashtag(ctx context.Context, accountID, tag string) error {
	if err := e.ready(); err != nil {
		return err
	}

	tag = strings.TrimSpace(tag)
	if err := e.validate.Var(tag, "required,hashtag"); err != nil {
		return ValidationErrors{"hashtag": {"must be 2-64 letters, digits, '-' or '_'"}}
	}

	if _, err := e.updateAccount(ctx, accountID, func(a *Account) error {
		for _, existing := range a.Hashtags {
			if existing == tag {
				return nil
			}
		}
		if e.config.Profile.MaxHashtags > 0 && len(a.Hashtags) >= e.config.Profile.MaxHashtags {
			return ValidationErrors{"hashtag": {fmt.Sprintf("at most %d hashtags", e.config.Profile.MaxHashtags)}}
		}
		a.Hashtags = append(a.Hashtags, tag)
		sort.Strings(a.Hashtags)
		return nil
	}); err != nil {
		return err
	}

	e.metricInc(MetricHashtagAdded)
	e.emitAudit(ctx, auditEventHashtagAdded, true, accountID, nil, func() map[string]string {
		return map[string]string{"hashtag": tag}
	})

	return nil
}

// Profile returns the read model for the account.
func (e *Engine) Profile(ctx context.Context, accountID string) (ProfileView, error) {
	if err := e.ready(); err != nil {
		return ProfileView{}, err
	}

	account, err := e.directory.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ProfileView{}, ErrAccountNotFound
		}
		return ProfileView{}, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	return ProfileView{
		AccountID:        account.ID,
		Email:            account.Email,
		EmailConfirmed:   account.EmailConfirmed,
		Hashtags:         append([]string(nil), account.Hashtags...),
		HasPassword:      account.PasswordHash != "",
		TwoFactorEnabled: account.TwoFactorEnabled,
	}, nil
}

// SetEmail changes the account's email address. Unless
// Profile.KeepConfirmedOnEmailChange is set, the new address starts
// unconfirmed and needs a fresh confirmation round.
func (e *Engine) SetEmail(ctx context.Context, accountID, email string) error {
	if err := e.ready(); err != nil {
		return err
	}

	email = strings.TrimSpace(email)
	if err := e.validate.Var(email, "required,email,max=254"); err != nil {
		return ValidationErrors{"email": {"must be a valid email address"}}
	}

	account, err := e.directory.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
	if account.Email == email {
		return nil
	}

	if other, err := e.directory.FindByEmail(ctx, email); err == nil {
		if other.ID != accountID {
			return ErrAccountExists
		}
	} else if !errors.Is(err, ErrAccountNotFound) {
		return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	if _, err := e.updateAccount(ctx, accountID, func(a *Account) error {
		if a.Email == email {
			return nil
		}
		// Accounts registered by email use it as the username too; keep
		// the two aligned.
		if a.Username == a.Email {
			a.Username = email
		}
		a.Email = email
		if !e.config.Profile.KeepConfirmedOnEmailChange {
			a.EmailConfirmed = false
		}
		return nil
	}); err != nil {
		return err
	}

	e.metricInc(MetricEmailChanged)
	e.emitAudit(ctx, auditEventEmailChanged, true, accountID, nil, nil)

	return nil
}
