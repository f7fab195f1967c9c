package authkit

import (
	"context"
	"sort"
	"strings"
)

// LoginOutcome classifies the result of a credential login attempt. The
// outcome is the decision; an accompanying error only ever reports an
// infrastructure failure.
type LoginOutcome uint8

const (
	LoginUnknown LoginOutcome = iota
	LoginSuccess
	LoginRejected
	LoginLockedOut
	LoginRequiresTwoFactor
)

func (o LoginOutcome) String() string {
	switch o {
	case LoginSuccess:
		return "success"
	case LoginRejected:
		return "rejected"
	case LoginLockedOut:
		return "locked_out"
	case LoginRequiresTwoFactor:
		return "requires_two_factor"
	default:
		return "unknown"
	}
}

// LoginResult carries the decision for a login attempt. SessionToken is set
// only when Outcome is LoginSuccess.
type LoginResult struct {
	Outcome      LoginOutcome
	AccountID    string
	SessionToken string
}

// ExternalLoginOutcome classifies the result of an external-identity
// sign-in attempt.
type ExternalLoginOutcome uint8

const (
	ExternalUnknown ExternalLoginOutcome = iota
	ExternalSignedIn
	ExternalLockedOut
	ExternalNotAllowed
	ExternalNeedsLinking
)

func (o ExternalLoginOutcome) String() string {
	switch o {
	case ExternalSignedIn:
		return "signed_in"
	case ExternalLockedOut:
		return "locked_out"
	case ExternalNotAllowed:
		return "not_allowed"
	case ExternalNeedsLinking:
		return "needs_linking"
	default:
		return "unknown"
	}
}

// ExternalLoginResult carries the decision for an external sign-in.
// SessionToken is set only when Outcome is ExternalSignedIn.
type ExternalLoginResult struct {
	Outcome      ExternalLoginOutcome
	AccountID    string
	SessionToken string
}

// ExternalAssertion is a provider-verified identity claim handed to the
// engine by the caller. The engine trusts it; validating the upstream
// provider response is the caller's job.
type ExternalAssertion struct {
	Provider      string
	Key           string
	Email         string
	EmailVerified bool
	DisplayName   string
}

// ProviderLink ties an account to one external identity.
type ProviderLink struct {
	Provider string
	Key      string
}

// Account is the engine's view of a stored account record. Version carries
// the optimistic concurrency token: UserDirectory.Update must reject a
// write whose Version no longer matches the stored record.
type Account struct {
	ID               string
	Username         string
	Email            string
	EmailConfirmed   bool
	PasswordHash     string // empty means no local credential
	TwoFactorEnabled bool
	Hashtags         []string
	Logins           []ProviderLink
	Version          uint64
}

// HasLogin reports whether the account already carries the given
// provider/key pair.
func (a *Account) HasLogin(provider, key string) bool {
	for _, l := range a.Logins {
		if l.Provider == provider && l.Key == key {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.Hashtags = append([]string(nil), a.Hashtags...)
	out.Logins = append([]ProviderLink(nil), a.Logins...)
	return &out
}

// UserDirectory is the account persistence capability the engine depends
// on. Lookups return ErrAccountNotFound for absent records. Create returns
// ErrAccountExists when the id or any indexed field collides. Update is a
// compare-and-swap on Account.Version and returns ErrVersionConflict when
// the stored record moved underneath the caller.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByLogin(ctx context.Context, provider, key string) (*Account, error)
	Create(ctx context.Context, account *Account) error
	Update(ctx context.Context, account *Account) error
}

// EmailSender delivers recovery mail. The token argument is the opaque
// single-use token to embed in the message link.
type EmailSender interface {
	SendEmailConfirmation(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
}

// CredentialHasher hashes and verifies local credentials. The default
// implementation is password.Hasher (Argon2id, PHC encoding).
type CredentialHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// RegisterRequest is the input to Engine.Register.
type RegisterRequest struct {
	Email    string   `validate:"required,email,max=254"`
	Password string   `validate:"required"`
	Hashtags []string `validate:"omitempty,max=32,dive,hashtag"`
}

// ProfileView is the read model returned by Engine.Profile.
type ProfileView struct {
	AccountID        string
	Email            string
	EmailConfirmed   bool
	Hashtags         []string
	HasPassword      bool
	TwoFactorEnabled bool
}

// ValidationErrors maps a field name to the messages explaining why its
// value was rejected. It satisfies error so callers can surface it
// directly.
type ValidationErrors map[string][]string

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

func (v ValidationErrors) add(field, message string) {
	v[field] = append(v[field], message)
}
