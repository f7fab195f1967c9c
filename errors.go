package authkit

import "errors"

var (
	// ErrEngineNotReady is returned when the engine is nil or has been closed.
	ErrEngineNotReady = errors.New("engine not ready")

	// ErrAccountNotFound is returned by directory lookups for absent records.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned when a create or email change collides
	// with an existing account.
	ErrAccountExists = errors.New("account already exists")

	// ErrInvalidCredentials is returned when an old-password check fails.
	// Login attempts never return it; they report LoginRejected instead.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken covers every recovery-token failure: malformed,
	// expired, already used, wrong purpose, wrong account. Callers must not
	// be able to tell these apart.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrPasswordReuse is returned when a password change supplies the
	// current password as the new one.
	ErrPasswordReuse = errors.New("new password matches current password")

	// ErrLinkExists is returned when an external provider/key pair is
	// already linked to a different account.
	ErrLinkExists = errors.New("external login already linked")

	// ErrVersionConflict is returned by UserDirectory.Update when the
	// stored record changed since it was read.
	ErrVersionConflict = errors.New("account record modified concurrently")

	// ErrDependencyUnavailable wraps infrastructure failures from the
	// backing stores.
	ErrDependencyUnavailable = errors.New("backing store unavailable")
)
