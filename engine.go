package authkit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tossapp/authkit/jwt"
)

// Engine is the authentication decision core. It holds no mutable state of
// its own; every observable side effect lives in the account record or in
// Redis. All methods are safe for concurrent use.
type Engine struct {
	config    Config
	directory UserDirectory
	mailer    EmailSender
	hasher    CredentialHasher
	sessions  *jwt.Manager
	tokens    *recoveryTokenStore
	lockouts  *lockoutTracker
	validate  *validator.Validate
	audit     *auditDispatcher
	metrics   *Metrics

	// dummyHash is verified against for unknown usernames so a miss costs
	// the same as a wrong password.
	dummyHash string

	closed atomic.Bool
}

func (e *Engine) ready() error {
	if e == nil || e.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}

// Close flushes the audit dispatcher. The engine rejects all calls
// afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.closed.CompareAndSwap(false, true) {
		e.audit.Close()
	}
}

// MetricsSnapshot exposes the in-process metrics for exporters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	e.metrics.Observe(id, d)
}

// Login decides a username/password attempt. The decision is carried in
// the outcome; a non-nil error means the engine could not decide at all.
// The lockout check runs before credential verification, so a locked
// account reveals nothing about whether the password was right.
func (e *Engine) Login(ctx context.Context, username, password string, remember bool) (LoginResult, error) {
	if err := e.ready(); err != nil {
		return LoginResult{}, err
	}

	start := time.Now()
	defer func() {
		e.metricObserve(MetricLoginLatency, time.Since(start))
	}()

	account, err := e.directory.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			_, _ = e.hasher.Verify(password, e.dummyHash)
			e.metricInc(MetricLoginRejected)
			e.emitAudit(ctx, auditEventLoginRejected, false, "", ErrInvalidCredentials, nil)
			return LoginResult{Outcome: LoginRejected}, nil
		}
		return LoginResult{}, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	locked, err := e.lockouts.IsLocked(ctx, account.ID)
	if err != nil {
		return LoginResult{}, err
	}
	if locked {
		e.metricInc(MetricLoginLockedOut)
		e.emitAudit(ctx, auditEventLoginLockedOut, false, account.ID, errAccountLockedAudit, nil)
		return LoginResult{Outcome: LoginLockedOut, AccountID: account.ID}, nil
	}

	if account.PasswordHash == "" {
		// External-only account; there is no local credential to match.
		_, _ = e.hasher.Verify(password, e.dummyHash)
		return e.loginFailure(ctx, account)
	}

	ok, err := e.hasher.Verify(password, account.PasswordHash)
	if err != nil || !ok {
		return e.loginFailure(ctx, account)
	}

	if err := e.lockouts.Reset(ctx, account.ID); err != nil {
		return LoginResult{}, err
	}

	if e.config.Password.UpgradeOnLogin {
		if upgrade, err := e.hasher.NeedsUpgrade(account.PasswordHash); err == nil && upgrade {
			e.rehashCredential(ctx, account.ID, password)
		}
	}

	if account.TwoFactorEnabled {
		e.metricInc(MetricLoginTwoFactorRequired)
		e.emitAudit(ctx, auditEventLoginTwoFactorRequired, true, account.ID, nil, nil)
		return LoginResult{Outcome: LoginRequiresTwoFactor, AccountID: account.ID}, nil
	}

	token, err := e.sessions.CreateSession(account.ID, remember)
	if err != nil {
		return LoginResult{}, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, nil, func() map[string]string {
		return map[string]string{"remember": strconv.FormatBool(remember)}
	})

	return LoginResult{Outcome: LoginSuccess, AccountID: account.ID, SessionToken: token}, nil
}

func (e *Engine) loginFailure(ctx context.Context, account *Account) (LoginResult, error) {
	lockedNow, err := e.lockouts.RecordFailure(ctx, account.ID)
	if err != nil {
		return LoginResult{}, err
	}
	if lockedNow {
		e.metricInc(MetricLoginLockedOut)
		e.emitAudit(ctx, auditEventLoginLockedOut, false, account.ID, errAccountLockedAudit, nil)
		return LoginResult{Outcome: LoginLockedOut, AccountID: account.ID}, nil
	}

	e.metricInc(MetricLoginRejected)
	e.emitAudit(ctx, auditEventLoginRejected, false, account.ID, ErrInvalidCredentials, nil)
	return LoginResult{Outcome: LoginRejected, AccountID: account.ID}, nil
}

// ParseSession validates a session token and returns the account id it was
// issued for.
func (e *Engine) ParseSession(token string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	claims, err := e.sessions.ParseSession(token)
	if err != nil {
		return "", ErrInvalidToken
	}
	return claims.AccountID, nil
}

// updateAccount runs a read-mutate-write cycle against the directory,
// retrying on version conflicts.
func (e *Engine) updateAccount(ctx context.Context, accountID string, mutate func(*Account) error) (*Account, error) {
	const maxRetries = 4

	for i := 0; i < maxRetries; i++ {
		account, err := e.directory.FindByID(ctx, accountID)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return nil, ErrAccountNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
		}

		if err := mutate(account); err != nil {
			return nil, err
		}

		err = e.directory.Update(ctx, account)
		if err == nil {
			return account, nil
		}
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrAccountExists) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	return nil, ErrVersionConflict
}

func (e *Engine) rehashCredential(ctx context.Context, accountID, password string) {
	newHash, err := e.hasher.Hash(password)
	if err != nil {
		log.Printf("authkit: credential rehash: %v", err)
		return
	}
	if _, err := e.updateAccount(ctx, accountID, func(a *Account) error {
		a.PasswordHash = newHash
		return nil
	}); err != nil {
		log.Printf("authkit: credential rehash store: %v", err)
	}
}

// checkPasswordPolicy applies the local password policy. It returns nil or
// a ValidationErrors value.
func (e *Engine) checkPasswordPolicy(password string) error {
	verr := ValidationErrors{}

	if len(password) < e.config.Password.MinLength {
		verr.add("password", fmt.Sprintf("must be at least %d characters", e.config.Password.MinLength))
	}
	if len(password) > 1024 {
		verr.add("password", "must be at most 1024 characters")
	}

	if len(verr) == 0 {
		return nil
	}
	return verr
}

// validateStruct maps validator failures onto ValidationErrors keyed by
// the lowercased field name.
func (e *Engine) validateStruct(v any) error {
	err := e.validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{"request": {"invalid request"}}
	}

	verr := ValidationErrors{}
	for _, fe := range fieldErrs {
		verr.add(lowerFirst(fe.Field()), "failed on "+fe.Tag())
	}
	return verr
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}
