package authkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	lockoutFailureSegment = ":lf:"
	lockoutLockSegment    = ":ll:"
)

// lockoutTracker counts failed logins per account in Redis. The counter
// decays over the configured window; crossing the threshold writes an
// explicit lock key so the account stays locked for the full duration even
// if the counter expires first.
type lockoutTracker struct {
	redis  *redis.Client
	prefix string
	cfg    LockoutConfig
}

func newLockoutTracker(redisClient *redis.Client, prefix string, cfg LockoutConfig) *lockoutTracker {
	return &lockoutTracker{
		redis:  redisClient,
		prefix: prefix,
		cfg:    cfg,
	}
}

func (t *lockoutTracker) failureKey(accountID string) string {
	return t.prefix + lockoutFailureSegment + accountID
}

func (t *lockoutTracker) lockKey(accountID string) string {
	return t.prefix + lockoutLockSegment + accountID
}

func (t *lockoutTracker) IsLocked(ctx context.Context, accountID string) (bool, error) {
	n, err := t.redis.Exists(ctx, t.lockKey(accountID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
	return n > 0, nil
}

// RecordFailure bumps the counter and reports whether this failure crossed
// the threshold. On crossing, the lock key is set and the counter cleared
// so the next lockout needs a fresh run of failures.
func (t *lockoutTracker) RecordFailure(ctx context.Context, accountID string) (bool, error) {
	count, err := t.redis.Incr(ctx, t.failureKey(accountID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
	if count == 1 {
		if err := t.redis.Expire(ctx, t.failureKey(accountID), t.cfg.Window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
		}
	}

	if count < int64(t.cfg.Threshold) {
		return false, nil
	}

	pipe := t.redis.TxPipeline()
	pipe.Set(ctx, t.lockKey(accountID), "1", t.cfg.Duration)
	pipe.Del(ctx, t.failureKey(accountID))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	return true, nil
}

// Reset clears the failure counter. It does not clear an active lock.
func (t *lockoutTracker) Reset(ctx context.Context, accountID string) error {
	if err := t.redis.Del(ctx, t.failureKey(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
	return nil
}

func (t *lockoutTracker) FailureCount(ctx context.Context, accountID string) (int64, error) {
	count, err := t.redis.Get(ctx, t.failureKey(accountID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
	return count, nil
}
