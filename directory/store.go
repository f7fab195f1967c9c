// Package directory is a Redis-backed implementation of the
// authkit.UserDirectory capability. Account records are stored as compact
// binary blobs with secondary index keys for username, email and external
// provider links. Updates are compare-and-swap on the record version.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tossapp/authkit"
)

const (
	accountSegment  = ":acct:"
	usernameSegment = ":uname:"
	emailSegment    = ":email:"
	loginSegment    = ":ext:"
)

// Store implements authkit.UserDirectory on a Redis client.
type Store struct {
	redis  *redis.Client
	prefix string
}

func NewStore(client *redis.Client, prefix string) *Store {
	return &Store{
		redis:  client,
		prefix: prefix,
	}
}

func (s *Store) accountKey(id string) string {
	return s.prefix + accountSegment + id
}

func (s *Store) usernameKey(username string) string {
	return s.prefix + usernameSegment + strings.ToLower(username)
}

func (s *Store) emailKey(email string) string {
	return s.prefix + emailSegment + strings.ToLower(email)
}

func (s *Store) loginKey(provider, key string) string {
	// 0x1f separates the pair; neither side may contain it in practice.
	return s.prefix + loginSegment + provider + "\x1f" + key
}

func (s *Store) FindByID(ctx context.Context, id string) (*authkit.Account, error) {
	data, err := s.redis.Get(ctx, s.accountKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, authkit.ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", authkit.ErrDependencyUnavailable, err)
	}

	return decodeAccount(data)
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*authkit.Account, error) {
	return s.findByIndex(ctx, s.usernameKey(username))
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*authkit.Account, error) {
	return s.findByIndex(ctx, s.emailKey(email))
}

func (s *Store) FindByLogin(ctx context.Context, provider, key string) (*authkit.Account, error) {
	return s.findByIndex(ctx, s.loginKey(provider, key))
}

func (s *Store) findByIndex(ctx context.Context, indexKey string) (*authkit.Account, error) {
	id, err := s.redis.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, authkit.ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", authkit.ErrDependencyUnavailable, err)
	}

	return s.FindByID(ctx, id)
}

// Create stores a new account and its index keys atomically. An empty ID
// is filled in with a fresh UUID. The write fails with ErrAccountExists
// when the id or any indexed field is already taken.
func (s *Store) Create(ctx context.Context, account *authkit.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.Version = 1

	encoded, err := encodeAccount(account)
	if err != nil {
		return err
	}

	keys := []string{s.accountKey(account.ID), s.usernameKey(account.Username), s.emailKey(account.Email)}
	for _, l := range account.Logins {
		keys = append(keys, s.loginKey(l.Provider, l.Key))
	}

	const maxRetries = 4

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, keys...).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return authkit.ErrAccountExists
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, s.accountKey(account.ID), encoded, 0)
				pipe.Set(ctx, s.usernameKey(account.Username), account.ID, 0)
				pipe.Set(ctx, s.emailKey(account.Email), account.ID, 0)
				for _, l := range account.Logins {
					pipe.Set(ctx, s.loginKey(l.Provider, l.Key), account.ID, 0)
				}
				return nil
			})
			return err
		}, keys...)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, authkit.ErrAccountExists) {
				return authkit.ErrAccountExists
			}
			return fmt.Errorf("%w: %v", authkit.ErrDependencyUnavailable, err)
		}
		return nil
	}

	return fmt.Errorf("%w: create contention", authkit.ErrDependencyUnavailable)
}

// Update rewrites the record if the stored version still matches
// account.Version, bumping the version and moving index keys for any
// changed username, email or login set. On success account.Version
// reflects the stored value.
func (s *Store) Update(ctx context.Context, account *authkit.Account) error {
	key := s.accountKey(account.ID)

	const maxRetries = 4

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			current, err := decodeAccount(data)
			if err != nil {
				return err
			}

			if current.Version != account.Version {
				return authkit.ErrVersionConflict
			}

			next := account.Clone()
			next.Version++

			emailChanged := !strings.EqualFold(current.Email, next.Email)
			usernameChanged := !strings.EqualFold(current.Username, next.Username)

			if emailChanged {
				if err := s.checkIndexFree(ctx, tx, s.emailKey(next.Email), account.ID); err != nil {
					return err
				}
			}
			if usernameChanged {
				if err := s.checkIndexFree(ctx, tx, s.usernameKey(next.Username), account.ID); err != nil {
					return err
				}
			}
			for _, l := range next.Logins {
				if !current.HasLogin(l.Provider, l.Key) {
					if err := s.checkIndexFree(ctx, tx, s.loginKey(l.Provider, l.Key), account.ID); err != nil {
						return err
					}
				}
			}

			encoded, err := encodeAccount(next)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, 0)
				if usernameChanged {
					pipe.Del(ctx, s.usernameKey(current.Username))
					pipe.Set(ctx, s.usernameKey(next.Username), account.ID, 0)
				}
				if emailChanged {
					pipe.Del(ctx, s.emailKey(current.Email))
					pipe.Set(ctx, s.emailKey(next.Email), account.ID, 0)
				}
				for _, l := range next.Logins {
					if !current.HasLogin(l.Provider, l.Key) {
						pipe.Set(ctx, s.loginKey(l.Provider, l.Key), account.ID, 0)
					}
				}
				for _, l := range current.Logins {
					if !next.HasLogin(l.Provider, l.Key) {
						pipe.Del(ctx, s.loginKey(l.Provider, l.Key))
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			account.Version = next.Version
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return authkit.ErrAccountNotFound
			case errors.Is(err, authkit.ErrVersionConflict), errors.Is(err, authkit.ErrAccountExists):
				return err
			default:
				return fmt.Errorf("%w: %v", authkit.ErrDependencyUnavailable, err)
			}
		}
		return nil
	}

	return authkit.ErrVersionConflict
}

func (s *Store) checkIndexFree(ctx context.Context, tx *redis.Tx, indexKey, accountID string) error {
	owner, err := tx.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	if owner != accountID {
		return authkit.ErrAccountExists
	}
	return nil
}
