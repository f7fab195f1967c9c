package authkit

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tossapp/authkit/internal"
)

type tokenPurpose byte

const (
	purposeConfirmEmail  tokenPurpose = 1
	purposeResetPassword tokenPurpose = 2
)

const (
	recoveryKeySegment      = ":rt:"
	recoveryRecordVersionV1 = 1
)

var (
	errTokenNotFound         = errors.New("recovery token not found")
	errTokenUsed             = errors.New("recovery token already used")
	errTokenMismatch         = errors.New("recovery token mismatch")
	errTokenStoreUnavailable = errors.New("recovery token store unavailable")
)

type recoveryTokenRecord struct {
	Purpose    tokenPurpose
	Used       bool
	ExpiresAt  int64
	AccountID  string
	SecretHash [32]byte
}

// recoveryTokenStore keeps single-use recovery tokens in Redis, keyed by
// the public token id. Only the SHA-256 of the secret half is stored.
type recoveryTokenStore struct {
	redis  *redis.Client
	prefix string
}

func newRecoveryTokenStore(redisClient *redis.Client, prefix string) *recoveryTokenStore {
	return &recoveryTokenStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *recoveryTokenStore) key(id internal.TokenID) string {
	return s.prefix + recoveryKeySegment + id.String()
}

// Issue mints a token for the given purpose and account and returns the
// opaque string to mail out.
func (s *recoveryTokenStore) Issue(ctx context.Context, purpose tokenPurpose, accountID string, ttl time.Duration) (string, error) {
	id, err := internal.NewTokenID()
	if err != nil {
		return "", err
	}
	secret, err := internal.NewTokenSecret()
	if err != nil {
		return "", err
	}

	record := &recoveryTokenRecord{
		Purpose:    purpose,
		ExpiresAt:  time.Now().Add(ttl).Unix(),
		AccountID:  accountID,
		SecretHash: internal.HashTokenSecret(secret),
	}

	encoded, err := encodeRecoveryTokenRecord(record)
	if err != nil {
		return "", err
	}

	if err := s.redis.Set(ctx, s.key(id), encoded, ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", errTokenStoreUnavailable, err)
	}

	return internal.EncodeRecoveryToken(id, secret), nil
}

// Consume redeems a token atomically. Exactly one concurrent redeemer
// succeeds; the record is tombstoned rather than deleted so a replay reads
// as used instead of absent.
func (s *recoveryTokenStore) Consume(ctx context.Context, purpose tokenPurpose, accountID, token string) error {
	id, secret, err := internal.DecodeRecoveryToken(token)
	if err != nil {
		return errTokenNotFound
	}
	providedHash := internal.HashTokenSecret(secret)
	key := s.key(id)

	const maxRetries = 4

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeRecoveryTokenRecord(data)
			if err != nil {
				return err
			}

			if record.Used {
				return errTokenUsed
			}

			remaining := time.Until(time.Unix(record.ExpiresAt, 0))
			if remaining <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errTokenNotFound
			}

			if record.Purpose != purpose || record.AccountID != accountID {
				return errTokenMismatch
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
				return errTokenMismatch
			}

			record.Used = true
			updated, err := encodeRecoveryTokenRecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, remaining)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil), errors.Is(err, errTokenNotFound):
				return errTokenNotFound
			case errors.Is(err, errTokenUsed), errors.Is(err, errTokenMismatch):
				return err
			default:
				return fmt.Errorf("%w: %v", errTokenStoreUnavailable, err)
			}
		}

		return nil
	}

	return errTokenNotFound
}

func encodeRecoveryTokenRecord(record *recoveryTokenRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recoveryRecordVersionV1)
	buf.WriteByte(byte(record.Purpose))

	var flags byte
	if record.Used {
		flags |= 0x01
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.AccountID) > 65535 {
		return nil, errors.New("recovery record account id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeRecoveryTokenRecord(data []byte) (*recoveryTokenRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recoveryRecordVersionV1 {
		return nil, errors.New("invalid recovery record version")
	}

	purpose, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &recoveryTokenRecord{
		Purpose: tokenPurpose(purpose),
		Used:    flags&0x01 != 0,
	}

	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var accountIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &accountIDLen); err != nil {
		return nil, err
	}

	accountID := make([]byte, accountIDLen)
	if _, err := io.ReadFull(reader, accountID); err != nil {
		return nil, err
	}
	record.AccountID = string(accountID)

	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
