package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

const (
	tokenIDSize     = 16
	tokenSecretSize = 32
	tokenRawSize    = tokenIDSize + tokenSecretSize
)

// TokenID is the public half of a recovery token. It keys the stored
// record; possession of it proves nothing.
type TokenID [tokenIDSize]byte

func NewTokenID() (TokenID, error) {
	var id TokenID
	_, err := rand.Read(id[:])
	return id, err
}

func (t TokenID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(t[:])
}

func ParseTokenID(s string) (TokenID, error) {
	var id TokenID

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, errors.New("invalid token id size")
	}

	copy(id[:], raw)
	return id, nil
}

func NewTokenSecret() ([tokenSecretSize]byte, error) {
	var secret [tokenSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func HashTokenSecret(secret [tokenSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeRecoveryToken packs id and secret into the opaque string handed to
// the account holder.
func EncodeRecoveryToken(id TokenID, secret [tokenSecretSize]byte) string {
	var raw [tokenRawSize]byte
	copy(raw[:tokenIDSize], id[:])
	copy(raw[tokenIDSize:], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:])
}

func DecodeRecoveryToken(token string) (TokenID, [tokenSecretSize]byte, error) {
	var id TokenID
	var secret [tokenSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return id, secret, err
	}
	if len(raw) != tokenRawSize {
		return id, secret, errors.New("invalid recovery token size")
	}

	copy(id[:], raw[:tokenIDSize])
	copy(secret[:], raw[tokenIDSize:])

	return id, secret, nil
}
