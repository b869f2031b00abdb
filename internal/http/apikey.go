package http

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/example/hearing-scheduler/internal/application"
)

// ErrInvalidKeyHash is returned for hashes not in the $argon2id$ encoding.
var ErrInvalidKeyHash = errors.New("invalid api key hash format")

// Argon2idParams tunes API key hashing.
type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// HashAPIKey encodes key as $argon2id$v=19$m=...,t=...,p=...$salt$hash.
func HashAPIKey(key string, params Argon2idParams) (string, error) {
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	sum := argon2.IDKey([]byte(key), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.Memory, params.Iterations, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

type keyHash struct {
	params Argon2idParams
	salt   []byte
	sum    []byte
}

func parseKeyHash(encoded string) (keyHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return keyHash{}, ErrInvalidKeyHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return keyHash{}, ErrInvalidKeyHash
	}

	var h keyHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.params.Memory, &h.params.Iterations, &h.params.Parallelism); err != nil {
		return keyHash{}, ErrInvalidKeyHash
	}
	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return keyHash{}, ErrInvalidKeyHash
	}
	if h.sum, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(h.sum) == 0 {
		return keyHash{}, ErrInvalidKeyHash
	}
	h.params.KeyLength = uint32(len(h.sum))
	return h, nil
}

func (h keyHash) matches(key string) bool {
	sum := argon2.IDKey([]byte(key), h.salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	return subtle.ConstantTimeCompare(h.sum, sum) == 1
}

// APIKeyAuthorizer accepts requests carrying the key whose hash it holds.
type APIKeyAuthorizer struct {
	hash keyHash
}

// NewAPIKeyAuthorizer parses the configured argon2id hash.
func NewAPIKeyAuthorizer(encodedHash string) (*APIKeyAuthorizer, error) {
	h, err := parseKeyHash(strings.TrimSpace(encodedHash))
	if err != nil {
		return nil, err
	}
	return &APIKeyAuthorizer{hash: h}, nil
}

// Authorize returns the caller label for a valid key and
// application.ErrUnauthorized otherwise.
func (a *APIKeyAuthorizer) Authorize(_ context.Context, key string) (string, error) {
	if a == nil || key == "" || !a.hash.matches(key) {
		return "", application.ErrUnauthorized
	}
	return "api-key", nil
}
