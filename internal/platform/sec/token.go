// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// GenerateSecureToken returns a URL-safe random token built from length bytes
// of OS entropy.
func GenerateSecureToken(length int) (string, error) {
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec: failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// TokenHasher produces a keyed BLAKE2b-256 digest of opaque tokens so that
// persisted identifiers cannot be replayed as cookies.
type TokenHasher struct {
	key []byte
}

// NewTokenHasher builds a [TokenHasher] keyed by secret.
//
// BLAKE2b accepts keys of at most 64 bytes; longer secrets are first
// compressed with an unkeyed BLAKE2b-256.
func NewTokenHasher(secret string) (*TokenHasher, error) {
	if secret == "" {
		return nil, fmt.Errorf("sec: token hasher secret must not be empty")
	}

	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}

	return &TokenHasher{key: key}, nil
}

// Hash returns the hex-encoded keyed digest of token.
func (hasher *TokenHasher) Hash(token string) string {
	// The key length is validated in NewTokenHasher, so New256 cannot fail.
	digest, err := blake2b.New256(hasher.key)
	if err != nil {
		panic("sec: invalid blake2b key: " + err.Error())
	}
	digest.Write([]byte(token))
	return hex.EncodeToString(digest.Sum(nil))
}
