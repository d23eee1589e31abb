// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCookie is returned when a cookie value fails signature or claim checks.
var ErrInvalidCookie = errors.New("sec: invalid signed cookie")

// cookieClaims is the payload of a signed session cookie.
//
// Expiry is deliberately absent: the session store owns the sliding expiry,
// the signature only proves the value was issued by this server.
type cookieClaims struct {
	jwt.RegisteredClaims

	// SessionToken is abbreviated to keep the cookie small.
	SessionToken string `json:"sid"`
}

// CookieSigner signs and verifies session cookie values using HS256.
type CookieSigner struct {
	secret []byte
	issuer string
}

// NewCookieSigner creates a [CookieSigner] keyed by secret.
func NewCookieSigner(secret, issuer string) (*CookieSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("sec: cookie secret must not be empty")
	}
	return &CookieSigner{secret: []byte(secret), issuer: issuer}, nil
}

// Sign wraps the opaque session token into a signed cookie value.
func (signer *CookieSigner) Sign(sessionToken string) (string, error) {
	claims := cookieClaims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: signer.issuer},
		SessionToken:     sessionToken,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signer.secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign cookie: %w", err)
	}
	return signed, nil
}

// Verify checks the signature of a cookie value and returns the session token.
func (signer *CookieSigner) Verify(value string) (string, error) {
	claims := &cookieClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(token *jwt.Token) (any, error) {
		return signer.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(signer.issuer),
	)
	if err != nil || !token.Valid || claims.SessionToken == "" {
		return "", ErrInvalidCookie
	}
	return claims.SessionToken, nil
}
