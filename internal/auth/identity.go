// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// ErrInvalidCredentials is returned by an [IdentityVerifier] that rejects a login.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// IdentityVerifier delegates credential checking to an identity source.
//
// Implementations return the canonical user id the session is bound to.
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, userID, credential string) (string, error)
}

// # Passthrough

// PassthroughVerifier trusts the submitted user id as is. It is used when no
// external identity source is configured.
type PassthroughVerifier struct{}

// VerifyIdentity implements [IdentityVerifier].
func (PassthroughVerifier) VerifyIdentity(_ context.Context, userID, _ string) (string, error) {
	if userID == "" {
		return "", ErrInvalidCredentials
	}
	return userID, nil
}

// # OpenID Connect

// OIDCVerifier accepts a login only with an ID token issued by the configured
// provider. The token subject becomes the session's user id.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier runs provider discovery against issuerURL. Signing keys are
// fetched lazily from the advertised JWKS endpoint and cached.
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("auth: oidc discovery failed: %w", err)
	}

	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

/*
VerifyIdentity validates the ID token and binds it to the submitted user id.

Description: Signature, issuer, audience and expiry are checked by go-oidc.
When a user id is also submitted it must match the token subject.

Returns:
  - string: Token subject
  - error: ErrInvalidCredentials on any rejection
*/
func (identity *OIDCVerifier) VerifyIdentity(ctx context.Context, userID, credential string) (string, error) {
	if credential == "" {
		return "", ErrInvalidCredentials
	}

	token, err := identity.verifier.Verify(ctx, credential)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	if userID != "" && userID != token.Subject {
		return "", fmt.Errorf("%w: subject mismatch", ErrInvalidCredentials)
	}

	return token.Subject, nil
}
