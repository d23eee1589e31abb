// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/marketschool/internal/auth"
)

const (
	testClientID = "marketschool-web"
	testKeyID    = "test-key"
)

// identityProvider is a minimal OpenID provider: discovery plus JWKS.
type identityProvider struct {
	server *httptest.Server
	key    *rsa.PrivateKey
}

func newIdentityProvider(t *testing.T) *identityProvider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	provider := &identityProvider{key: key}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(writer).Encode(map[string]any{
			"issuer":                                provider.server.URL,
			"jwks_uri":                              provider.server.URL + "/keys",
			"authorization_endpoint":                provider.server.URL + "/authorize",
			"token_endpoint":                        provider.server.URL + "/token",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/keys", func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(writer).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
			Key:       &key.PublicKey,
			KeyID:     testKeyID,
			Algorithm: string(jose.RS256),
			Use:       "sig",
		}}})
	})

	provider.server = httptest.NewServer(mux)
	t.Cleanup(provider.server.Close)

	return provider
}

func (provider *identityProvider) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID

	signed, err := token.SignedString(provider.key)
	require.NoError(t, err)
	return signed
}

func (provider *identityProvider) claims(subject string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": provider.server.URL,
		"sub": subject,
		"aud": testClientID,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

/*
TestPassthroughVerifier verifies the default identity source trusts the id.
*/
func TestPassthroughVerifier(t *testing.T) {
	userID, err := auth.PassthroughVerifier{}.VerifyIdentity(context.Background(), "user-42", "")
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)

	_, err = auth.PassthroughVerifier{}.VerifyIdentity(context.Background(), "", "")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

/*
TestOIDCVerifier covers ID token acceptance and the rejection cases.
*/
func TestOIDCVerifier(t *testing.T) {
	provider := newIdentityProvider(t)
	ctx := context.Background()

	verifier, err := auth.NewOIDCVerifier(ctx, provider.server.URL, testClientID)
	require.NoError(t, err)

	t.Run("ValidToken", func(t *testing.T) {
		token := provider.sign(t, provider.claims("user-42"))

		userID, err := verifier.VerifyIdentity(ctx, "", token)
		require.NoError(t, err)
		assert.Equal(t, "user-42", userID)

		userID, err = verifier.VerifyIdentity(ctx, "user-42", token)
		require.NoError(t, err)
		assert.Equal(t, "user-42", userID)
	})

	expired := provider.claims("user-42")
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	foreignAudience := provider.claims("user-42")
	foreignAudience["aud"] = "another-client"

	foreignKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	forged := jwt.NewWithClaims(jwt.SigningMethodRS256, provider.claims("user-42"))
	forged.Header["kid"] = testKeyID
	forgedToken, err := forged.SignedString(foreignKey)
	require.NoError(t, err)

	tests := []struct {
		name   string
		userID string
		token  string
	}{
		{name: "MissingToken", userID: "user-42", token: ""},
		{name: "Garbage", userID: "user-42", token: "not-a-token"},
		{name: "Expired", token: provider.sign(t, expired)},
		{name: "WrongAudience", token: provider.sign(t, foreignAudience)},
		{name: "WrongKey", token: forgedToken},
		{name: "SubjectMismatch", userID: "user-7", token: provider.sign(t, provider.claims("user-42"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.VerifyIdentity(ctx, tt.userID, tt.token)
			assert.True(t, errors.Is(err, auth.ErrInvalidCredentials), "got %v", err)
		})
	}
}

/*
TestNewOIDCVerifier_DiscoveryFailure verifies an unreachable issuer fails construction.
*/
func TestNewOIDCVerifier_DiscoveryFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	_, err := auth.NewOIDCVerifier(context.Background(), server.URL, testClientID)
	assert.Error(t, err)
}
