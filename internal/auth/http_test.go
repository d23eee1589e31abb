// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/marketschool/internal/auth"
	"github.com/taibuivan/marketschool/internal/platform/constants"
	"github.com/taibuivan/marketschool/internal/platform/middleware"
	"github.com/taibuivan/marketschool/internal/platform/sec"
	"github.com/taibuivan/marketschool/internal/session"
	"github.com/taibuivan/marketschool/internal/session/sessiontest"
)

type testServer struct {
	*httptest.Server
	store  *sessiontest.MemoryStore
	signer *sec.CookieSigner
	hasher *sec.TokenHasher
}

func newTestServer(t *testing.T, throttle auth.Throttle) *testServer {
	t.Helper()
	return newProxiedTestServer(t, throttle, nil)
}

// newProxiedTestServer trusts proxy headers from peers inside trusted.
func newProxiedTestServer(t *testing.T, throttle auth.Throttle, trusted []netip.Prefix) *testServer {
	t.Helper()

	signer, err := sec.NewCookieSigner("cookie-secret", constants.SessionCookieIssuer)
	require.NoError(t, err)
	hasher, err := sec.NewTokenHasher("session-secret")
	require.NoError(t, err)

	store := sessiontest.NewMemoryStore()
	manager := session.NewManager(store, signer, hasher, session.Options{})
	service := auth.NewService(manager, auth.PassthroughVerifier{}, throttle)

	router := chi.NewRouter()
	router.Use(middleware.ClientIP(trusted))
	router.Use(manager.Middleware)
	router.Mount("/api/auth", auth.NewHandler(service).Routes())

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, store: store, signer: signer, hasher: hasher}
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

type envelope struct {
	Data map[string]any `json:"data"`
	Code string         `json:"code"`
}

func call(t *testing.T, client *http.Client, method, target, body string) (int, envelope) {
	t.Helper()

	request, err := http.NewRequest(method, target, strings.NewReader(body))
	require.NoError(t, err)
	request.Header.Set("Content-Type", "application/json")

	response, err := client.Do(request)
	require.NoError(t, err)
	defer response.Body.Close()

	var decoded envelope
	require.NoError(t, json.NewDecoder(response.Body).Decode(&decoded))
	return response.StatusCode, decoded
}

// storedRecord resolves the client's cookie to the session row.
func (server *testServer) storedRecord(t *testing.T, client *http.Client) (*session.Record, error) {
	t.Helper()

	base, err := url.Parse(server.URL)
	require.NoError(t, err)

	for _, cookie := range client.Jar.Cookies(base) {
		if cookie.Name != constants.SessionCookieName {
			continue
		}
		token, err := server.signer.Verify(cookie.Value)
		require.NoError(t, err)
		return server.store.Load(context.Background(), server.hasher.Hash(token), time.Now())
	}
	return nil, session.ErrNotFound
}

/*
TestAuth_VerifyWithoutCookie verifies an anonymous client is reported unauthenticated.
*/
func TestAuth_VerifyWithoutCookie(t *testing.T) {
	server := newTestServer(t, nil)

	status, body := call(t, newClient(t), http.MethodGet, server.URL+"/api/auth/verify", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body.Code)
}

/*
TestAuth_LoginThenVerify covers the happy path and the additional payload fields.
*/
func TestAuth_LoginThenVerify(t *testing.T) {
	server := newTestServer(t, nil)
	client := newClient(t)

	status, body := call(t, client, http.MethodPost, server.URL+"/api/auth/login", `{"user_id":"user-42","plan":"pro"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "user-42", body.Data["userId"])

	status, body = call(t, client, http.MethodGet, server.URL+"/api/auth/verify", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "user-42", body.Data["userId"])

	record, err := server.storedRecord(t, client)
	require.NoError(t, err)
	assert.Equal(t, "user-42", record.Payload.UserID)
	assert.Equal(t, "pro", record.Payload.Data["plan"])
	assert.NotContains(t, record.Payload.Data, "user_id")
}

/*
TestAuth_LogoutThenVerify verifies logout removes the row and demotes the client.
*/
func TestAuth_LogoutThenVerify(t *testing.T) {
	server := newTestServer(t, nil)
	client := newClient(t)

	status, _ := call(t, client, http.MethodPost, server.URL+"/api/auth/login", `{"user_id":"user-42"}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 1, server.store.Len())

	status, body := call(t, client, http.MethodPost, server.URL+"/api/auth/logout", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body.Data["ok"])

	status, _ = call(t, client, http.MethodGet, server.URL+"/api/auth/verify", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Zero(t, server.store.Len())
}

/*
TestAuth_LogoutWithoutSession verifies logout is always a success.
*/
func TestAuth_LogoutWithoutSession(t *testing.T) {
	server := newTestServer(t, nil)

	status, _ := call(t, newClient(t), http.MethodPost, server.URL+"/api/auth/logout", "")
	assert.Equal(t, http.StatusOK, status)
}

/*
TestAuth_LoginValidation checks rejected payloads create no session.
*/
func TestAuth_LoginValidation(t *testing.T) {
	server := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "MissingUserID", body: `{"plan":"pro"}`},
		{name: "EmptyUserID", body: `{"user_id":"  "}`},
		{name: "IllegalCharacters", body: `{"user_id":"bad id!"}`},
		{name: "TooLong", body: `{"user_id":"` + strings.Repeat("a", auth.UserIDMaxLength+1) + `"}`},
		{name: "NotAString", body: `{"user_id":42}`},
		{name: "MalformedJSON", body: `{"user_id":`},
		{name: "NotAnObject", body: `["user-42"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(t, newClient(t), http.MethodPost, server.URL+"/api/auth/login", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "VALIDATION_ERROR", body.Code)
		})
	}

	assert.Zero(t, server.store.Len())
}

/*
TestAuth_Refresh covers refresh with and without a session, including two
concurrent refreshes of the same session.
*/
func TestAuth_Refresh(t *testing.T) {
	server := newTestServer(t, nil)
	client := newClient(t)

	status, body := call(t, client, http.MethodPost, server.URL+"/api/auth/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "NO_SESSION", body.Code)

	status, _ = call(t, client, http.MethodPost, server.URL+"/api/auth/login", `{"user_id":"user-42"}`)
	require.Equal(t, http.StatusOK, status)

	before, err := server.storedRecord(t, client)
	require.NoError(t, err)

	var wg sync.WaitGroup
	statuses := make([]int, 2)
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			response, err := client.Post(server.URL+"/api/auth/refresh", "application/json", nil)
			if err != nil {
				return
			}
			_ = response.Body.Close()
			statuses[i] = response.StatusCode
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []int{http.StatusOK, http.StatusOK}, statuses)

	after, err := server.storedRecord(t, client)
	require.NoError(t, err)
	assert.False(t, after.Expire.Before(before.Expire))
}

/*
TestAuth_LoginThrottled verifies the Redis limiter turns excess attempts into 429.
*/
func TestAuth_LoginThrottled(t *testing.T) {
	redisServer := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: redisServer.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	server := newTestServer(t, auth.NewLoginLimiter(client, 2, time.Minute))
	httpClient := newClient(t)

	for i := 0; i < 2; i++ {
		status, _ := call(t, httpClient, http.MethodPost, server.URL+"/api/auth/login", `{"user_id":"user-42"}`)
		require.Equal(t, http.StatusOK, status)
	}

	status, body := call(t, httpClient, http.MethodPost, server.URL+"/api/auth/login", `{"user_id":"user-42"}`)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMITED", body.Code)
}

/*
TestAuth_LoginThrottleIgnoresSpoofedHeaders verifies a client cannot escape the
limiter by rotating X-Real-IP or X-Forwarded-For.
*/
func TestAuth_LoginThrottleIgnoresSpoofedHeaders(t *testing.T) {
	redisServer := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: redisServer.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	server := newTestServer(t, auth.NewLoginLimiter(client, 2, time.Minute))
	httpClient := newClient(t)

	allowed := 0
	for i := 0; i < 10; i++ {
		request, err := http.NewRequest(http.MethodPost, server.URL+"/api/auth/login", strings.NewReader(`{"user_id":"user-42"}`))
		require.NoError(t, err)
		request.Header.Set("Content-Type", "application/json")
		request.Header.Set(constants.HeaderXRealIP, fmt.Sprintf("10.9.9.%d", i))
		request.Header.Set(constants.HeaderXForwardedFor, fmt.Sprintf("10.8.8.%d", i))

		response, err := httpClient.Do(request)
		require.NoError(t, err)
		_ = response.Body.Close()
		if response.StatusCode == http.StatusOK {
			allowed++
		}
	}

	assert.Equal(t, 2, allowed)
	assert.Len(t, redisServer.Keys(), 1, "every attempt counts against the TCP peer")
}

/*
TestAuth_LoginThrottleBehindTrustedProxy verifies a trusted proxy's forwarded
address is used as the throttle key.
*/
func TestAuth_LoginThrottleBehindTrustedProxy(t *testing.T) {
	redisServer := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: redisServer.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	trusted := []netip.Prefix{netip.MustParsePrefix("127.0.0.0/8"), netip.MustParsePrefix("::1/128")}
	server := newProxiedTestServer(t, auth.NewLoginLimiter(client, 1, time.Minute), trusted)
	httpClient := newClient(t)

	for _, clientIP := range []string{"198.51.100.1", "198.51.100.2"} {
		request, err := http.NewRequest(http.MethodPost, server.URL+"/api/auth/login", strings.NewReader(`{"user_id":"user-42"}`))
		require.NoError(t, err)
		request.Header.Set("Content-Type", "application/json")
		request.Header.Set(constants.HeaderXRealIP, clientIP)

		response, err := httpClient.Do(request)
		require.NoError(t, err)
		_ = response.Body.Close()
		assert.Equal(t, http.StatusOK, response.StatusCode, clientIP)
	}

	assert.True(t, redisServer.Exists(constants.RedisPrefixLoginAttempt+"198.51.100.1"))
	assert.True(t, redisServer.Exists(constants.RedisPrefixLoginAttempt+"198.51.100.2"))
}
