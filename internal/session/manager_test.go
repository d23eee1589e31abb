// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/marketschool/internal/platform/constants"
	"github.com/taibuivan/marketschool/internal/platform/ctxutil"
	"github.com/taibuivan/marketschool/internal/platform/sec"
	"github.com/taibuivan/marketschool/internal/session"
	"github.com/taibuivan/marketschool/internal/session/sessiontest"
)

type harness struct {
	manager *session.Manager
	store   *sessiontest.MemoryStore
	signer  *sec.CookieSigner
	hasher  *sec.TokenHasher
	now     time.Time
}

func newHarness(t *testing.T, store session.Store) *harness {
	t.Helper()

	signer, err := sec.NewCookieSigner("cookie-secret", constants.SessionCookieIssuer)
	require.NoError(t, err)
	hasher, err := sec.NewTokenHasher("session-secret")
	require.NoError(t, err)

	memory := sessiontest.NewMemoryStore()
	if store == nil {
		store = memory
	}

	h := &harness{store: memory, signer: signer, hasher: hasher, now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	h.manager = session.NewManager(store, signer, hasher, session.Options{
		Secure: true,
		Now:    func() time.Time { return h.now },
	})
	return h
}

func (h *harness) serve(handler http.HandlerFunc, cookie *http.Cookie) *http.Response {
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	h.manager.Middleware(handler).ServeHTTP(recorder, request)
	return recorder.Result()
}

func (h *harness) login(t *testing.T, userID string) (*http.Cookie, *session.Record) {
	t.Helper()

	var record *session.Record
	response := h.serve(func(writer http.ResponseWriter, request *http.Request) {
		var err error
		record, err = h.manager.Start(request.Context(), session.StartInput{UserID: userID, IPAddress: "198.51.100.4"})
		require.NoError(t, err)
	}, nil)

	cookie := sessionCookie(response)
	require.NotNil(t, cookie, "login must issue a cookie")
	return cookie, record
}

func sessionCookie(response *http.Response) *http.Cookie {
	for _, cookie := range response.Cookies() {
		if cookie.Name == constants.SessionCookieName {
			return cookie
		}
	}
	return nil
}

/*
TestManager_NoCookie verifies anonymous requests pass through untouched.
*/
func TestManager_NoCookie(t *testing.T) {
	h := newHarness(t, nil)

	var state session.State
	response := h.serve(func(writer http.ResponseWriter, request *http.Request) {
		var record *session.Record
		record, state = h.manager.Current(request.Context())
		assert.Nil(t, record)
		assert.Nil(t, ctxutil.GetAuthUser(request.Context()))
	}, nil)

	assert.Equal(t, session.StateNoCookie, state)
	assert.Nil(t, sessionCookie(response))
}

/*
TestManager_StartIssuesCookie checks the cookie attributes and that the store
only ever sees the digest of the cookie token.
*/
func TestManager_StartIssuesCookie(t *testing.T) {
	h := newHarness(t, nil)

	cookie, record := h.login(t, "alice")

	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, 86400, cookie.MaxAge)

	token, err := h.signer.Verify(cookie.Value)
	require.NoError(t, err)
	assert.NotEqual(t, token, record.ID)
	assert.Equal(t, h.hasher.Hash(token), record.ID)

	stored, err := h.store.Load(context.Background(), record.ID, h.now)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Payload.UserID)
	assert.Equal(t, h.now.Add(24*time.Hour), stored.Expire)

	metadata, err := h.store.Metadata(context.Background(), record.ID, h.now)
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.4", metadata.IPAddress)
}

/*
TestManager_ValidCookieSlidesExpiry verifies an authenticated request renews
both the cookie and the stored expiry.
*/
func TestManager_ValidCookieSlidesExpiry(t *testing.T) {
	h := newHarness(t, nil)
	cookie, record := h.login(t, "alice")

	h.now = h.now.Add(3 * time.Hour)

	var state session.State
	response := h.serve(func(writer http.ResponseWriter, request *http.Request) {
		_, state = h.manager.Current(request.Context())
		principal := ctxutil.GetAuthUser(request.Context())
		require.NotNil(t, principal)
		assert.Equal(t, "alice", principal.UserID)
		writer.WriteHeader(http.StatusOK)
	}, cookie)

	assert.Equal(t, session.StateValid, state)

	renewed := sessionCookie(response)
	require.NotNil(t, renewed)
	assert.Equal(t, cookie.Value, renewed.Value)
	assert.Equal(t, 86400, renewed.MaxAge)

	stored, err := h.store.Load(context.Background(), record.ID, h.now)
	require.NoError(t, err)
	assert.Equal(t, h.now.Add(24*time.Hour), stored.Expire)
}

/*
TestManager_ReadOnly verifies that a read-only request neither renews the
cookie nor slides the stored expiry.
*/
func TestManager_ReadOnly(t *testing.T) {
	h := newHarness(t, nil)
	cookie, record := h.login(t, "alice")
	issuedExpire := h.now.Add(24 * time.Hour)

	h.now = h.now.Add(time.Hour)

	response := h.serve(func(writer http.ResponseWriter, request *http.Request) {
		h.manager.MarkReadOnly(request.Context())
		_, _ = writer.Write([]byte("ok"))
	}, cookie)

	assert.Nil(t, sessionCookie(response))

	stored, err := h.store.Load(context.Background(), record.ID, h.now)
	require.NoError(t, err)
	assert.Equal(t, issuedExpire, stored.Expire)
}

/*
TestManager_StaleCookies verifies that forged, unknown and expired cookies
leave the request anonymous and clear the cookie.
*/
func TestManager_StaleCookies(t *testing.T) {
	h := newHarness(t, nil)
	valid, _ := h.login(t, "alice")

	foreignSigner, err := sec.NewCookieSigner("someone-else", constants.SessionCookieIssuer)
	require.NoError(t, err)
	forged, err := foreignSigner.Sign("guessed-token")
	require.NoError(t, err)

	unknown, err := h.signer.Sign("never-issued-token")
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
		skew  time.Duration
	}{
		{name: "Garbage", value: "not-a-jwt"},
		{name: "ForeignSignature", value: forged},
		{name: "UnknownSession", value: unknown},
		{name: "Expired", value: valid.Value, skew: 25 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saved := h.now
			h.now = h.now.Add(tt.skew)
			defer func() { h.now = saved }()

			var state session.State
			response := h.serve(func(writer http.ResponseWriter, request *http.Request) {
				var record *session.Record
				record, state = h.manager.Current(request.Context())
				assert.Nil(t, record)
				assert.Nil(t, ctxutil.GetAuthUser(request.Context()))
			}, &http.Cookie{Name: constants.SessionCookieName, Value: tt.value})

			assert.Equal(t, session.StateStale, state)

			cleared := sessionCookie(response)
			require.NotNil(t, cleared)
			assert.Empty(t, cleared.Value)
			assert.Less(t, cleared.MaxAge, 0)
		})
	}
}

type failingStore struct {
	session.Store
}

func (failingStore) Load(context.Context, string, time.Time) (*session.Record, error) {
	return nil, errors.New("connection refused")
}

// createFailingStore refuses to create sessions.
type createFailingStore struct {
	session.Store
}

func (createFailingStore) Create(context.Context, *session.Record, *session.Metadata) error {
	return errors.New("connection refused")
}

/*
TestManager_FailedRegenerationClearsCookie verifies that when the replacement
session cannot be created the destroyed session is not re-issued.
*/
func TestManager_FailedRegenerationClearsCookie(t *testing.T) {
	h := newHarness(t, nil)
	cookie, first := h.login(t, "alice")

	broken := newHarness(t, createFailingStore{Store: h.store})
	broken.now = h.now

	var startErr error
	var state session.State
	response := broken.serve(func(writer http.ResponseWriter, request *http.Request) {
		_, startErr = broken.manager.Start(request.Context(), session.StartInput{UserID: "bob"})

		var record *session.Record
		record, state = broken.manager.Current(request.Context())
		assert.Nil(t, record)
	}, cookie)

	require.Error(t, startErr)
	assert.Equal(t, session.StateNoCookie, state)

	cleared := sessionCookie(response)
	require.NotNil(t, cleared, "the stale cookie must be cleared")
	assert.Less(t, cleared.MaxAge, 0)
	assert.Empty(t, cleared.Value)

	_, err := h.store.Load(context.Background(), first.ID, h.now)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Zero(t, h.store.Len())
}

/*
TestManager_StoreErrorIsAnonymous verifies that a store outage resolves to an
anonymous request without destroying the client's cookie.
*/
func TestManager_StoreErrorIsAnonymous(t *testing.T) {
	h := newHarness(t, nil)
	cookie, _ := h.login(t, "alice")

	broken := newHarness(t, failingStore{Store: h.store})

	var state session.State
	response := broken.serve(func(writer http.ResponseWriter, request *http.Request) {
		_, state = broken.manager.Current(request.Context())
	}, cookie)

	assert.Equal(t, session.StateStale, state)
	assert.Nil(t, sessionCookie(response))
}

/*
TestManager_End verifies logout destroys the row and clears the cookie.
*/
func TestManager_End(t *testing.T) {
	h := newHarness(t, nil)
	cookie, record := h.login(t, "alice")

	response := h.serve(func(writer http.ResponseWriter, request *http.Request) {
		require.NoError(t, h.manager.End(request.Context()))
	}, cookie)

	cleared := sessionCookie(response)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	_, err := h.store.Load(context.Background(), record.ID, h.now)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Zero(t, h.store.Len())
}

/*
TestManager_StartRegeneratesSession verifies that logging in over an existing
session replaces it with a new id.
*/
func TestManager_StartRegeneratesSession(t *testing.T) {
	h := newHarness(t, nil)
	cookie, first := h.login(t, "alice")

	var second *session.Record
	response := h.serve(func(writer http.ResponseWriter, request *http.Request) {
		var err error
		second, err = h.manager.Start(request.Context(), session.StartInput{UserID: "bob"})
		require.NoError(t, err)
	}, cookie)

	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)

	issued := sessionCookie(response)
	require.NotNil(t, issued)
	assert.NotEqual(t, cookie.Value, issued.Value)

	_, err := h.store.Load(context.Background(), first.ID, h.now)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Equal(t, 1, h.store.Len())
}

/*
TestManager_SetPersistsPayload verifies that payload changes are saved after the handler.
*/
func TestManager_SetPersistsPayload(t *testing.T) {
	h := newHarness(t, nil)
	cookie, record := h.login(t, "alice")

	h.serve(func(writer http.ResponseWriter, request *http.Request) {
		require.NoError(t, h.manager.Set(request.Context(), "theme", "dark"))
	}, cookie)

	stored, err := h.store.Load(context.Background(), record.ID, h.now)
	require.NoError(t, err)
	assert.Equal(t, "dark", stored.Payload.Data["theme"])
}

/*
TestManager_Refresh covers explicit renewal with and without a session.
*/
func TestManager_Refresh(t *testing.T) {
	h := newHarness(t, nil)

	h.serve(func(writer http.ResponseWriter, request *http.Request) {
		_, err := h.manager.Refresh(request.Context())
		assert.ErrorIs(t, err, session.ErrNotFound)
	}, nil)

	cookie, record := h.login(t, "alice")
	h.now = h.now.Add(10 * time.Hour)

	response := h.serve(func(writer http.ResponseWriter, request *http.Request) {
		refreshed, err := h.manager.Refresh(request.Context())
		require.NoError(t, err)
		assert.Equal(t, h.now.Add(24*time.Hour), refreshed.Expire)
	}, cookie)

	assert.NotNil(t, sessionCookie(response))

	stored, err := h.store.Load(context.Background(), record.ID, h.now)
	require.NoError(t, err)
	assert.Equal(t, h.now.Add(24*time.Hour), stored.Expire)
}

/*
TestManager_OperationsWithoutMiddleware verifies the manager refuses to act
on a context it did not prepare.
*/
func TestManager_OperationsWithoutMiddleware(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.manager.Start(ctx, session.StartInput{UserID: "alice"})
	assert.Error(t, err)
	assert.Error(t, h.manager.End(ctx))

	record, state := h.manager.Current(ctx)
	assert.Nil(t, record)
	assert.Equal(t, session.StateNoCookie, state)
}
