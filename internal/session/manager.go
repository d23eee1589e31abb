// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/taibuivan/marketschool/internal/platform/constants"
	"github.com/taibuivan/marketschool/internal/platform/ctxutil"
	"github.com/taibuivan/marketschool/internal/platform/sec"
)

const (
	// mintAttempts bounds retries when a freshly minted id collides.
	mintAttempts = 3

	// commitTimeout bounds the post-handler expiry write.
	commitTimeout = 5 * time.Second
)

var (
	errNoMiddleware = errors.New("session: manager middleware is not installed on this route")
	errHeadersSent  = errors.New("session: response headers already sent")
)

// Options configures cookie issuance. Zero values fall back to the platform constants.
type Options struct {
	CookieName string
	CookiePath string
	TTL        time.Duration

	// Secure marks the cookie as HTTPS-only; set on TLS deployments.
	Secure bool

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Manager owns the session cookie: it resolves it on every request, mints it
// on login, renews it on activity and clears it on logout or when stale.
type Manager struct {
	store   Store
	signer  *sec.CookieSigner
	hasher  *sec.TokenHasher
	options Options
}

// NewManager constructs a [Manager].
func NewManager(store Store, signer *sec.CookieSigner, hasher *sec.TokenHasher, options Options) *Manager {
	if options.CookieName == "" {
		options.CookieName = constants.SessionCookieName
	}
	if options.CookiePath == "" {
		options.CookiePath = constants.SessionCookiePath
	}
	if options.TTL <= 0 {
		options.TTL = constants.SessionTTL
	}
	if options.Now == nil {
		options.Now = time.Now
	}

	return &Manager{store: store, signer: signer, hasher: hasher, options: options}
}

// # Request State

type cookieAction int

const (
	cookieKeep cookieAction = iota
	cookieRenew
	cookieIssue
	cookieClear
)

// requestState is the per-request session state machine.
type requestState struct {
	mu sync.Mutex

	state       State
	record      *Record
	cookieValue string
	action      cookieAction

	// dirty means the payload changed and must be saved, not merely touched.
	dirty bool
	// readOnly suppresses sliding renewal for this request.
	readOnly bool
	// settled means the expiry was already written (login, refresh, logout).
	settled bool

	headerWritten bool
}

type contextKey struct{}

func stateFrom(ctx context.Context) (*requestState, bool) {
	state, ok := ctx.Value(contextKey{}).(*requestState)
	return state, ok
}

// # Middleware

// Middleware resolves the session cookie before the handler runs and commits
// the sliding expiry after it returns.
//
// Resolution never fails the request: forged, unknown and expired cookies,
// as well as store errors, all leave the request unauthenticated.
func (manager *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		state := manager.resolve(request)

		ctx := context.WithValue(request.Context(), contextKey{}, state)
		if state.record != nil {
			ctx = ctxutil.WithAuthUser(ctx, principalOf(state.record))
		}

		wrapped := &cookieWriter{ResponseWriter: writer}
		wrapped.beforeHeader = func() { manager.writeCookie(writer, state) }

		next.ServeHTTP(wrapped, request.WithContext(ctx))

		// Handlers that write nothing still get their cookie before net/http
		// flushes the implicit 200.
		wrapped.once.Do(wrapped.beforeHeader)

		manager.commit(ctx, state)
	})
}

// resolve runs the cookie state machine for one request.
func (manager *Manager) resolve(request *http.Request) *requestState {
	state := &requestState{state: StateNoCookie}

	cookie, err := request.Cookie(manager.options.CookieName)
	if err != nil || cookie.Value == "" {
		return state
	}

	logger := ctxutil.GetLogger(request.Context())

	token, err := manager.signer.Verify(cookie.Value)
	if err != nil {
		logger.Debug("session_cookie_rejected", slog.String("reason", "signature"))
		state.state = StateStale
		state.action = cookieClear
		return state
	}

	record, err := manager.store.Load(request.Context(), manager.hasher.Hash(token), manager.options.Now())
	switch {
	case errors.Is(err, ErrNotFound):
		logger.Debug("session_cookie_rejected", slog.String("reason", "unknown_or_expired"))
		state.state = StateStale
		state.action = cookieClear
	case err != nil:
		// Keep the cookie: the session may well be alive once the store recovers.
		logger.Error("session_load_failed", slog.Any("error", err))
		state.state = StateStale
	default:
		state.state = StateValid
		state.record = record
		state.cookieValue = cookie.Value
		state.action = cookieRenew
	}

	return state
}

// writeCookie emits the Set-Cookie header decided by the state machine. It
// runs exactly once, right before the response headers are sent.
func (manager *Manager) writeCookie(writer http.ResponseWriter, state *requestState) {
	state.mu.Lock()
	defer state.mu.Unlock()

	state.headerWritten = true

	switch state.action {
	case cookieRenew:
		if state.readOnly {
			return
		}
		http.SetCookie(writer, manager.cookie(state.cookieValue))
	case cookieIssue:
		http.SetCookie(writer, manager.cookie(state.cookieValue))
	case cookieClear:
		http.SetCookie(writer, manager.expiredCookie())
	}
}

// commit slides the stored expiry after the handler has run.
func (manager *Manager) commit(ctx context.Context, state *requestState) {
	state.mu.Lock()
	if state.state != StateValid || state.record == nil || state.readOnly || state.settled {
		state.mu.Unlock()
		return
	}
	record := *state.record
	dirty := state.dirty
	state.settled = true
	state.mu.Unlock()

	// The write must land even if the client went away mid-response.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	now := manager.options.Now()
	expire := now.Add(manager.options.TTL)

	var err error
	if dirty {
		record.Expire = expire
		err = manager.store.Save(storeCtx, &record, now)
	} else {
		err = manager.store.Touch(storeCtx, record.ID, expire, now)
	}

	logger := ctxutil.GetLogger(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		// Destroyed or expired by a concurrent request; nothing to slide.
		logger.Debug("session_commit_skipped", slog.String("reason", "gone"))
	case err != nil:
		logger.Error("session_commit_failed", slog.Any("error", err))
	}
}

// # Operations

// StartInput describes a session to create on successful login.
type StartInput struct {
	UserID    string
	Data      map[string]any
	IPAddress string
	UserAgent string
}

// Start mints a new session for the request and schedules the cookie.
//
// Any session the request arrived with is destroyed first, so a login always
// yields a fresh, unguessable id.
func (manager *Manager) Start(ctx context.Context, input StartInput) (*Record, error) {
	state, ok := stateFrom(ctx)
	if !ok {
		return nil, errNoMiddleware
	}

	state.mu.Lock()
	if state.headerWritten {
		state.mu.Unlock()
		return nil, errHeadersSent
	}
	previous := state.record
	state.mu.Unlock()

	if previous != nil {
		if err := manager.store.Destroy(ctx, previous.ID); err != nil {
			return nil, fmt.Errorf("session: failed to drop previous session: %w", err)
		}

		// The old session is gone; until a new one exists the request is
		// anonymous and its cookie must be cleared.
		state.mu.Lock()
		state.state = StateNoCookie
		state.record = nil
		state.action = cookieClear
		state.settled = true
		state.mu.Unlock()
		ctxutil.SetAuthSlot(ctx, nil)
	}

	now := manager.options.Now()

	for attempt := 0; attempt < mintAttempts; attempt++ {
		token, err := sec.GenerateSecureToken(constants.SessionTokenLength)
		if err != nil {
			return nil, err
		}

		cookieValue, err := manager.signer.Sign(token)
		if err != nil {
			return nil, err
		}

		record := &Record{
			ID:      manager.hasher.Hash(token),
			Payload: Payload{UserID: input.UserID, Data: input.Data},
			Expire:  now.Add(manager.options.TTL),
		}
		metadata := &Metadata{
			UserID:       input.UserID,
			CreatedAt:    now,
			LastActivity: now,
			IPAddress:    input.IPAddress,
			UserAgent:    input.UserAgent,
		}

		err = manager.store.Create(ctx, record, metadata)
		if errors.Is(err, ErrExists) {
			continue
		}
		if err != nil {
			return nil, err
		}

		state.mu.Lock()
		state.state = StateValid
		state.record = record
		state.cookieValue = cookieValue
		state.action = cookieIssue
		state.readOnly = false
		state.dirty = false
		state.settled = true
		state.mu.Unlock()

		ctxutil.SetAuthSlot(ctx, principalOf(record))

		created := *record
		return &created, nil
	}

	return nil, ErrExists
}

// End destroys the request's session and schedules the cookie for removal.
// It is a no-op when there is no session.
func (manager *Manager) End(ctx context.Context) error {
	state, ok := stateFrom(ctx)
	if !ok {
		return errNoMiddleware
	}

	state.mu.Lock()
	record := state.record
	state.mu.Unlock()

	if record != nil {
		if err := manager.store.Destroy(ctx, record.ID); err != nil {
			return err
		}
	}

	state.mu.Lock()
	state.state = StateNoCookie
	state.record = nil
	state.settled = true
	if !state.headerWritten {
		state.action = cookieClear
	}
	state.mu.Unlock()

	return nil
}

// Refresh explicitly slides the request's session expiry.
//
// Returns [ErrNotFound] when there is no live session.
func (manager *Manager) Refresh(ctx context.Context) (*Record, error) {
	state, ok := stateFrom(ctx)
	if !ok {
		return nil, errNoMiddleware
	}

	state.mu.Lock()
	record := state.record
	state.mu.Unlock()

	if record == nil {
		return nil, ErrNotFound
	}

	now := manager.options.Now()
	expire := now.Add(manager.options.TTL)

	if err := manager.store.Touch(ctx, record.ID, expire, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			state.mu.Lock()
			state.state = StateStale
			state.record = nil
			state.action = cookieClear
			state.mu.Unlock()
		}
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if expire.After(state.record.Expire) {
		state.record.Expire = expire
	}
	state.readOnly = false
	state.settled = true

	refreshed := *state.record
	return &refreshed, nil
}

// Current returns the request's live session, if any, and the cookie state.
func (manager *Manager) Current(ctx context.Context) (*Record, State) {
	state, ok := stateFrom(ctx)
	if !ok {
		return nil, StateNoCookie
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.record == nil {
		return nil, state.state
	}
	current := *state.record
	return &current, state.state
}

// MarkReadOnly stops this request from sliding the expiry or renewing the cookie.
func (manager *Manager) MarkReadOnly(ctx context.Context) {
	if state, ok := stateFrom(ctx); ok {
		state.mu.Lock()
		state.readOnly = true
		state.mu.Unlock()
	}
}

// Set stores a value in the session payload; the row is saved after the handler.
func (manager *Manager) Set(ctx context.Context, key string, value any) error {
	state, ok := stateFrom(ctx)
	if !ok {
		return errNoMiddleware
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.record == nil {
		return ErrNotFound
	}

	data := make(map[string]any, len(state.record.Payload.Data)+1)
	for k, v := range state.record.Payload.Data {
		data[k] = v
	}
	data[key] = value

	state.record.Payload.Data = data
	state.dirty = true
	return nil
}

// # Cookie Helpers

func (manager *Manager) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     manager.options.CookieName,
		Value:    value,
		Path:     manager.options.CookiePath,
		MaxAge:   int(manager.options.TTL / time.Second),
		Expires:  manager.options.Now().Add(manager.options.TTL),
		Secure:   manager.options.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func (manager *Manager) expiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     manager.options.CookieName,
		Value:    "",
		Path:     manager.options.CookiePath,
		MaxAge:   -1,
		Secure:   manager.options.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func principalOf(record *Record) *sec.Principal {
	return &sec.Principal{UserID: record.Payload.UserID, SessionKey: record.ID}
}

// cookieWriter runs beforeHeader once, just before the first header or body write.
type cookieWriter struct {
	http.ResponseWriter
	once         sync.Once
	beforeHeader func()
}

func (writer *cookieWriter) WriteHeader(statusCode int) {
	writer.once.Do(writer.beforeHeader)
	writer.ResponseWriter.WriteHeader(statusCode)
}

func (writer *cookieWriter) Write(body []byte) (int, error) {
	writer.once.Do(writer.beforeHeader)
	return writer.ResponseWriter.Write(body)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (writer *cookieWriter) Unwrap() http.ResponseWriter {
	return writer.ResponseWriter
}
