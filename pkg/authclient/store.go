// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authclient

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Status is the cached authentication status.
type Status string

const (
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
	StatusInvalidToken    Status = "invalid_token"
)

// State is a snapshot of the store. UserID is empty unless authenticated.
type State struct {
	Status Status
	UserID string
}

// API is the server contract the store drives; [*Client] implements it.
type API interface {
	Login(ctx context.Context, userID string, additional map[string]any) (string, error)
	Logout(ctx context.Context) error
	Verify(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
}

// Store caches the auth status of one client process.
//
// State only changes after the server has answered: the store never reports
// an identity the server has not confirmed.
type Store struct {
	api   API
	group singleflight.Group

	// notifyMu serialises state changes with their notifications so that
	// subscribers observe changes in order.
	notifyMu sync.Mutex

	mu          sync.Mutex
	state       State
	generation  uint64
	subscribers map[uint64]func(State)
	nextID      uint64

	trustedOrigin string
}

// Option configures a [Store].
type Option func(*Store)

// WithTrustedOrigin restricts [Store.Listen] to messages from origin.
func WithTrustedOrigin(origin string) Option {
	return func(store *Store) { store.trustedOrigin = origin }
}

// NewStore creates a [Store] in the loading state.
func NewStore(api API, options ...Option) *Store {
	store := &Store{
		api:         api,
		state:       State{Status: StatusLoading},
		subscribers: make(map[uint64]func(State)),
	}
	for _, option := range options {
		option(store)
	}
	return store
}

// State returns the current snapshot.
func (store *Store) State() State {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.state
}

/*
Subscribe registers fn for state changes.

Description: fn is called synchronously with the current state before
Subscribe returns, then once per change. fn must not call Login, Logout,
Init, Refresh or Subscribe. The returned func removes the subscription.
*/
func (store *Store) Subscribe(fn func(State)) func() {
	store.notifyMu.Lock()
	defer store.notifyMu.Unlock()

	store.mu.Lock()
	id := store.nextID
	store.nextID++
	store.subscribers[id] = fn
	current := store.state
	store.mu.Unlock()

	fn(current)

	return func() {
		store.mu.Lock()
		delete(store.subscribers, id)
		store.mu.Unlock()
	}
}

/*
Init verifies the session with the server.

Description: Concurrent callers share one in-flight verify. Failures of any
kind demote the store to unauthenticated. A login or logout that completes
while the verify is in flight wins over the verify result.
*/
func (store *Store) Init(ctx context.Context) State {
	store.mu.Lock()
	generation := store.generation
	store.mu.Unlock()

	result, _, _ := store.group.Do("init", func() (any, error) {
		userID, err := store.api.Verify(ctx)
		if err != nil {
			return State{Status: StatusUnauthenticated}, nil
		}
		return State{Status: StatusAuthenticated, UserID: userID}, nil
	})

	store.setIfCurrent(generation, result.(State))
	return store.State()
}

// Login authenticates with the server. A rejected login moves the store to
// invalid_token; a failed one to unauthenticated.
func (store *Store) Login(ctx context.Context, userID string, additional map[string]any) error {
	confirmed, err := store.api.Login(ctx, userID, additional)
	if err != nil {
		var apiError *APIError
		if errors.As(err, &apiError) && apiError.Rejected() {
			store.set(State{Status: StatusInvalidToken})
		} else {
			store.set(State{Status: StatusUnauthenticated})
		}
		return err
	}

	store.set(State{Status: StatusAuthenticated, UserID: confirmed})
	return nil
}

// Logout ends the server session. The store keeps its state if the call fails.
func (store *Store) Logout(ctx context.Context) error {
	if err := store.api.Logout(ctx); err != nil {
		return err
	}
	store.set(State{Status: StatusUnauthenticated})
	return nil
}

// Refresh slides the server session. Any failure demotes the store to
// unauthenticated.
func (store *Store) Refresh(ctx context.Context) State {
	if err := store.api.Refresh(ctx); err != nil {
		store.set(State{Status: StatusUnauthenticated})
	}
	return store.State()
}

func (store *Store) set(next State) {
	store.notifyMu.Lock()
	defer store.notifyMu.Unlock()

	store.mu.Lock()
	store.generation++
	store.mu.Unlock()

	store.publish(next)
}

// setIfCurrent applies next only when no login or logout landed since generation.
func (store *Store) setIfCurrent(generation uint64, next State) {
	store.notifyMu.Lock()
	defer store.notifyMu.Unlock()

	store.mu.Lock()
	stale := store.generation != generation
	store.mu.Unlock()

	if !stale {
		store.publish(next)
	}
}

// publish stores next and notifies subscribers. Callers hold notifyMu.
func (store *Store) publish(next State) {
	store.mu.Lock()
	if store.state == next {
		store.mu.Unlock()
		return
	}
	store.state = next

	ids := make([]uint64, 0, len(store.subscribers))
	for id := range store.subscribers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	subscribers := make([]func(State), 0, len(ids))
	for _, id := range ids {
		subscribers = append(subscribers, store.subscribers[id])
	}
	store.mu.Unlock()

	for _, fn := range subscribers {
		fn(next)
	}
}
