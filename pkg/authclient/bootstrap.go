// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authclient

import (
	"context"
	"errors"
	"net/url"
	"regexp"
)

// Legacy identity hand-off. Older front ends pass the user id in the page URL
// or post it from another window; both are routed into [Store.Login].

const (
	// BootstrapParam is the query parameter carrying the user id.
	BootstrapParam = "user_id"

	// MessageTypeLogin marks a cross-window login message.
	MessageTypeLogin = "marketschool:login"

	maxUserIDLength = 128
)

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._@:-]+$`)

// ErrInvalidUserID is returned for identifiers the server would reject anyway.
var ErrInvalidUserID = errors.New("authclient: invalid user id")

// Message is a cross-window message.
type Message struct {
	Type   string
	Origin string
	UserID string
}

func validUserID(userID string) bool {
	return len(userID) <= maxUserIDLength && userIDPattern.MatchString(userID)
}

/*
BootstrapFromURL logs in with the user id carried in the URL query, if any.

Description: The returned URL has the parameter removed and must replace the
current location so that the identifier is not replayed. Without the
parameter the URL is returned unchanged and nothing happens.
*/
func (store *Store) BootstrapFromURL(ctx context.Context, location *url.URL) (*url.URL, error) {
	query := location.Query()
	if !query.Has(BootstrapParam) {
		return location, nil
	}
	userID := query.Get(BootstrapParam)

	query.Del(BootstrapParam)
	scrubbed := *location
	scrubbed.RawQuery = query.Encode()

	if !validUserID(userID) {
		store.set(State{Status: StatusInvalidToken})
		return &scrubbed, ErrInvalidUserID
	}

	return &scrubbed, store.Login(ctx, userID, nil)
}

/*
Listen routes login messages into [Store.Login] until ctx is done or
messages is closed.

Description: Messages of another type, from an untrusted origin (when
[WithTrustedOrigin] is set) or with a malformed id are dropped. Each message
is consumed once.
*/
func (store *Store) Listen(ctx context.Context, messages <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-messages:
			if !ok {
				return
			}
			if message.Type != MessageTypeLogin {
				continue
			}
			if store.trustedOrigin != "" && message.Origin != store.trustedOrigin {
				continue
			}
			if !validUserID(message.UserID) {
				store.set(State{Status: StatusInvalidToken})
				continue
			}
			_ = store.Login(ctx, message.UserID, nil)
		}
	}
}
