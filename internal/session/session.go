// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package session implements durable, cookie-addressed server sessions.

A session is a row in the relational store keyed by the digest of an opaque,
unguessable token. The token travels to the browser inside a signed,
HttpOnly cookie; the row carries the payload and a sliding expiry.

Architecture:

  - Store: persistence contract ([Store]) with a PostgreSQL implementation.
  - Manager: per-request state machine, cookie issuance and sliding renewal.
  - Sweeper: background purge of expired rows.

Expired rows are inert. Every read compares expire with the current instant,
so a row that the sweeper has not reached yet is never trusted.
*/
package session

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no live session exists for an id. Expired
	// rows are reported the same way as missing rows.
	ErrNotFound = errors.New("session: not found or expired")

	// ErrExists is returned by [Store.Create] when the id is already taken.
	ErrExists = errors.New("session: id already exists")
)

// Payload is the structured data stored in the sess column.
type Payload struct {
	// UserID is the authenticated user the session belongs to.
	UserID string `json:"userId"`

	// Data holds the additional fields supplied at login.
	Data map[string]any `json:"data,omitempty"`
}

// Record is one row of the session table.
type Record struct {
	// ID is the stored key (digest of the cookie token).
	ID      string
	Payload Payload
	Expire  time.Time
}

// Live reports whether the record is still valid at now.
func (record *Record) Live(now time.Time) bool {
	return now.Before(record.Expire)
}

// Metadata is the audit row kept alongside every live session.
type Metadata struct {
	ID           string
	SessionID    string
	UserID       string
	CreatedAt    time.Time
	LastActivity time.Time
	IPAddress    string
	UserAgent    string
}

// # Request States

// State is the outcome of resolving the session cookie for one request.
type State int

const (
	// StateNoCookie means the request carried no session cookie.
	StateNoCookie State = iota

	// StateValid means the cookie resolved to a live session.
	StateValid

	// StateStale means a cookie was present but was forged, unknown or expired.
	StateStale
)

// String implements fmt.Stringer for log output.
func (state State) String() string {
	switch state {
	case StateNoCookie:
		return "no-cookie"
	case StateValid:
		return "cookie-present-valid"
	case StateStale:
		return "cookie-present-expired-or-unknown"
	default:
		return "unknown"
	}
}
