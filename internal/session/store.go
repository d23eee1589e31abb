// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"time"
)

// # Session Data Access

// Store defines the persistence contract for sessions and their metadata rows.
//
// Implementations must be safe for concurrent use and must rely on the
// backing store's own atomic upsert/delete semantics rather than on
// application locks. Every method that reads takes the caller's notion of
// "now" so that expiry checks are explicit.
type Store interface {

	/*
		Load returns the live session with the given id.

		Returns:
		  - *Record: Hydrated session
		  - error: ErrNotFound when missing or expired at now
	*/
	Load(ctx context.Context, sid string, now time.Time) (*Record, error)

	/*
		Create inserts a brand-new session and its metadata row atomically.

		Returns:
		  - error: ErrExists when the id is already taken
	*/
	Create(ctx context.Context, record *Record, metadata *Metadata) error

	/*
		Save upserts the payload. On conflict the stored expiry becomes the later
		of the stored and supplied values; an expired row is never revived.

		Returns:
		  - error: ErrNotFound when the existing row has already expired
	*/
	Save(ctx context.Context, record *Record, now time.Time) error

	/*
		Touch slides the expiry forward (never backward) and bumps last activity.

		Returns:
		  - error: ErrNotFound when missing or expired at now
	*/
	Touch(ctx context.Context, sid string, expire time.Time, now time.Time) error

	/*
		Destroy deletes the session and, by cascade, its metadata row.
		Destroying a missing session is not an error.
	*/
	Destroy(ctx context.Context, sid string) error

	/*
		Metadata returns the audit row of a live session.

		Returns:
		  - error: ErrNotFound when the session is missing or expired at now
	*/
	Metadata(ctx context.Context, sid string, now time.Time) (*Metadata, error)

	/*
		DeleteExpired physically removes every session whose expiry is at or
		before now and reports how many rows were removed.
	*/
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
