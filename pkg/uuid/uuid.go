// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package uuid generates time-ordered UUIDv7 identifiers.

They are used for metadata primary keys and request correlation ids, where
insertion order doubles as creation order and keeps B-tree indexes compact.
*/
package uuid

import "github.com/google/uuid"

// New generates a new UUIDv7 string.
//
// It panics only if the OS random source is unavailable, which is an
// unrecoverable system-level error.
func New() string {
	return uuid.Must(uuid.NewV7()).String()
}
