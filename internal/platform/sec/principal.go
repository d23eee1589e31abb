// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives and identity carriers.
//
// # Architecture
//
// This package isolates security-sensitive code (token minting, keyed digests,
// cookie signing) from the domain logic. Domain packages depend on the small
// types exposed here rather than on the underlying crypto libraries.
package sec

// Principal is the authenticated identity attached to a request by the
// session middleware.
type Principal struct {
	// UserID is the identifier stored in the session payload.
	UserID string

	// SessionKey is the stored (digested) session id, never the cookie token.
	SessionKey string
}
