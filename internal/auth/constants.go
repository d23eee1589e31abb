// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

// # Login Constraints

const (
	// UserIDMaxLength caps identifiers accepted at login.
	UserIDMaxLength = 128
)

// # Payload Fields

const (
	FieldUserID  = "user_id"
	FieldIDToken = "id_token"
)
