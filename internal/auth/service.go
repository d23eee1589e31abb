// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the session-backed login flow.

It accepts a user identifier, delegates credential checking to an identity
source, and binds the result to a server-side session through the session
manager.

Architecture:

  - Service: Login, Logout, Verify and Refresh use cases.
  - IdentityVerifier: passthrough, or OpenID Connect ID token verification.
  - LoginLimiter: Redis-backed attempt counter per client IP.
  - Handler: JSON endpoints mounted under /api/auth.
*/
package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/taibuivan/marketschool/internal/platform/apperr"
	"github.com/taibuivan/marketschool/internal/platform/ctxutil"
	"github.com/taibuivan/marketschool/internal/platform/validate"
	"github.com/taibuivan/marketschool/internal/session"
)

// # Contracts & Types

// SessionManager is the subset of [session.Manager] the service drives.
type SessionManager interface {
	Start(ctx context.Context, input session.StartInput) (*session.Record, error)
	End(ctx context.Context) error
	Refresh(ctx context.Context) (*session.Record, error)
	Current(ctx context.Context) (*session.Record, session.State)
	MarkReadOnly(ctx context.Context)
}

// Service implements the authentication use cases.
type Service struct {
	sessions SessionManager
	identity IdentityVerifier
	throttle Throttle
}

// NewService constructs a new [Service]. A nil throttle disables login throttling.
func NewService(sessions SessionManager, identity IdentityVerifier, throttle Throttle) *Service {
	return &Service{sessions: sessions, identity: identity, throttle: throttle}
}

// Identity is the authenticated user as reported to clients.
type Identity struct {
	UserID string `json:"userId"`
}

// # Login

// LoginInput holds a login attempt.
type LoginInput struct {
	UserID string

	// Credential is the proof handed to the identity source (an ID token).
	Credential string

	// Additional is copied into the session payload.
	Additional map[string]any

	IPAddress string
	UserAgent string
}

/*
Login validates the attempt, checks it with the identity source and binds a
fresh session to the request.

Returns:
  - *Identity: Authenticated user
  - error: VALIDATION_ERROR, RATE_LIMITED, INVALID_CREDENTIALS or INTERNAL_ERROR
*/
func (service *Service) Login(ctx context.Context, input LoginInput) (*Identity, error) {
	validator := &validate.Validator{}
	validator.Required(FieldUserID, input.UserID).
		MaxLen(FieldUserID, input.UserID, UserIDMaxLength).
		Identifier(FieldUserID, input.UserID)

	if err := validator.Err(); err != nil {
		return nil, err
	}

	if err := service.checkThrottle(ctx, input.IPAddress); err != nil {
		return nil, err
	}

	userID, err := service.identity.VerifyIdentity(ctx, input.UserID, input.Credential)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			ctxutil.GetLogger(ctx).Info("auth_login_rejected", slog.Any("reason", err))
			return nil, apperr.InvalidCredentials("Invalid login credentials")
		}
		return nil, apperr.ServiceUnavailable("Identity provider unavailable", err)
	}

	record, err := service.sessions.Start(ctx, session.StartInput{
		UserID:    userID,
		Data:      input.Additional,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	ctxutil.GetLogger(ctx).Info("auth_login_succeeded", slog.String("user_id", userID))

	return &Identity{UserID: record.Payload.UserID}, nil
}

// checkThrottle applies the login limiter. Redis outages fail open: the
// counters are advisory and must not lock every user out.
func (service *Service) checkThrottle(ctx context.Context, key string) error {
	if service.throttle == nil {
		return nil
	}

	err := service.throttle.Allow(ctx, key)
	if err == nil {
		return nil
	}

	var limited *RateLimitError
	if errors.As(err, &limited) {
		seconds := int(limited.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		return apperr.RateLimited(seconds)
	}

	ctxutil.GetLogger(ctx).Warn("auth_login_throttle_unavailable", slog.Any("error", err))
	return nil
}

// # Session Lifecycle

// Logout destroys the current session. Without a session it is a no-op.
func (service *Service) Logout(ctx context.Context) error {
	if err := service.sessions.End(ctx); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

/*
Verify reports the user bound to the current session.

Description: Read-only. The request neither slides the stored expiry nor
renews the cookie.

Returns:
  - *Identity: Authenticated user
  - error: UNAUTHORIZED when there is no live session
*/
func (service *Service) Verify(ctx context.Context) (*Identity, error) {
	service.sessions.MarkReadOnly(ctx)

	record, _ := service.sessions.Current(ctx)
	if record == nil {
		return nil, apperr.Unauthorized("Not authenticated")
	}
	return &Identity{UserID: record.Payload.UserID}, nil
}

/*
Refresh explicitly slides the current session's expiry.

Returns:
  - error: NO_SESSION when there is no live session
*/
func (service *Service) Refresh(ctx context.Context) (*Identity, error) {
	record, err := service.sessions.Refresh(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, apperr.NoActiveSession()
		}
		return nil, apperr.Internal(err)
	}
	return &Identity{UserID: record.Payload.UserID}, nil
}
