// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package ctxutil provides helpers for interacting with values stored in [context.Context].
package ctxutil

import (
	"context"
	"log/slog"
	"sync"

	"github.com/taibuivan/marketschool/internal/platform/ctxkey"
	"github.com/taibuivan/marketschool/internal/platform/sec"
)

// # Request Tracing

// WithRequestID returns a new context with the provided request ID attached.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxkey.KeyRequestID, id)
}

// GetRequestID retrieves the request ID from the context.
// Returns an empty string if not found.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxkey.KeyRequestID).(string)
	return id
}

// WithClientIP returns a new context carrying the resolved client address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxkey.KeyClientIP, ip)
}

// GetClientIP retrieves the resolved client address, or "" when the ClientIP
// middleware did not run.
func GetClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(ctxkey.KeyClientIP).(string)
	return ip
}

// # Structured Logging

// WithLogger returns a new context with the provided logger attached.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxkey.KeyLogger, logger)
}

// GetLogger retrieves the logger from the context.
// If no logger is found, it returns the global default logger.
func GetLogger(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(ctxkey.KeyLogger).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return logger
}

// # Identity & Access

// authSlot is shared by every context derived from the request context.
type authSlot struct {
	mu        sync.Mutex
	principal *sec.Principal
}

// WithAuthSlot installs an empty identity slot. Outer middleware (the request
// logger) installs it so it can read the principal after the handler returns.
func WithAuthSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxkey.KeyAuthSlot, &authSlot{})
}

// SetAuthSlot records user in the identity slot installed by [WithAuthSlot].
// It is a no-op when no slot is installed.
func SetAuthSlot(ctx context.Context, user *sec.Principal) {
	if slot, ok := ctx.Value(ctxkey.KeyAuthSlot).(*authSlot); ok {
		slot.mu.Lock()
		slot.principal = user
		slot.mu.Unlock()
	}
}

// WithAuthUser returns a new context with the provided principal attached and
// records it in the identity slot when one is installed.
func WithAuthUser(ctx context.Context, user *sec.Principal) context.Context {
	SetAuthSlot(ctx, user)
	return context.WithValue(ctx, ctxkey.KeyUser, user)
}

// GetAuthUser retrieves the [*sec.Principal] from the [context.Context],
// falling back to the identity slot. Returns nil for anonymous requests.
func GetAuthUser(ctx context.Context) *sec.Principal {
	if principal, ok := ctx.Value(ctxkey.KeyUser).(*sec.Principal); ok {
		return principal
	}
	if slot, ok := ctx.Value(ctxkey.KeyAuthSlot).(*authSlot); ok {
		slot.mu.Lock()
		defer slot.mu.Unlock()
		return slot.principal
	}
	return nil
}
