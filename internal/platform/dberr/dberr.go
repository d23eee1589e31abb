// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
package dberr

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taibuivan/marketschool/internal/platform/apperr"
)

var (
	// ErrNotFound is a standard error returned when a queried row doesn't exist.
	ErrNotFound = apperr.NotFound("Resource")
)

// Wrap inspects a database error and wraps it into a meaningful [apperr.AppError].
// It hides internal database details from the client while classifying the error type.
func Wrap(err error, action string) error {
	if err == nil {
		return nil
	}

	// 1. Not Found mapping
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	// 2. SQLSTATE classification
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.UniqueViolation:
			conflict := apperr.Conflict(action + ": resource already exists")
			conflict.Cause = err
			return conflict
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgErr.Code == pgerrcode.AdminShutdown,
			pgErr.Code == pgerrcode.CannotConnectNow:
			return apperr.ServiceUnavailable("Database temporarily unavailable", err)
		}
	}

	// 3. Connection establishment failures never reach the server, so they carry no SQLSTATE.
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return apperr.ServiceUnavailable("Database temporarily unavailable", err)
	}

	// 4. Unknown query errors become Internal Server Errors
	return apperr.Internal(err)
}

// IsAlreadyExists reports whether err means the target object is already present
// (duplicate table, index, schema, object or unique row).
func IsAlreadyExists(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}

	switch pgErr.Code {
	case pgerrcode.DuplicateTable,
		pgerrcode.DuplicateObject,
		pgerrcode.DuplicateSchema,
		pgerrcode.DuplicateColumn,
		pgerrcode.UniqueViolation:
		return true
	}
	return false
}
