// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taibuivan/marketschool/internal/platform/migration"
	"github.com/taibuivan/marketschool/internal/platform/postgres"
	"github.com/taibuivan/marketschool/internal/session"
	"github.com/taibuivan/marketschool/internal/session/sessiontest"
)

/*
TestPostgresStore runs the store conformance suite against a real database.
Set TEST_DATABASE_URL to a disposable database to enable it.
*/
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, migration.RunUp(dsn, logger))

	pool, err := postgres.NewPool(context.Background(), dsn, logger)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := session.NewPostgresStore(pool)
	sessiontest.RunStoreTests(t, func(*testing.T) session.Store {
		return store
	})
}
