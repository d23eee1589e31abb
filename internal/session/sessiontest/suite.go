// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sessiontest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/marketschool/internal/session"
	"github.com/taibuivan/marketschool/pkg/uuid"
)

// Factory returns a store for one subtest. Stores may be shared between
// subtests: every case uses fresh ids.
type Factory func(t *testing.T) session.Store

// RunStoreTests runs the [session.Store] conformance suite.
func RunStoreTests(t *testing.T, factory Factory) {
	t.Helper()

	// Postgres keeps microsecond precision.
	base := time.Now().UTC().Truncate(time.Microsecond)

	newRecord := func(userID string, expire time.Time) *session.Record {
		return &session.Record{
			ID:      "sid-" + uuid.New(),
			Payload: session.Payload{UserID: userID, Data: map[string]any{"role": "student"}},
			Expire:  expire,
		}
	}

	create := func(t *testing.T, store session.Store, record *session.Record) {
		t.Helper()
		err := store.Create(context.Background(), record, &session.Metadata{
			UserID:       record.Payload.UserID,
			CreatedAt:    base,
			LastActivity: base,
			IPAddress:    "203.0.113.7",
			UserAgent:    "suite/1.0",
		})
		require.NoError(t, err)
	}

	t.Run("CreateThenLoad", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		record := newRecord("alice", base.Add(time.Hour))
		create(t, store, record)

		loaded, err := store.Load(ctx, record.ID, base)
		require.NoError(t, err)
		assert.Equal(t, record.ID, loaded.ID)
		assert.Equal(t, "alice", loaded.Payload.UserID)
		assert.Equal(t, "student", loaded.Payload.Data["role"])
		assert.WithinDuration(t, record.Expire, loaded.Expire, time.Microsecond)

		metadata, err := store.Metadata(ctx, record.ID, base)
		require.NoError(t, err)
		assert.Equal(t, record.ID, metadata.SessionID)
		assert.Equal(t, "alice", metadata.UserID)
		assert.Equal(t, "203.0.113.7", metadata.IPAddress)
		assert.Equal(t, "suite/1.0", metadata.UserAgent)
		assert.NotEmpty(t, metadata.ID)
	})

	t.Run("CreateDuplicateReturnsErrExists", func(t *testing.T) {
		store := factory(t)
		record := newRecord("alice", base.Add(time.Hour))
		create(t, store, record)

		err := store.Create(context.Background(), record, &session.Metadata{UserID: "mallory", CreatedAt: base, LastActivity: base})
		assert.ErrorIs(t, err, session.ErrExists)

		loaded, err := store.Load(context.Background(), record.ID, base)
		require.NoError(t, err)
		assert.Equal(t, "alice", loaded.Payload.UserID)
	})

	t.Run("LoadMissing", func(t *testing.T) {
		store := factory(t)
		_, err := store.Load(context.Background(), "sid-"+uuid.New(), base)
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("ExpiredRowIsNotLoaded", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		record := newRecord("bob", base.Add(time.Minute))
		create(t, store, record)

		_, err := store.Load(ctx, record.ID, base.Add(time.Minute))
		assert.ErrorIs(t, err, session.ErrNotFound, "a row is invalid at its expiry instant")

		_, err = store.Metadata(ctx, record.ID, base.Add(2*time.Minute))
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("TouchSlidesForwardOnly", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		record := newRecord("carol", base.Add(time.Hour))
		create(t, store, record)

		later := base.Add(24 * time.Hour)
		require.NoError(t, store.Touch(ctx, record.ID, later, base.Add(time.Second)))

		require.NoError(t, store.Touch(ctx, record.ID, base.Add(2*time.Hour), base.Add(2*time.Second)))

		loaded, err := store.Load(ctx, record.ID, base)
		require.NoError(t, err)
		assert.WithinDuration(t, later, loaded.Expire, time.Microsecond)

		metadata, err := store.Metadata(ctx, record.ID, base)
		require.NoError(t, err)
		assert.WithinDuration(t, base.Add(2*time.Second), metadata.LastActivity, time.Microsecond)
	})

	t.Run("TouchNeverRevivesExpired", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		record := newRecord("dave", base.Add(time.Minute))
		create(t, store, record)

		now := base.Add(time.Hour)
		err := store.Touch(ctx, record.ID, now.Add(24*time.Hour), now)
		assert.ErrorIs(t, err, session.ErrNotFound)

		_, err = store.Load(ctx, record.ID, now)
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("SaveNeverRevivesExpired", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		record := newRecord("erin", base.Add(time.Minute))
		create(t, store, record)

		now := base.Add(time.Hour)
		revived := *record
		revived.Expire = now.Add(24 * time.Hour)

		err := store.Save(ctx, &revived, now)
		assert.ErrorIs(t, err, session.ErrNotFound)

		_, err = store.Load(ctx, record.ID, now)
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("SaveUpdatesPayloadKeepsLaterExpiry", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		record := newRecord("frank", base.Add(48*time.Hour))
		create(t, store, record)

		updated := *record
		updated.Payload.Data = map[string]any{"theme": "dark"}
		updated.Expire = base.Add(time.Hour)
		require.NoError(t, store.Save(ctx, &updated, base))

		loaded, err := store.Load(ctx, record.ID, base)
		require.NoError(t, err)
		assert.Equal(t, "dark", loaded.Payload.Data["theme"])
		assert.WithinDuration(t, base.Add(48*time.Hour), loaded.Expire, time.Microsecond)
	})

	t.Run("SaveInsertsMissing", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		record := newRecord("grace", base.Add(time.Hour))
		require.NoError(t, store.Save(ctx, record, base))

		loaded, err := store.Load(ctx, record.ID, base)
		require.NoError(t, err)
		assert.Equal(t, "grace", loaded.Payload.UserID)

		metadata, err := store.Metadata(ctx, record.ID, base)
		require.NoError(t, err)
		assert.Equal(t, "grace", metadata.UserID)
	})

	t.Run("DestroyRemovesMetadata", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		record := newRecord("heidi", base.Add(time.Hour))
		create(t, store, record)

		require.NoError(t, store.Destroy(ctx, record.ID))

		_, err := store.Load(ctx, record.ID, base)
		assert.ErrorIs(t, err, session.ErrNotFound)
		_, err = store.Metadata(ctx, record.ID, base)
		assert.ErrorIs(t, err, session.ErrNotFound)

		assert.NoError(t, store.Destroy(ctx, record.ID), "destroying a missing session is not an error")
	})

	t.Run("ConcurrentTouchKeepsLatestExpiry", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		record := newRecord("ivan", base.Add(time.Hour))
		create(t, store, record)

		const writers = 16
		latest := base.Add(time.Duration(writers) * time.Hour)

		var wg sync.WaitGroup
		for i := 1; i <= writers; i++ {
			wg.Add(1)
			go func(offset int) {
				defer wg.Done()
				assert.NoError(t, store.Touch(ctx, record.ID, base.Add(time.Duration(offset)*time.Hour), base))
			}(i)
		}
		wg.Wait()

		loaded, err := store.Load(ctx, record.ID, base)
		require.NoError(t, err)
		assert.WithinDuration(t, latest, loaded.Expire, time.Microsecond)
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		expired := newRecord("judy", base.Add(time.Minute))
		live := newRecord("judy", base.Add(365*24*time.Hour))
		create(t, store, expired)
		create(t, store, live)

		now := base.Add(time.Hour)
		removed, err := store.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, removed, int64(1))

		_, err = store.Metadata(ctx, expired.ID, base)
		assert.ErrorIs(t, err, session.ErrNotFound, "the expired row must be physically gone")

		_, err = store.Load(ctx, live.ID, now)
		assert.NoError(t, err)
	})
}
