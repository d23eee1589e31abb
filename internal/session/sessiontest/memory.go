// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sessiontest provides an in-memory [session.Store] and a
// conformance suite every store implementation must pass.
package sessiontest

import (
	"context"
	"sync"
	"time"

	"github.com/taibuivan/marketschool/internal/session"
	"github.com/taibuivan/marketschool/pkg/uuid"
)

// MemoryStore is a mutex-guarded [session.Store] with the same expiry
// semantics as the PostgreSQL store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]session.Record
	metadata map[string]session.Metadata
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]session.Record),
		metadata: make(map[string]session.Metadata),
	}
}

func (store *MemoryStore) Load(_ context.Context, sid string, now time.Time) (*session.Record, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	record, ok := store.sessions[sid]
	if !ok || !record.Live(now) {
		return nil, session.ErrNotFound
	}

	record.Payload.Data = cloneData(record.Payload.Data)
	return &record, nil
}

func (store *MemoryStore) Create(_ context.Context, record *session.Record, metadata *session.Metadata) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, taken := store.sessions[record.ID]; taken {
		return session.ErrExists
	}

	if metadata.ID == "" {
		metadata.ID = uuid.New()
	}
	metadata.SessionID = record.ID

	stored := *record
	stored.Payload.Data = cloneData(record.Payload.Data)
	store.sessions[record.ID] = stored
	store.metadata[record.ID] = *metadata
	return nil
}

func (store *MemoryStore) Save(_ context.Context, record *session.Record, now time.Time) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	stored := *record
	stored.Payload.Data = cloneData(record.Payload.Data)

	existing, ok := store.sessions[record.ID]
	if ok {
		if !existing.Live(now) {
			return session.ErrNotFound
		}
		if existing.Expire.After(stored.Expire) {
			stored.Expire = existing.Expire
		}
	}
	store.sessions[record.ID] = stored

	metadata, ok := store.metadata[record.ID]
	if !ok {
		metadata = session.Metadata{ID: uuid.New(), SessionID: record.ID, CreatedAt: now, LastActivity: now}
	}
	metadata.UserID = record.Payload.UserID
	if now.After(metadata.LastActivity) {
		metadata.LastActivity = now
	}
	store.metadata[record.ID] = metadata
	return nil
}

func (store *MemoryStore) Touch(_ context.Context, sid string, expire time.Time, now time.Time) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	record, ok := store.sessions[sid]
	if !ok || !record.Live(now) {
		return session.ErrNotFound
	}

	if expire.After(record.Expire) {
		record.Expire = expire
		store.sessions[sid] = record
	}

	if metadata, ok := store.metadata[sid]; ok && now.After(metadata.LastActivity) {
		metadata.LastActivity = now
		store.metadata[sid] = metadata
	}
	return nil
}

func (store *MemoryStore) Destroy(_ context.Context, sid string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	delete(store.sessions, sid)
	delete(store.metadata, sid)
	return nil
}

func (store *MemoryStore) Metadata(_ context.Context, sid string, now time.Time) (*session.Metadata, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	record, ok := store.sessions[sid]
	if !ok || !record.Live(now) {
		return nil, session.ErrNotFound
	}

	metadata, ok := store.metadata[sid]
	if !ok {
		return nil, session.ErrNotFound
	}
	return &metadata, nil
}

func (store *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var removed int64
	for sid, record := range store.sessions {
		if !record.Live(now) {
			delete(store.sessions, sid)
			delete(store.metadata, sid)
			removed++
		}
	}
	return removed, nil
}

// Len reports how many rows (live or expired) are held.
func (store *MemoryStore) Len() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.sessions)
}

func cloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	cloned := make(map[string]any, len(data))
	for key, value := range data {
		cloned[key] = value
	}
	return cloned
}
