// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taibuivan/marketschool/internal/platform/dberr"
	"github.com/taibuivan/marketschool/internal/platform/postgres"
	"github.com/taibuivan/marketschool/pkg/uuid"
)

// PostgresStore implements [Store] on the session and user_sessions tables.
//
// It is the only writer of both tables.
type PostgresStore struct {
	db postgres.TxBeginner
}

// NewPostgresStore creates a new PostgreSQL implementation of [Store].
func NewPostgresStore(db postgres.TxBeginner) *PostgresStore {
	return &PostgresStore{db: db}
}

/*
Load retrieves a live session by its stored id.

Description: The expiry filter runs in SQL against the caller's clock, so a
row that is still physically present after expiring is reported as missing.
*/
func (store *PostgresStore) Load(ctx context.Context, sid string, now time.Time) (*Record, error) {
	const query = `
		SELECT sid, sess, expire
		FROM session
		WHERE sid = $1 AND expire > $2`

	var (
		record  Record
		rawSess []byte
	)

	err := store.db.QueryRow(ctx, query, sid, now.UTC()).Scan(&record.ID, &rawSess, &record.Expire)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres_session_store_load_failed: %w", err)
	}

	if err := json.Unmarshal(rawSess, &record.Payload); err != nil {
		return nil, fmt.Errorf("postgres_session_store_decode_failed: %w", err)
	}

	return &record, nil
}

/*
Create inserts a session row and its metadata row in one transaction.

Description: A duplicate sid surfaces as [ErrExists] so the caller can mint a
fresh token instead of overwriting someone else's session.
*/
func (store *PostgresStore) Create(ctx context.Context, record *Record, metadata *Metadata) error {
	const insertSession = `
		INSERT INTO session (sid, sess, expire)
		VALUES ($1, $2, $3)`

	const insertMetadata = `
		INSERT INTO user_sessions (
			id, session_id, user_id, created_at, last_activity, ip_address, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	rawSess, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("postgres_session_store_encode_failed: %w", err)
	}

	if metadata.ID == "" {
		metadata.ID = uuid.New()
	}
	metadata.SessionID = record.ID

	err = postgres.WithTx(ctx, store.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertSession, record.ID, rawSess, record.Expire.UTC()); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, insertMetadata,
			metadata.ID,
			metadata.SessionID,
			metadata.UserID,
			metadata.CreatedAt.UTC(),
			metadata.LastActivity.UTC(),
			metadata.IPAddress,
			metadata.UserAgent,
		)
		return err
	})

	if err != nil {
		if dberr.IsAlreadyExists(err) {
			return ErrExists
		}
		return fmt.Errorf("postgres_session_store_create_failed: %w", err)
	}

	return nil
}

/*
Save upserts the session payload.

Description: On conflict the expiry is GREATEST(stored, supplied) so that two
concurrent writers can never move it backwards. The conflict branch only
applies to live rows; an expired row is left untouched and reported as
[ErrNotFound].
*/
func (store *PostgresStore) Save(ctx context.Context, record *Record, now time.Time) error {
	const upsertSession = `
		INSERT INTO session (sid, sess, expire)
		VALUES ($1, $2, $3)
		ON CONFLICT (sid) DO UPDATE
		SET sess = EXCLUDED.sess,
		    expire = GREATEST(session.expire, EXCLUDED.expire)
		WHERE session.expire > $4`

	const upsertMetadata = `
		INSERT INTO user_sessions (id, session_id, user_id, created_at, last_activity)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (session_id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    last_activity = GREATEST(user_sessions.last_activity, EXCLUDED.last_activity)`

	rawSess, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("postgres_session_store_encode_failed: %w", err)
	}

	err = postgres.WithTx(ctx, store.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, upsertSession, record.ID, rawSess, record.Expire.UTC(), now.UTC())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		_, err = tx.Exec(ctx, upsertMetadata, uuid.New(), record.ID, record.Payload.UserID, now.UTC())
		return err
	})

	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("postgres_session_store_save_failed: %w", err)
	}

	return nil
}

/*
Touch slides a live session's expiry and records activity.
*/
func (store *PostgresStore) Touch(ctx context.Context, sid string, expire time.Time, now time.Time) error {
	const touchSession = `
		UPDATE session
		SET expire = GREATEST(expire, $2)
		WHERE sid = $1 AND expire > $3`

	const touchMetadata = `
		UPDATE user_sessions
		SET last_activity = GREATEST(last_activity, $2)
		WHERE session_id = $1`

	err := postgres.WithTx(ctx, store.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, touchSession, sid, expire.UTC(), now.UTC())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		_, err = tx.Exec(ctx, touchMetadata, sid, now.UTC())
		return err
	})

	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("postgres_session_store_touch_failed: %w", err)
	}

	return nil
}

/*
Destroy deletes a session row; the metadata row follows via ON DELETE CASCADE.
*/
func (store *PostgresStore) Destroy(ctx context.Context, sid string) error {
	const query = "DELETE FROM session WHERE sid = $1"

	if _, err := store.db.Exec(ctx, query, sid); err != nil {
		return fmt.Errorf("postgres_session_store_destroy_failed: %w", err)
	}
	return nil
}

/*
Metadata returns the audit row of a live session.
*/
func (store *PostgresStore) Metadata(ctx context.Context, sid string, now time.Time) (*Metadata, error) {
	const query = `
		SELECT u.id, u.session_id, u.user_id, u.created_at, u.last_activity,
		       COALESCE(u.ip_address, ''), COALESCE(u.user_agent, '')
		FROM user_sessions u
		JOIN session s ON s.sid = u.session_id
		WHERE u.session_id = $1 AND s.expire > $2`

	metadata := &Metadata{}
	err := store.db.QueryRow(ctx, query, sid, now.UTC()).Scan(
		&metadata.ID,
		&metadata.SessionID,
		&metadata.UserID,
		&metadata.CreatedAt,
		&metadata.LastActivity,
		&metadata.IPAddress,
		&metadata.UserAgent,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres_session_store_metadata_failed: %w", err)
	}

	return metadata, nil
}

/*
DeleteExpired purges every session whose expiry is at or before now.
*/
func (store *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = "DELETE FROM session WHERE expire <= $1"

	tag, err := store.db.Exec(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres_session_store_delete_expired_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}
