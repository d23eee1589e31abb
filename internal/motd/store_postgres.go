// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package motd

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/taibuivan/marketschool/internal/platform/apperr"
	"github.com/taibuivan/marketschool/internal/platform/dberr"
	"github.com/taibuivan/marketschool/internal/platform/postgres"
)

// PostgresRepository implements [Repository] using PostgreSQL.
type PostgresRepository struct {
	db postgres.Querier
}

// NewPostgresRepository creates a new [PostgresRepository].
func NewPostgresRepository(db postgres.Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

/*
Latest retrieves the newest message.
*/
func (repository *PostgresRepository) Latest(ctx context.Context) (*Message, error) {
	const query = `
		SELECT id, message, created_at
		FROM motd
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	var message Message
	err := repository.db.QueryRow(ctx, query).Scan(&message.ID, &message.Message, &message.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Message of the day")
		}
		return nil, dberr.Wrap(err, "load motd")
	}

	return &message, nil
}
