package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

const placesSchema = `
	CREATE TABLE IF NOT EXISTS places (
		id           TEXT PRIMARY KEY,
		location     TEXT NOT NULL,
		data         JSONB NOT NULL,
		collected_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS places_location_idx ON places (location);
`

func NewPool(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, eris.Wrap(err, "unable to parse postgres url")
	}

	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, eris.Wrap(err, "unable to create connection pool")
	}

	if _, err := pool.Exec(ctx, placesSchema); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "create places table")
	}

	return pool, nil
}
